package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/audiences/dataset"
	"github.com/liamcoop/audiences/segment"
)

var explainCmd = &cobra.Command{
	Use:   "explain [audience-id]",
	Short: "Show the rules, condition tree and CEL expression of an audience",
	Long: `Prints every section in plain language, the condition tree the entry
section lowers to and its CEL rendering. Without an audience id the
sections come from --sections or the dataset's sections.json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().StringVarP(&sectionsFile, "sections", "s", "", "sections JSON file (defaults to the dataset's sections.json)")
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	ds, err := dataset.Load(dataDir)
	if err != nil {
		return err
	}

	var sections []segment.Section
	if len(args) == 1 {
		for _, a := range ds.Audiences {
			if a.ID == args[0] {
				sections = a.Sections
			}
		}
		if sections == nil {
			return fmt.Errorf("audience %s not found in %s", args[0], ds.Dir)
		}
	} else if sections, err = resolveSections(ds); err != nil {
		return err
	}

	for _, sec := range sections {
		fmt.Println(segment.Describe(sec))
	}

	group := segment.NewBuilder(ds.Schema).Build(sections)
	tree, err := json.MarshalIndent(group, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding conditions: %w", err)
	}
	fmt.Printf("Conditions:\n%s\n\n", tree)

	expr, err := segment.ToCEL(group)
	if err != nil {
		fmt.Printf("CEL: unavailable (%v)\n", err)
		return nil
	}
	fmt.Printf("CEL:\n%s\n", expr)
	return nil
}
