package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/audiences/dataset"
	"github.com/liamcoop/audiences/segment"
)

var (
	sectionsFile string
	jsonOutput   bool
)

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Size the audience described by a set of sections",
	Long: `Builds the condition tree of the entry section and counts the customers
matching it. Sections come from --sections or from the dataset's
sections.json.`,
	Args: cobra.NoArgs,
	RunE: runSize,
}

func init() {
	sizeCmd.Flags().StringVarP(&sectionsFile, "sections", "s", "", "sections JSON file (defaults to the dataset's sections.json)")
	sizeCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the preview as JSON")
	rootCmd.AddCommand(sizeCmd)
}

func runSize(cmd *cobra.Command, args []string) error {
	ds, en, err := loadEngine(cmd)
	if err != nil {
		return err
	}
	sections, err := resolveSections(ds)
	if err != nil {
		return err
	}

	p, err := en.Preview(cmd.Context(), sections)
	if err != nil {
		return fmt.Errorf("sizing audience: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	for _, line := range p.Summary {
		fmt.Println(line)
	}
	fmt.Printf("\n%d of %d customers (%s)\n", p.Size, p.Total, percent(p.Size, p.Total))
	return nil
}

func resolveSections(ds *dataset.Dataset) ([]segment.Section, error) {
	if sectionsFile != "" {
		return dataset.LoadSections(sectionsFile)
	}
	if len(ds.Sections) == 0 {
		return nil, fmt.Errorf("no sections: pass --sections or add %s to %s", dataset.SectionsFile, ds.Dir)
	}
	return ds.Sections, nil
}

func percent(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}
