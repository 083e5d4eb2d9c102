package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/audiences/schema"
)

var validateSchemaCmd = &cobra.Command{
	Use:   "validate-schema <file>",
	Short: "Check a schema file (YAML or JSON)",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidateSchema,
}

func init() {
	rootCmd.AddCommand(validateSchemaCmd)
}

func runValidateSchema(cmd *cobra.Command, args []string) error {
	s, err := schema.Load(args[0])
	if err != nil {
		return err
	}

	props := 0
	for _, f := range s.Facts {
		props += len(f.Properties)
	}
	for _, e := range s.Engagements {
		props += len(e.Properties)
	}
	fmt.Printf("%s: ok (%d facts, %d engagements, %d properties)\n", args[0], len(s.Facts), len(s.Engagements), props)
	return nil
}
