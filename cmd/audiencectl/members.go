package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var membersLimit int

var membersCmd = &cobra.Command{
	Use:   "members <audience-id>",
	Short: "List the customers in a saved audience",
	Args:  cobra.ExactArgs(1),
	RunE:  runMembers,
}

func init() {
	membersCmd.Flags().IntVarP(&membersLimit, "limit", "n", 20, "maximum number of members to print (0 for all)")
	rootCmd.AddCommand(membersCmd)
}

func runMembers(cmd *cobra.Command, args []string) error {
	_, en, err := loadEngine(cmd)
	if err != nil {
		return err
	}

	a, err := en.GetAudience(args[0])
	if err != nil {
		return err
	}
	members, err := en.Members(cmd.Context(), a.ID, membersLimit)
	if err != nil {
		return fmt.Errorf("listing members: %w", err)
	}

	if len(members) == 0 {
		fmt.Printf("Audience %q has no members.\n", a.Name)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFACTS\tENGAGEMENTS")
	for _, c := range members {
		fmt.Fprintf(w, "%s\t%d\t%d\n", c.ID, len(c.Facts), len(c.Engagements))
	}
	w.Flush()

	if len(members) < a.Size {
		fmt.Printf("\nshowing %d of %d members\n", len(members), a.Size)
	}
	return nil
}
