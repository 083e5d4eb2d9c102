package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var audiencesCmd = &cobra.Command{
	Use:   "audiences",
	Short: "List the saved audiences of the dataset with their current sizes",
	Args:  cobra.NoArgs,
	RunE:  runAudiences,
}

func init() {
	rootCmd.AddCommand(audiencesCmd)
}

func runAudiences(cmd *cobra.Command, args []string) error {
	ds, en, err := loadEngine(cmd)
	if err != nil {
		return err
	}

	audiences, err := en.ListAudiences()
	if err != nil {
		return err
	}
	if len(audiences) == 0 {
		fmt.Printf("No audiences in %s.\n", ds.Dir)
		return nil
	}

	total := len(ds.Customers)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSIZE\tSHARE\tCEL")
	for _, a := range audiences {
		cel := "ok"
		if a.Expression == "" {
			cel = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", a.ID, a.Name, a.Status, a.Size, percent(a.Size, total), cel)
	}
	return w.Flush()
}
