package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finsheet/fieldmap/pkg/rules"
	"github.com/finsheet/fieldmap/pkg/sheets"
)

var validateFlags struct {
	source    string
	rulesPath string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a rule table against a source workbook",
	Long: `Validate parses a rule table and reports schema violations. With
--source it also confirms every referenced sheet exists in the workbook.
It writes nothing.`,
	SilenceUsage: true,
	RunE: func(c *cobra.Command, _ []string) error {
		table, err := rules.LoadFile(validateFlags.rulesPath)
		if err != nil {
			return err
		}

		if validateFlags.source != "" {
			source, err := sheets.Open(validateFlags.source)
			if err != nil {
				return err
			}
			defer source.Close()
			if err := table.Validate(source); err != nil {
				return err
			}
		}
		fmt.Printf("%s: %d rules OK\n", validateFlags.rulesPath, len(table.Rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateFlags.source, "source", "", "source workbook to check sheet references against")
	validateCmd.Flags().StringVar(&validateFlags.rulesPath, "rules", "", "rule table (csv)")
	_ = validateCmd.MarkFlagRequired("rules")
}
