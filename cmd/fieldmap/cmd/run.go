package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/finsheet/fieldmap/pkg/job"
	"github.com/finsheet/fieldmap/pkg/rules"
)

var runFlags = struct {
	jobFlags
	rulesPath string
	auditPath string
}{}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Populate the destination template from the source workbook",
	Long: `Run matches source fields to destination fields, resolves a
conflict-free assignment set, writes the values, and emits an audit trail.

With --rules, matching is skipped and a previously saved rule table is
executed as-is.`,
	SilenceUsage: true,
	RunE: func(c *cobra.Command, _ []string) error {
		ctx := c.Context()
		j, source, dest, err := buildJob(ctx, &runFlags.jobFlags)
		if err != nil {
			return err
		}
		defer source.Close()
		defer dest.Close()

		var result *job.Result
		if runFlags.rulesPath != "" {
			table, err := rules.LoadFile(runFlags.rulesPath)
			if err != nil {
				return err
			}
			result, err = j.RunRules(ctx, table)
			if err != nil {
				return err
			}
		} else {
			result, err = j.Run(ctx)
			if err != nil {
				return err
			}
		}

		if runFlags.auditPath != "" {
			if err := writeAudit(result.Trail, runFlags.auditPath); err != nil {
				return err
			}
		}
		result.Report.Print(os.Stdout)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addJobFlags(runCmd, &runFlags.jobFlags)
	runCmd.Flags().StringVar(&runFlags.rulesPath, "rules", "", "execute a saved rule table instead of matching")
	runCmd.Flags().StringVar(&runFlags.auditPath, "audit", "", "write the audit trail CSV to this path")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "resolve and report without writing the workbook")
}
