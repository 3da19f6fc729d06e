package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/finsheet/fieldmap/pkg/rules"
)

var matchFlags = struct {
	jobFlags
	rulesOut string
}{}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Propose a rule table without writing the destination",
	Long: `Match runs the pipeline through resolution and prints the proposed
rule table as CSV. The table can be reviewed, edited, and later executed
with "run --rules".`,
	SilenceUsage: true,
	RunE: func(c *cobra.Command, _ []string) error {
		ctx := c.Context()
		j, source, dest, err := buildJob(ctx, &matchFlags.jobFlags)
		if err != nil {
			return err
		}
		defer source.Close()
		defer dest.Close()

		result, err := j.Match(ctx)
		if err != nil {
			return err
		}

		out := os.Stdout
		if matchFlags.rulesOut != "" {
			f, err := os.Create(matchFlags.rulesOut)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		if err := rules.Write(out, result.Rules); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "%d destinations assigned, %d skipped\n",
			len(result.Assignments), len(result.Skipped))
		if result.Degraded {
			fmt.Fprintln(os.Stderr, "NOTE: oracle unavailable, matched on local candidates only")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
	addJobFlags(matchCmd, &matchFlags.jobFlags)
	matchCmd.Flags().StringVar(&matchFlags.rulesOut, "rules-out", "", "write the proposed rule table to this path")
}
