package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/membership-engine/jobs"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Run the monthly dues digest once",
	Long: `Run the job the scheduler fires on scheduler.dues_digest: build the
debt report for the previous month and log totals per province.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		report, err := jobs.NewDuesDigest(e.services.Reports, e.clock).RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Digest %s: %d members, %d in debt, total %s\n",
			report.AsOf, report.Members, report.MembersInDebt, report.Total)
		return nil
	},
}
