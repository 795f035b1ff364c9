package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/membership-engine/membership"
)

var (
	reportYear     int
	reportMonth    int
	reportProvince string
	reportDistrict string
	reportBranch   string
	reportJSON     bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregate dues debt across active members",
	Long: `Build the debt report for every ACTIVE member in scope and print
totals per province, district and branch.

Examples:
  membersctl report --year 2024 --month 12
  membersctl report --province PROV-01 --json`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().IntVar(&reportYear, "year", 0, "as-of year")
	reportCmd.Flags().IntVar(&reportMonth, "month", 0, "as-of month (1-12)")
	reportCmd.Flags().StringVar(&reportProvince, "province", "", "restrict to province")
	reportCmd.Flags().StringVar(&reportDistrict, "district", "", "restrict to district")
	reportCmd.Flags().StringVar(&reportBranch, "branch", "", "restrict to branch")
	reportCmd.Flags().BoolVarP(&reportJSON, "json", "j", false, "output as JSON")
}

func runReport(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	asOf, err := periodFlags(e.clock, reportYear, reportMonth)
	if err != nil {
		return err
	}

	report, err := e.services.Reports.DebtReport(cmd.Context(), membership.ReportFilter{
		Scope:    membership.Scope{ProvinceID: reportProvince, DistrictID: reportDistrict},
		BranchID: reportBranch,
	}, asOf)
	if err != nil {
		return err
	}

	if reportJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return printReport(cmd.OutOrStdout(), report)
}

func printReport(out io.Writer, r *membership.DebtReport) error {
	fmt.Fprintf(out, "Debt report as of %s\n", r.AsOf)
	fmt.Fprintf(out, "Members: %d  In debt: %d  Total: %s\n", r.Members, r.MembersInDebt, r.Total)

	groups := []struct {
		title  string
		totals []membership.GroupTotal
	}{
		{"PROVINCE", r.ByProvince},
		{"DISTRICT", r.ByDistrict},
		{"BRANCH", r.ByBranch},
	}
	for _, g := range groups {
		fmt.Fprintln(out)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "%s\tMEMBERS\tIN DEBT\tAMOUNT\n", g.title)
		for _, t := range g.totals {
			key := t.Key
			if key == "" {
				key = "(none)"
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", key, t.Members, t.MembersInDebt, t.Amount.Fixed())
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
