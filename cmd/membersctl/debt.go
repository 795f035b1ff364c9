package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/membership-engine/generic"
)

var (
	debtYear  int
	debtMonth int
)

var debtCmd = &cobra.Command{
	Use:   "debt MEMBER_ID",
	Short: "Show a member's dues debt",
	Long: `Reconcile one member's approved payments against the trailing
12-month window ending at --year/--month (default: current month).

Examples:
  membersctl debt 3f2b...
  membersctl debt 3f2b... --year 2024 --month 6`,
	Args: cobra.ExactArgs(1),
	RunE: runDebt,
}

func init() {
	debtCmd.Flags().IntVar(&debtYear, "year", 0, "as-of year")
	debtCmd.Flags().IntVar(&debtMonth, "month", 0, "as-of month (1-12)")
}

func runDebt(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	asOf, err := periodFlags(e.clock, debtYear, debtMonth)
	if err != nil {
		return err
	}

	st, err := e.services.Debt.CalculateMemberDebt(cmd.Context(), generic.EntityID(args[0]), asOf)
	if err != nil {
		return err
	}

	unpaid := make([]string, len(st.UnpaidPeriods))
	for i, p := range st.UnpaidPeriods {
		unpaid[i] = p.String()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Member:      %s\n", st.MemberID)
	fmt.Fprintf(out, "As of:       %s\n", st.AsOf)
	fmt.Fprintf(out, "Since:       %s\n", st.MembershipStart.Format("2006-01-02"))
	fmt.Fprintf(out, "Monthly due: %s\n", st.MonthlyDue)
	fmt.Fprintf(out, "Unpaid:      %d month(s) %s\n", st.DebtMonths, strings.Join(unpaid, " "))
	fmt.Fprintf(out, "Debt:        %s\n", st.Amount)
	return nil
}
