package membership_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/membership"
)

// seedReport builds three active members in two provinces plus one
// pending and one deleted member that must not appear.
//
//	PROV-01/DIST-01/BR-01  approved 2024-03, no payments    -> 12 months
//	PROV-01/DIST-02/BR-02  approved 2025-01, paid 2025-02   ->  2 months
//	PROV-02/DIST-03/BR-03  approved 2024-01, paid full year ->  0 months
func seedReport(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()

	a := applicant("Ani", "3205000000000001")
	f.activeMember(t, a, "REG-R1", date(2024, time.March, 1))

	b := applicant("Beni", "3205000000000002")
	b.DistrictID, b.BranchID = "DIST-02", "BR-02"
	mb := f.activeMember(t, b, "REG-R2", date(2025, time.January, 1))
	f.pay(t, mb.ID, 2025, 2)

	c := applicant("Cahya", "3205000000000003")
	c.ProvinceID, c.DistrictID, c.BranchID = "PROV-02", "DIST-03", "BR-03"
	mc := f.activeMember(t, c, "REG-R3", date(2024, time.January, 1))
	for _, p := range generic.TrailingWindow(period(2025, 3), 12) {
		f.pay(t, mc.ID, p.Year, p.Month)
	}

	f.apply(t, applicant("Dodi", "3205000000000004"))
	gone := f.activeMember(t, applicant("Evi", "3205000000000005"), "REG-R5", date(2024, time.January, 1))
	_, err := f.svc.SoftDelete(ctx, gone.ID, "duplicate")
	require.NoError(t, err)
}

func TestDebtReport_Totals(t *testing.T) {
	f := newFixture(t)
	seedReport(t, f)

	report, err := f.reporter.DebtReport(context.Background(), membership.ReportFilter{}, period(2025, 3))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Members)
	assert.Equal(t, 2, report.MembersInDebt)
	assert.Equal(t, "140000.00", report.Total.Fixed())
	assert.Len(t, report.Lines, 3)

	require.Len(t, report.ByProvince, 2)
	assert.Equal(t, "PROV-01", report.ByProvince[0].Key)
	assert.Equal(t, 2, report.ByProvince[0].Members)
	assert.Equal(t, "140000.00", report.ByProvince[0].Amount.Fixed())
	assert.Equal(t, "PROV-02", report.ByProvince[1].Key)
	assert.Equal(t, 0, report.ByProvince[1].MembersInDebt)
	assert.True(t, report.ByProvince[1].Amount.IsZero())

	require.Len(t, report.ByBranch, 3)
	assert.Equal(t, []string{"BR-01", "BR-02", "BR-03"},
		[]string{report.ByBranch[0].Key, report.ByBranch[1].Key, report.ByBranch[2].Key})
}

func TestDebtReport_TotalEqualsSumOfMemberDebts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedReport(t, f)

	report, err := f.reporter.DebtReport(ctx, membership.ReportFilter{}, period(2025, 3))
	require.NoError(t, err)

	sum := monthlyDue.Zero()
	for _, line := range report.Lines {
		st, err := f.debt.CalculateMemberDebt(ctx, line.MemberID, period(2025, 3))
		require.NoError(t, err)
		assert.Equal(t, st.DebtMonths, line.DebtMonths)
		sum = sum.Add(st.Amount)
	}
	assert.True(t, sum.Equal(report.Total))
}

func TestDebtReport_Scoped(t *testing.T) {
	f := newFixture(t)
	seedReport(t, f)

	tests := []struct {
		name    string
		filter  membership.ReportFilter
		members int
		total   string
	}{
		{"province", membership.ReportFilter{Scope: membership.Scope{ProvinceID: "PROV-02"}}, 1, "0.00"},
		{"district", membership.ReportFilter{Scope: membership.Scope{ProvinceID: "PROV-01", DistrictID: "DIST-02"}}, 1, "20000.00"},
		{"branch", membership.ReportFilter{BranchID: "BR-01"}, 1, "120000.00"},
		{"nothing in scope", membership.ReportFilter{Scope: membership.Scope{ProvinceID: "PROV-99"}}, 0, "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := f.reporter.DebtReport(context.Background(), tt.filter, period(2025, 3))
			require.NoError(t, err)

			assert.Equal(t, tt.members, report.Members)
			assert.Equal(t, tt.total, report.Total.Fixed())
			assert.Equal(t, generic.Currency("IDR"), report.Total.Currency)
		})
	}
}

func TestDebtReport_InvalidPeriod(t *testing.T) {
	f := newFixture(t)

	_, err := f.reporter.DebtReport(context.Background(), membership.ReportFilter{}, period(0, 1))

	assert.ErrorIs(t, err, generic.ErrValidation)
}
