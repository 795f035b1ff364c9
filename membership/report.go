package membership

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/membership-engine/generic"
)

// =============================================================================
// REPORTING - Debt aggregated over a population
// =============================================================================

type ReportFilter struct {
	Scope    Scope
	BranchID string
}

// DebtLine is one member's contribution to a report.
type DebtLine struct {
	MemberID           generic.EntityID
	FullName           string
	RegistrationNumber string
	ProvinceID         string
	DistrictID         string
	BranchID           string
	DebtMonths         int
	Amount             generic.Amount
}

// GroupTotal sums lines sharing one province, district or branch.
type GroupTotal struct {
	Key           string
	Members       int
	MembersInDebt int
	Amount        generic.Amount
}

type DebtReport struct {
	AsOf          generic.Period
	Lines         []DebtLine
	Members       int
	MembersInDebt int
	Total         generic.Amount
	ByProvince    []GroupTotal
	ByDistrict    []GroupTotal
	ByBranch      []GroupTotal
}

type Reporter struct {
	store Store
	debt  *DebtCalculator
}

func NewReporter(store Store, debt *DebtCalculator) *Reporter {
	return &Reporter{store: store, debt: debt}
}

// DebtReport reconciles every visible ACTIVE member in scope independently
// and sums the results.
func (r *Reporter) DebtReport(ctx context.Context, filter ReportFilter, asOf generic.Period) (*DebtReport, error) {
	if err := asOf.Validate(); err != nil {
		return nil, err
	}
	members, err := r.store.ListMembers(ctx, MemberFilter{
		Scope:    filter.Scope,
		BranchID: filter.BranchID,
		Statuses: []Status{StatusActive},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	zero := r.debt.MonthlyDue().Zero()
	report := &DebtReport{AsOf: asOf, Total: zero}
	byProvince := newGroupTotals(zero)
	byDistrict := newGroupTotals(zero)
	byBranch := newGroupTotals(zero)

	for _, m := range members {
		st, err := r.debt.statementFor(ctx, m, asOf)
		if err != nil {
			return nil, err
		}
		line := DebtLine{
			MemberID:   m.ID,
			FullName:   m.FullName,
			ProvinceID: m.ProvinceID,
			DistrictID: m.DistrictID,
			BranchID:   m.BranchID,
			DebtMonths: st.DebtMonths,
			Amount:     st.Amount,
		}
		if m.RegistrationNumber != nil {
			line.RegistrationNumber = *m.RegistrationNumber
		}
		report.Lines = append(report.Lines, line)
		report.Members++
		if st.DebtMonths > 0 {
			report.MembersInDebt++
		}
		report.Total = report.Total.Add(st.Amount)

		byProvince.add(m.ProvinceID, line)
		byDistrict.add(m.DistrictID, line)
		byBranch.add(m.BranchID, line)
	}

	report.ByProvince = byProvince.sorted()
	report.ByDistrict = byDistrict.sorted()
	report.ByBranch = byBranch.sorted()
	return report, nil
}

type groupTotals struct {
	zero   generic.Amount
	groups map[string]*GroupTotal
}

func newGroupTotals(zero generic.Amount) *groupTotals {
	return &groupTotals{zero: zero, groups: make(map[string]*GroupTotal)}
}

func (g *groupTotals) add(key string, line DebtLine) {
	t, ok := g.groups[key]
	if !ok {
		t = &GroupTotal{Key: key, Amount: g.zero}
		g.groups[key] = t
	}
	t.Members++
	if line.DebtMonths > 0 {
		t.MembersInDebt++
	}
	t.Amount = t.Amount.Add(line.Amount)
}

func (g *groupTotals) sorted() []GroupTotal {
	result := make([]GroupTotal, 0, len(g.groups))
	for _, t := range g.groups {
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}
