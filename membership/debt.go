/*
debt.go - Dues debt reconciliation

PURPOSE:
  Derives the amount a member owes from a sparse payment history.

ALGORITHM (CalculateDebt):
  1. Paid set = periods with an APPROVED payment, year >= asOf.Year-1
  2. Walk 12 consecutive periods back from asOf (inclusive), rolling the
     year over at month 0
  3. Skip periods before the membership start period
  4. Every remaining period absent from the paid set is one debt month
  5. Debt = debt months x monthly due

  ┌──────────────────────────────────────────────────────────────┐
  │  asOf = 2025-03, start = 2025-01                             │
  │                                                              │
  │  2024-04 ... 2024-12 │ 2025-01  2025-02  2025-03             │
  │  skipped (pre-start) │ counted unless paid                   │
  └──────────────────────────────────────────────────────────────┘

  The window is fixed at 12 months. A member who has not paid for 20
  months is charged for the most recent 12 only.

RATE:
  The monthly due is a single injected rate. Past periods are priced at
  the current rate; there is no historical rate schedule.

PURITY:
  CalculateDebt is a pure function of its arguments. DebtCalculator only
  adds the store lookups around it.

SEE ALSO:
  - payments.go: Source of approved payments
  - report.go: Bulk aggregation over a population
*/
package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/membership-engine/generic"
)

// DebtWindowMonths is the length of the trailing window.
const DebtWindowMonths = 12

// DebtStatement is the outcome of one reconciliation.
type DebtStatement struct {
	MemberID        generic.EntityID
	AsOf            generic.Period
	MembershipStart time.Time
	MonthlyDue      generic.Amount
	UnpaidPeriods   []generic.Period // newest first
	DebtMonths      int
	Amount          generic.Amount
}

// CalculateDebt computes the debt for the 12-period window ending at asOf.
func CalculateDebt(start time.Time, payments []Payment, asOf generic.Period, monthlyDue generic.Amount) DebtStatement {
	paid := make(map[generic.Period]bool)
	for _, p := range payments {
		if p.IsApproved && p.Period.Year >= asOf.Year-1 {
			paid[p.Period] = true
		}
	}

	startPeriod := generic.PeriodOf(start)
	var unpaid []generic.Period
	for _, period := range generic.TrailingWindow(asOf, DebtWindowMonths) {
		if period.Before(startPeriod) {
			continue
		}
		if !paid[period] {
			unpaid = append(unpaid, period)
		}
	}

	return DebtStatement{
		AsOf:            asOf,
		MembershipStart: start,
		MonthlyDue:      monthlyDue,
		UnpaidPeriods:   unpaid,
		DebtMonths:      len(unpaid),
		Amount:          monthlyDue.Mul(int64(len(unpaid))),
	}
}

// =============================================================================
// DEBT CALCULATOR - Store-backed per-member reconciliation
// =============================================================================

type DebtCalculator struct {
	store      Store
	monthlyDue generic.Amount
}

func NewDebtCalculator(store Store, monthlyDue generic.Amount) *DebtCalculator {
	return &DebtCalculator{store: store, monthlyDue: monthlyDue}
}

// MonthlyDue returns the configured rate.
func (c *DebtCalculator) MonthlyDue() generic.Amount {
	return c.monthlyDue
}

// CalculateMemberDebt reconciles one member. Members that are not ACTIVE
// owe nothing.
func (c *DebtCalculator) CalculateMemberDebt(ctx context.Context, memberID generic.EntityID, asOf generic.Period) (*DebtStatement, error) {
	if err := asOf.Validate(); err != nil {
		return nil, err
	}
	m, err := getVisible(ctx, c.store, memberID)
	if err != nil {
		return nil, err
	}
	st, err := c.statementFor(ctx, *m, asOf)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *DebtCalculator) statementFor(ctx context.Context, m Member, asOf generic.Period) (DebtStatement, error) {
	if m.Status != StatusActive {
		return DebtStatement{
			MemberID:        m.ID,
			AsOf:            asOf,
			MembershipStart: m.MembershipStart(),
			MonthlyDue:      c.monthlyDue,
			Amount:          c.monthlyDue.Zero(),
		}, nil
	}

	payments, err := c.store.ListPayments(ctx, PaymentFilter{
		MemberID:     m.ID,
		FromYear:     asOf.Year - 1,
		ApprovedOnly: true,
	})
	if err != nil {
		return DebtStatement{}, fmt.Errorf("failed to load payments: %w", err)
	}

	st := CalculateDebt(m.MembershipStart(), payments, asOf, c.monthlyDue)
	st.MemberID = m.ID
	return st, nil
}
