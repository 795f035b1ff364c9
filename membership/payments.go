/*
payments.go - Dues payment ledger

PURPOSE:
  Records dues payments per member per (year, month) period. The ledger
  is append-mostly: approved payments are immutable and cannot be deleted.

UNIQUENESS INVARIANT:
  At most one APPROVED payment per member per period. Unapproved duplicates
  are tolerated until an approver reconciles them.

  Two layers enforce it:
  1. The ledger checks for an existing approved payment before writing,
     which yields a descriptive Conflict.
  2. The store rejects the write itself (a partial unique index on
     approved rows in SQL, an equivalent check in memory), which closes
     the race between two concurrent writers.

ENTRY PATHS:
  RecordPayment: accounting entry, pre-approved, member must be ACTIVE
  SubmitPayment: unverified entry (imports), stored unapproved
  ApprovePayment: promotes an unapproved entry

SEE ALSO:
  - debt.go: Consumes approved payments
  - store/sqlstore/schema.go: idx_unique_approved_payment
*/
package membership

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/membership-engine/factory"
	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/logger"
)

type RecordPaymentInput struct {
	MemberID generic.EntityID `json:"memberId" validate:"required"`
	Period   generic.Period   `json:"period"`
	Amount   generic.Amount   `json:"amount"`
	Type     PaymentType      `json:"paymentType" validate:"required,oneof=CASH BANK_TRANSFER PAYROLL_DEDUCTION OTHER"`
	Note     string           `json:"note" validate:"max=500"`
}

func (in RecordPaymentInput) Check() error {
	if err := in.Period.Validate(); err != nil {
		return err
	}
	return in.Amount.Validate()
}

type PaymentLedger struct {
	store    TxStore
	clock    generic.Clock
	currency generic.Currency
	log      *slog.Logger
}

// NewPaymentLedger builds a ledger booking in currency. Amounts submitted
// without a currency are booked in it; other currencies are refused.
func NewPaymentLedger(store TxStore, clock generic.Clock, currency generic.Currency) *PaymentLedger {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &PaymentLedger{
		store:    store,
		clock:    clock,
		currency: currency,
		log:      logger.WithService("payment-ledger"),
	}
}

// RecordPayment books a pre-approved payment for an ACTIVE member.
func (l *PaymentLedger) RecordPayment(ctx context.Context, in RecordPaymentInput, recordedBy generic.ActorID) (*Payment, error) {
	if err := l.check(in); err != nil {
		return nil, err
	}

	var result *Payment
	err := l.store.WithTx(ctx, func(s Store) error {
		m, err := getVisible(ctx, s, in.MemberID)
		if err != nil {
			return err
		}
		if m.Status != StatusActive {
			return invalidState(m, "record payment for")
		}
		if err := ensureNoApprovedPayment(ctx, s, in.MemberID, in.Period, ""); err != nil {
			return err
		}

		now := l.clock.Now()
		p := l.newPayment(in, recordedBy)
		p.IsApproved = true
		p.ApprovedBy = &recordedBy
		p.ApprovedAt = &now
		if err := s.SavePayment(ctx, p); err != nil {
			return err
		}
		result = &p
		return nil
	})
	if err != nil {
		l.log.WarnContext(ctx, "record payment failed",
			"member_id", in.MemberID, "period", in.Period.String(), "error", err)
		return nil, err
	}

	l.log.InfoContext(ctx, "payment recorded", "payment_id", result.ID, "member_id", result.MemberID,
		"period", result.Period.String(), "amount", result.Amount.String(), "actor", recordedBy)
	return result, nil
}

// SubmitPayment stores an unapproved payment. Duplicates are allowed.
func (l *PaymentLedger) SubmitPayment(ctx context.Context, in RecordPaymentInput, recordedBy generic.ActorID) (*Payment, error) {
	if err := l.check(in); err != nil {
		return nil, err
	}
	if _, err := getVisible(ctx, l.store, in.MemberID); err != nil {
		return nil, err
	}

	p := l.newPayment(in, recordedBy)
	if err := l.store.SavePayment(ctx, p); err != nil {
		return nil, err
	}
	l.log.InfoContext(ctx, "payment submitted", "payment_id", p.ID, "member_id", p.MemberID,
		"period", p.Period.String(), "actor", recordedBy)
	return &p, nil
}

// ApprovePayment promotes an unapproved payment.
func (l *PaymentLedger) ApprovePayment(ctx context.Context, id PaymentID, approver generic.ActorID) (*Payment, error) {
	var result *Payment
	err := l.store.WithTx(ctx, func(s Store) error {
		p, err := s.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if p.IsApproved {
			return &generic.InvalidStateError{Kind: "payment", ID: string(id), Op: "approve", Current: "APPROVED"}
		}
		if _, err := getVisible(ctx, s, p.MemberID); err != nil {
			return err
		}
		if err := ensureNoApprovedPayment(ctx, s, p.MemberID, p.Period, p.ID); err != nil {
			return err
		}

		now := l.clock.Now()
		p.IsApproved = true
		p.ApprovedBy = &approver
		p.ApprovedAt = &now
		if err := s.SavePayment(ctx, *p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		l.log.WarnContext(ctx, "approve payment failed", "payment_id", id, "error", err)
		return nil, err
	}
	l.log.InfoContext(ctx, "payment approved", "payment_id", id, "member_id", result.MemberID, "actor", approver)
	return result, nil
}

// DeletePayment removes an unapproved payment. Approved payments are immutable.
func (l *PaymentLedger) DeletePayment(ctx context.Context, id PaymentID) error {
	err := l.store.WithTx(ctx, func(s Store) error {
		p, err := s.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if p.IsApproved {
			return &generic.InvalidStateError{Kind: "payment", ID: string(id), Op: "delete", Current: "APPROVED"}
		}
		return s.DeletePayment(ctx, id)
	})
	if err != nil {
		return err
	}
	l.log.InfoContext(ctx, "payment deleted", "payment_id", id)
	return nil
}

// ListPayments returns payments of a visible member.
func (l *PaymentLedger) ListPayments(ctx context.Context, memberID generic.EntityID, filter PaymentFilter) ([]Payment, error) {
	if _, err := getVisible(ctx, l.store, memberID); err != nil {
		return nil, err
	}
	filter.MemberID = memberID
	payments, err := l.store.ListPayments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// check validates in and refuses amounts outside the ledger currency,
// since debt is reconciled against a due in that currency.
func (l *PaymentLedger) check(in RecordPaymentInput) error {
	if err := factory.Validate(in); err != nil {
		return err
	}
	if in.Amount.Currency != "" && in.Amount.Currency != l.currency {
		return &generic.ValidationError{
			Field:   "currency",
			Message: fmt.Sprintf("must be %s, got %s", l.currency, in.Amount.Currency),
		}
	}
	return nil
}

func (l *PaymentLedger) newPayment(in RecordPaymentInput, recordedBy generic.ActorID) Payment {
	amount := in.Amount
	if amount.Currency == "" {
		amount.Currency = l.currency
	}
	return Payment{
		ID:         PaymentID(generic.NewID()),
		MemberID:   in.MemberID,
		Period:     in.Period,
		Amount:     amount,
		Type:       in.Type,
		Note:       in.Note,
		RecordedBy: recordedBy,
		CreatedAt:  l.clock.Now(),
	}
}

func ensureNoApprovedPayment(ctx context.Context, s Store, memberID generic.EntityID, period generic.Period, except PaymentID) error {
	existing, err := s.ListPayments(ctx, PaymentFilter{MemberID: memberID, Period: &period, ApprovedOnly: true})
	if err != nil {
		return fmt.Errorf("failed to check existing payments: %w", err)
	}
	for _, p := range existing {
		if p.ID != except {
			return &generic.ConflictError{
				Kind:    "payment",
				ID:      string(p.ID),
				Message: fmt.Sprintf("member %s already has an approved payment for %s", memberID, period),
			}
		}
	}
	return nil
}
