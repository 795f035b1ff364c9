package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/logger"
	"github.com/warp/membership-engine/membership"
)

// =============================================================================
// PAYMENTS
// =============================================================================

var paymentColumns = []string{
	"id", "member_id", "period_year", "period_month", "amount", "currency",
	"payment_type", "note", "is_approved", "approved_by", "approved_at",
	"recorded_by", "created_at",
}

var paymentSelect = "SELECT " + strings.Join(paymentColumns, ", ") + " FROM member_payments"

// SavePayment upserts a payment. A violation of idx_unique_approved_payment
// becomes a *generic.ConflictError.
func (q *queries) SavePayment(ctx context.Context, p membership.Payment) error {
	query := "INSERT INTO member_payments (" + strings.Join(paymentColumns, ", ") + ") VALUES (" +
		placeholders(1, len(paymentColumns)) + ") ON CONFLICT(id) DO UPDATE SET " +
		excludedClause(paymentColumns[1:])

	logger.DatabaseCall("SavePayment", "payment_id", p.ID, "member_id", p.MemberID)
	_, err := q.q.ExecContext(ctx, query,
		string(p.ID), string(p.MemberID), p.Period.Year, p.Period.Month,
		p.Amount.Value.String(), string(p.Amount.Currency),
		string(p.Type), p.Note, p.IsApproved, nullString(p.ApprovedBy), nullTime(p.ApprovedAt),
		string(p.RecordedBy), formatTime(p.CreatedAt),
	)
	if err != nil {
		logger.DatabaseResult("SavePayment", 0, err)
		if isUniqueViolation(err) {
			return &generic.ConflictError{
				Kind:    "payment",
				ID:      string(p.ID),
				Message: fmt.Sprintf("approved payment already exists for %s", p.Period),
			}
		}
		return fmt.Errorf("failed to save payment: %w", err)
	}
	logger.DatabaseResult("SavePayment", 1, nil)
	return nil
}

func (q *queries) GetPayment(ctx context.Context, id membership.PaymentID) (*membership.Payment, error) {
	row := q.q.QueryRowContext(ctx, paymentSelect+" WHERE id = $1", string(id))
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "payment", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) DeletePayment(ctx context.Context, id membership.PaymentID) error {
	res, err := q.q.ExecContext(ctx, "DELETE FROM member_payments WHERE id = $1", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	if n == 0 {
		return &generic.NotFoundError{Kind: "payment", ID: string(id)}
	}
	return nil
}

func (q *queries) ListPayments(ctx context.Context, f membership.PaymentFilter) ([]membership.Payment, error) {
	w := &where{}
	if f.MemberID != "" {
		w.add("member_id = " + w.arg(string(f.MemberID)))
	}
	if f.FromYear > 0 {
		w.add("period_year >= " + w.arg(f.FromYear))
	}
	if f.Period != nil {
		w.add("period_year = " + w.arg(f.Period.Year))
		w.add("period_month = " + w.arg(f.Period.Month))
	}
	if f.ApprovedOnly {
		w.add("is_approved = " + w.arg(true))
	}

	query := paymentSelect + w.String() + " ORDER BY period_year, period_month, created_at, id"
	rows, err := q.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var result []membership.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanPayment(row scanner) (membership.Payment, error) {
	var (
		p                                     membership.Payment
		id, memberID, amount, currency, ptype string
		recordedBy, createdAt                 string
		approvedBy, approvedAt                sql.NullString
	)
	err := row.Scan(
		&id, &memberID, &p.Period.Year, &p.Period.Month, &amount, &currency,
		&ptype, &p.Note, &p.IsApproved, &approvedBy, &approvedAt,
		&recordedBy, &createdAt,
	)
	if err != nil {
		return p, err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return p, fmt.Errorf("invalid amount %q for payment %s: %w", amount, id, err)
	}
	p.ID = membership.PaymentID(id)
	p.MemberID = generic.EntityID(memberID)
	p.Amount = generic.NewAmount(value, generic.Currency(currency))
	p.Type = membership.PaymentType(ptype)
	p.RecordedBy = generic.ActorID(recordedBy)
	p.ApprovedBy = stringPtr[generic.ActorID](approvedBy)
	if p.ApprovedAt, err = parseNullTime(approvedAt); err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	return p, nil
}
