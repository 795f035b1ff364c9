package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/logger"
	"github.com/warp/membership-engine/membership"
)

// =============================================================================
// MEMBERS
// =============================================================================

var memberColumns = []string{
	"id", "full_name", "national_id", "email", "phone", "address",
	"institution_id", "province_id", "district_id", "branch_id", "dues_center_id", "member_group_id",
	"status", "registration_number", "board_decision_date", "previous_cancelled_member_id",
	"applied_by", "created_at", "updated_at",
	"approved_at", "approved_by",
	"rejected_at", "rejected_by", "rejection_note",
	"activated_at", "activated_by",
	"cancelled_at", "cancelled_by", "cancellation_reason", "cancellation_note",
	"deleted_at", "deletion_reason",
}

var memberSelect = "SELECT " + strings.Join(memberColumns, ", ") + " FROM members"

// memberArgs returns values in memberColumns order.
func memberArgs(m membership.Member) []any {
	return []any{
		string(m.ID), m.FullName, m.NationalID, m.Email, m.Phone, m.Address,
		m.InstitutionID, m.ProvinceID, m.DistrictID, m.BranchID, m.DuesCenterID, m.MemberGroupID,
		string(m.Status), nullString(m.RegistrationNumber), nullTime(m.BoardDecisionDate),
		nullString(m.PreviousCancelledMemberID),
		string(m.AppliedBy), formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
		nullTime(m.ApprovedAt), nullString(m.ApprovedBy),
		nullTime(m.RejectedAt), nullString(m.RejectedBy), m.RejectionNote,
		nullTime(m.ActivatedAt), nullString(m.ActivatedBy),
		nullTime(m.CancelledAt), nullString(m.CancelledBy), nullString(m.CancellationReason), m.CancellationNote,
		nullTime(m.DeletedAt), m.DeletionReason,
	}
}

func (q *queries) CreateMember(ctx context.Context, m membership.Member) error {
	query := "INSERT INTO members (" + strings.Join(memberColumns, ", ") + ") VALUES (" +
		placeholders(1, len(memberColumns)) + ")"

	logger.DatabaseCall("CreateMember", "member_id", m.ID)
	res, err := q.q.ExecContext(ctx, query, memberArgs(m)...)
	if err != nil {
		logger.DatabaseResult("CreateMember", 0, err)
		if isUniqueViolation(err) {
			return &generic.ConflictError{Kind: "member", ID: string(m.ID), Message: "already exists"}
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	n, _ := res.RowsAffected()
	logger.DatabaseResult("CreateMember", n, nil)
	return nil
}

func (q *queries) UpdateMember(ctx context.Context, m membership.Member) error {
	// id goes last so placeholders stay in order of appearance.
	cols := memberColumns[1:]
	query := "UPDATE members SET " + setClause(cols) + fmt.Sprintf(" WHERE id = $%d", len(cols)+1)
	args := append(memberArgs(m)[1:], string(m.ID))

	logger.DatabaseCall("UpdateMember", "member_id", m.ID)
	res, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		logger.DatabaseResult("UpdateMember", 0, err)
		return fmt.Errorf("failed to update member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	logger.DatabaseResult("UpdateMember", n, nil)
	if n == 0 {
		return &generic.NotFoundError{Kind: "member", ID: string(m.ID)}
	}
	return nil
}

func (q *queries) GetMember(ctx context.Context, id generic.EntityID) (*membership.Member, error) {
	row := q.q.QueryRowContext(ctx, memberSelect+" WHERE id = $1", string(id))
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "member", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (q *queries) ListMembers(ctx context.Context, f membership.MemberFilter) ([]membership.Member, error) {
	w := &where{}
	if !f.IncludeDeleted {
		w.add("deleted_at IS NULL")
	}
	if f.Scope.ProvinceID != "" {
		w.add("province_id = " + w.arg(f.Scope.ProvinceID))
	}
	if f.Scope.DistrictID != "" {
		w.add("district_id = " + w.arg(f.Scope.DistrictID))
	}
	if f.BranchID != "" {
		w.add("branch_id = " + w.arg(f.BranchID))
	}
	if f.NationalID != "" {
		w.add("national_id = " + w.arg(f.NationalID))
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ph[i] = w.arg(string(s))
		}
		w.add("status IN (" + strings.Join(ph, ", ") + ")")
	}

	rows, err := q.q.QueryContext(ctx, memberSelect+w.String()+" ORDER BY created_at, id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var result []membership.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func scanMember(row scanner) (membership.Member, error) {
	var (
		m                        membership.Member
		id, status, appliedBy    string
		createdAt, updatedAt     string
		regNo, boardDate, prevID sql.NullString
		approvedAt, approvedBy   sql.NullString
		rejectedAt, rejectedBy   sql.NullString
		activatedAt, activatedBy sql.NullString
		cancelledAt, cancelledBy sql.NullString
		cancelReason, deletedAt  sql.NullString
	)
	err := row.Scan(
		&id, &m.FullName, &m.NationalID, &m.Email, &m.Phone, &m.Address,
		&m.InstitutionID, &m.ProvinceID, &m.DistrictID, &m.BranchID, &m.DuesCenterID, &m.MemberGroupID,
		&status, &regNo, &boardDate, &prevID,
		&appliedBy, &createdAt, &updatedAt,
		&approvedAt, &approvedBy,
		&rejectedAt, &rejectedBy, &m.RejectionNote,
		&activatedAt, &activatedBy,
		&cancelledAt, &cancelledBy, &cancelReason, &m.CancellationNote,
		&deletedAt, &m.DeletionReason,
	)
	if err != nil {
		return m, err
	}

	m.ID = generic.EntityID(id)
	m.Status = membership.Status(status)
	m.AppliedBy = generic.ActorID(appliedBy)
	m.RegistrationNumber = stringPtr[string](regNo)
	m.PreviousCancelledMemberID = stringPtr[generic.EntityID](prevID)
	m.ApprovedBy = stringPtr[generic.ActorID](approvedBy)
	m.RejectedBy = stringPtr[generic.ActorID](rejectedBy)
	m.ActivatedBy = stringPtr[generic.ActorID](activatedBy)
	m.CancelledBy = stringPtr[generic.ActorID](cancelledBy)
	m.CancellationReason = stringPtr[membership.CancellationReason](cancelReason)

	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return m, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return m, err
	}
	for _, t := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&m.BoardDecisionDate, boardDate},
		{&m.ApprovedAt, approvedAt},
		{&m.RejectedAt, rejectedAt},
		{&m.ActivatedAt, activatedAt},
		{&m.CancelledAt, cancelledAt},
		{&m.DeletedAt, deletedAt},
	} {
		if *t.dst, err = parseNullTime(t.src); err != nil {
			return m, err
		}
	}
	return m, nil
}
