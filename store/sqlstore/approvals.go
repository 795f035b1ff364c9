package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/logger"
	"github.com/warp/membership-engine/membership"
)

// =============================================================================
// APPROVALS (generic.ApprovalStore interface)
// =============================================================================

var approvalColumns = []string{
	"id", "entity_type", "entity_id", "request_data", "status",
	"requested_by", "requested_at",
	"approved_by", "approval_note", "rejected_by", "rejection_note", "resolved_at",
}

var approvalSelect = "SELECT " + strings.Join(approvalColumns, ", ") + " FROM approvals"

func (q *queries) SaveApproval(ctx context.Context, a generic.Approval) error {
	query := "INSERT INTO approvals (" + strings.Join(approvalColumns, ", ") + ") VALUES (" +
		placeholders(1, len(approvalColumns)) + ") ON CONFLICT(id) DO UPDATE SET " +
		excludedClause(approvalColumns[4:])

	logger.DatabaseCall("SaveApproval", "approval_id", a.ID)
	_, err := q.q.ExecContext(ctx, query,
		string(a.ID), string(a.EntityType), string(a.EntityID), string(a.RequestData), string(a.Status),
		string(a.RequestedBy), formatTime(a.RequestedAt),
		nullString(a.ApprovedBy), a.ApprovalNote, nullString(a.RejectedBy), a.RejectionNote,
		nullTime(a.ResolvedAt),
	)
	if err != nil {
		logger.DatabaseResult("SaveApproval", 0, err)
		return fmt.Errorf("failed to save approval: %w", err)
	}
	logger.DatabaseResult("SaveApproval", 1, nil)
	return nil
}

func (q *queries) GetApproval(ctx context.Context, id generic.ApprovalID) (*generic.Approval, error) {
	row := q.q.QueryRowContext(ctx, approvalSelect+" WHERE id = $1", string(id))
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "approval", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (q *queries) ListApprovals(ctx context.Context, f generic.ApprovalFilter) ([]generic.Approval, error) {
	w := &where{}
	if f.Status != "" {
		w.add("status = " + w.arg(string(f.Status)))
	}
	if f.EntityType != "" {
		w.add("entity_type = " + w.arg(string(f.EntityType)))
	}
	if f.EntityID != "" {
		w.add("entity_id = " + w.arg(string(f.EntityID)))
	}

	rows, err := q.q.QueryContext(ctx, approvalSelect+w.String()+" ORDER BY requested_at, id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var result []generic.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func scanApproval(row scanner) (generic.Approval, error) {
	var (
		a                                generic.Approval
		id, entityType, entityID, status string
		data, requestedBy, requestedAt   string
		approvedBy, rejectedBy, resolved sql.NullString
	)
	err := row.Scan(
		&id, &entityType, &entityID, &data, &status,
		&requestedBy, &requestedAt,
		&approvedBy, &a.ApprovalNote, &rejectedBy, &a.RejectionNote, &resolved,
	)
	if err != nil {
		return a, err
	}

	a.ID = generic.ApprovalID(id)
	a.EntityType = generic.EntityType(entityType)
	a.EntityID = generic.EntityID(entityID)
	a.RequestData = json.RawMessage(data)
	a.Status = generic.ApprovalStatus(status)
	a.RequestedBy = generic.ActorID(requestedBy)
	a.ApprovedBy = stringPtr[generic.ActorID](approvedBy)
	a.RejectedBy = stringPtr[generic.ActorID](rejectedBy)
	if a.RequestedAt, err = parseTime(requestedAt); err != nil {
		return a, err
	}
	if a.ResolvedAt, err = parseNullTime(resolved); err != nil {
		return a, err
	}
	return a, nil
}

// =============================================================================
// INSTITUTIONS
// =============================================================================

var institutionColumns = []string{
	"id", "name", "province_id", "district_id", "active",
	"approved_by", "approved_at", "created_by", "created_at",
}

func (q *queries) SaveInstitution(ctx context.Context, inst membership.Institution) error {
	query := "INSERT INTO institutions (" + strings.Join(institutionColumns, ", ") + ") VALUES (" +
		placeholders(1, len(institutionColumns)) + ") ON CONFLICT(id) DO UPDATE SET " +
		excludedClause(institutionColumns[1:7])

	_, err := q.q.ExecContext(ctx, query,
		string(inst.ID), inst.Name, inst.ProvinceID, inst.DistrictID, inst.Active,
		nullString(inst.ApprovedBy), nullTime(inst.ApprovedAt),
		string(inst.CreatedBy), formatTime(inst.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save institution: %w", err)
	}
	return nil
}

func (q *queries) GetInstitution(ctx context.Context, id generic.EntityID) (*membership.Institution, error) {
	query := "SELECT " + strings.Join(institutionColumns, ", ") + " FROM institutions WHERE id = $1"

	var (
		inst                 membership.Institution
		instID, createdBy    string
		createdAt            string
		approvedBy, approved sql.NullString
	)
	err := q.q.QueryRowContext(ctx, query, string(id)).Scan(
		&instID, &inst.Name, &inst.ProvinceID, &inst.DistrictID, &inst.Active,
		&approvedBy, &approved, &createdBy, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "institution", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}

	inst.ID = generic.EntityID(instID)
	inst.CreatedBy = generic.ActorID(createdBy)
	inst.ApprovedBy = stringPtr[generic.ActorID](approvedBy)
	if inst.ApprovedAt, err = parseNullTime(approved); err != nil {
		return nil, err
	}
	if inst.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &inst, nil
}
