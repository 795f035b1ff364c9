package sqlstore

import (
	"context"
	"fmt"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS institutions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		province_id TEXT NOT NULL DEFAULT '',
		district_id TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT FALSE,
		approved_by TEXT,
		approved_at TEXT,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		national_id TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		institution_id TEXT NOT NULL DEFAULT '',
		province_id TEXT NOT NULL DEFAULT '',
		district_id TEXT NOT NULL DEFAULT '',
		branch_id TEXT NOT NULL DEFAULT '',
		dues_center_id TEXT NOT NULL DEFAULT '',
		member_group_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		registration_number TEXT,
		board_decision_date TEXT,
		previous_cancelled_member_id TEXT REFERENCES members(id),
		applied_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		approved_at TEXT,
		approved_by TEXT,
		rejected_at TEXT,
		rejected_by TEXT,
		rejection_note TEXT NOT NULL DEFAULT '',
		activated_at TEXT,
		activated_by TEXT,
		cancelled_at TEXT,
		cancelled_by TEXT,
		cancellation_reason TEXT,
		cancellation_note TEXT NOT NULL DEFAULT '',
		deleted_at TEXT,
		deletion_reason TEXT NOT NULL DEFAULT '',
		CONSTRAINT chk_members_status CHECK (status IN
			('PENDING', 'APPROVED', 'ACTIVE', 'INACTIVE', 'RESIGNED', 'EXPELLED', 'REJECTED')),
		CONSTRAINT chk_members_registration CHECK (
			(registration_number IS NOT NULL) = (status IN ('APPROVED', 'ACTIVE', 'RESIGNED', 'EXPELLED')))
	)`,

	`CREATE INDEX IF NOT EXISTS idx_members_national_id ON members(national_id)`,
	`CREATE INDEX IF NOT EXISTS idx_members_status ON members(status) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_members_scope ON members(province_id, district_id, branch_id)`,

	`CREATE TABLE IF NOT EXISTS member_payments (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		period_year INTEGER NOT NULL,
		period_month INTEGER NOT NULL CHECK (period_month BETWEEN 1 AND 12),
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		payment_type TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		is_approved BOOLEAN NOT NULL DEFAULT FALSE,
		approved_by TEXT,
		approved_at TEXT,
		recorded_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	// At most one approved payment per member per period. Unapproved
	// duplicates are allowed until an approver reconciles them.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_approved_payment
		ON member_payments(member_id, period_year, period_month)
		WHERE is_approved`,

	`CREATE INDEX IF NOT EXISTS idx_member_payments_member
		ON member_payments(member_id, period_year, period_month)`,

	`CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		request_data TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
		requested_by TEXT NOT NULL,
		requested_at TEXT NOT NULL,
		approved_by TEXT,
		approval_note TEXT NOT NULL DEFAULT '',
		rejected_by TEXT,
		rejection_note TEXT NOT NULL DEFAULT '',
		resolved_at TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status, entity_type)`,
	`CREATE INDEX IF NOT EXISTS idx_approvals_entity ON approvals(entity_type, entity_id)`,
}

// Migrate creates the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
