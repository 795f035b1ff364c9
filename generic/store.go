/*
store.go - Persistence contracts used by the generic kernel

PURPOSE:
  Defines the boundary between the approval workflow and the database.
  The workflow never talks SQL: it receives an ApprovalStore and a way to
  run a function inside one failure-atomic unit of work.

KEY INTERFACES:
  ApprovalStore: Approval persistence (save, load, list)
  Transactor[S]: Runs fn against a transactional view S of the store

TRANSACTION CONTRACT:
  WithTx(ctx, fn) commits only if fn returns nil. Everything fn writes
  through the S it receives (the approval row and any target rows touched
  by a dispatch handler) is committed or rolled back together.

  S is a type parameter so the domain can hand dispatch handlers its own
  richer store (membership.Store) while the workflow only relies on the
  ApprovalStore subset.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite or PostgreSQL over database/sql
  - store/memory:   In-memory with snapshot rollback

SEE ALSO:
  - approval.go: The workflow built on these contracts
  - membership/store.go: Domain store embedding ApprovalStore
*/
package generic

import "context"

// =============================================================================
// APPROVAL STORE
// =============================================================================

// ApprovalStore persists approval records.
type ApprovalStore interface {
	// SaveApproval inserts or replaces the approval with the same ID.
	SaveApproval(ctx context.Context, a Approval) error

	// GetApproval returns a *NotFoundError when the ID is unknown.
	GetApproval(ctx context.Context, id ApprovalID) (*Approval, error)

	// ListApprovals returns matching approvals ordered by RequestedAt.
	ListApprovals(ctx context.Context, filter ApprovalFilter) ([]Approval, error)
}

// ApprovalFilter narrows ListApprovals. Zero fields match everything.
type ApprovalFilter struct {
	Status     ApprovalStatus
	EntityType EntityType
	EntityID   EntityID
}

// Matches reports whether a satisfies the filter.
func (f ApprovalFilter) Matches(a Approval) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.EntityType != "" && a.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && a.EntityID != f.EntityID {
		return false
	}
	return true
}

// =============================================================================
// TRANSACTOR - For atomic operations across multiple writes
// =============================================================================

// Transactor runs fn inside one unit of work.
// If fn returns error, the unit is rolled back.
// If fn returns nil, it is committed.
type Transactor[S any] interface {
	WithTx(ctx context.Context, fn func(S) error) error
}

// Backend is a store that can also open units of work over itself.
type Backend[S ApprovalStore] interface {
	ApprovalStore
	Transactor[S]
}
