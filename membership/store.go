package membership

import (
	"context"

	"github.com/warp/membership-engine/generic"
)

// =============================================================================
// STORE - Interface for membership persistence
// =============================================================================

// Store persists members, payments, institutions and approvals.
// Get* methods return a *generic.NotFoundError for unknown IDs. They do
// not hide soft-deleted members; the services decide visibility.
type Store interface {
	generic.ApprovalStore

	CreateMember(ctx context.Context, m Member) error
	// UpdateMember replaces the stored row. NotFound if absent.
	UpdateMember(ctx context.Context, m Member) error
	GetMember(ctx context.Context, id generic.EntityID) (*Member, error)
	// ListMembers returns matches ordered by CreatedAt, then ID.
	ListMembers(ctx context.Context, filter MemberFilter) ([]Member, error)

	// SavePayment inserts or replaces a payment. It returns a
	// *generic.ConflictError when a second approved payment would exist
	// for the same member and period.
	SavePayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	DeletePayment(ctx context.Context, id PaymentID) error
	// ListPayments returns matches ordered by period, then CreatedAt.
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)

	SaveInstitution(ctx context.Context, inst Institution) error
	GetInstitution(ctx context.Context, id generic.EntityID) (*Institution, error)
}

// TxStore wraps Store with transaction support.
// Every state-changing operation runs its reads and writes through the
// Store handed to fn.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
