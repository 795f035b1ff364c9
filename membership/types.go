/*
Package membership implements the membership domain on top of the generic
kernel.

PURPOSE:
  Tracks people through a membership lifecycle, records their monthly dues
  payments and reconciles what they still owe. Approval requests against
  members and institutions are resolved by the generic workflow through the
  handlers in approvals.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - Status: Lifecycle state of a Member (single source of truth)
  - Member: The membership record
  - Institution: Employer/organisation a member belongs to
  - Payment: One dues payment for one (year, month) period
  - Scope: Geographic restriction applied to list queries

STATUS vs VISIBILITY:
  Status is the only lifecycle field. DeletedAt is the only visibility
  flag. "Is this member active" is derived from both and never stored.

SEE ALSO:
  - lifecycle.go: State machine transitions
  - payments.go: Payment ledger
  - debt.go: Debt reconciliation
*/
package membership

import (
	"time"

	"github.com/warp/membership-engine/generic"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusResigned Status = "RESIGNED"
	StatusExpelled Status = "EXPELLED"
	StatusRejected Status = "REJECTED"
)

var allStatuses = []Status{
	StatusPending, StatusApproved, StatusActive, StatusInactive,
	StatusResigned, StatusExpelled, StatusRejected,
}

// AllStatuses lists every status value.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsCancelled is true for the two outcomes of cancelMembership.
func (s Status) IsCancelled() bool {
	return s == StatusResigned || s == StatusExpelled
}

// HasRegistration is true for states in which a registration number is held.
func (s Status) HasRegistration() bool {
	switch s {
	case StatusApproved, StatusActive, StatusResigned, StatusExpelled:
		return true
	}
	return false
}

// CancellationReason selects the terminal status of a cancellation.
type CancellationReason string

const (
	CancelResignation CancellationReason = "RESIGNATION"
	CancelExpulsion   CancellationReason = "EXPULSION"
)

// Status maps the reason to the resulting member status.
func (r CancellationReason) Status() (Status, bool) {
	switch r {
	case CancelResignation:
		return StatusResigned, true
	case CancelExpulsion:
		return StatusExpelled, true
	}
	return "", false
}

// =============================================================================
// MEMBER
// =============================================================================

type Member struct {
	ID generic.EntityID

	// Identity and contact
	FullName   string
	NationalID string
	Email      string
	Phone      string
	Address    string

	// References (not owned)
	InstitutionID string
	ProvinceID    string
	DistrictID    string
	BranchID      string
	DuesCenterID  string
	MemberGroupID string

	Status             Status
	RegistrationNumber *string
	BoardDecisionDate  *time.Time

	// Re-application link to a cancelled predecessor
	PreviousCancelledMemberID *generic.EntityID

	AppliedBy generic.ActorID
	CreatedAt time.Time
	UpdatedAt time.Time

	ApprovedAt *time.Time
	ApprovedBy *generic.ActorID

	RejectedAt    *time.Time
	RejectedBy    *generic.ActorID
	RejectionNote string

	ActivatedAt *time.Time
	ActivatedBy *generic.ActorID

	CancelledAt        *time.Time
	CancelledBy        *generic.ActorID
	CancellationReason *CancellationReason
	CancellationNote   string

	DeletedAt      *time.Time
	DeletionReason string
}

// IsDeleted reports the visibility flag.
func (m Member) IsDeleted() bool {
	return m.DeletedAt != nil
}

// IsActive is derived: live roster membership of a visible record.
func (m Member) IsActive() bool {
	return m.Status == StatusActive && m.DeletedAt == nil
}

// MembershipStart is the approval instant, or creation when never approved.
func (m Member) MembershipStart() time.Time {
	if m.ApprovedAt != nil {
		return *m.ApprovedAt
	}
	return m.CreatedAt
}

// =============================================================================
// INSTITUTION
// =============================================================================

type Institution struct {
	ID         generic.EntityID
	Name       string
	ProvinceID string
	DistrictID string
	Active     bool
	ApprovedBy *generic.ActorID
	ApprovedAt *time.Time
	CreatedBy  generic.ActorID
	CreatedAt  time.Time
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentID string

type PaymentType string

const (
	PaymentCash             PaymentType = "CASH"
	PaymentBankTransfer     PaymentType = "BANK_TRANSFER"
	PaymentPayrollDeduction PaymentType = "PAYROLL_DEDUCTION"
	PaymentOther            PaymentType = "OTHER"
)

type Payment struct {
	ID         PaymentID
	MemberID   generic.EntityID
	Period     generic.Period
	Amount     generic.Amount
	Type       PaymentType
	Note       string
	IsApproved bool
	ApprovedBy *generic.ActorID
	ApprovedAt *time.Time
	RecordedBy generic.ActorID
	CreatedAt  time.Time
}

// =============================================================================
// SCOPE AND FILTERS
// =============================================================================

// Scope is a caller-specific geographic restriction supplied by the
// outer layer. Empty fields do not restrict.
type Scope struct {
	ProvinceID string
	DistrictID string
}

func (s Scope) Allows(provinceID, districtID string) bool {
	if s.ProvinceID != "" && s.ProvinceID != provinceID {
		return false
	}
	if s.DistrictID != "" && s.DistrictID != districtID {
		return false
	}
	return true
}

// MemberFilter narrows ListMembers. Zero fields match everything.
type MemberFilter struct {
	Scope          Scope
	Statuses       []Status
	BranchID       string
	NationalID     string
	IncludeDeleted bool
}

func (f MemberFilter) Matches(m Member) bool {
	if !f.IncludeDeleted && m.IsDeleted() {
		return false
	}
	if !f.Scope.Allows(m.ProvinceID, m.DistrictID) {
		return false
	}
	if f.BranchID != "" && m.BranchID != f.BranchID {
		return false
	}
	if f.NationalID != "" && m.NationalID != f.NationalID {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if m.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

// PaymentFilter narrows ListPayments.
type PaymentFilter struct {
	MemberID     generic.EntityID
	FromYear     int
	Period       *generic.Period
	ApprovedOnly bool
}

func (f PaymentFilter) Matches(p Payment) bool {
	if f.MemberID != "" && p.MemberID != f.MemberID {
		return false
	}
	if f.FromYear > 0 && p.Period.Year < f.FromYear {
		return false
	}
	if f.Period != nil && p.Period != *f.Period {
		return false
	}
	if f.ApprovedOnly && !p.IsApproved {
		return false
	}
	return true
}
