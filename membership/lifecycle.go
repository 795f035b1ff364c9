/*
lifecycle.go - Membership state machine

PURPOSE:
  Owns the Member status field and every transition that changes it.
  Each transition checks its precondition, flips the status and stamps
  its audit fields inside one unit of work.

STATE MACHINE:
  ┌─────────────────────────────────────────────────────────────────┐
  │                                                                 │
  │   apply ──▶ PENDING ──approve──▶ APPROVED ──activate──▶ ACTIVE  │
  │                │                                          │     │
  │             reject                                      cancel  │
  │                ▼                                          ▼     │
  │            REJECTED                          RESIGNED | EXPELLED│
  │                                                                 │
  │   softDelete: any state, sets DeletedAt (visibility only)       │
  │                                                                 │
  └─────────────────────────────────────────────────────────────────┘

  REJECTED, RESIGNED and EXPELLED are terminal. There is no re-open: a
  rejected or cancelled person applies again as a new record, optionally
  linked to the cancelled predecessor.

INVARIANTS:
  - RegistrationNumber is set iff Status is APPROVED, ACTIVE, RESIGNED or
    EXPELLED. Only approve assigns it.
  - A soft-deleted member is NotFound for every operation except
    softDelete itself, which is a no-op the second time.

REGISTRATION NUMBERS:
  The caller guarantees uniqueness of the number it supplies to approve.
  This service does not re-check it.

SEE ALSO:
  - approvals.go: MEMBER_* approval handlers drive these transitions
  - debt.go: Uses MembershipStart
*/
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/warp/membership-engine/factory"
	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/logger"
)

// =============================================================================
// INPUTS
// =============================================================================

type ApplyInput struct {
	FullName      string `json:"fullName" validate:"required,max=200"`
	NationalID    string `json:"nationalId" validate:"required,max=64"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"max=32"`
	Address       string `json:"address" validate:"max=500"`
	InstitutionID string `json:"institutionId"`
	ProvinceID    string `json:"provinceId"`
	DistrictID    string `json:"districtId"`
	BranchID      string `json:"branchId"`

	PreviousCancelledMemberID *generic.EntityID `json:"previousCancelledMemberId"`
}

type ApproveInput struct {
	RegistrationNumber string     `json:"registrationNumber" validate:"required,max=64"`
	BoardDecisionDate  *time.Time `json:"boardDecisionDate"`
	BranchID           string     `json:"branchId"`
	DuesCenterID       string     `json:"duesCenterId"`
	MemberGroupID      string     `json:"memberGroupId"`
}

type CancelInput struct {
	Reason        CancellationReason `json:"reason" validate:"required,oneof=RESIGNATION EXPULSION"`
	Note          string             `json:"note" validate:"max=500"`
	EffectiveDate *time.Time         `json:"effectiveDate"`
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store TxStore
	clock generic.Clock
	log   *slog.Logger
}

func NewService(store TxStore, clock generic.Clock) *Service {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Service{
		store: store,
		clock: clock,
		log:   logger.WithService("membership"),
	}
}

// Apply creates a PENDING member.
func (svc *Service) Apply(ctx context.Context, in ApplyInput, appliedBy generic.ActorID) (*Member, error) {
	if err := factory.Validate(in); err != nil {
		return nil, err
	}
	if appliedBy == "" {
		return nil, &generic.ValidationError{Field: "appliedBy", Message: "is required"}
	}

	var created *Member
	err := svc.store.WithTx(ctx, func(s Store) error {
		if in.PreviousCancelledMemberID != nil {
			prev, err := getVisible(ctx, s, *in.PreviousCancelledMemberID)
			if err != nil {
				return err
			}
			if !prev.Status.IsCancelled() {
				return &generic.InvalidStateError{
					Kind: "member", ID: string(prev.ID), Op: "link re-application to", Current: string(prev.Status),
				}
			}
		}

		open, err := s.ListMembers(ctx, MemberFilter{
			NationalID: in.NationalID,
			Statuses:   []Status{StatusPending, StatusApproved, StatusActive},
		})
		if err != nil {
			return fmt.Errorf("failed to check open applications: %w", err)
		}
		if len(open) > 0 {
			return &generic.ConflictError{
				Kind: "member", ID: string(open[0].ID),
				Message: fmt.Sprintf("national id already has a %s membership", open[0].Status),
			}
		}

		now := svc.clock.Now()
		m := Member{
			ID:                        generic.EntityID(generic.NewID()),
			FullName:                  in.FullName,
			NationalID:                in.NationalID,
			Email:                     in.Email,
			Phone:                     in.Phone,
			Address:                   in.Address,
			InstitutionID:             in.InstitutionID,
			ProvinceID:                in.ProvinceID,
			DistrictID:                in.DistrictID,
			BranchID:                  in.BranchID,
			Status:                    StatusPending,
			PreviousCancelledMemberID: in.PreviousCancelledMemberID,
			AppliedBy:                 appliedBy,
			CreatedAt:                 now,
			UpdatedAt:                 now,
		}
		if err := s.CreateMember(ctx, m); err != nil {
			return fmt.Errorf("failed to create member: %w", err)
		}
		created = &m
		return nil
	})
	if err != nil {
		svc.log.WarnContext(ctx, "apply failed", "national_id", in.NationalID, "error", err)
		return nil, err
	}

	svc.log.InfoContext(ctx, "membership applied", "member_id", created.ID, "actor", appliedBy,
		"relinked", created.PreviousCancelledMemberID != nil)
	return created, nil
}

// Approve accepts a PENDING application and assigns its registration number.
func (svc *Service) Approve(ctx context.Context, id generic.EntityID, approver generic.ActorID, in ApproveInput) (*Member, error) {
	if err := factory.Validate(in); err != nil {
		return nil, err
	}
	return svc.transition(ctx, "approve", id, func(s Store, now time.Time) (*Member, error) {
		return approveMember(ctx, s, id, approver, in, now)
	})
}

// Reject closes a PENDING application.
func (svc *Service) Reject(ctx context.Context, id generic.EntityID, rejecter generic.ActorID, note string) (*Member, error) {
	return svc.transition(ctx, "reject", id, func(s Store, now time.Time) (*Member, error) {
		return mutate(ctx, s, id, func(m *Member) error {
			if m.Status != StatusPending {
				return invalidState(m, "reject")
			}
			m.Status = StatusRejected
			m.RejectedAt = &now
			m.RejectedBy = &rejecter
			m.RejectionNote = note
			return nil
		}, now)
	})
}

// Activate adds an APPROVED member to the live roster.
func (svc *Service) Activate(ctx context.Context, id generic.EntityID, actor generic.ActorID) (*Member, error) {
	return svc.transition(ctx, "activate", id, func(s Store, now time.Time) (*Member, error) {
		return activateMember(ctx, s, id, actor, now)
	})
}

// CancelMembership ends an ACTIVE membership as RESIGNED or EXPELLED.
func (svc *Service) CancelMembership(ctx context.Context, id generic.EntityID, in CancelInput, actor generic.ActorID) (*Member, error) {
	if err := factory.Validate(in); err != nil {
		return nil, err
	}
	target, _ := in.Reason.Status()

	return svc.transition(ctx, "cancel", id, func(s Store, now time.Time) (*Member, error) {
		return mutate(ctx, s, id, func(m *Member) error {
			if m.Status != StatusActive {
				return invalidState(m, "cancel")
			}
			cancelledAt := now
			if in.EffectiveDate != nil {
				cancelledAt = in.EffectiveDate.UTC()
			}
			reason := in.Reason
			m.Status = target
			m.CancelledAt = &cancelledAt
			m.CancelledBy = &actor
			m.CancellationReason = &reason
			m.CancellationNote = in.Note
			return nil
		}, now)
	})
}

// SoftDelete hides a member from every listing. Allowed from any status.
// Deleting an already-deleted member returns it unchanged.
func (svc *Service) SoftDelete(ctx context.Context, id generic.EntityID, reason string) (*Member, error) {
	return svc.transition(ctx, "soft-delete", id, func(s Store, now time.Time) (*Member, error) {
		return softDeleteMember(ctx, s, id, reason, now)
	})
}

// CheckPriorCancellation returns the most recently cancelled visible member
// with the given national id, or nil when there is none.
func (svc *Service) CheckPriorCancellation(ctx context.Context, nationalID string) (*Member, error) {
	if nationalID == "" {
		return nil, &generic.ValidationError{Field: "nationalId", Message: "is required"}
	}
	members, err := svc.store.ListMembers(ctx, MemberFilter{
		NationalID: nationalID,
		Statuses:   []Status{StatusResigned, StatusExpelled},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cancelled members: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	sort.SliceStable(members, func(i, j int) bool {
		return cancelledAt(members[i]).After(cancelledAt(members[j]))
	})
	latest := members[0]
	return &latest, nil
}

// Get returns a visible member.
func (svc *Service) Get(ctx context.Context, id generic.EntityID) (*Member, error) {
	return getVisible(ctx, svc.store, id)
}

// List returns visible members matching filter.
func (svc *Service) List(ctx context.Context, filter MemberFilter) ([]Member, error) {
	filter.IncludeDeleted = false
	members, err := svc.store.ListMembers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// =============================================================================
// TRANSITIONS - Shared with the approval handlers
// =============================================================================

func (svc *Service) transition(
	ctx context.Context,
	op string,
	id generic.EntityID,
	fn func(s Store, now time.Time) (*Member, error),
) (*Member, error) {
	var result *Member
	err := svc.store.WithTx(ctx, func(s Store) error {
		m, err := fn(s, svc.clock.Now())
		if err != nil {
			return err
		}
		result = m
		return nil
	})
	if err != nil {
		svc.log.WarnContext(ctx, "member transition failed", "op", op, "member_id", id, "error", err)
		return nil, err
	}
	svc.log.InfoContext(ctx, "member transition", "op", op, "member_id", id, "status", result.Status)
	return result, nil
}

func approveMember(ctx context.Context, s Store, id generic.EntityID, approver generic.ActorID, in ApproveInput, now time.Time) (*Member, error) {
	return mutate(ctx, s, id, func(m *Member) error {
		if m.Status != StatusPending {
			return invalidState(m, "approve")
		}
		regNo := in.RegistrationNumber
		m.Status = StatusApproved
		m.RegistrationNumber = &regNo
		m.ApprovedAt = &now
		m.ApprovedBy = &approver
		if in.BoardDecisionDate != nil {
			d := in.BoardDecisionDate.UTC()
			m.BoardDecisionDate = &d
		}
		if in.BranchID != "" {
			m.BranchID = in.BranchID
		}
		if in.DuesCenterID != "" {
			m.DuesCenterID = in.DuesCenterID
		}
		if in.MemberGroupID != "" {
			m.MemberGroupID = in.MemberGroupID
		}
		return nil
	}, now)
}

func activateMember(ctx context.Context, s Store, id generic.EntityID, actor generic.ActorID, now time.Time) (*Member, error) {
	return mutate(ctx, s, id, func(m *Member) error {
		if m.Status != StatusApproved {
			return invalidState(m, "activate")
		}
		m.Status = StatusActive
		m.ActivatedAt = &now
		m.ActivatedBy = &actor
		return nil
	}, now)
}

func softDeleteMember(ctx context.Context, s Store, id generic.EntityID, reason string, now time.Time) (*Member, error) {
	m, err := s.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted() {
		return m, nil
	}
	m.DeletedAt = &now
	m.DeletionReason = reason
	m.UpdatedAt = now
	if err := s.UpdateMember(ctx, *m); err != nil {
		return nil, fmt.Errorf("failed to update member: %w", err)
	}
	return m, nil
}

// mutate loads a visible member, applies fn and writes the result back.
func mutate(ctx context.Context, s Store, id generic.EntityID, fn func(m *Member) error, now time.Time) (*Member, error) {
	m, err := getVisible(ctx, s, id)
	if err != nil {
		return nil, err
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	m.UpdatedAt = now
	if err := s.UpdateMember(ctx, *m); err != nil {
		return nil, fmt.Errorf("failed to update member: %w", err)
	}
	return m, nil
}

// memberReader is the subset of Store needed to resolve visibility.
type memberReader interface {
	GetMember(ctx context.Context, id generic.EntityID) (*Member, error)
}

func getVisible(ctx context.Context, s memberReader, id generic.EntityID) (*Member, error) {
	m, err := s.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted() {
		return nil, &generic.NotFoundError{Kind: "member", ID: string(id)}
	}
	return m, nil
}

func invalidState(m *Member, op string) error {
	return &generic.InvalidStateError{Kind: "member", ID: string(m.ID), Op: op, Current: string(m.Status)}
}

func cancelledAt(m Member) time.Time {
	if m.CancelledAt != nil {
		return *m.CancelledAt
	}
	return m.UpdatedAt
}
