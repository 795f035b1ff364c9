/*
approvals.go - Approval handlers for membership entity kinds

PURPOSE:
  Registers one dispatch handler per entity kind with the generic
  approval workflow. Each handler owns its payload shape and runs its side
  effect against the transactional Store the workflow hands it.

DISPATCH TABLE (effect on APPROVE; REJECT never touches the target):
  ┌────────────────┬──────────────────────────────────────────────────┐
  │ INSTITUTION    │ mark institution active, stamp approver          │
  │ MEMBER_CREATE  │ PENDING: approve with payload data, then activate│
  │                │ APPROVED: activate                               │
  │ MEMBER_UPDATE  │ apply updateData fields to the member row        │
  │ MEMBER_DELETE  │ soft-delete the member                           │
  └────────────────┴──────────────────────────────────────────────────┘

  MEMBER_CREATE drives the state machine rather than writing the status
  column, so approve then activate stays the only path to ACTIVE and the
  registration number is always assigned on the way.

  MEMBER_UPDATE cannot change status, registration number or audit stamps:
  MemberUpdate has no such fields and unknown JSON fields are refused.

SEE ALSO:
  - generic/approval.go: The workflow
  - lifecycle.go: Transitions reused by the handlers
*/
package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/membership-engine/factory"
	"github.com/warp/membership-engine/generic"
)

const (
	EntityInstitution  generic.EntityType = "INSTITUTION"
	EntityMemberCreate generic.EntityType = "MEMBER_CREATE"
	EntityMemberUpdate generic.EntityType = "MEMBER_UPDATE"
	EntityMemberDelete generic.EntityType = "MEMBER_DELETE"
)

// Workflow is the approval workflow bound to the membership store.
type Workflow = generic.Workflow[Store]

// NewWorkflow builds a workflow with every membership handler registered.
func NewWorkflow(store TxStore, clock generic.Clock) *Workflow {
	wf := generic.NewWorkflow[Store](store, clock)
	RegisterApprovalHandlers(wf)
	return wf
}

// =============================================================================
// PAYLOADS
// =============================================================================

type InstitutionPayload struct {
	Note string `json:"note,omitempty" validate:"max=500"`
}

// MemberCreatePayload carries the registration data for a PENDING target.
// An APPROVED target keeps its number; a different one is refused.
type MemberCreatePayload struct {
	RegistrationNumber string     `json:"registrationNumber,omitempty" validate:"omitempty,max=64"`
	BoardDecisionDate  *time.Time `json:"boardDecisionDate,omitempty"`
	BranchID           string     `json:"branchId,omitempty"`
	DuesCenterID       string     `json:"duesCenterId,omitempty"`
	MemberGroupID      string     `json:"memberGroupId,omitempty"`
}

// MemberUpdate holds the fields an update approval may change.
// Nil means unchanged.
type MemberUpdate struct {
	FullName      *string `json:"fullName,omitempty" validate:"omitempty,min=1,max=200"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address       *string `json:"address,omitempty" validate:"omitempty,max=500"`
	InstitutionID *string `json:"institutionId,omitempty"`
	ProvinceID    *string `json:"provinceId,omitempty"`
	DistrictID    *string `json:"districtId,omitempty"`
	BranchID      *string `json:"branchId,omitempty"`
	DuesCenterID  *string `json:"duesCenterId,omitempty"`
	MemberGroupID *string `json:"memberGroupId,omitempty"`
}

func (u MemberUpdate) IsEmpty() bool {
	return u.FullName == nil && u.Email == nil && u.Phone == nil && u.Address == nil &&
		u.InstitutionID == nil && u.ProvinceID == nil && u.DistrictID == nil &&
		u.BranchID == nil && u.DuesCenterID == nil && u.MemberGroupID == nil
}

// ApplyTo copies every set field onto m.
func (u MemberUpdate) ApplyTo(m *Member) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&m.FullName, u.FullName)
	set(&m.Email, u.Email)
	set(&m.Phone, u.Phone)
	set(&m.Address, u.Address)
	set(&m.InstitutionID, u.InstitutionID)
	set(&m.ProvinceID, u.ProvinceID)
	set(&m.DistrictID, u.DistrictID)
	set(&m.BranchID, u.BranchID)
	set(&m.DuesCenterID, u.DuesCenterID)
	set(&m.MemberGroupID, u.MemberGroupID)
}

type MemberUpdatePayload struct {
	UpdateData MemberUpdate `json:"updateData"`
}

func (p MemberUpdatePayload) Check() error {
	if p.UpdateData.IsEmpty() {
		return &generic.ValidationError{Field: "updateData", Message: "must set at least one field"}
	}
	return nil
}

type MemberDeletePayload struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// =============================================================================
// HANDLERS
// =============================================================================

// RegisterApprovalHandlers wires the dispatch table into wf.
func RegisterApprovalHandlers(wf *generic.Workflow[Store]) {
	wf.Register(EntityInstitution, generic.NewHandler(
		factory.JSONDecoder[InstitutionPayload](), applyInstitution))
	wf.Register(EntityMemberCreate, generic.NewHandler(
		factory.JSONDecoder[MemberCreatePayload](), applyMemberCreate))
	wf.Register(EntityMemberUpdate, generic.NewHandler(
		factory.JSONDecoder[MemberUpdatePayload](), applyMemberUpdate))
	wf.Register(EntityMemberDelete, generic.NewHandler(
		factory.JSONDecoder[MemberDeletePayload](), applyMemberDelete))
}

func applyInstitution(ctx context.Context, s Store, r generic.Resolution, _ InstitutionPayload) error {
	inst, err := s.GetInstitution(ctx, r.EntityID)
	if err != nil {
		return err
	}
	approver := r.ResolvedBy
	at := r.ResolvedAt
	inst.Active = true
	inst.ApprovedBy = &approver
	inst.ApprovedAt = &at
	if err := s.SaveInstitution(ctx, *inst); err != nil {
		return fmt.Errorf("failed to save institution: %w", err)
	}
	return nil
}

func applyMemberCreate(ctx context.Context, s Store, r generic.Resolution, p MemberCreatePayload) error {
	m, err := getVisible(ctx, s, r.EntityID)
	if err != nil {
		return err
	}

	switch m.Status {
	case StatusPending:
		in := ApproveInput{
			RegistrationNumber: p.RegistrationNumber,
			BoardDecisionDate:  p.BoardDecisionDate,
			BranchID:           p.BranchID,
			DuesCenterID:       p.DuesCenterID,
			MemberGroupID:      p.MemberGroupID,
		}
		if err := factory.Validate(in); err != nil {
			return err
		}
		if _, err := approveMember(ctx, s, r.EntityID, r.ResolvedBy, in, r.ResolvedAt); err != nil {
			return err
		}
	case StatusApproved:
		if p.RegistrationNumber != "" && (m.RegistrationNumber == nil || *m.RegistrationNumber != p.RegistrationNumber) {
			return &generic.ValidationError{
				Field:   "registrationNumber",
				Message: "member is already approved with a different registration number",
			}
		}
	default:
		return invalidState(m, "activate")
	}

	_, err = activateMember(ctx, s, r.EntityID, r.ResolvedBy, r.ResolvedAt)
	return err
}

func applyMemberUpdate(ctx context.Context, s Store, r generic.Resolution, p MemberUpdatePayload) error {
	_, err := mutate(ctx, s, r.EntityID, func(m *Member) error {
		p.UpdateData.ApplyTo(m)
		return nil
	}, r.ResolvedAt)
	return err
}

func applyMemberDelete(ctx context.Context, s Store, r generic.Resolution, p MemberDeletePayload) error {
	_, err := softDeleteMember(ctx, s, r.EntityID, p.Reason, r.ResolvedAt)
	return err
}
