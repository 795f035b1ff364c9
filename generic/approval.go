/*
approval.go - Generic approval workflow

PURPOSE:
  A single workflow resolves change-requests against arbitrary target
  entities. A privileged-but-not-final actor submits a request; a distinct
  approver resolves it exactly once, to APPROVED or REJECTED.

APPROVAL FLOW:
  ┌─────────────────────────────────────────────────────────────────┐
  │                                                                 │
  │  Submit ──▶ decode + validate payload ──▶ PENDING               │
  │                                              │                  │
  │                     ┌────────────────────────┴───────┐          │
  │                     ▼                                ▼          │
  │               ┌──────────┐                     ┌──────────┐     │
  │               │ APPROVED │◀── handler applied  │ REJECTED │     │
  │               └──────────┘    in same tx       └──────────┘     │
  │                                                                 │
  └─────────────────────────────────────────────────────────────────┘

DISPATCH:
  Each EntityType tag has exactly one registered Handler. On APPROVE the
  handler for the approval's tag applies its side effect to the target.
  REJECT never touches the target. Adding an entity kind means calling
  Register once; the resolution algorithm below does not change.

ATOMICITY:
  resolve() loads, checks, dispatches, stamps and persists inside one
  WithTx. A handler error aborts the unit, so the approval stays PENDING
  and no partial side effect is committed.

PAYLOADS:
  RequestData is stored as raw JSON. The workflow never looks inside it.
  Handlers decode it into a typed payload; the same decoder runs at
  submission time so malformed payloads are refused before they are queued.

EXAMPLE:
  wf := generic.NewWorkflow[membership.Store](store, generic.SystemClock{})
  membership.RegisterApprovalHandlers(wf)

  a, err := wf.Submit(ctx, generic.SubmitInput{
      EntityType:  membership.EntityInstitution,
      EntityID:    "inst-1",
      RequestData: json.RawMessage(`{}`),
  }, "clerk-1")

  a, err = wf.Approve(ctx, a.ID, "chair-1", "ok")

SEE ALSO:
  - dispatch.go: Handler registry
  - store.go: ApprovalStore and Transactor
  - membership/approvals.go: Handlers for member and institution tags
*/
package generic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/warp/membership-engine/logger"
)

// =============================================================================
// APPROVAL - A pending change-request against a target entity
// =============================================================================

// EntityType tags what kind of change an approval carries.
type EntityType string

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Outcome is the resolver's decision.
type Outcome string

const (
	OutcomeApprove Outcome = "APPROVE"
	OutcomeReject  Outcome = "REJECT"
)

type Approval struct {
	ID          ApprovalID
	EntityType  EntityType
	EntityID    EntityID
	RequestData json.RawMessage
	Status      ApprovalStatus

	RequestedBy ActorID
	RequestedAt time.Time

	// Set on APPROVE
	ApprovedBy   *ActorID
	ApprovalNote string

	// Set on REJECT
	RejectedBy    *ActorID
	RejectionNote string

	ResolvedAt *time.Time
}

// IsPending is true until the approval is resolved. Once false it never
// becomes true again.
func (a Approval) IsPending() bool {
	return a.Status == ApprovalPending
}

// SubmitInput describes a proposed change.
type SubmitInput struct {
	EntityType  EntityType
	EntityID    EntityID
	RequestData json.RawMessage
}

// =============================================================================
// WORKFLOW
// =============================================================================

// Workflow resolves approvals for every registered EntityType.
// S is the transactional store type handed to dispatch handlers.
type Workflow[S ApprovalStore] struct {
	store    Backend[S]
	clock    Clock
	handlers *Registry[S]
	log      *slog.Logger
}

func NewWorkflow[S ApprovalStore](store Backend[S], clock Clock) *Workflow[S] {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Workflow[S]{
		store:    store,
		clock:    clock,
		handlers: NewRegistry[S](),
		log:      logger.WithComponent("approval-workflow"),
	}
}

// Register adds the handler for a tag. Registering the same tag twice panics.
func (w *Workflow[S]) Register(t EntityType, h Handler[S]) {
	w.handlers.Register(t, h)
}

// EntityTypes lists the registered tags.
func (w *Workflow[S]) EntityTypes() []EntityType {
	return w.handlers.Types()
}

// Submit queues a change-request as PENDING after its payload has been
// decoded and validated by the tag's handler.
func (w *Workflow[S]) Submit(ctx context.Context, in SubmitInput, requestedBy ActorID) (*Approval, error) {
	h, ok := w.handlers.Lookup(in.EntityType)
	if !ok {
		return nil, &ValidationError{Field: "entityType", Message: fmt.Sprintf("unsupported entity type %q", in.EntityType)}
	}
	if in.EntityID == "" {
		return nil, &ValidationError{Field: "entityId", Message: "is required"}
	}
	if requestedBy == "" {
		return nil, &ValidationError{Field: "requestedBy", Message: "is required"}
	}
	if err := h.check(in.RequestData); err != nil {
		return nil, err
	}

	data := in.RequestData
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	a := Approval{
		ID:          ApprovalID(NewID()),
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		RequestData: data,
		Status:      ApprovalPending,
		RequestedBy: requestedBy,
		RequestedAt: w.clock.Now(),
	}
	if err := w.store.SaveApproval(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save approval: %w", err)
	}

	w.log.InfoContext(ctx, "approval submitted",
		"approval_id", a.ID, "entity_type", a.EntityType, "entity_id", a.EntityID, "actor", requestedBy)
	return &a, nil
}

// Approve resolves a pending approval and applies its side effect.
func (w *Workflow[S]) Approve(ctx context.Context, id ApprovalID, approver ActorID, note string) (*Approval, error) {
	return w.resolve(ctx, id, approver, OutcomeApprove, note)
}

// Reject resolves a pending approval without touching its target.
func (w *Workflow[S]) Reject(ctx context.Context, id ApprovalID, rejecter ActorID, note string) (*Approval, error) {
	return w.resolve(ctx, id, rejecter, OutcomeReject, note)
}

// Resolve dispatches on the outcome.
func (w *Workflow[S]) Resolve(ctx context.Context, id ApprovalID, resolver ActorID, outcome Outcome, note string) (*Approval, error) {
	switch outcome {
	case OutcomeApprove, OutcomeReject:
		return w.resolve(ctx, id, resolver, outcome, note)
	default:
		return nil, &ValidationError{Field: "outcome", Message: fmt.Sprintf("unknown outcome %q", outcome)}
	}
}

func (w *Workflow[S]) resolve(ctx context.Context, id ApprovalID, resolver ActorID, outcome Outcome, note string) (*Approval, error) {
	if resolver == "" {
		return nil, &ValidationError{Field: "resolvedBy", Message: "is required"}
	}

	var result *Approval
	err := w.store.WithTx(ctx, func(s S) error {
		a, err := s.GetApproval(ctx, id)
		if err != nil {
			return err
		}
		if !a.IsPending() {
			return &InvalidStateError{Kind: "approval", ID: string(id), Op: "resolve", Current: string(a.Status)}
		}

		now := w.clock.Now()
		actor := resolver

		if outcome == OutcomeApprove {
			h, ok := w.handlers.Lookup(a.EntityType)
			if !ok {
				return fmt.Errorf("no handler registered for entity type %q", a.EntityType)
			}
			res := Resolution{
				ApprovalID: a.ID,
				EntityID:   a.EntityID,
				ResolvedBy: resolver,
				ResolvedAt: now,
			}
			if err := h.apply(ctx, s, res, a.RequestData); err != nil {
				return err
			}
			a.Status = ApprovalApproved
			a.ApprovedBy = &actor
			a.ApprovalNote = note
		} else {
			a.Status = ApprovalRejected
			a.RejectedBy = &actor
			a.RejectionNote = note
		}
		a.ResolvedAt = &now

		if err := s.SaveApproval(ctx, *a); err != nil {
			return fmt.Errorf("failed to save approval: %w", err)
		}
		result = a
		return nil
	})
	if err != nil {
		w.log.WarnContext(ctx, "approval resolution failed",
			"approval_id", id, "outcome", outcome, "actor", resolver, "error", err)
		return nil, err
	}

	w.log.InfoContext(ctx, "approval resolved",
		"approval_id", result.ID, "entity_type", result.EntityType, "entity_id", result.EntityID,
		"status", result.Status, "actor", resolver)
	return result, nil
}

// Get returns one approval.
func (w *Workflow[S]) Get(ctx context.Context, id ApprovalID) (*Approval, error) {
	return w.store.GetApproval(ctx, id)
}

// ListPending returns the queue, optionally restricted to one tag.
func (w *Workflow[S]) ListPending(ctx context.Context, t EntityType) ([]Approval, error) {
	return w.store.ListApprovals(ctx, ApprovalFilter{Status: ApprovalPending, EntityType: t})
}

// List returns approvals matching filter.
func (w *Workflow[S]) List(ctx context.Context, filter ApprovalFilter) ([]Approval, error) {
	return w.store.ListApprovals(ctx, filter)
}
