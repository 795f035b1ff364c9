/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	membership data. Every record is created through the domain services,
	so scenarios exercise the same state machine and ledger as the API.

AVAILABLE SCENARIOS:

	dues-arrears:     Active members with partial payment histories
	approval-queue:   Pending institution, member-create and update requests
	re-application:   A resigned member re-applying under the same national ID

HOW SCENARIOS WORK:
 1. Back-date a clock to the member's join date
 2. Apply, approve and activate through membership.Service
 3. Record payments through membership.PaymentLedger
 4. Queue approval requests through the workflow

Scenarios add data; they never reset the store. Member IDs are random, so
a scenario may be loaded more than once (national IDs are suffixed).

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "dues-arrears"}

SEE ALSO:
  - handlers.go: Handler and service wiring
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/membership"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const scenarioActor generic.ActorID = "scenario-loader"

var scenarios = []ScenarioDTO{
	{
		ID:          "dues-arrears",
		Name:        "Dues Arrears",
		Description: "Three active members: fully paid, partially paid, and never paid",
	},
	{
		ID:          "approval-queue",
		Name:        "Approval Queue",
		Description: "Pending institution, member-create and member-update approvals",
	},
	{
		ID:          "re-application",
		Name:        "Re-application",
		Description: "Resigned member with a new application linked to the old record",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if generic.IsValidation(err) {
			writeServiceError(w, err)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	switch id {
	case "dues-arrears":
		return h.loadDuesArrearsScenario(ctx)
	case "approval-queue":
		return h.loadApprovalQueueScenario(ctx)
	case "re-application":
		return h.loadReapplicationScenario(ctx)
	default:
		return &generic.ValidationError{Field: "scenario_id", Message: fmt.Sprintf("unknown scenario %q", id)}
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadDuesArrearsScenario(ctx context.Context) error {
	now := h.Clock.Now()
	joined := now.AddDate(-2, 0, 0)
	suffix := generic.NewID()[:8]

	members := []struct {
		name       string
		paidMonths int // most recent periods paid
	}{
		{"Siti Rahma", 12},
		{"Budi Santoso", 7},
		{"Agus Wijaya", 0},
	}

	due := h.Debt.MonthlyDue()
	for i, seed := range members {
		m, err := h.seedActiveMember(ctx, joined, membership.ApplyInput{
			FullName:   seed.name,
			NationalID: fmt.Sprintf("NID-%s-%d", suffix, i),
			ProvinceID: "PROV-01",
			DistrictID: fmt.Sprintf("DIST-%02d", i%2+1),
			BranchID:   "BR-01",
		}, fmt.Sprintf("REG-%s-%d", suffix, i))
		if err != nil {
			return err
		}

		for _, p := range generic.TrailingWindow(generic.PeriodOf(now), seed.paidMonths) {
			_, err := h.Payments.RecordPayment(ctx, membership.RecordPaymentInput{
				MemberID: m.ID,
				Period:   p,
				Amount:   due,
				Type:     membership.PaymentPayrollDeduction,
			}, scenarioActor)
			if err != nil {
				return fmt.Errorf("failed to record payment for %s: %w", seed.name, err)
			}
		}
	}
	return nil
}

func (h *Handler) loadApprovalQueueScenario(ctx context.Context) error {
	suffix := generic.NewID()[:8]

	inst, err := h.Members.RegisterInstitution(ctx, membership.InstitutionInput{
		Name:       "Public Works Office " + suffix,
		ProvinceID: "PROV-02",
		DistrictID: "DIST-03",
	}, scenarioActor)
	if err != nil {
		return err
	}
	if err := h.submit(ctx, membership.EntityInstitution, inst.ID, membership.InstitutionPayload{Note: "new employer"}); err != nil {
		return err
	}

	pending, err := h.Members.Apply(ctx, membership.ApplyInput{
		FullName:      "Dewi Lestari",
		NationalID:    "NID-" + suffix + "-new",
		InstitutionID: string(inst.ID),
		ProvinceID:    "PROV-02",
		DistrictID:    "DIST-03",
	}, scenarioActor)
	if err != nil {
		return err
	}
	if err := h.submit(ctx, membership.EntityMemberCreate, pending.ID, membership.MemberCreatePayload{
		RegistrationNumber: "REG-" + suffix + "-new",
		BranchID:           "BR-02",
	}); err != nil {
		return err
	}

	active, err := h.seedActiveMember(ctx, h.Clock.Now().AddDate(0, -3, 0), membership.ApplyInput{
		FullName:   "Rudi Hartono",
		NationalID: "NID-" + suffix + "-upd",
		ProvinceID: "PROV-02",
		DistrictID: "DIST-03",
	}, "REG-"+suffix+"-upd")
	if err != nil {
		return err
	}
	phone := "+62 812 0000 0000"
	return h.submit(ctx, membership.EntityMemberUpdate, active.ID, membership.MemberUpdatePayload{
		UpdateData: membership.MemberUpdate{Phone: &phone},
	})
}

func (h *Handler) loadReapplicationScenario(ctx context.Context) error {
	suffix := generic.NewID()[:8]
	nationalID := "NID-" + suffix + "-re"

	old, err := h.seedActiveMember(ctx, h.Clock.Now().AddDate(-3, 0, 0), membership.ApplyInput{
		FullName:   "Hendra Gunawan",
		NationalID: nationalID,
		ProvinceID: "PROV-03",
		DistrictID: "DIST-05",
	}, "REG-"+suffix+"-re")
	if err != nil {
		return err
	}
	resignedAt := h.Clock.Now().AddDate(-1, 0, 0)
	if _, err := h.Members.CancelMembership(ctx, old.ID, membership.CancelInput{
		Reason:        membership.CancelResignation,
		Note:          "moved abroad",
		EffectiveDate: &resignedAt,
	}, scenarioActor); err != nil {
		return err
	}

	_, err = h.Members.Apply(ctx, membership.ApplyInput{
		FullName:                  "Hendra Gunawan",
		NationalID:                nationalID,
		ProvinceID:                "PROV-03",
		DistrictID:                "DIST-05",
		PreviousCancelledMemberID: &old.ID,
	}, scenarioActor)
	return err
}

// seedActiveMember walks apply, approve and activate with a clock fixed at
// joined, so the membership starts in the past.
func (h *Handler) seedActiveMember(ctx context.Context, joined time.Time, in membership.ApplyInput, regNo string) (*membership.Member, error) {
	svc := membership.NewService(h.store, generic.FixedClock{At: joined})

	m, err := svc.Apply(ctx, in, scenarioActor)
	if err != nil {
		return nil, fmt.Errorf("failed to apply %s: %w", in.FullName, err)
	}
	if _, err := svc.Approve(ctx, m.ID, scenarioActor, membership.ApproveInput{
		RegistrationNumber: regNo,
		BoardDecisionDate:  &joined,
		BranchID:           in.BranchID,
	}); err != nil {
		return nil, fmt.Errorf("failed to approve %s: %w", in.FullName, err)
	}
	return svc.Activate(ctx, m.ID, scenarioActor)
}

func (h *Handler) submit(ctx context.Context, t generic.EntityType, id generic.EntityID, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = h.Approvals.Submit(ctx, generic.SubmitInput{EntityType: t, EntityID: id, RequestData: data}, scenarioActor)
	return err
}
