/*
handlers.go - HTTP API handlers for the membership engine

PURPOSE:
  Exposes the membership services via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Members:
    POST   /api/members                      Apply (creates PENDING member)
    GET    /api/members                      List members in caller scope
    GET    /api/members/prior-cancellation   Latest cancelled record for a national ID
    GET    /api/members/{id}                 Get member
    POST   /api/members/{id}/approve         PENDING -> APPROVED
    POST   /api/members/{id}/reject          PENDING -> REJECTED
    POST   /api/members/{id}/activate        APPROVED -> ACTIVE
    POST   /api/members/{id}/cancel          ACTIVE -> RESIGNED | EXPELLED
    DELETE /api/members/{id}                 Soft delete (repeatable)

  Dues:
    GET    /api/members/{id}/debt            Debt over the trailing 12 periods
    GET    /api/members/{id}/payments        Payment history
    POST   /api/members/{id}/payments        Record payment (?pending=true to queue)
    POST   /api/payments/{id}/approve        Approve a queued payment
    DELETE /api/payments/{id}                Delete an unapproved payment
    GET    /api/reports/debt                 Aggregated debt report

  Approvals:
    POST   /api/approvals                    Submit a change request
    GET    /api/approvals/pending            Pending queue (?type=)
    GET    /api/approvals/{id}               Get approval
    POST   /api/approvals/{id}/approve       Approve and apply side effect
    POST   /api/approvals/{id}/reject        Reject

  Digest (scheduler.go):
    GET    /api/digest                       Last run and next fire time
    POST   /api/digest/run                   Run the dues digest now

ERROR HANDLING:
  Domain errors map to HTTP status by kind (writeServiceError):
  - 400: Validation
  - 404: NotFound (including soft-deleted and out-of-scope members)
  - 409: InvalidState, Conflict
  - 500: everything else

IDENTITY:
  The acting user comes from X-Actor-ID; the caller's scope comes from the
  ScopeResolver. Authentication is handled upstream.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - scheduler.go: Dues digest endpoints
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/jobs"
	"github.com/warp/membership-engine/logger"
	"github.com/warp/membership-engine/membership"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Members   *membership.Service
	Payments  *membership.PaymentLedger
	Debt      *membership.DebtCalculator
	Reports   *membership.Reporter
	Approvals *membership.Workflow
	Scopes    ScopeResolver
	Clock     generic.Clock

	// Scenario loaders build back-dated services over the same store.
	store membership.TxStore

	// Track currently loaded scenario
	currentScenario string

	// Optional; see AttachDigest.
	digest   *jobs.DuesDigest
	schedule *jobs.Scheduler
}

// Services bundles the domain services a Handler delegates to.
type Services struct {
	Store     membership.TxStore
	Members   *membership.Service
	Payments  *membership.PaymentLedger
	Debt      *membership.DebtCalculator
	Reports   *membership.Reporter
	Approvals *membership.Workflow
}

// NewServices wires every domain service over one store.
func NewServices(store membership.TxStore, clock generic.Clock, monthlyDue generic.Amount) Services {
	debt := membership.NewDebtCalculator(store, monthlyDue)
	return Services{
		Store:     store,
		Members:   membership.NewService(store, clock),
		Payments:  membership.NewPaymentLedger(store, clock, monthlyDue.Currency),
		Debt:      debt,
		Reports:   membership.NewReporter(store, debt),
		Approvals: membership.NewWorkflow(store, clock),
	}
}

// NewHandler creates a handler. A nil resolver reads scope from headers.
func NewHandler(svc Services, scopes ScopeResolver, clock generic.Clock) *Handler {
	if scopes == nil {
		scopes = HeaderScopeResolver{}
	}
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Handler{
		Members:   svc.Members,
		Payments:  svc.Payments,
		Debt:      svc.Debt,
		Reports:   svc.Reports,
		Approvals: svc.Approvals,
		Scopes:    scopes,
		Clock:     clock,
		store:     svc.Store,
	}
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ApplyMember creates a PENDING member.
func (h *Handler) ApplyMember(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req membership.ApplyInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	m, err := h.Members.Apply(r.Context(), req, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(*m))
}

// ListMembers returns members visible in the caller's scope.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	scope, err := h.Scopes.Resolve(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "Scope resolution failed", err)
		return
	}

	filter := membership.MemberFilter{
		Scope:    scope,
		BranchID: r.URL.Query().Get("branch"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := membership.Status(strings.ToUpper(strings.TrimSpace(s)))
			if !status.Valid() {
				writeServiceError(w, &generic.ValidationError{Field: "status", Message: "unknown status " + s})
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	members, err := h.Members.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTOs(members))
}

// GetMember returns a single visible member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, ok := h.scopedMember(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// CheckPriorCancellation returns the most recent cancelled record for a
// national ID, or null.
func (h *Handler) CheckPriorCancellation(w http.ResponseWriter, r *http.Request) {
	m, err := h.Members.CheckPriorCancellation(r.Context(), r.URL.Query().Get("national_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if m == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// ApproveMember assigns a registration number and moves PENDING to APPROVED.
func (h *Handler) ApproveMember(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req membership.ApproveInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, ok := h.scopedMember(w, r); !ok {
		return
	}

	m, err := h.Members.Approve(r.Context(), memberID(r), actor, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// RejectMember moves PENDING to REJECTED.
func (h *Handler) RejectMember(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req RejectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, ok := h.scopedMember(w, r); !ok {
		return
	}

	m, err := h.Members.Reject(r.Context(), memberID(r), actor, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// ActivateMember moves APPROVED to ACTIVE.
func (h *Handler) ActivateMember(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if _, ok := h.scopedMember(w, r); !ok {
		return
	}

	m, err := h.Members.Activate(r.Context(), memberID(r), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// CancelMember ends an ACTIVE membership by resignation or expulsion.
func (h *Handler) CancelMember(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req membership.CancelInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, ok := h.scopedMember(w, r); !ok {
		return
	}

	m, err := h.Members.CancelMembership(r.Context(), memberID(r), req, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// DeleteMember soft-deletes a member. The record stays for audit.
func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	if _, err := actorFrom(r); err != nil {
		writeServiceError(w, err)
		return
	}
	var req DeleteMemberRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	// Deleted members stay addressable here so a repeated DELETE is a no-op.
	scope, err := h.Scopes.Resolve(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "Scope resolution failed", err)
		return
	}
	id := memberID(r)
	m, err := h.store.GetMember(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !scope.Allows(m.ProvinceID, m.DistrictID) {
		writeServiceError(w, &generic.NotFoundError{Kind: "member", ID: string(id)})
		return
	}

	if _, err := h.Members.SoftDelete(r.Context(), id, req.Reason); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DUES HANDLERS
// =============================================================================

// GetMemberDebt reconciles one member as of ?year=&month= (default: now).
func (h *Handler) GetMemberDebt(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.periodParam(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if _, ok := h.scopedMember(w, r); !ok {
		return
	}

	st, err := h.Debt.CalculateMemberDebt(r.Context(), memberID(r), asOf)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtDTO(*st))
}

// ListMemberPayments returns a member's payment history.
func (h *Handler) ListMemberPayments(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.scopedMember(w, r); !ok {
		return
	}
	filter := membership.PaymentFilter{
		ApprovedOnly: r.URL.Query().Get("approved") == "true",
	}
	if raw := r.URL.Query().Get("from_year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			writeServiceError(w, &generic.ValidationError{Field: "from_year", Message: "must be an integer"})
			return
		}
		filter.FromYear = year
	}

	payments, err := h.Payments.ListPayments(r.Context(), memberID(r), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordMemberPayment books a payment. With ?pending=true the payment is
// queued unapproved instead.
func (h *Handler) RecordMemberPayment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req RecordPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := generic.ParseAmount(req.Amount, generic.Currency(req.Currency))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if _, ok := h.scopedMember(w, r); !ok {
		return
	}

	in := membership.RecordPaymentInput{
		MemberID: memberID(r),
		Period:   generic.Period{Year: req.Year, Month: req.Month},
		Amount:   amount,
		Type:     membership.PaymentType(req.PaymentType),
		Note:     req.Note,
	}

	var p *membership.Payment
	if r.URL.Query().Get("pending") == "true" {
		p, err = h.Payments.SubmitPayment(r.Context(), in, actor)
	} else {
		p, err = h.Payments.RecordPayment(r.Context(), in, actor)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(*p))
}

// ApprovePayment promotes a queued payment.
func (h *Handler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	p, err := h.Payments.ApprovePayment(r.Context(), membership.PaymentID(chi.URLParam(r, "id")), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p))
}

// DeletePayment removes an unapproved payment.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	if _, err := actorFrom(r); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.Payments.DeletePayment(r.Context(), membership.PaymentID(chi.URLParam(r, "id"))); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDebtReport aggregates debt over ACTIVE members in the caller's scope.
func (h *Handler) GetDebtReport(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.periodParam(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	scope, err := h.Scopes.Resolve(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "Scope resolution failed", err)
		return
	}

	report, err := h.Reports.DebtReport(r.Context(), membership.ReportFilter{
		Scope:    scope,
		BranchID: r.URL.Query().Get("branch"),
	}, asOf)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtReportDTO(report))
}

// =============================================================================
// INSTITUTION HANDLERS
// =============================================================================

// CreateInstitution registers an inactive institution.
func (h *Handler) CreateInstitution(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req membership.InstitutionInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	inst, err := h.Members.RegisterInstitution(r.Context(), req, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInstitutionDTO(*inst))
}

// GetInstitution returns one institution.
func (h *Handler) GetInstitution(w http.ResponseWriter, r *http.Request) {
	inst, err := h.Members.GetInstitution(r.Context(), generic.EntityID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstitutionDTO(*inst))
}

// =============================================================================
// APPROVAL HANDLERS
// =============================================================================

// SubmitApproval queues a change request.
func (h *Handler) SubmitApproval(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req SubmitApprovalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := h.Approvals.Submit(r.Context(), generic.SubmitInput{
		EntityType:  generic.EntityType(req.EntityType),
		EntityID:    generic.EntityID(req.EntityID),
		RequestData: req.RequestData,
	}, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApprovalDTO(*a))
}

// ListPendingApprovals returns the pending queue, optionally for one ?type=.
func (h *Handler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	approvals, err := h.Approvals.ListPending(r.Context(), generic.EntityType(r.URL.Query().Get("type")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalDTOs(approvals))
}

// GetApproval returns one approval.
func (h *Handler) GetApproval(w http.ResponseWriter, r *http.Request) {
	a, err := h.Approvals.Get(r.Context(), generic.ApprovalID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalDTO(*a))
}

// ApproveApproval approves a pending request and applies its side effect.
func (h *Handler) ApproveApproval(w http.ResponseWriter, r *http.Request) {
	h.resolveApproval(w, r, generic.OutcomeApprove)
}

// RejectApproval rejects a pending request.
func (h *Handler) RejectApproval(w http.ResponseWriter, r *http.Request) {
	h.resolveApproval(w, r, generic.OutcomeReject)
}

func (h *Handler) resolveApproval(w http.ResponseWriter, r *http.Request, outcome generic.Outcome) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req ResolveApprovalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := h.Approvals.Resolve(r.Context(), generic.ApprovalID(chi.URLParam(r, "id")), actor, outcome, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalDTO(*a))
}

// =============================================================================
// HELPERS
// =============================================================================

func memberID(r *http.Request) generic.EntityID {
	return generic.EntityID(chi.URLParam(r, "id"))
}

// scopedMember loads the {id} member and hides it when outside the
// caller's scope. It writes the error response itself.
func (h *Handler) scopedMember(w http.ResponseWriter, r *http.Request) (*membership.Member, bool) {
	scope, err := h.Scopes.Resolve(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "Scope resolution failed", err)
		return nil, false
	}
	id := memberID(r)
	m, err := h.Members.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	if !scope.Allows(m.ProvinceID, m.DistrictID) {
		writeServiceError(w, &generic.NotFoundError{Kind: "member", ID: string(id)})
		return nil, false
	}
	return m, true
}

// periodParam reads ?year=&month=, defaulting to the current period.
func (h *Handler) periodParam(r *http.Request) (generic.Period, error) {
	current := generic.PeriodOf(h.Clock.Now())
	q := r.URL.Query()
	if q.Get("year") == "" && q.Get("month") == "" {
		return current, nil
	}
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		return generic.Period{}, &generic.ValidationError{Field: "year", Message: "must be an integer"}
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil {
		return generic.Period{}, &generic.ValidationError{Field: "month", Message: "must be an integer"}
	}
	return generic.NewPeriod(year, month)
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a domain error kind to its HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	var ve *generic.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    "VALIDATION",
			Details: map[string]string{"field": ve.Field, "message": ve.Message},
		})
	case generic.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Code: "VALIDATION", Details: err.Error()})
	case generic.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not found", Code: "NOT_FOUND", Details: err.Error()})
	case generic.IsInvalidState(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Invalid state", Code: "INVALID_STATE", Details: err.Error()})
	case generic.IsConflict(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Conflict", Code: "CONFLICT", Details: err.Error()})
	default:
		logger.Error("Unhandled service error", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
