/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Member lifecycle over HTTP (apply, approve, activate, cancel, delete)
- Error kind to status mapping (400, 404, 409)
- Scope hiding of out-of-scope members
- Payments, debt and the debt report
- Approval submission and resolution
- Dues digest status and manual run
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/jobs"
	"github.com/warp/membership-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)

type testServer struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := generic.FixedClock{At: testNow}
	services := NewServices(memory.New(), clock, generic.MustParseAmount("10000.00", "IDR"))
	h := NewHandler(services, nil, clock)
	return &testServer{t: t, handler: h, router: NewRouter(h, RouterOptions{})}
}

// do sends a request as "clerk-1". Extra headers are given as key/value
// pairs; an empty actor value removes the actor header.
func (s *testServer) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderActorID, "clerk-1")
	for i := 0; i+1 < len(headers); i += 2 {
		if headers[i+1] == "" {
			req.Header.Del(headers[i])
			continue
		}
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

type errorBody struct {
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

func applyBody(name, nationalID, province string) map[string]any {
	return map[string]any{
		"fullName":   name,
		"nationalId": nationalID,
		"provinceId": province,
		"districtId": "DIST-01",
		"branchId":   "BR-01",
	}
}

// activeMember applies, approves and activates through the API.
func (s *testServer) activeMember(name, nationalID, province string) MemberDTO {
	s.t.Helper()
	rec := s.do("POST", "/api/members", applyBody(name, nationalID, province))
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[MemberDTO](s.t, rec)

	rec = s.do("POST", "/api/members/"+m.ID+"/approve", map[string]any{"registrationNumber": "REG-" + nationalID})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do("POST", "/api/members/"+m.ID+"/activate", nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[MemberDTO](s.t, rec)
}

// =============================================================================
// MEMBER LIFECYCLE
// =============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("GET", "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMemberLifecycle_OverHTTP(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: A new application
	rec := s.do("POST", "/api/members", applyBody("Siti Rahma", "3201000000000001", "PROV-01"))
	require.Equal(t, http.StatusCreated, rec.Code)
	m := decode[MemberDTO](t, rec)
	assert.Equal(t, "PENDING", m.Status)
	assert.False(t, m.IsActive)
	assert.Nil(t, m.RegistrationNumber)
	assert.Equal(t, "clerk-1", m.AppliedBy)

	// WHEN: Approved and activated
	rec = s.do("POST", "/api/members/"+m.ID+"/approve",
		map[string]any{"registrationNumber": "REG-1", "boardDecisionDate": "2025-03-10T00:00:00Z"},
		HeaderActorID, "supervisor-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[MemberDTO](t, rec)
	assert.Equal(t, "APPROVED", approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, "supervisor-1", *approved.ApprovedBy)
	require.NotNil(t, approved.BoardDecisionDate)
	assert.Equal(t, "2025-03-10T00:00:00Z", *approved.BoardDecisionDate)

	rec = s.do("POST", "/api/members/"+m.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The member is active
	rec = s.do("GET", "/api/members/"+m.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[MemberDTO](t, rec)
	assert.Equal(t, "ACTIVE", got.Status)
	assert.True(t, got.IsActive)
	assert.Equal(t, "REG-1", *got.RegistrationNumber)

	// WHEN: The member resigns
	rec = s.do("POST", "/api/members/"+m.ID+"/cancel", map[string]any{"reason": "RESIGNATION", "note": "retired"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[MemberDTO](t, rec)
	assert.Equal(t, "RESIGNED", cancelled.Status)
	assert.False(t, cancelled.IsActive)

	// THEN: The prior cancellation is found by national ID
	rec = s.do("GET", "/api/members/prior-cancellation?national_id=3201000000000001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, m.ID, decode[MemberDTO](t, rec).ID)
}

func TestRejectMember(t *testing.T) {
	s := newTestServer(t)
	m := decode[MemberDTO](t, s.do("POST", "/api/members", applyBody("Budi", "3201000000000002", "PROV-01")))

	rec := s.do("POST", "/api/members/"+m.ID+"/reject", map[string]string{"note": "incomplete"})

	require.Equal(t, http.StatusOK, rec.Code)
	rejected := decode[MemberDTO](t, rec)
	assert.Equal(t, "REJECTED", rejected.Status)
	assert.Equal(t, "incomplete", rejected.RejectionNote)
}

func TestPriorCancellation_NoneIsNull(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("GET", "/api/members/prior-cancellation?national_id=nobody", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestDeleteMember_HidesFromReads(t *testing.T) {
	s := newTestServer(t)
	m := s.activeMember("Dewi", "3201000000000003", "PROV-01")

	rec := s.do("DELETE", "/api/members/"+m.ID, map[string]string{"reason": "duplicate"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do("GET", "/api/members/"+m.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	list := decode[[]MemberDTO](t, s.do("GET", "/api/members", nil))
	assert.Empty(t, list)

	// A repeated delete is a no-op
	rec = s.do("DELETE", "/api/members/"+m.ID, map[string]string{"reason": "again"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do("GET", "/api/members/"+m.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMember_UnknownOrOutOfScope(t *testing.T) {
	s := newTestServer(t)
	m := s.activeMember("Eka", "3201000000000004", "PROV-01")

	assert.Equal(t, http.StatusNotFound, s.do("DELETE", "/api/members/missing", nil).Code)

	rec := s.do("DELETE", "/api/members/"+m.ID, nil, HeaderScopeProvince, "PROV-02")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do("GET", "/api/members/"+m.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "out-of-scope delete leaves the member visible")
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	pending := decode[MemberDTO](t, s.do("POST", "/api/members", applyBody("Eko", "3201000000000004", "PROV-01")))

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		headers  []string
		wantCode int
		wantKind string
	}{
		{
			name: "missing actor", method: "POST", path: "/api/members",
			body: applyBody("X", "1", "PROV-01"), headers: []string{HeaderActorID, ""},
			wantCode: http.StatusBadRequest, wantKind: "VALIDATION",
		},
		{
			name: "missing full name", method: "POST", path: "/api/members",
			body:     map[string]string{"nationalId": "3201000000000005"},
			wantCode: http.StatusBadRequest, wantKind: "VALIDATION",
		},
		{
			name: "unknown member", method: "GET", path: "/api/members/missing",
			wantCode: http.StatusNotFound, wantKind: "NOT_FOUND",
		},
		{
			name: "activate pending", method: "POST", path: "/api/members/" + pending.ID + "/activate",
			wantCode: http.StatusConflict, wantKind: "INVALID_STATE",
		},
		{
			name: "duplicate application", method: "POST", path: "/api/members",
			body:     applyBody("Eko", "3201000000000004", "PROV-01"),
			wantCode: http.StatusConflict, wantKind: "CONFLICT",
		},
		{
			name: "unknown status filter", method: "GET", path: "/api/members?status=ACTIVE,ASLEEP",
			wantCode: http.StatusBadRequest, wantKind: "VALIDATION",
		},
		{
			name: "bad period", method: "GET", path: "/api/members/" + pending.ID + "/debt?year=2025&month=13",
			wantCode: http.StatusBadRequest, wantKind: "VALIDATION",
		},
		{
			name: "unknown approval", method: "GET", path: "/api/approvals/missing",
			wantCode: http.StatusNotFound, wantKind: "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.body, tt.headers...)

			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantKind, decode[errorBody](t, rec).Code)
		})
	}
}

func TestValidationError_NamesField(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("POST", "/api/members", applyBody("X", "1", "PROV-01"), HeaderActorID, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	details := map[string]string{}
	require.NoError(t, json.Unmarshal(decode[errorBody](t, rec).Details, &details))
	assert.Equal(t, HeaderActorID, details["field"])
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/members", bytes.NewBufferString(`{"fullName":`))
	req.Header.Set(HeaderActorID, "clerk-1")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode[errorBody](t, rec).Error)
}

// =============================================================================
// SCOPE
// =============================================================================

func TestScope_HidesOutOfScopeMembers(t *testing.T) {
	s := newTestServer(t)
	west := s.activeMember("Fajar", "3201000000000006", "PROV-01")
	east := s.activeMember("Gita", "3201000000000007", "PROV-02")

	// Listing is filtered
	list := decode[[]MemberDTO](t, s.do("GET", "/api/members", nil, HeaderScopeProvince, "PROV-02"))
	require.Len(t, list, 1)
	assert.Equal(t, east.ID, list[0].ID)

	// Direct reads and writes look like the member does not exist
	rec := s.do("GET", "/api/members/"+west.ID, nil, HeaderScopeProvince, "PROV-02")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do("POST", "/api/members/"+west.ID+"/cancel", map[string]string{"reason": "EXPULSION"},
		HeaderScopeProvince, "PROV-02")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// No scope sees everyone
	all := decode[[]MemberDTO](t, s.do("GET", "/api/members", nil))
	assert.Len(t, all, 2)
}

// =============================================================================
// PAYMENTS AND DEBT
// =============================================================================

func TestPaymentsAndDebt(t *testing.T) {
	s := newTestServer(t)
	m := s.activeMember("Hadi", "3201000000000008", "PROV-01")
	payURL := "/api/members/" + m.ID + "/payments"

	// GIVEN: One month owed since approval in March
	debt := decode[DebtDTO](t, s.do("GET", "/api/members/"+m.ID+"/debt", nil))
	assert.Equal(t, "2025-03", debt.AsOf)
	assert.Equal(t, 1, debt.DebtMonths)
	assert.Equal(t, "10000.00", debt.Amount)
	assert.Equal(t, []string{"2025-03"}, debt.UnpaidPeriods)

	// WHEN: March is paid
	rec := s.do("POST", payURL, RecordPaymentRequest{Year: 2025, Month: 3, Amount: "10000.00", PaymentType: "CASH"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[PaymentDTO](t, rec)
	assert.True(t, p.IsApproved)
	assert.Equal(t, "2025-03", p.Period)
	assert.Equal(t, "IDR", p.Currency)

	// THEN: Nothing is owed
	debt = decode[DebtDTO](t, s.do("GET", "/api/members/"+m.ID+"/debt?year=2025&month=3", nil))
	assert.Equal(t, 0, debt.DebtMonths)
	assert.Equal(t, "0.00", debt.Amount)

	// AND: A second approved payment for March conflicts
	rec = s.do("POST", payURL, RecordPaymentRequest{Year: 2025, Month: 3, Amount: "10000.00", PaymentType: "CASH"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: A queued duplicate is accepted but cannot be approved
	rec = s.do("POST", payURL+"?pending=true", RecordPaymentRequest{Year: 2025, Month: 3, Amount: "10000.00", PaymentType: "BANK_TRANSFER"})
	require.Equal(t, http.StatusCreated, rec.Code)
	queued := decode[PaymentDTO](t, rec)
	assert.False(t, queued.IsApproved)
	rec = s.do("POST", "/api/payments/"+queued.ID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: Approved payments cannot be deleted, queued ones can
	assert.Equal(t, http.StatusConflict, s.do("DELETE", "/api/payments/"+p.ID, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do("DELETE", "/api/payments/"+queued.ID, nil).Code)

	payments := decode[[]PaymentDTO](t, s.do("GET", payURL, nil))
	require.Len(t, payments, 1)
	assert.Equal(t, p.ID, payments[0].ID)
}

func TestRecordPayment_InvalidAmount(t *testing.T) {
	s := newTestServer(t)
	m := s.activeMember("Indah", "3201000000000009", "PROV-01")

	for _, amount := range []string{"ten", "0", "100.001"} {
		rec := s.do("POST", "/api/members/"+m.ID+"/payments",
			RecordPaymentRequest{Year: 2025, Month: 3, Amount: amount, PaymentType: "CASH"})
		assert.Equal(t, http.StatusBadRequest, rec.Code, amount)
	}

	rec := s.do("POST", "/api/members/"+m.ID+"/payments",
		RecordPaymentRequest{Year: 2025, Month: 3, Amount: "10000.00", Currency: "USD", PaymentType: "CASH"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Contains(t, string(body.Details), `"field":"currency"`)
}

func TestDebtReport(t *testing.T) {
	s := newTestServer(t)
	a := s.activeMember("Joko", "3201000000000010", "PROV-01")
	s.activeMember("Kartika", "3201000000000011", "PROV-02")
	rec := s.do("POST", "/api/members/"+a.ID+"/payments",
		RecordPaymentRequest{Year: 2025, Month: 3, Amount: "10000.00", PaymentType: "CASH"})
	require.Equal(t, http.StatusCreated, rec.Code)

	report := decode[DebtReportDTO](t, s.do("GET", "/api/reports/debt?year=2025&month=4", nil))
	assert.Equal(t, "2025-04", report.AsOf)
	assert.Equal(t, 2, report.Members)
	assert.Equal(t, 2, report.MembersInDebt)
	assert.Equal(t, "30000.00", report.Total)
	require.Len(t, report.ByProvince, 2)
	assert.Equal(t, "10000.00", report.ByProvince[0].Amount)
	assert.Equal(t, "20000.00", report.ByProvince[1].Amount)

	scoped := decode[DebtReportDTO](t, s.do("GET", "/api/reports/debt?year=2025&month=4", nil,
		HeaderScopeProvince, "PROV-02"))
	assert.Equal(t, 1, scoped.Members)
	assert.Equal(t, "20000.00", scoped.Total)
}

// =============================================================================
// APPROVALS
// =============================================================================

func TestInstitutionApproval_OverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("POST", "/api/institutions", map[string]string{"name": "SDN 1 Bandung", "provinceId": "PROV-01"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inst := decode[InstitutionDTO](t, rec)
	assert.False(t, inst.Active)

	rec = s.do("POST", "/api/approvals", map[string]any{
		"entityType":  "INSTITUTION",
		"entityId":    inst.ID,
		"requestData": map[string]string{"note": "new school"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	approval := decode[ApprovalDTO](t, rec)
	assert.Equal(t, "PENDING", approval.Status)

	pending := decode[[]ApprovalDTO](t, s.do("GET", "/api/approvals/pending?type=INSTITUTION", nil))
	require.Len(t, pending, 1)

	rec = s.do("POST", "/api/approvals/"+approval.ID+"/approve", map[string]string{"note": "verified"},
		HeaderActorID, "supervisor-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decode[ApprovalDTO](t, rec)
	assert.Equal(t, "APPROVED", resolved.Status)
	assert.Equal(t, "verified", resolved.ApprovalNote)

	got := decode[InstitutionDTO](t, s.do("GET", "/api/institutions/"+inst.ID, nil))
	assert.True(t, got.Active)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, "supervisor-1", *got.ApprovedBy)

	rec = s.do("POST", "/api/approvals/"+approval.ID+"/reject", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	pending = decode[[]ApprovalDTO](t, s.do("GET", "/api/approvals/pending", nil))
	assert.Empty(t, pending)
}

func TestMemberCreateApproval_OverHTTP(t *testing.T) {
	s := newTestServer(t)
	m := decode[MemberDTO](t, s.do("POST", "/api/members", applyBody("Lestari", "3201000000000012", "PROV-01")))

	rec := s.do("POST", "/api/approvals", map[string]any{
		"entityType":  "MEMBER_CREATE",
		"entityId":    m.ID,
		"requestData": map[string]string{"registrationNumber": "REG-12"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	approval := decode[ApprovalDTO](t, rec)

	rec = s.do("POST", "/api/approvals/"+approval.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[MemberDTO](t, s.do("GET", "/api/members/"+m.ID, nil))
	assert.Equal(t, "ACTIVE", got.Status)
	assert.Equal(t, "REG-12", *got.RegistrationNumber)
}

func TestSubmitApproval_Rejected(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown type", map[string]any{"entityType": "PAYMENT", "entityId": "x"}},
		{"missing entity", map[string]any{"entityType": "MEMBER_DELETE"}},
		{"protected field", map[string]any{
			"entityType":  "MEMBER_UPDATE",
			"entityId":    "x",
			"requestData": map[string]any{"updateData": map[string]string{"status": "ACTIVE"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do("POST", "/api/approvals", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

// =============================================================================
// DIGEST
// =============================================================================

func TestDigest_NotConfigured(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/digest", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do("POST", "/api/digest/run", nil).Code)
}

func TestDigest_RunNowRecordsLastRun(t *testing.T) {
	// GIVEN: a digest without a cron schedule and one member active since March
	s := newTestServer(t)
	s.handler.AttachDigest(jobs.NewDuesDigest(s.handler.Reports, s.handler.Clock), nil)
	s.activeMember("Lestari", "3201000000000020", "PROV-01")

	status := decode[DigestStatusDTO](t, s.do("GET", "/api/digest", nil))
	assert.False(t, status.Scheduled)
	assert.Nil(t, status.NextRun)
	assert.Nil(t, status.LastRun)

	// WHEN: the digest is run by hand
	rec := s.do("POST", "/api/digest/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: it reports the month before the clock and nothing is owed yet
	report := decode[DebtReportDTO](t, rec)
	assert.Equal(t, "2025-02", report.AsOf)
	assert.Equal(t, 1, report.Members)
	assert.Equal(t, 0, report.MembersInDebt)
	assert.Equal(t, "0.00", report.Total)

	status = decode[DigestStatusDTO](t, s.do("GET", "/api/digest", nil))
	require.NotNil(t, status.LastRun)
	assert.Equal(t, "2025-02", status.LastRun.Period)
	assert.Equal(t, 1, status.LastRun.Members)
	assert.Equal(t, "0.00", status.LastRun.Total)
	assert.Empty(t, status.LastRun.Error)
}

func TestDigest_RunRequiresActor(t *testing.T) {
	s := newTestServer(t)
	s.handler.AttachDigest(jobs.NewDuesDigest(s.handler.Reports, s.handler.Clock), nil)

	rec := s.do("POST", "/api/digest/run", nil, HeaderActorID, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
