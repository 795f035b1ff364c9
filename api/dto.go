/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  - Money: decimal string with two fraction digits ("10000.00")
  - Timestamps: RFC3339, UTC
  - Periods: "YYYY-MM"

VALIDATION:
  Request bodies map onto membership input types, which carry validate
  tags. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/membership"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// RejectRequest carries the optional note for member and approval rejection.
type RejectRequest struct {
	Note string `json:"note"`
}

// RecordPaymentRequest is the body of POST /api/members/{id}/payments.
type RecordPaymentRequest struct {
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency,omitempty"`
	PaymentType string `json:"paymentType"`
	Note        string `json:"note,omitempty"`
}

// SubmitApprovalRequest is the body of POST /api/approvals.
type SubmitApprovalRequest struct {
	EntityType  string          `json:"entityType"`
	EntityID    string          `json:"entityId"`
	RequestData json.RawMessage `json:"requestData,omitempty"`
}

// ResolveApprovalRequest carries the optional resolution note.
type ResolveApprovalRequest struct {
	Note string `json:"note"`
}

// DeleteMemberRequest carries the optional soft-delete reason.
type DeleteMemberRequest struct {
	Reason string `json:"reason"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID                        string  `json:"id"`
	FullName                  string  `json:"fullName"`
	NationalID                string  `json:"nationalId"`
	Email                     string  `json:"email,omitempty"`
	Phone                     string  `json:"phone,omitempty"`
	Address                   string  `json:"address,omitempty"`
	InstitutionID             string  `json:"institutionId,omitempty"`
	ProvinceID                string  `json:"provinceId,omitempty"`
	DistrictID                string  `json:"districtId,omitempty"`
	BranchID                  string  `json:"branchId,omitempty"`
	DuesCenterID              string  `json:"duesCenterId,omitempty"`
	MemberGroupID             string  `json:"memberGroupId,omitempty"`
	Status                    string  `json:"status"`
	IsActive                  bool    `json:"isActive"`
	RegistrationNumber        *string `json:"registrationNumber,omitempty"`
	BoardDecisionDate         *string `json:"boardDecisionDate,omitempty"`
	PreviousCancelledMemberID *string `json:"previousCancelledMemberId,omitempty"`
	AppliedBy                 string  `json:"appliedBy"`
	CreatedAt                 string  `json:"createdAt"`
	UpdatedAt                 string  `json:"updatedAt"`
	ApprovedAt                *string `json:"approvedAt,omitempty"`
	ApprovedBy                *string `json:"approvedBy,omitempty"`
	RejectedAt                *string `json:"rejectedAt,omitempty"`
	RejectedBy                *string `json:"rejectedBy,omitempty"`
	RejectionNote             string  `json:"rejectionNote,omitempty"`
	ActivatedAt               *string `json:"activatedAt,omitempty"`
	ActivatedBy               *string `json:"activatedBy,omitempty"`
	CancelledAt               *string `json:"cancelledAt,omitempty"`
	CancelledBy               *string `json:"cancelledBy,omitempty"`
	CancellationReason        *string `json:"cancellationReason,omitempty"`
	CancellationNote          string  `json:"cancellationNote,omitempty"`
}

// PaymentDTO represents a dues payment.
type PaymentDTO struct {
	ID          string  `json:"id"`
	MemberID    string  `json:"memberId"`
	Period      string  `json:"period"`
	Amount      string  `json:"amount"`
	Currency    string  `json:"currency"`
	PaymentType string  `json:"paymentType"`
	Note        string  `json:"note,omitempty"`
	IsApproved  bool    `json:"isApproved"`
	ApprovedBy  *string `json:"approvedBy,omitempty"`
	ApprovedAt  *string `json:"approvedAt,omitempty"`
	RecordedBy  string  `json:"recordedBy"`
	CreatedAt   string  `json:"createdAt"`
}

// DebtDTO is a member's reconciliation result.
type DebtDTO struct {
	MemberID        string   `json:"memberId"`
	AsOf            string   `json:"asOf"`
	MembershipStart string   `json:"membershipStart"`
	MonthlyDue      string   `json:"monthlyDue"`
	Currency        string   `json:"currency"`
	UnpaidPeriods   []string `json:"unpaidPeriods"`
	DebtMonths      int      `json:"debtMonths"`
	Amount          string   `json:"amount"`
}

// DebtLineDTO is one row of a debt report.
type DebtLineDTO struct {
	MemberID           string `json:"memberId"`
	FullName           string `json:"fullName"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	ProvinceID         string `json:"provinceId,omitempty"`
	DistrictID         string `json:"districtId,omitempty"`
	BranchID           string `json:"branchId,omitempty"`
	DebtMonths         int    `json:"debtMonths"`
	Amount             string `json:"amount"`
}

// GroupTotalDTO sums report lines for one grouping key.
type GroupTotalDTO struct {
	Key           string `json:"key"`
	Members       int    `json:"members"`
	MembersInDebt int    `json:"membersInDebt"`
	Amount        string `json:"amount"`
}

// DebtReportDTO is the aggregated debt report.
type DebtReportDTO struct {
	AsOf          string          `json:"asOf"`
	Currency      string          `json:"currency"`
	Members       int             `json:"members"`
	MembersInDebt int             `json:"membersInDebt"`
	Total         string          `json:"total"`
	Lines         []DebtLineDTO   `json:"lines"`
	ByProvince    []GroupTotalDTO `json:"byProvince"`
	ByDistrict    []GroupTotalDTO `json:"byDistrict"`
	ByBranch      []GroupTotalDTO `json:"byBranch"`
}

// InstitutionDTO represents an institution.
type InstitutionDTO struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ProvinceID string  `json:"provinceId,omitempty"`
	DistrictID string  `json:"districtId,omitempty"`
	Active     bool    `json:"active"`
	ApprovedBy *string `json:"approvedBy,omitempty"`
	ApprovedAt *string `json:"approvedAt,omitempty"`
	CreatedBy  string  `json:"createdBy"`
	CreatedAt  string  `json:"createdAt"`
}

// ApprovalDTO represents an approval request.
type ApprovalDTO struct {
	ID            string          `json:"id"`
	EntityType    string          `json:"entityType"`
	EntityID      string          `json:"entityId"`
	RequestData   json.RawMessage `json:"requestData"`
	Status        string          `json:"status"`
	RequestedBy   string          `json:"requestedBy"`
	RequestedAt   string          `json:"requestedAt"`
	ApprovedBy    *string         `json:"approvedBy,omitempty"`
	ApprovalNote  string          `json:"approvalNote,omitempty"`
	RejectedBy    *string         `json:"rejectedBy,omitempty"`
	RejectionNote string          `json:"rejectionNote,omitempty"`
	ResolvedAt    *string         `json:"resolvedAt,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func stringPtr[T ~string](p *T) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

func toMemberDTO(m membership.Member) MemberDTO {
	return MemberDTO{
		ID:                        string(m.ID),
		FullName:                  m.FullName,
		NationalID:                m.NationalID,
		Email:                     m.Email,
		Phone:                     m.Phone,
		Address:                   m.Address,
		InstitutionID:             m.InstitutionID,
		ProvinceID:                m.ProvinceID,
		DistrictID:                m.DistrictID,
		BranchID:                  m.BranchID,
		DuesCenterID:              m.DuesCenterID,
		MemberGroupID:             m.MemberGroupID,
		Status:                    string(m.Status),
		IsActive:                  m.IsActive(),
		RegistrationNumber:        stringPtr(m.RegistrationNumber),
		BoardDecisionDate:         formatTimePtr(m.BoardDecisionDate),
		PreviousCancelledMemberID: stringPtr(m.PreviousCancelledMemberID),
		AppliedBy:                 string(m.AppliedBy),
		CreatedAt:                 formatTime(m.CreatedAt),
		UpdatedAt:                 formatTime(m.UpdatedAt),
		ApprovedAt:                formatTimePtr(m.ApprovedAt),
		ApprovedBy:                stringPtr(m.ApprovedBy),
		RejectedAt:                formatTimePtr(m.RejectedAt),
		RejectedBy:                stringPtr(m.RejectedBy),
		RejectionNote:             m.RejectionNote,
		ActivatedAt:               formatTimePtr(m.ActivatedAt),
		ActivatedBy:               stringPtr(m.ActivatedBy),
		CancelledAt:               formatTimePtr(m.CancelledAt),
		CancelledBy:               stringPtr(m.CancelledBy),
		CancellationReason:        stringPtr(m.CancellationReason),
		CancellationNote:          m.CancellationNote,
	}
}

func toMemberDTOs(members []membership.Member) []MemberDTO {
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	return dtos
}

func toPaymentDTO(p membership.Payment) PaymentDTO {
	return PaymentDTO{
		ID:          string(p.ID),
		MemberID:    string(p.MemberID),
		Period:      p.Period.String(),
		Amount:      p.Amount.Fixed(),
		Currency:    string(p.Amount.Currency),
		PaymentType: string(p.Type),
		Note:        p.Note,
		IsApproved:  p.IsApproved,
		ApprovedBy:  stringPtr(p.ApprovedBy),
		ApprovedAt:  formatTimePtr(p.ApprovedAt),
		RecordedBy:  string(p.RecordedBy),
		CreatedAt:   formatTime(p.CreatedAt),
	}
}

func toDebtDTO(st membership.DebtStatement) DebtDTO {
	unpaid := make([]string, len(st.UnpaidPeriods))
	for i, p := range st.UnpaidPeriods {
		unpaid[i] = p.String()
	}
	return DebtDTO{
		MemberID:        string(st.MemberID),
		AsOf:            st.AsOf.String(),
		MembershipStart: formatTime(st.MembershipStart),
		MonthlyDue:      st.MonthlyDue.Fixed(),
		Currency:        string(st.MonthlyDue.Currency),
		UnpaidPeriods:   unpaid,
		DebtMonths:      st.DebtMonths,
		Amount:          st.Amount.Fixed(),
	}
}

func toGroupTotalDTOs(groups []membership.GroupTotal) []GroupTotalDTO {
	dtos := make([]GroupTotalDTO, len(groups))
	for i, g := range groups {
		dtos[i] = GroupTotalDTO{
			Key:           g.Key,
			Members:       g.Members,
			MembersInDebt: g.MembersInDebt,
			Amount:        g.Amount.Fixed(),
		}
	}
	return dtos
}

func toDebtReportDTO(r *membership.DebtReport) DebtReportDTO {
	lines := make([]DebtLineDTO, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = DebtLineDTO{
			MemberID:           string(l.MemberID),
			FullName:           l.FullName,
			RegistrationNumber: l.RegistrationNumber,
			ProvinceID:         l.ProvinceID,
			DistrictID:         l.DistrictID,
			BranchID:           l.BranchID,
			DebtMonths:         l.DebtMonths,
			Amount:             l.Amount.Fixed(),
		}
	}
	return DebtReportDTO{
		AsOf:          r.AsOf.String(),
		Currency:      string(r.Total.Currency),
		Members:       r.Members,
		MembersInDebt: r.MembersInDebt,
		Total:         r.Total.Fixed(),
		Lines:         lines,
		ByProvince:    toGroupTotalDTOs(r.ByProvince),
		ByDistrict:    toGroupTotalDTOs(r.ByDistrict),
		ByBranch:      toGroupTotalDTOs(r.ByBranch),
	}
}

func toInstitutionDTO(inst membership.Institution) InstitutionDTO {
	return InstitutionDTO{
		ID:         string(inst.ID),
		Name:       inst.Name,
		ProvinceID: inst.ProvinceID,
		DistrictID: inst.DistrictID,
		Active:     inst.Active,
		ApprovedBy: stringPtr(inst.ApprovedBy),
		ApprovedAt: formatTimePtr(inst.ApprovedAt),
		CreatedBy:  string(inst.CreatedBy),
		CreatedAt:  formatTime(inst.CreatedAt),
	}
}

func toApprovalDTO(a generic.Approval) ApprovalDTO {
	return ApprovalDTO{
		ID:            string(a.ID),
		EntityType:    string(a.EntityType),
		EntityID:      string(a.EntityID),
		RequestData:   a.RequestData,
		Status:        string(a.Status),
		RequestedBy:   string(a.RequestedBy),
		RequestedAt:   formatTime(a.RequestedAt),
		ApprovedBy:    stringPtr(a.ApprovedBy),
		ApprovalNote:  a.ApprovalNote,
		RejectedBy:    stringPtr(a.RejectedBy),
		RejectionNote: a.RejectionNote,
		ResolvedAt:    formatTimePtr(a.ResolvedAt),
	}
}

func toApprovalDTOs(approvals []generic.Approval) []ApprovalDTO {
	dtos := make([]ApprovalDTO, len(approvals))
	for i, a := range approvals {
		dtos[i] = toApprovalDTO(a)
	}
	return dtos
}
