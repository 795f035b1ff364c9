/*
scheduler.go - Dues digest status and manual trigger

PURPOSE:
  Exposes the monthly dues digest over HTTP. The cron schedule lives in
  package jobs; these endpoints report its last run and let an operator
  run it on demand (for example after a bulk payment import).

ENDPOINTS:
  GET  /api/digest       Last run and next scheduled fire time
  POST /api/digest/run   Run now, synchronously, and return the report

The digest is optional. Without one both endpoints answer 404.

SEE ALSO:
  - jobs/digest.go: The job body
  - jobs/scheduler.go: Cron registration
*/
package api

import (
	"net/http"

	"github.com/warp/membership-engine/jobs"
)

// DigestRunDTO describes one digest execution.
type DigestRunDTO struct {
	Period        string `json:"period"`
	StartedAt     string `json:"startedAt"`
	DurationMs    int64  `json:"durationMs"`
	Members       int    `json:"members"`
	MembersInDebt int    `json:"membersInDebt"`
	Total         string `json:"total,omitempty"`
	Error         string `json:"error,omitempty"`
}

// DigestStatusDTO is the body of GET /api/digest.
type DigestStatusDTO struct {
	Scheduled bool          `json:"scheduled"`
	NextRun   *string       `json:"nextRun,omitempty"`
	LastRun   *DigestRunDTO `json:"lastRun,omitempty"`
}

// AttachDigest enables the digest endpoints. schedule may be nil when the
// cron scheduler is disabled; manual runs still work.
func (h *Handler) AttachDigest(digest *jobs.DuesDigest, schedule *jobs.Scheduler) {
	h.digest = digest
	h.schedule = schedule
}

// GetDigestStatus reports the last digest run.
func (h *Handler) GetDigestStatus(w http.ResponseWriter, r *http.Request) {
	if h.digest == nil {
		writeError(w, http.StatusNotFound, "Dues digest is not configured", nil)
		return
	}

	status := DigestStatusDTO{Scheduled: h.schedule != nil}
	if h.schedule != nil {
		if next := h.schedule.Next(); !next.IsZero() {
			s := formatTime(next)
			status.NextRun = &s
		}
	}
	if run := h.digest.LastRun(); run != nil {
		dto := toDigestRunDTO(*run)
		status.LastRun = &dto
	}
	writeJSON(w, http.StatusOK, status)
}

// RunDigest runs the digest now and returns its report.
func (h *Handler) RunDigest(w http.ResponseWriter, r *http.Request) {
	if h.digest == nil {
		writeError(w, http.StatusNotFound, "Dues digest is not configured", nil)
		return
	}
	if _, err := actorFrom(r); err != nil {
		writeServiceError(w, err)
		return
	}

	report, err := h.digest.RunOnce(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtReportDTO(report))
}

func toDigestRunDTO(run jobs.DigestRun) DigestRunDTO {
	dto := DigestRunDTO{
		Period:        run.Period.String(),
		StartedAt:     formatTime(run.StartedAt),
		DurationMs:    run.Duration.Milliseconds(),
		Members:       run.Members,
		MembersInDebt: run.MembersInDebt,
	}
	if run.Err != nil {
		dto.Error = run.Err.Error()
	} else {
		dto.Total = run.Total.Fixed()
	}
	return dto
}
