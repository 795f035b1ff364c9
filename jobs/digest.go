/*
digest.go - Monthly dues digest

PURPOSE:
  Reconciles the whole membership against the period that just closed and
  logs what is outstanding, per province and overall. The digest only
  reads; nothing is written back to the store.

SEE ALSO:
  - scheduler.go: cron registration
  - membership/report.go: the aggregation itself
*/
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/logger"
	"github.com/warp/membership-engine/membership"
)

// ReportBuilder produces a debt report for a population.
type ReportBuilder interface {
	DebtReport(ctx context.Context, filter membership.ReportFilter, asOf generic.Period) (*membership.DebtReport, error)
}

// DigestRun records the outcome of one digest execution.
type DigestRun struct {
	Period        generic.Period
	StartedAt     time.Time
	Duration      time.Duration
	Members       int
	MembersInDebt int
	Total         generic.Amount
	Err           error
}

// DuesDigest is the job body registered with the scheduler.
type DuesDigest struct {
	reports ReportBuilder
	clock   generic.Clock
	timeout time.Duration
	log     *slog.Logger

	mu   sync.Mutex
	last *DigestRun
}

func NewDuesDigest(reports ReportBuilder, clock generic.Clock) *DuesDigest {
	return &DuesDigest{
		reports: reports,
		clock:   clock,
		timeout: 5 * time.Minute,
		log:     logger.WithComponent("dues-digest"),
	}
}

// Run is the cron entry point. Errors are logged, never propagated.
func (d *DuesDigest) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	_, _ = d.RunOnce(ctx)
}

// RunOnce builds the report for the month before the clock's current
// month and logs its totals.
func (d *DuesDigest) RunOnce(ctx context.Context) (*membership.DebtReport, error) {
	started := d.clock.Now()
	period := generic.PeriodOf(started).Prev()
	run := DigestRun{Period: period, StartedAt: started}

	d.log.Info("Dues digest started", "period", period.String())
	report, err := d.reports.DebtReport(ctx, membership.ReportFilter{}, period)
	run.Duration = d.clock.Now().Sub(started)
	if err != nil {
		run.Err = err
		d.record(run)
		d.log.Error("Dues digest failed", "period", period.String(), "error", err)
		return nil, err
	}

	for _, g := range report.ByProvince {
		d.log.Info("Dues outstanding",
			"period", period.String(),
			"province", g.Key,
			"members", g.Members,
			"members_in_debt", g.MembersInDebt,
			"amount", g.Amount.String(),
		)
	}

	run.Members = report.Members
	run.MembersInDebt = report.MembersInDebt
	run.Total = report.Total
	d.record(run)

	d.log.Info("Dues digest completed",
		"period", period.String(),
		"members", report.Members,
		"members_in_debt", report.MembersInDebt,
		"total", report.Total.String(),
	)
	return report, nil
}

// LastRun returns the most recent execution, or nil before the first one.
func (d *DuesDigest) LastRun() *DigestRun {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	run := *d.last
	return &run
}

func (d *DuesDigest) record(run DigestRun) {
	d.mu.Lock()
	d.last = &run
	d.mu.Unlock()
}
