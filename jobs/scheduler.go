package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warp/membership-engine/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron   *cron.Cron
	digest *DuesDigest
}

// NewScheduler registers the digest on spec, a six-field cron expression
// (seconds first). Expressions are evaluated in UTC.
func NewScheduler(digest *DuesDigest, spec string) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	if _, err := c.AddFunc(spec, digest.Run); err != nil {
		return nil, fmt.Errorf("failed to register dues digest %q: %w", spec, err)
	}
	logger.Info("Cron jobs registered", "dues_digest", spec)

	return &Scheduler{cron: c, digest: digest}, nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
}

// Stop waits for running jobs to finish
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Next returns when the digest fires next. Zero until Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Digest returns the registered job.
func (s *Scheduler) Digest() *DuesDigest {
	return s.digest
}
