// Package scheduler provides scheduling logic for MentionPipe.
//
// It allows posting jobs (such as standalone status tweets) to be scheduled
// using cron expressions.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// PostJob is a scheduled posting task. Jobs take no arguments and report
// failures through their own logging; the scheduler only paces them.
type PostJob func()

// Scheduler runs posting jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field cron expressions (min, hour, dom, month, dow); a
	// panicking job is recovered so it cannot take the scheduler down.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a posting job using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, job PostJob) error {
	if _, err := s.cron.AddFunc(expr, job); err != nil {
		return err
	}
	slog.Debug("Scheduler.AddJob: job scheduled", "schedule", expr)
	return nil
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
