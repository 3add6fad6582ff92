/*
scheduler.go - Overdue reminder scheduler

PURPOSE:
  Runs SendOverdueReminders on a cron schedule so clients with an email on
  file hear about overdue installments without an operator pressing a button.

DESIGN:
  - robfig/cron drives the schedule ("@daily", "0 9 * * *", "@every 6h")
  - The cron expression is parsed at construction, so a bad config fails at startup
  - Overlapping runs are skipped, not queued
  - The last run is kept for the admin endpoint and the logs

USAGE:
  scheduler, err := NewReminderScheduler(svc, "@daily", log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - backoffice/reminders.go: SendOverdueReminders
  - handlers.go: TriggerReminders endpoint (manual run)
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/warp/lending-engine/backoffice"
)

// ReminderSender is the part of the service the scheduler drives.
type ReminderSender interface {
	SendOverdueReminders(ctx context.Context) (backoffice.ReminderRun, error)
}

// ReminderScheduler runs overdue reminders periodically.
type ReminderScheduler struct {
	sender   ReminderSender
	schedule string
	log      zerolog.Logger
	timeout  time.Duration

	cron    *cron.Cron
	running sync.Mutex

	mu      sync.Mutex
	lastRun *backoffice.ReminderRun
}

// NewReminderScheduler validates the cron expression and returns a stopped scheduler.
func NewReminderScheduler(sender ReminderSender, schedule string, log zerolog.Logger) (*ReminderScheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", schedule, err)
	}
	return &ReminderScheduler{
		sender:   sender,
		schedule: schedule,
		log:      log.With().Str("component", "reminders").Logger(),
		timeout:  10 * time.Minute,
	}, nil
}

// Start begins the scheduler.
func (rs *ReminderScheduler) Start() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(rs.schedule, rs.tick); err != nil {
		return err
	}
	c.Start()
	rs.cron = c

	rs.log.Info().Str("schedule", rs.schedule).Msg("reminder scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	c := rs.cron
	rs.cron = nil
	rs.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	rs.log.Info().Msg("reminder scheduler stopped")
}

func (rs *ReminderScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), rs.timeout)
	defer cancel()
	if _, err := rs.RunNow(ctx); err != nil {
		rs.log.Error().Err(err).Msg("reminder run failed")
	}
}

// ErrRunInProgress is returned by RunNow while another run is active.
var ErrRunInProgress = errors.New("reminder run already in progress")

// RunNow sends reminders immediately.
func (rs *ReminderScheduler) RunNow(ctx context.Context) (backoffice.ReminderRun, error) {
	if !rs.running.TryLock() {
		return backoffice.ReminderRun{}, ErrRunInProgress
	}
	defer rs.running.Unlock()

	run, err := rs.sender.SendOverdueReminders(ctx)
	if err != nil {
		return run, err
	}

	rs.mu.Lock()
	rs.lastRun = &run
	rs.mu.Unlock()
	return run, nil
}

// LastRun returns the most recent successful run, if any.
func (rs *ReminderScheduler) LastRun() (backoffice.ReminderRun, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.lastRun == nil {
		return backoffice.ReminderRun{}, false
	}
	return *rs.lastRun, true
}
