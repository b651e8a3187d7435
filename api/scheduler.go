/*
scheduler.go - Overdue sweep and payment reminders

PURPOSE:
  Periodically marks unpaid items past their due date as overdue and sends
  a reminder digest of overdue and soon-due items.

DESIGN:
  - robfig/cron drives the schedule (default "@daily", UTC)
  - A sweep that is still running when the next tick fires is skipped
  - Panics inside a sweep are recovered and logged
  - One sweep runs immediately on Start
  - MarkOverdue is idempotent: re-running a sweep for the same day finds
    nothing new

CONFIGURATION:
  - Spec: cron expression (SWEEP_SCHEDULE)
  - ReminderDaysAhead: upcoming window for reminders (REMINDER_DAYS_AHEAD)
  - Enabled: whether the sweeper runs at all (SCHEDULER_ENABLED)

USAGE:
  sweeper := NewOverdueSweeper(svc, reminder, logger)
  if err := sweeper.Start(); err != nil { ... }
  // ... later
  sweeper.Stop()

SEE ALSO:
  - schedule/service.go: MarkOverdue, UpcomingItems
  - notify/email.go: reminder delivery
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tailfire/payment-engine/notify"
	"github.com/tailfire/payment-engine/schedule"
)

// overdueLookbackDays bounds how far back reminders look for overdue items.
const overdueLookbackDays = 90

// OverdueSweeper handles the periodic overdue sweep.
type OverdueSweeper struct {
	Service           *schedule.Service
	Reminder          notify.Reminder
	Spec              string
	ReminderDaysAhead int
	Enabled           bool
	Log               *zap.Logger

	cron *cron.Cron
	wg   sync.WaitGroup
	mu   sync.Mutex
}

// SweepResult summarizes one run.
type SweepResult struct {
	AsOf       schedule.Date
	MarkedDue  int
	Upcoming   int
	Overdue    int
	RemindedAt time.Time
}

// NewOverdueSweeper creates a sweeper with daily defaults.
func NewOverdueSweeper(svc *schedule.Service, reminder notify.Reminder, logger *zap.Logger) *OverdueSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reminder == nil {
		reminder = notify.LogReminder{Log: logger}
	}
	return &OverdueSweeper{
		Service:           svc,
		Reminder:          reminder,
		Spec:              "@daily",
		ReminderDaysAhead: 7,
		Enabled:           true,
		Log:               logger,
	}
}

// Start registers the sweep and begins the scheduler.
func (s *OverdueSweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info("overdue sweeper disabled, not starting")
		return nil
	}
	if s.cron != nil {
		return nil
	}

	cl := cronLogger{s.Log.Sugar()}
	c := cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cl))
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.Log.Error("overdue sweep failed", zap.Error(err))
		}
	}))
	if _, err := c.AddJob(s.Spec, job); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.Spec, err)
	}
	c.Start()
	s.cron = c

	// Run immediately on start, sharing the skip-if-running guard.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		job.Run()
	}()

	s.Log.Info("overdue sweeper started", zap.String("schedule", s.Spec))
	return nil
}

// Stop stops the scheduler and waits for a running sweep.
func (s *OverdueSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.cron = nil
	s.Log.Info("overdue sweeper stopped")
}

// RunOnce marks overdue items as of today and sends the reminder digest.
func (s *OverdueSweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	asOf := schedule.Today(s.Service.Clock)
	res := SweepResult{AsOf: asOf}

	marked, err := s.Service.MarkOverdue(ctx, asOf)
	if err != nil {
		return res, fmt.Errorf("mark overdue: %w", err)
	}
	res.MarkedDue = marked

	items, err := s.Service.UpcomingItems(ctx, asOf.AddDays(-overdueLookbackDays), asOf.AddDays(s.ReminderDaysAhead))
	if err != nil {
		return res, fmt.Errorf("list open items: %w", err)
	}

	var upcoming, overdue []schedule.ExpectedPaymentItem
	for _, it := range items {
		if it.Status == schedule.ItemOverdue {
			overdue = append(overdue, it)
		} else {
			upcoming = append(upcoming, it)
		}
	}
	res.Upcoming, res.Overdue = len(upcoming), len(overdue)

	if err := s.Reminder.Remind(ctx, asOf, upcoming, overdue); err != nil {
		return res, fmt.Errorf("send reminders: %w", err)
	}
	res.RemindedAt = s.Service.Clock.Now()

	s.Log.Info("overdue sweep completed",
		zap.Stringer("as_of", asOf),
		zap.Int("marked_overdue", res.MarkedDue),
		zap.Int("upcoming", res.Upcoming),
		zap.Int("overdue", res.Overdue),
	)
	return res, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
