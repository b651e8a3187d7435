// Package notify sends payment reminders for upcoming and overdue items.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.uber.org/zap"

	"github.com/tailfire/payment-engine/schedule"
)

// Reminder is the digest sink used by the overdue sweeper.
type Reminder interface {
	Remind(ctx context.Context, asOf schedule.Date, upcoming, overdue []schedule.ExpectedPaymentItem) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

// EmailReminder mails one digest per sweep to the agency's accounting inbox.
type EmailReminder struct {
	cfg       SMTPConfig
	recipient string
	log       *zap.Logger

	send func(e *email.Email) error
}

var _ Reminder = (*EmailReminder)(nil)

func NewEmailReminder(cfg SMTPConfig, recipient string, logger *zap.Logger) *EmailReminder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &EmailReminder{cfg: cfg, recipient: recipient, log: logger}
	r.send = func(e *email.Email) error {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		return e.Send(addr, auth)
	}
	return r
}

func (r *EmailReminder) Remind(_ context.Context, asOf schedule.Date, upcoming, overdue []schedule.ExpectedPaymentItem) error {
	if len(upcoming) == 0 && len(overdue) == 0 {
		return nil
	}

	e := email.NewEmail()
	e.From = r.cfg.Sender
	e.To = []string{r.recipient}
	e.Subject = Subject(asOf, len(upcoming), len(overdue))
	e.Text = []byte(Body(asOf, upcoming, overdue))

	if err := r.send(e); err != nil {
		r.log.Error("failed to send payment reminder", zap.String("to", r.recipient), zap.Error(err))
		return fmt.Errorf("failed to send reminder: %w", err)
	}
	r.log.Info("payment reminder sent",
		zap.String("to", r.recipient),
		zap.Int("upcoming", len(upcoming)),
		zap.Int("overdue", len(overdue)),
	)
	return nil
}

// LogReminder writes the digest to the log. Used when SMTP is not configured.
type LogReminder struct {
	Log *zap.Logger
}

func (r LogReminder) Remind(_ context.Context, asOf schedule.Date, upcoming, overdue []schedule.ExpectedPaymentItem) error {
	if len(upcoming) == 0 && len(overdue) == 0 {
		return nil
	}
	r.Log.Info("payment reminder",
		zap.Stringer("as_of", asOf),
		zap.Int("upcoming", len(upcoming)),
		zap.Int("overdue", len(overdue)),
	)
	return nil
}

// Subject summarizes a digest.
func Subject(asOf schedule.Date, upcoming, overdue int) string {
	if overdue > 0 {
		return fmt.Sprintf("Payment reminder %s: %d overdue, %d upcoming", asOf, overdue, upcoming)
	}
	return fmt.Sprintf("Payment reminder %s: %d upcoming", asOf, upcoming)
}

// Body lists overdue items first, then upcoming ones.
func Body(asOf schedule.Date, upcoming, overdue []schedule.ExpectedPaymentItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Payment schedule digest as of %s.\n", asOf)

	section := func(title string, items []schedule.ExpectedPaymentItem) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", title)
		for _, it := range items {
			due := "unscheduled"
			if it.DueDate != nil {
				due = it.DueDate.String()
			}
			fmt.Fprintf(&b, "  - %s (%s) due %s: %s outstanding\n", it.Name, it.ID, due, it.Remaining())
		}
	}
	section("Overdue", overdue)
	section("Upcoming", upcoming)
	return b.String()
}
