package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailfire/payment-engine/schedule"
)

var asOf = schedule.NewDate(2025, time.March, 1)

func item(id string, amount, paid schedule.Cents, due schedule.Date) schedule.ExpectedPaymentItem {
	return schedule.ExpectedPaymentItem{
		ID:              schedule.ItemID(id),
		Name:            "Payment " + id,
		AmountCents:     amount,
		PaidAmountCents: paid,
		DueDate:         schedule.DatePtr(due),
	}
}

func TestEmailReminder_SendsDigest(t *testing.T) {
	var sent *email.Email
	r := NewEmailReminder(SMTPConfig{Sender: "noreply@agency.test"}, "accounts@agency.test", nil)
	r.send = func(e *email.Email) error {
		sent = e
		return nil
	}

	overdue := []schedule.ExpectedPaymentItem{item("1", 150000, 50000, asOf.AddDays(-3))}
	upcoming := []schedule.ExpectedPaymentItem{item("2", 300000, 0, asOf.AddDays(5))}
	require.NoError(t, r.Remind(context.Background(), asOf, upcoming, overdue))

	require.NotNil(t, sent)
	assert.Equal(t, []string{"accounts@agency.test"}, sent.To)
	assert.Equal(t, "Payment reminder 2025-03-01: 1 overdue, 1 upcoming", sent.Subject)
	body := string(sent.Text)
	assert.Contains(t, body, "Payment 1 (1) due 2025-02-26: 1000.00 outstanding")
	assert.Contains(t, body, "Payment 2 (2) due 2025-03-06: 3000.00 outstanding")
	assert.Less(t, strings.Index(body, "Overdue"), strings.Index(body, "Upcoming"))
}

func TestEmailReminder_NothingToSend(t *testing.T) {
	r := NewEmailReminder(SMTPConfig{}, "accounts@agency.test", nil)
	r.send = func(*email.Email) error {
		t.Fatal("no mail expected")
		return nil
	}
	assert.NoError(t, r.Remind(context.Background(), asOf, nil, nil))
}

func TestEmailReminder_SendFailure(t *testing.T) {
	r := NewEmailReminder(SMTPConfig{}, "accounts@agency.test", nil)
	r.send = func(*email.Email) error { return errors.New("535 auth failed") }

	err := r.Remind(context.Background(), asOf, []schedule.ExpectedPaymentItem{item("1", 100, 0, asOf)}, nil)
	assert.ErrorContains(t, err, "535 auth failed")
}
