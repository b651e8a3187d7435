package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailfire/payment-engine/schedule"
	"github.com/tailfire/payment-engine/tico"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var now = time.Date(2024, time.December, 1, 9, 30, 0, 0, time.UTC)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func due(y int, m time.Month, d int) *schedule.Date {
	return schedule.DatePtr(schedule.NewDate(y, m, d))
}

func threePay() schedule.Config {
	return schedule.Config{
		ID:                "cfg-1",
		AgencyID:          "agency-1",
		ActivityPricingID: "act-1",
		ScheduleType:      schedule.ScheduleInstallments,
		InstallmentCount:  3,
		TotalCents:        10001,
		Currency:          "CAD",
		TemplateID:        "std",
		TemplateVersion:   2,
		CreatedAt:         now,
		UpdatedAt:         now,
		Items: []schedule.ExpectedPaymentItem{
			{ID: "it-1", ConfigID: "cfg-1", Name: "Payment 1", Kind: schedule.KindDeposit, AmountCents: 3333, DueDate: due(2025, time.January, 1), Status: schedule.ItemPending, SequenceOrder: 1},
			{ID: "it-2", ConfigID: "cfg-1", Name: "Payment 2", Kind: schedule.KindMilestone, AmountCents: 3333, DueDate: due(2025, time.March, 3), Status: schedule.ItemPending, SequenceOrder: 2},
			{ID: "it-3", ConfigID: "cfg-1", Name: "Payment 3", Kind: schedule.KindBalance, AmountCents: 3335, DueDate: due(2025, time.April, 17), Status: schedule.ItemPending, SequenceOrder: 3},
		},
	}
}

// =============================================================================
// TEMPLATES
// =============================================================================

func TestStore_TemplateRoundTripAndVersioning(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tmpl := schedule.Template{
		ID:       "std",
		AgencyID: "agency-1",
		Name:     "Standard",
		IsActive: true,
		Items: []schedule.TemplateItem{
			{Sequence: 1, Amount: schedule.FixedAmount{Cents: 50000}, Timing: schedule.DaysFromBooking{Days: 0}},
			{Sequence: 2, Amount: schedule.Percentage{Value: decimal.RequireFromString("62.5")}, Timing: schedule.DaysBeforeDeparture{Days: 45}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	saved, err := s.SaveTemplate(ctx, tmpl)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)

	tmpl.Description = "edited"
	tmpl.CreatedAt = now.Add(time.Hour)
	saved, err = s.SaveTemplate(ctx, tmpl)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)
	assert.Equal(t, now, saved.CreatedAt, "first creation time is kept")

	got, err := s.GetTemplate(ctx, "std")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "edited", got.Description)
	assert.Equal(t, schedule.FixedAmount{Cents: 50000}, got.Items[0].Amount)
	assert.True(t, got.Items[1].Amount.(schedule.Percentage).Value.Equal(decimal.RequireFromString("62.5")))
	assert.Equal(t, schedule.DaysBeforeDeparture{Days: 45}, got.Items[1].Timing)

	missing, err := s.GetTemplate(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_ListTemplatesFiltersByAgency(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, p := range tico.Presets()[:2] {
		_, err := s.SaveTemplate(ctx, schedule.Template{
			ID: schedule.TemplateID(p.Key), AgencyID: "agency-1", Name: p.Name, IsActive: true,
			Items: []schedule.TemplateItem{{Sequence: 1, Amount: schedule.FixedAmount{Cents: 100}, Timing: schedule.DaysFromBooking{}}},
		})
		require.NoError(t, err)
	}
	_, err := s.SaveTemplate(ctx, schedule.Template{
		ID: "other", AgencyID: "agency-2", Name: "Other", IsActive: true,
		Items: []schedule.TemplateItem{{Sequence: 1, Amount: schedule.FixedAmount{Cents: 100}, Timing: schedule.DaysFromBooking{}}},
	})
	require.NoError(t, err)

	mine, err := s.ListTemplates(ctx, "agency-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := s.ListTemplates(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// =============================================================================
// SCHEDULES
// =============================================================================

func TestStore_ConfigRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	cfg := threePay()
	cfg.Deposit = &schedule.DepositParams{Type: schedule.DepositPercentage, Value: decimal.RequireFromString("33.33")}
	require.NoError(t, s.SaveConfig(ctx, cfg))

	got, err := s.GetConfig(ctx, "act-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cfg.TotalCents, got.TotalCents)
	assert.Equal(t, cfg.TemplateID, got.TemplateID)
	assert.Equal(t, 2, got.TemplateVersion)
	assert.True(t, got.Deposit.Value.Equal(cfg.Deposit.Value))
	require.Len(t, got.Items, 3)
	assert.Equal(t, schedule.Cents(10001), schedule.SumCents(got.Items))
	assert.Equal(t, "2025-04-17", got.Items[2].DueDate.String())
	assert.Equal(t, schedule.KindBalance, got.Items[2].Kind)

	byID, err := s.GetConfigByID(ctx, "cfg-1")
	require.NoError(t, err)
	assert.Equal(t, got.ActivityPricingID, byID.ActivityPricingID)

	none, err := s.GetConfig(ctx, "act-unknown")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_SaveConfigReplacesItems(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveConfig(ctx, threePay()))

	cfg := threePay()
	cfg.ScheduleType = schedule.ScheduleFull
	cfg.Items = []schedule.ExpectedPaymentItem{
		{ID: "it-9", ConfigID: "cfg-1", Name: "Payment 1", Kind: schedule.KindFull, AmountCents: 10001, DueDate: due(2025, time.April, 1), Status: schedule.ItemPending, SequenceOrder: 1},
	}
	require.NoError(t, s.SaveConfig(ctx, cfg))

	got, err := s.GetConfig(ctx, "act-1")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, schedule.ItemID("it-9"), got.Items[0].ID)

	old, err := s.GetItem(ctx, "it-1")
	require.NoError(t, err)
	assert.Nil(t, old)
}

func TestStore_GuaranteeKeepsMaskedCard(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	g, err := schedule.NewCreditCardGuarantee("4111111111111234", "visa", "A. Traveller", "AUTH-9", 25000, now)
	require.NoError(t, err)
	cfg := schedule.Config{
		ID: "cfg-g", ActivityPricingID: "act-g", ScheduleType: schedule.ScheduleGuarantee,
		TotalCents: 25000, Guarantee: g, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.SaveConfig(ctx, cfg))

	got, err := s.GetConfig(ctx, "act-g")
	require.NoError(t, err)
	require.NotNil(t, got.Guarantee)
	assert.Equal(t, "1234", got.Guarantee.CardLast4)
	assert.Equal(t, "AUTH-9", got.Guarantee.AuthorizationCode)
	assert.Empty(t, got.Items)

	require.NoError(t, s.DeleteConfig(ctx, "act-g"))
	gone, err := s.GetConfig(ctx, "act-g")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

// =============================================================================
// ITEMS
// =============================================================================

func TestStore_UpdateItem(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveConfig(ctx, threePay()))

	it, err := s.GetItem(ctx, "it-2")
	require.NoError(t, err)
	it.PaidAmountCents = 1000
	it.Status = schedule.ItemPartial
	it.Locked = true
	it.LockedReason = "agent hold"
	require.NoError(t, s.UpdateItem(ctx, *it))

	got, err := s.GetItem(ctx, "it-2")
	require.NoError(t, err)
	assert.Equal(t, schedule.Cents(1000), got.PaidAmountCents)
	assert.Equal(t, schedule.ItemPartial, got.Status)
	assert.True(t, got.Locked)
	assert.Equal(t, "agent hold", got.LockedReason)

	err = s.UpdateItem(ctx, schedule.ExpectedPaymentItem{ID: "missing"})
	assert.ErrorIs(t, err, schedule.ErrItemNotFound)
}

func TestStore_OpenItemQueries(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	cfg := threePay()
	cfg.Items[0].Status = schedule.ItemPaid
	cfg.Items[1].Status = schedule.ItemOverdue
	require.NoError(t, s.SaveConfig(ctx, cfg))

	// Paid and already-overdue items are not swept again
	before, err := s.ListOpenItemsDueBefore(ctx, schedule.NewDate(2025, time.December, 31))
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, schedule.ItemID("it-3"), before[0].ID)

	// Reminders include overdue items, both ends inclusive
	between, err := s.ListOpenItemsDueBetween(ctx, schedule.NewDate(2025, time.March, 3), schedule.NewDate(2025, time.April, 17))
	require.NoError(t, err)
	require.Len(t, between, 2)
	assert.Equal(t, schedule.ItemID("it-2"), between[0].ID)
	assert.Equal(t, schedule.ItemID("it-3"), between[1].ID)
}

// =============================================================================
// TRANSACTIONS AND AUDIT
// =============================================================================

func TestStore_WithTxRollsBackEverything(t *testing.T) {
	// GIVEN: A transaction that saves a schedule and an audit entry, then fails
	// WHEN: The transaction ends
	// THEN: Neither write is visible

	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx schedule.Store) error {
		require.NoError(t, tx.SaveConfig(ctx, threePay()))
		require.NoError(t, tx.AppendAudit(ctx, schedule.AuditEntry{ID: "a-1", ConfigID: "cfg-1", Action: schedule.AuditCreated, Timestamp: now}))

		// Reads inside the transaction see its own writes
		got, err := tx.GetConfig(ctx, "act-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetConfig(ctx, "act-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	audit, err := s.ListAudit(ctx, "cfg-1")
	require.NoError(t, err)
	assert.Empty(t, audit)
}

func TestStore_AuditIsAppendOnlyAndOutlivesSchedule(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveConfig(ctx, threePay()))

	for i, action := range []schedule.AuditAction{schedule.AuditCreated, schedule.AuditLocked, schedule.AuditDeleted} {
		require.NoError(t, s.AppendAudit(ctx, schedule.AuditEntry{
			ID:        "a-" + string(action),
			ConfigID:  "cfg-1",
			Action:    action,
			ActorID:   "agent-1",
			NewValues: map[string]any{"step": i},
			Timestamp: now,
		}))
	}
	require.NoError(t, s.DeleteConfig(ctx, "act-1"))

	entries, err := s.ListAudit(ctx, "cfg-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, schedule.AuditCreated, entries[0].Action)
	assert.Equal(t, schedule.AuditDeleted, entries[2].Action)
	assert.EqualValues(t, 1, entries[1].NewValues["step"])
	assert.Nil(t, entries[0].OldValues)

	_, err = s.db.Exec(`UPDATE payment_audit_log SET actor_id = 'mallory'`)
	assert.ErrorContains(t, err, "append-only")
	_, err = s.db.Exec(`DELETE FROM payment_audit_log`)
	assert.ErrorContains(t, err, "append-only")
}

func TestStore_ServiceApplyTemplate(t *testing.T) {
	// GIVEN: The schedule service running on SQLite
	// WHEN: Applying the standard 3-pay preset
	// THEN: The schedule and its audit entry are both persisted

	s := newStore(t)
	ctx := context.Background()
	clock := schedule.FixedClock{At: now}
	rules := tico.DefaultRules()
	svc := schedule.NewService(s, tico.NewValidator(rules, clock), rules.Limits(), nil)
	svc.Clock = clock

	_, err := svc.SaveTemplate(ctx, schedule.Template{
		ID: "std", Name: "Standard", IsActive: true,
		Items: []schedule.TemplateItem{
			{Sequence: 1, Amount: schedule.Percentage{Value: decimal.NewFromInt(25)}, Timing: schedule.DaysFromBooking{Days: 0}},
			{Sequence: 2, Amount: schedule.Percentage{Value: decimal.NewFromInt(25)}, Timing: schedule.DaysBeforeDeparture{Days: 90}},
			{Sequence: 3, Amount: schedule.Percentage{Value: decimal.NewFromInt(50)}, Timing: schedule.DaysBeforeDeparture{Days: 45}},
		},
	})
	require.NoError(t, err)

	out, err := svc.ApplyTemplate(ctx, schedule.ApplyTemplateRequest{
		TemplateID:        "std",
		ActivityPricingID: "act-1",
		TotalCents:        600000,
		Currency:          "CAD",
		BookingDate:       due(2025, time.January, 1),
		DepartureDate:     due(2025, time.June, 1),
		ActorID:           "agent-1",
	})
	require.NoError(t, err)
	require.True(t, out.Validation.IsValid)

	stored, err := s.GetConfig(ctx, "act-1")
	require.NoError(t, err)
	require.Len(t, stored.Items, 3)
	assert.Equal(t, schedule.Cents(600000), schedule.SumCents(stored.Items))

	trail, err := svc.AuditTrail(ctx, "act-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, schedule.AuditTemplateApplied, trail[0].Action)
}

// =============================================================================
// DRIVER FAILURES (sqlmock)
// =============================================================================

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestStore_SaveConfigRollsBackOnItemFailure(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM expected_payment_items").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM credit_card_guarantees").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM payment_schedule_configs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO payment_schedule_configs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO expected_payment_items").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := s.SaveConfig(context.Background(), threePay())
	assert.ErrorContains(t, err, "failed to insert item 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTxBeginFailure(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	called := false
	err := s.WithTx(context.Background(), func(schedule.Store) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "failed to begin transaction")
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetConfigQueryFailure(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("FROM payment_schedule_configs").
		WithArgs("act-1").
		WillReturnError(errors.New("connection reset"))

	_, err := s.GetConfig(context.Background(), "act-1")
	assert.ErrorContains(t, err, "failed to query schedule")
	assert.NoError(t, mock.ExpectationsWereMet())
}
