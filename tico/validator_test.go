package tico_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailfire/payment-engine/factory"
	"github.com/tailfire/payment-engine/schedule"
	"github.com/tailfire/payment-engine/tico"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var departure = schedule.NewDate(2025, time.June, 1)

func validator() *tico.Validator {
	return tico.NewValidator(tico.DefaultRules(), schedule.FixedClock{At: time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)})
}

func item(seq int, cents schedule.Cents, due schedule.Date) schedule.ExpectedPaymentItem {
	return schedule.ExpectedPaymentItem{
		Kind:          schedule.KindInstallment,
		AmountCents:   cents,
		DueDate:       schedule.DatePtr(due),
		SequenceOrder: seq,
	}
}

func codes(issues []schedule.Issue) []schedule.IssueCode {
	out := make([]schedule.IssueCode, len(issues))
	for i, is := range issues {
		out[i] = is.Code
	}
	return out
}

// =============================================================================
// FINAL PAYMENT TIMING
// =============================================================================

func TestValidator_FinalPayment_45DaysPasses(t *testing.T) {
	items := []schedule.ExpectedPaymentItem{
		item(1, 5000, schedule.NewDate(2025, time.January, 1)),
		item(2, 5000, departure.AddDays(-45)),
	}
	res, err := validator().Validate(items, 10000, departure)
	require.NoError(t, err)
	assert.True(t, res.IsValid, "errors: %v", res.Errors)
}

func TestValidator_FinalPayment_44DaysFails(t *testing.T) {
	items := []schedule.ExpectedPaymentItem{
		item(1, 5000, schedule.NewDate(2025, time.January, 1)),
		item(2, 5000, departure.AddDays(-44)),
	}
	res, err := validator().Validate(items, 10000, departure)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, schedule.IssueFinalPaymentTooLate, res.Errors[0].Code)
	assert.Equal(t, 2, res.Errors[0].Sequence)
}

func TestValidator_FinalPayment_TiesAllChecked(t *testing.T) {
	// GIVEN: Two items share the latest due date, 44 days out
	// WHEN: Validating
	// THEN: Each is reported as a late final payment

	late := departure.AddDays(-44)
	items := []schedule.ExpectedPaymentItem{
		item(1, 4000, schedule.NewDate(2025, time.January, 1)),
		item(2, 3000, late),
		item(3, 3000, late),
	}
	res, err := validator().Validate(items, 10000, departure)
	require.NoError(t, err)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 2, res.Errors[0].Sequence)
	assert.Equal(t, 3, res.Errors[1].Sequence)
}

func TestValidator_FinalPayment_TiesAtBoundaryPass(t *testing.T) {
	onTime := departure.AddDays(-45)
	items := []schedule.ExpectedPaymentItem{
		item(1, 5000, onTime),
		item(2, 5000, onTime),
	}
	res, err := validator().Validate(items, 10000, departure)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}

func TestValidator_CustomRules(t *testing.T) {
	rules := tico.DefaultRules()
	rules.MinFinalPaymentDays = 30
	v := tico.NewValidator(rules, schedule.FixedClock{At: time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)})

	items := []schedule.ExpectedPaymentItem{item(1, 10000, departure.AddDays(-44))}
	res, err := v.Validate(items, 10000, departure)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}

// =============================================================================
// AMOUNTS AND COUNT
// =============================================================================

func TestValidator_SumMismatch(t *testing.T) {
	items := []schedule.ExpectedPaymentItem{item(1, 9999, departure.AddDays(-60))}
	res, err := validator().Validate(items, 10000, departure)
	require.NoError(t, err)
	assert.Equal(t, []schedule.IssueCode{schedule.IssueSumMismatch}, codes(res.Errors))
}

func TestValidator_PaymentTooSmall(t *testing.T) {
	items := []schedule.ExpectedPaymentItem{
		item(1, 99, schedule.NewDate(2025, time.January, 1)),
		item(2, 100, schedule.NewDate(2025, time.February, 1)),
		item(3, 9801, departure.AddDays(-60)),
	}
	res, err := validator().Validate(items, 10000, departure)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, schedule.IssuePaymentTooSmall, res.Errors[0].Code)
	assert.Equal(t, 1, res.Errors[0].Sequence)
}

func TestValidator_InstallmentCount(t *testing.T) {
	build := func(n int) []schedule.ExpectedPaymentItem {
		items := make([]schedule.ExpectedPaymentItem, n)
		for i := range items {
			items[i] = item(i+1, 1000, schedule.NewDate(2025, time.January, 1).AddDays(i))
		}
		return items
	}

	res, err := validator().Validate(build(12), 12000, departure)
	require.NoError(t, err)
	assert.True(t, res.IsValid)

	res, err = validator().Validate(build(13), 13000, departure)
	require.NoError(t, err)
	assert.Equal(t, []schedule.IssueCode{schedule.IssueTooManyInstallments}, codes(res.Errors))
}

func TestValidator_AllRulesRunTogether(t *testing.T) {
	// GIVEN: Items that break the sum, minimum and final-payment rules
	// WHEN: Validating
	// THEN: All three are reported, none hides another

	items := []schedule.ExpectedPaymentItem{
		item(1, 50, schedule.NewDate(2025, time.January, 1)),
		item(2, 5000, departure.AddDays(-10)),
	}
	res, err := validator().Validate(items, 10000, departure)
	require.NoError(t, err)
	assert.ElementsMatch(t, []schedule.IssueCode{
		schedule.IssueSumMismatch,
		schedule.IssueFinalPaymentTooLate,
		schedule.IssuePaymentTooSmall,
	}, codes(res.Errors))
}

// =============================================================================
// WARNINGS
// =============================================================================

func TestValidator_HighDepositWarnsButPasses(t *testing.T) {
	deposit := item(1, 5001, schedule.NewDate(2025, time.January, 1))
	deposit.Kind = schedule.KindDeposit
	items := []schedule.ExpectedPaymentItem{deposit, item(2, 4999, departure.AddDays(-45))}

	res, err := validator().Validate(items, 10000, departure)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.True(t, res.HasWarning(schedule.IssueHighDeposit))

	items[0].AmountCents, items[1].AmountCents = 5000, 5000
	res, err = validator().Validate(items, 10000, departure)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestValidator_PastDueDateWarnsButPasses(t *testing.T) {
	items := []schedule.ExpectedPaymentItem{
		item(1, 5000, schedule.NewDate(2024, time.November, 30)),
		item(2, 5000, departure.AddDays(-45)),
	}
	res, err := validator().Validate(items, 10000, departure)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, schedule.IssuePastDueDate, res.Warnings[0].Code)

	// Due today is not past
	items[0].DueDate = schedule.DatePtr(schedule.NewDate(2024, time.December, 1))
	res, err = validator().Validate(items, 10000, departure)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

// =============================================================================
// CONTRACT
// =============================================================================

func TestValidator_UnresolvedDateIsProgrammingError(t *testing.T) {
	items := []schedule.ExpectedPaymentItem{
		item(1, 5000, departure.AddDays(-60)),
		{AmountCents: 5000, SequenceOrder: 2},
	}
	_, err := validator().Validate(items, 10000, departure)
	require.Error(t, err)
	assert.True(t, errors.Is(err, schedule.ErrUnresolvedDueDate))

	var pe *schedule.ProgrammingError
	assert.True(t, errors.As(err, &pe))
}

func TestRules_Limits(t *testing.T) {
	l := tico.DefaultRules().Limits()
	assert.Equal(t, 12, l.MaxInstallments)
	assert.Equal(t, 45, l.MinFinalPaymentDays)
	assert.True(t, tico.DefaultRules().DepositWarningPct.Equal(decimal.NewFromInt(50)))
}

// =============================================================================
// PRESETS
// =============================================================================

func TestPresets_ParseAndPassRules(t *testing.T) {
	f := factory.NewTemplateFactory()
	for _, p := range tico.Presets() {
		t.Run(p.Key, func(t *testing.T) {
			tmpl, err := f.ParseTemplate(p.JSON)
			require.NoError(t, err)
			assert.Equal(t, p.Name, tmpl.Name)

			items, err := schedule.Resolver{}.Resolve(tmpl, schedule.ApplyInput{
				TotalCents:    123457,
				BookingDate:   schedule.DatePtr(schedule.NewDate(2025, time.January, 1)),
				DepartureDate: schedule.DatePtr(schedule.NewDate(2025, time.December, 1)),
			})
			require.NoError(t, err)
			assert.Equal(t, schedule.Cents(123457), schedule.SumCents(items))

			res, err := validator().Validate(items, 123457, schedule.NewDate(2025, time.December, 1))
			require.NoError(t, err)
			assert.True(t, res.IsValid, "errors: %v", res.Errors)
		})
	}
}

func TestMonthlyInstallmentsJSON_PercentagesAddUpToHundred(t *testing.T) {
	tmpl, err := factory.NewTemplateFactory().ParseTemplate(tico.MonthlyInstallmentsJSON("m3", "3 monthly", 3))
	require.NoError(t, err)

	total := decimal.Zero
	for _, it := range tmpl.Items {
		total = total.Add(it.Amount.(schedule.Percentage).Value)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(100)), "got %s", total)
}
