package schedule_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailfire/payment-engine/schedule"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func calc() schedule.Calculator {
	return schedule.Calculator{MaxInstallments: 12}
}

func amounts(items []schedule.CalculatedItem) []schedule.Cents {
	out := make([]schedule.Cents, len(items))
	for i, it := range items {
		out[i] = it.AmountCents
	}
	return out
}

func sumCalculated(items []schedule.CalculatedItem) schedule.Cents {
	var total schedule.Cents
	for _, it := range items {
		total += it.AmountCents
	}
	return total
}

func pct(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// FULL / DEPOSIT
// =============================================================================

func TestCalculator_Full_SingleItem(t *testing.T) {
	items, err := calc().Calculate(schedule.CalculationInput{TotalCents: 250000, Type: schedule.ScheduleFull})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, schedule.Cents(250000), items[0].AmountCents)
	assert.Equal(t, schedule.KindFull, items[0].Kind)
	assert.Equal(t, 1, items[0].SequenceOrder)
}

func TestCalculator_Deposit_TruncatesAndBalanceAbsorbsRemainder(t *testing.T) {
	// GIVEN: 33% deposit on $100.00
	// WHEN: Calculating
	// THEN: Deposit is truncated to 3300 and the balance carries the rest

	items, err := calc().Calculate(schedule.CalculationInput{
		TotalCents: 10000,
		Type:       schedule.ScheduleDeposit,
		Deposit:    &schedule.DepositParams{Type: schedule.DepositPercentage, Value: pct("33")},
	})
	require.NoError(t, err)
	assert.Equal(t, []schedule.Cents{3300, 6700}, amounts(items))
	assert.Equal(t, schedule.KindDeposit, items[0].Kind)
	assert.Equal(t, schedule.KindBalance, items[1].Kind)
}

func TestCalculator_Deposit_FractionalPercentageTruncates(t *testing.T) {
	items, err := calc().Calculate(schedule.CalculationInput{
		TotalCents: 9999,
		Type:       schedule.ScheduleDeposit,
		Deposit:    &schedule.DepositParams{Type: schedule.DepositPercentage, Value: pct("12.5")},
	})
	require.NoError(t, err)
	// 9999 * 12.5% = 1249.875
	assert.Equal(t, []schedule.Cents{1249, 8750}, amounts(items))
}

func TestCalculator_Deposit_HundredPercentHasNoBalance(t *testing.T) {
	items, err := calc().Calculate(schedule.CalculationInput{
		TotalCents: 10000,
		Type:       schedule.ScheduleDeposit,
		Deposit:    &schedule.DepositParams{Type: schedule.DepositPercentage, Value: pct("100")},
	})
	require.NoError(t, err)
	assert.Equal(t, []schedule.Cents{10000}, amounts(items))
}

func TestCalculator_Deposit_Fixed(t *testing.T) {
	items, err := calc().Calculate(schedule.CalculationInput{
		TotalCents: 10000,
		Type:       schedule.ScheduleDeposit,
		Deposit:    &schedule.DepositParams{Type: schedule.DepositFixed, Value: decimal.NewFromInt(2500)},
	})
	require.NoError(t, err)
	assert.Equal(t, []schedule.Cents{2500, 7500}, amounts(items))
}

func TestCalculator_Deposit_RejectsBadParams(t *testing.T) {
	cases := map[string]*schedule.DepositParams{
		"missing":           nil,
		"zero percent":      {Type: schedule.DepositPercentage, Value: pct("0")},
		"over 100 percent":  {Type: schedule.DepositPercentage, Value: pct("100.01")},
		"fixed above total": {Type: schedule.DepositFixed, Value: decimal.NewFromInt(10001)},
		"fixed fractional":  {Type: schedule.DepositFixed, Value: pct("10.5")},
		"unknown type":      {Type: "weird", Value: pct("10")},
	}
	for name, dep := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := calc().Calculate(schedule.CalculationInput{
				TotalCents: 10000,
				Type:       schedule.ScheduleDeposit,
				Deposit:    dep,
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, schedule.ErrInvalidInput), "got %v", err)
		})
	}
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

func TestCalculator_Installments_RemainderOnLast(t *testing.T) {
	// GIVEN: $100.01 split three ways
	// WHEN: Calculating
	// THEN: [3333, 3333, 3335]

	items, err := calc().Calculate(schedule.CalculationInput{
		TotalCents:       10001,
		Type:             schedule.ScheduleInstallments,
		InstallmentCount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []schedule.Cents{3333, 3333, 3335}, amounts(items))
	assert.Equal(t, "Installment 3 of 3", items[2].Name)
}

func TestCalculator_Installments_SumAlwaysEqualsTotal(t *testing.T) {
	totals := []schedule.Cents{1, 99, 100, 10001, 123457, 999999}
	for _, total := range totals {
		for n := 1; n <= 12; n++ {
			items, err := calc().Calculate(schedule.CalculationInput{
				TotalCents:       total,
				Type:             schedule.ScheduleInstallments,
				InstallmentCount: n,
			})
			require.NoError(t, err)
			require.Len(t, items, n)
			assert.Equal(t, total, sumCalculated(items), "total=%d n=%d", total, n)
			for i, it := range items {
				assert.Equal(t, i+1, it.SequenceOrder)
			}
		}
	}
}

func TestCalculator_Installments_CountOutOfRange(t *testing.T) {
	for _, n := range []int{0, 13} {
		_, err := calc().Calculate(schedule.CalculationInput{
			TotalCents:       10000,
			Type:             schedule.ScheduleInstallments,
			InstallmentCount: n,
		})
		assert.ErrorIs(t, err, schedule.ErrInvalidInput, "n=%d", n)
	}
}

func TestCalculator_Idempotent(t *testing.T) {
	in := schedule.CalculationInput{TotalCents: 777777, Type: schedule.ScheduleInstallments, InstallmentCount: 7}
	first, err := calc().Calculate(in)
	require.NoError(t, err)
	second, err := calc().Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// =============================================================================
// OTHER TYPES
// =============================================================================

func TestCalculator_Guarantee_NoItems(t *testing.T) {
	items, err := calc().Calculate(schedule.CalculationInput{TotalCents: 10000, Type: schedule.ScheduleGuarantee})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCalculator_RejectsNonPositiveTotalAndUnknownType(t *testing.T) {
	_, err := calc().Calculate(schedule.CalculationInput{TotalCents: 0, Type: schedule.ScheduleFull})
	assert.ErrorIs(t, err, schedule.ErrInvalidInput)

	_, err = calc().Calculate(schedule.CalculationInput{TotalCents: 100, Type: "weekly"})
	assert.ErrorIs(t, err, schedule.ErrInvalidInput)
}

func TestPercentOf_Truncates(t *testing.T) {
	assert.Equal(t, schedule.Cents(3333), schedule.PercentOf(10000, pct("33.333")))
	assert.Equal(t, schedule.Cents(0), schedule.PercentOf(1, pct("50")))
	assert.Equal(t, schedule.Cents(150000), schedule.PercentOf(600000, pct("25")))
}

// =============================================================================
// DEFAULT DUE DATES
// =============================================================================

func TestDefaultDueDates_SpreadsToFinalPaymentDate(t *testing.T) {
	// GIVEN: Three items, booking Jan 1, departure Jun 1, 45-day rule
	// WHEN: Assigning default dates
	// THEN: Jan 1, halfway point, Apr 17

	items := make([]schedule.CalculatedItem, 3)
	dates := schedule.DefaultDueDates(items,
		schedule.NewDate(2025, time.January, 1),
		schedule.NewDate(2025, time.June, 1),
		45,
	)
	require.Len(t, dates, 3)
	assert.Equal(t, "2025-01-01", dates[0].String())
	assert.Equal(t, "2025-02-23", dates[1].String())
	assert.Equal(t, "2025-04-17", dates[2].String())
}

func TestDefaultDueDates_SingleItemOnFinalDate(t *testing.T) {
	dates := schedule.DefaultDueDates(make([]schedule.CalculatedItem, 1),
		schedule.NewDate(2025, time.January, 1),
		schedule.NewDate(2025, time.June, 1),
		45,
	)
	require.Len(t, dates, 1)
	assert.Equal(t, "2025-04-17", dates[0].String())
}

func TestDefaultDueDates_LateBookingCollapsesToFinalDate(t *testing.T) {
	// Booked 30 days before departure: the final date precedes booking,
	// so every item lands on booking day except the last.
	dates := schedule.DefaultDueDates(make([]schedule.CalculatedItem, 2),
		schedule.NewDate(2025, time.May, 2),
		schedule.NewDate(2025, time.June, 1),
		45,
	)
	assert.Equal(t, "2025-05-02", dates[0].String())
	assert.Equal(t, "2025-04-17", dates[1].String())
}
