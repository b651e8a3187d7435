/*
calculator.go - Deposit and installment splits

PURPOSE:
  Turns (total, schedule type, deposit or installment parameters) into an
  ordered list of amounts. No dates, no I/O.

ROUNDING:
  Percentages are truncated to whole cents. Whatever the truncation drops is
  carried by the LAST item, so the items always add up to the total:

    deposit 33% of 10000  -> [3300, 6700]
    3 installments of 10001 -> [3333, 3333, 3335]

SEE ALSO:
  - template.go: the template resolver uses the same rounding rule
*/
package schedule

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type CalculationInput struct {
	TotalCents       Cents
	Type             ScheduleType
	Deposit          *DepositParams
	InstallmentCount int
}

// CalculatedItem is an amount line before it gets a due date.
type CalculatedItem struct {
	Name          string
	Kind          ItemKind
	AmountCents   Cents
	SequenceOrder int
}

type Calculator struct {
	MaxInstallments int
}

// Calculate splits the total according to the schedule type.
func (c Calculator) Calculate(in CalculationInput) ([]CalculatedItem, error) {
	if in.TotalCents <= 0 {
		return nil, invalid("total_amount_cents", "must be positive")
	}

	switch in.Type {
	case ScheduleFull:
		return []CalculatedItem{{Name: "Full Payment", Kind: KindFull, AmountCents: in.TotalCents, SequenceOrder: 1}}, nil
	case ScheduleDeposit:
		return c.deposit(in)
	case ScheduleInstallments:
		return c.installments(in)
	case ScheduleGuarantee:
		return []CalculatedItem{}, nil
	default:
		return nil, invalid("schedule_type", fmt.Sprintf("unknown type %q", in.Type))
	}
}

func (c Calculator) deposit(in CalculationInput) ([]CalculatedItem, error) {
	if in.Deposit == nil {
		return nil, invalid("deposit", "required for deposit schedules")
	}

	var deposit Cents
	switch in.Deposit.Type {
	case DepositPercentage:
		pct := in.Deposit.Value
		if !pct.IsPositive() || pct.GreaterThan(hundred) {
			return nil, invalid("deposit.value", "percentage must be in (0, 100]")
		}
		deposit = PercentOf(in.TotalCents, pct)
	case DepositFixed:
		if !in.Deposit.Value.IsInteger() {
			return nil, invalid("deposit.value", "fixed deposit must be whole cents")
		}
		deposit = Cents(in.Deposit.Value.IntPart())
		if deposit <= 0 || deposit > in.TotalCents {
			return nil, invalid("deposit.value", "fixed deposit must be in (0, total]")
		}
	default:
		return nil, invalid("deposit.type", fmt.Sprintf("unknown type %q", in.Deposit.Type))
	}

	items := []CalculatedItem{{Name: "Deposit", Kind: KindDeposit, AmountCents: deposit, SequenceOrder: 1}}
	if balance := in.TotalCents - deposit; balance > 0 {
		items = append(items, CalculatedItem{Name: "Balance", Kind: KindBalance, AmountCents: balance, SequenceOrder: 2})
	}
	return items, nil
}

func (c Calculator) installments(in CalculationInput) ([]CalculatedItem, error) {
	n := in.InstallmentCount
	if n < 1 || n > c.MaxInstallments {
		return nil, invalid("installment_count", fmt.Sprintf("must be in [1, %d]", c.MaxInstallments))
	}

	share := in.TotalCents / Cents(n)
	remainder := in.TotalCents % Cents(n)

	items := make([]CalculatedItem, n)
	for i := range items {
		items[i] = CalculatedItem{
			Name:          fmt.Sprintf("Installment %d of %d", i+1, n),
			Kind:          KindInstallment,
			AmountCents:   share,
			SequenceOrder: i + 1,
		}
	}
	items[n-1].AmountCents += remainder
	return items, nil
}

// PercentOf returns pct% of total, truncated to whole cents.
func PercentOf(total Cents, pct decimal.Decimal) Cents {
	return Cents(exactPercentOf(total, pct).Floor().IntPart())
}

// exactPercentOf keeps the fractional cents. Shifting by -2 is exact.
func exactPercentOf(total Cents, pct decimal.Decimal) decimal.Decimal {
	return total.Decimal().Mul(pct).Shift(-2)
}

// =============================================================================
// DEFAULT DUE DATES
// =============================================================================

// DefaultDueDates spreads calculator output between booking and the latest
// compliant final-payment date: the first item is due at booking, the last
// one finalPaymentDays before departure, the rest evenly in between.
// A single item is due on the final-payment date.
func DefaultDueDates(items []CalculatedItem, booking, departure Date, finalPaymentDays int) []Date {
	if len(items) == 0 {
		return nil
	}
	final := departure.AddDays(-finalPaymentDays)
	if len(items) == 1 {
		return []Date{final}
	}

	span := DaysBetween(booking, final)
	if span < 0 {
		span = 0
	}
	dates := make([]Date, len(items))
	last := len(items) - 1
	for i := range items {
		dates[i] = booking.AddDays(span * i / last)
	}
	dates[last] = final
	return dates
}
