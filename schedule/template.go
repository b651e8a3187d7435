/*
template.go - Reusable payment-schedule templates and their resolution

PURPOSE:
  An agency authors a template once ("Standard 3-pay": 25% at booking, 25%
  90 days out, 50% 45 days out) and applies it to many bookings. Resolution
  turns the template's relative milestones into absolute-dated items for
  one booking.

AMOUNT AND TIMING:
  Each template item has exactly one amount and exactly one timing:

    AmountSpec = Percentage{Value} | FixedAmount{Cents}
    TimingSpec = DaysFromBooking{Days} | DaysBeforeDeparture{Days}

  Both are sealed interfaces, so "percentage AND fixed" cannot be built in
  Go. The JSON boundary (package factory) rejects both-set input.

RESOLUTION ORDER:
  1. Check inputs (departure date, total, item specs)
  2. Compute every amount
  3. Compute every due date
  4. Only then hand the list to the validator (service.go)

  Step 4 never sees a nil due date. If it did, the validator's 45-day and
  sum checks would pass against missing data.

SEE ALSO:
  - service.go: ApplyTemplate runs resolve -> validate -> persist
  - factory/template.go: JSON to Template conversion
*/
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TEMPLATE
// =============================================================================

type Template struct {
	ID          TemplateID
	AgencyID    AgencyID
	Name        string
	Description string
	Items       []TemplateItem
	IsActive    bool

	// Version increments on every save. Applications record it.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TemplateItem struct {
	Name     string
	Amount   AmountSpec
	Timing   TimingSpec
	Sequence int
}

// AmountSpec is either Percentage or FixedAmount.
type AmountSpec interface {
	amountSpec()
}

type Percentage struct {
	Value decimal.Decimal
}

type FixedAmount struct {
	Cents Cents
}

func (Percentage) amountSpec()  {}
func (FixedAmount) amountSpec() {}

// TimingSpec is either DaysFromBooking or DaysBeforeDeparture.
type TimingSpec interface {
	timingSpec()
}

type DaysFromBooking struct {
	Days int
}

type DaysBeforeDeparture struct {
	Days int
}

func (DaysFromBooking) timingSpec()     {}
func (DaysBeforeDeparture) timingSpec() {}

// OrderedItems returns the items sorted by Sequence (stable for ties).
func (t Template) OrderedItems() []TemplateItem {
	items := append([]TemplateItem(nil), t.Items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Sequence < items[j].Sequence })
	return items
}

// Validate checks the template's own structure, independent of any booking.
func (t Template) Validate() error {
	if t.Name == "" {
		return invalid("name", "required")
	}
	if len(t.Items) == 0 {
		return invalid("items", "template needs at least one item")
	}
	for i, it := range t.Items {
		if err := validateTemplateItem(i, it); err != nil {
			return err
		}
	}
	return nil
}

func validateTemplateItem(i int, it TemplateItem) error {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }

	switch a := it.Amount.(type) {
	case Percentage:
		if !a.Value.IsPositive() || a.Value.GreaterThan(hundred) {
			return invalid(field("percentage"), "must be in (0, 100]")
		}
	case FixedAmount:
		if a.Cents <= 0 {
			return invalid(field("fixed_amount_cents"), "must be positive")
		}
	case nil:
		return invalid(field("amount"), "one of percentage or fixed_amount_cents is required")
	default:
		return invalid(field("amount"), fmt.Sprintf("unsupported amount %T", a))
	}

	switch tm := it.Timing.(type) {
	case DaysFromBooking:
		if tm.Days < 0 {
			return invalid(field("days_from_booking"), "must not be negative")
		}
	case DaysBeforeDeparture:
		if tm.Days < 0 {
			return invalid(field("days_before_departure"), "must not be negative")
		}
	case nil:
		return invalid(field("timing"), "one of days_from_booking or days_before_departure is required")
	default:
		return invalid(field("timing"), fmt.Sprintf("unsupported timing %T", tm))
	}
	return nil
}

// =============================================================================
// RESOLVER
// =============================================================================

type ApplyInput struct {
	TotalCents    Cents
	Currency      string
	BookingDate   *Date
	DepartureDate *Date
}

// Resolver expands templates into dated items. It is stateless.
type Resolver struct{}

// Resolve computes all amounts and then all due dates. It never validates
// against compliance rules; it only rejects malformed input.
func (Resolver) Resolve(t Template, in ApplyInput) ([]ExpectedPaymentItem, error) {
	if in.DepartureDate == nil {
		return nil, invalid("departure_date", "required")
	}
	if in.TotalCents <= 0 {
		return nil, invalid("total_amount_cents", "must be positive")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	tmplItems := t.OrderedItems()
	for i, ti := range tmplItems {
		if _, ok := ti.Timing.(DaysFromBooking); ok && in.BookingDate == nil {
			return nil, invalid(fmt.Sprintf("items[%d].days_from_booking", i), "booking_date is required for booking-relative items")
		}
	}

	amounts := resolveAmounts(tmplItems, in.TotalCents)

	items := make([]ExpectedPaymentItem, len(tmplItems))
	for i, ti := range tmplItems {
		due := resolveDueDate(ti.Timing, in.BookingDate, *in.DepartureDate)
		items[i] = ExpectedPaymentItem{
			Name:          itemName(ti, i),
			Kind:          templateItemKind(i, len(tmplItems)),
			AmountCents:   amounts[i],
			DueDate:       &due,
			Status:        ItemPending,
			SequenceOrder: i + 1,
		}
	}
	return items, nil
}

// resolveAmounts truncates percentages to cents. When the exact amounts add
// up to the total, the truncation drift goes to the last percentage item.
// When they don't, the mismatch is left for the validator to report.
func resolveAmounts(items []TemplateItem, total Cents) []Cents {
	amounts := make([]Cents, len(items))
	exact := decimal.Zero
	var sum Cents
	lastPct := -1

	for i, it := range items {
		switch a := it.Amount.(type) {
		case Percentage:
			v := exactPercentOf(total, a.Value)
			exact = exact.Add(v)
			amounts[i] = Cents(v.Floor().IntPart())
			lastPct = i
		case FixedAmount:
			exact = exact.Add(a.Cents.Decimal())
			amounts[i] = a.Cents
		}
		sum += amounts[i]
	}

	if lastPct >= 0 && exact.Equal(total.Decimal()) {
		amounts[lastPct] += total - sum
	}
	return amounts
}

func resolveDueDate(timing TimingSpec, booking *Date, departure Date) Date {
	switch tm := timing.(type) {
	case DaysFromBooking:
		return booking.AddDays(tm.Days)
	case DaysBeforeDeparture:
		return departure.AddDays(-tm.Days)
	}
	// Unreachable: Template.Validate rejects other timings.
	panic(fmt.Sprintf("schedule: unsupported timing %T", timing))
}

// templateItemKind: the first milestone of a multi-item template is the deposit.
func templateItemKind(i, n int) ItemKind {
	switch {
	case n == 1:
		return KindFull
	case i == 0:
		return KindDeposit
	case i == n-1:
		return KindBalance
	default:
		return KindMilestone
	}
}

func itemName(ti TemplateItem, i int) string {
	if ti.Name != "" {
		return ti.Name
	}
	return fmt.Sprintf("Payment %d", i+1)
}
