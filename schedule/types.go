/*
Package schedule provides the payment-schedule engine.

PURPOSE:
  This package turns a booking's total price into concrete payment line
  items and keeps them consistent with the regulator's payment-timing rules.
  Three pure components do the work, and a Service wires them to storage:

    Calculator  - total + schedule type  -> amounts (full/deposit/installments)
    Resolver    - reusable template      -> absolute-dated items for one booking
    Validator   - resolved items         -> errors and warnings (see package tico)

KEY CONCEPTS IN THIS FILE (types.go):
  - Cents: integer minor units. There is no floating point money anywhere.
  - Config: the schedule attached to one activity-pricing record
  - ExpectedPaymentItem: one scheduled deposit/installment/balance line
  - CreditCardGuarantee: card authorization used instead of scheduled items

DESIGN PRINCIPLES:
  1. Exact sums: the items of a resolved schedule add up to the total, to the cent
  2. Resolve before validate: no component ever validates a nil due date
  3. All-or-nothing writes: a schedule is persisted whole or not at all
  4. Auditability: every mutation produces an audit entry with before/after values

USAGE:
  calc := schedule.Calculator{MaxInstallments: 12}
  items, err := calc.Calculate(schedule.CalculationInput{
      TotalCents:       schedule.Cents(10001),
      Type:             schedule.ScheduleInstallments,
      InstallmentCount: 3,
  })

SEE ALSO:
  - template.go: Template types and the Resolver
  - service.go: ApplyTemplate / CreateSchedule orchestration
  - tico/validator.go: the compliance rules
*/
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Cents is an amount of money in minor units.
type Cents int64

func (c Cents) Decimal() decimal.Decimal { return decimal.NewFromInt(int64(c)) }

func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// SumCents adds the amounts of all items.
func SumCents(items []ExpectedPaymentItem) Cents {
	var total Cents
	for _, it := range items {
		total += it.AmountCents
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AgencyID string
type ConfigID string
type ItemID string
type TemplateID string

// =============================================================================
// SCHEDULE CONFIG
// =============================================================================

type ScheduleType string

const (
	ScheduleFull         ScheduleType = "full"
	ScheduleDeposit      ScheduleType = "deposit"
	ScheduleInstallments ScheduleType = "installments"
	ScheduleGuarantee    ScheduleType = "guarantee"
)

func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleFull, ScheduleDeposit, ScheduleInstallments, ScheduleGuarantee:
		return true
	}
	return false
}

type DepositType string

const (
	DepositPercentage DepositType = "percentage"
	DepositFixed      DepositType = "fixed"
)

// DepositParams describes the deposit of a deposit-type schedule.
// Value is a percentage for DepositPercentage and cents for DepositFixed.
type DepositParams struct {
	Type  DepositType
	Value decimal.Decimal
}

// Config is the payment schedule of one activity-pricing record.
type Config struct {
	ID                   ConfigID
	AgencyID             AgencyID
	ActivityPricingID    string
	ScheduleType         ScheduleType
	Deposit              *DepositParams
	InstallmentCount     int
	AllowPartialPayments bool
	TotalCents           Cents
	Currency             string

	Items     []ExpectedPaymentItem
	Guarantee *CreditCardGuarantee // only when ScheduleType == ScheduleGuarantee

	// Set when the schedule came from a template
	TemplateID      TemplateID
	TemplateVersion int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasProtectedItems reports whether any item refuses re-resolution: it is
// locked, or money has already posted against it.
func (c *Config) HasProtectedItems() bool {
	for _, it := range c.Items {
		if it.Locked || it.PaidAmountCents > 0 {
			return true
		}
	}
	return false
}

// =============================================================================
// EXPECTED PAYMENT ITEM
// =============================================================================

type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemPartial ItemStatus = "partial"
	ItemPaid    ItemStatus = "paid"
	ItemOverdue ItemStatus = "overdue"
)

// ItemKind says what role an item plays in its schedule.
type ItemKind string

const (
	KindFull        ItemKind = "full"
	KindDeposit     ItemKind = "deposit"
	KindInstallment ItemKind = "installment"
	KindBalance     ItemKind = "balance"
	KindMilestone   ItemKind = "milestone"
)

type ExpectedPaymentItem struct {
	ID              ItemID
	ConfigID        ConfigID
	Name            string
	Kind            ItemKind
	AmountCents     Cents
	DueDate         *Date // nil until resolved
	Status          ItemStatus
	SequenceOrder   int // 1-based
	PaidAmountCents Cents

	Locked       bool
	LockedReason string
}

// Remaining is the amount still owed on the item.
func (it ExpectedPaymentItem) Remaining() Cents {
	r := it.AmountCents - it.PaidAmountCents
	if r < 0 {
		return 0
	}
	return r
}

// IsOpen reports whether the item still expects money.
func (it ExpectedPaymentItem) IsOpen() bool {
	return it.Status == ItemPending || it.Status == ItemPartial || it.Status == ItemOverdue
}

// =============================================================================
// CREDIT CARD GUARANTEE
// =============================================================================

// CreditCardGuarantee holds masked card data and the authorization record.
// The full card number is never kept.
type CreditCardGuarantee struct {
	CardLast4         string
	CardBrand         string
	CardholderName    string
	AuthorizationCode string
	AuthorizedCents   Cents
	AuthorizedAt      time.Time
}

// NewCreditCardGuarantee builds a guarantee from a card number, keeping only
// the last four digits. Spaces and dashes in the number are ignored.
func NewCreditCardGuarantee(pan, brand, holder, authCode string, authorized Cents, at time.Time) (*CreditCardGuarantee, error) {
	digits := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-':
			return -1
		default:
			return 'x'
		}
	}, pan)
	if strings.ContainsRune(digits, 'x') || len(digits) < 12 || len(digits) > 19 {
		return nil, &InputError{Field: "card_number", Reason: "must be 12-19 digits"}
	}
	if authCode == "" {
		return nil, &InputError{Field: "authorization_code", Reason: "required"}
	}
	if authorized <= 0 {
		return nil, &InputError{Field: "authorized_cents", Reason: "must be positive"}
	}
	return &CreditCardGuarantee{
		CardLast4:         digits[len(digits)-4:],
		CardBrand:         brand,
		CardholderName:    holder,
		AuthorizationCode: authCode,
		AuthorizedCents:   authorized,
		AuthorizedAt:      at.UTC(),
	}, nil
}

// MaskedCard renders the card for display.
func (g *CreditCardGuarantee) MaskedCard() string {
	return "**** **** **** " + g.CardLast4
}
