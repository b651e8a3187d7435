/*
Package tico encodes the Travel Industry Council of Ontario payment-timing
rules as a schedule.Validator.

RULES:
  ┌────────────────────────┬─────────┬──────────────────────────────────────┐
  │ Code                   │ Level   │ Condition                            │
  ├────────────────────────┼─────────┼──────────────────────────────────────┤
  │ SUM_MISMATCH           │ error   │ sum(amounts) != total                │
  │ FINAL_PAYMENT_TOO_LATE │ error   │ departure - latest due < 45 days     │
  │ PAYMENT_TOO_SMALL      │ error   │ any amount < 100 cents               │
  │ TOO_MANY_INSTALLMENTS  │ error   │ more than 12 items                   │
  │ HIGH_DEPOSIT           │ warning │ a deposit item > 50% of total        │
  │ PAST_DUE_DATE          │ warning │ a due date before today              │
  └────────────────────────┴─────────┴──────────────────────────────────────┘

  Every rule runs on every call; a failing rule never hides another.
  Items sharing the latest due date are all checked as the final payment.

CONFIGURATION:
  The thresholds live in Rules and are passed in, never read from globals.
  Tests build their own Rules to probe boundaries.

SEE ALSO:
  - schedule/validator.go: ValidationResult, Issue, AssertResolved
  - presets.go: templates that satisfy these rules out of the box
*/
package tico

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tailfire/payment-engine/schedule"
)

// =============================================================================
// RULES
// =============================================================================

type Rules struct {
	MinFinalPaymentDays int
	MaxInstallments     int
	MinPaymentCents     schedule.Cents
	DepositWarningPct   decimal.Decimal
}

func DefaultRules() Rules {
	return Rules{
		MinFinalPaymentDays: 45,
		MaxInstallments:     12,
		MinPaymentCents:     100,
		DepositWarningPct:   decimal.NewFromInt(50),
	}
}

// Limits exposes the thresholds the calculator needs.
func (r Rules) Limits() schedule.Limits {
	return schedule.Limits{
		MaxInstallments:     r.MaxInstallments,
		MinFinalPaymentDays: r.MinFinalPaymentDays,
	}
}

// =============================================================================
// VALIDATOR
// =============================================================================

type Validator struct {
	Rules Rules
	Clock schedule.Clock
}

var _ schedule.Validator = (*Validator)(nil)

func NewValidator(rules Rules, clock schedule.Clock) *Validator {
	if clock == nil {
		clock = schedule.SystemClock{}
	}
	return &Validator{Rules: rules, Clock: clock}
}

// Validate checks resolved items. It returns an error only when an item has
// no due date; rule failures are reported in the result.
func (v *Validator) Validate(items []schedule.ExpectedPaymentItem, total schedule.Cents, departure schedule.Date) (schedule.ValidationResult, error) {
	if err := schedule.AssertResolved("tico.Validate", items); err != nil {
		return schedule.ValidationResult{}, err
	}

	var res schedule.ValidationResult
	res.Errors = append(res.Errors, v.checkSum(items, total)...)
	res.Errors = append(res.Errors, v.checkFinalPayment(items, departure)...)
	res.Errors = append(res.Errors, v.checkMinimumPayment(items)...)
	res.Errors = append(res.Errors, v.checkInstallmentCount(items)...)
	res.Warnings = append(res.Warnings, v.checkHighDeposit(items, total)...)
	res.Warnings = append(res.Warnings, v.checkPastDue(items)...)

	res.IsValid = len(res.Errors) == 0
	return res, nil
}

func (v *Validator) checkSum(items []schedule.ExpectedPaymentItem, total schedule.Cents) []schedule.Issue {
	sum := schedule.SumCents(items)
	if sum == total {
		return nil
	}
	return []schedule.Issue{{
		Code:    schedule.IssueSumMismatch,
		Message: fmt.Sprintf("payments add up to %s, expected %s", sum, total),
	}}
}

// checkFinalPayment treats every item on the latest due date as final.
func (v *Validator) checkFinalPayment(items []schedule.ExpectedPaymentItem, departure schedule.Date) []schedule.Issue {
	if len(items) == 0 {
		return nil
	}
	latest := *items[0].DueDate
	for _, it := range items[1:] {
		if it.DueDate.After(latest) {
			latest = *it.DueDate
		}
	}

	var issues []schedule.Issue
	for i, it := range items {
		if !it.DueDate.Equal(latest) {
			continue
		}
		days := schedule.DaysBetween(*it.DueDate, departure)
		if days < v.Rules.MinFinalPaymentDays {
			issues = append(issues, schedule.Issue{
				Code:     schedule.IssueFinalPaymentTooLate,
				Message:  fmt.Sprintf("final payment due %s is %d days before departure, minimum is %d", it.DueDate, days, v.Rules.MinFinalPaymentDays),
				Sequence: sequenceOf(it, i),
			})
		}
	}
	return issues
}

func (v *Validator) checkMinimumPayment(items []schedule.ExpectedPaymentItem) []schedule.Issue {
	var issues []schedule.Issue
	for i, it := range items {
		if it.AmountCents < v.Rules.MinPaymentCents {
			issues = append(issues, schedule.Issue{
				Code:     schedule.IssuePaymentTooSmall,
				Message:  fmt.Sprintf("payment of %s is below the minimum of %s", it.AmountCents, v.Rules.MinPaymentCents),
				Sequence: sequenceOf(it, i),
			})
		}
	}
	return issues
}

func (v *Validator) checkInstallmentCount(items []schedule.ExpectedPaymentItem) []schedule.Issue {
	if len(items) <= v.Rules.MaxInstallments {
		return nil
	}
	return []schedule.Issue{{
		Code:    schedule.IssueTooManyInstallments,
		Message: fmt.Sprintf("%d payments exceed the maximum of %d", len(items), v.Rules.MaxInstallments),
	}}
}

func (v *Validator) checkHighDeposit(items []schedule.ExpectedPaymentItem, total schedule.Cents) []schedule.Issue {
	if total <= 0 {
		return nil
	}
	limit := total.Decimal().Mul(v.Rules.DepositWarningPct).Shift(-2)

	var issues []schedule.Issue
	for i, it := range items {
		if it.Kind != schedule.KindDeposit {
			continue
		}
		if it.AmountCents.Decimal().GreaterThan(limit) {
			issues = append(issues, schedule.Issue{
				Code:     schedule.IssueHighDeposit,
				Message:  fmt.Sprintf("deposit of %s exceeds %s%% of the total", it.AmountCents, v.Rules.DepositWarningPct),
				Sequence: sequenceOf(it, i),
			})
		}
	}
	return issues
}

func (v *Validator) checkPastDue(items []schedule.ExpectedPaymentItem) []schedule.Issue {
	today := schedule.Today(v.Clock)

	var issues []schedule.Issue
	for i, it := range items {
		if it.DueDate.Before(today) {
			issues = append(issues, schedule.Issue{
				Code:     schedule.IssuePastDueDate,
				Message:  fmt.Sprintf("due date %s is already past", it.DueDate),
				Sequence: sequenceOf(it, i),
			})
		}
	}
	return issues
}

func sequenceOf(it schedule.ExpectedPaymentItem, i int) int {
	if it.SequenceOrder > 0 {
		return it.SequenceOrder
	}
	return i + 1
}
