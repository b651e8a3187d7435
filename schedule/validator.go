package schedule

import "fmt"

// =============================================================================
// VALIDATION RESULT - Rule failures are data, not errors
// =============================================================================

type IssueCode string

const (
	IssueSumMismatch         IssueCode = "SUM_MISMATCH"
	IssueFinalPaymentTooLate IssueCode = "FINAL_PAYMENT_TOO_LATE"
	IssuePaymentTooSmall     IssueCode = "PAYMENT_TOO_SMALL"
	IssueTooManyInstallments IssueCode = "TOO_MANY_INSTALLMENTS"

	IssueHighDeposit IssueCode = "HIGH_DEPOSIT"
	IssuePastDueDate IssueCode = "PAST_DUE_DATE"
)

type Issue struct {
	Code    IssueCode
	Message string
	// Sequence of the item the issue is about; 0 for schedule-wide issues.
	Sequence int
}

type ValidationResult struct {
	IsValid  bool
	Errors   []Issue
	Warnings []Issue
}

// HasError reports whether the result carries the given error code.
func (r ValidationResult) HasError(code IssueCode) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// HasWarning reports whether the result carries the given warning code.
func (r ValidationResult) HasWarning(code IssueCode) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Validator checks a fully resolved item list. It returns an error only for
// malformed input (e.g. an unresolved due date); rule failures go into the
// result.
type Validator interface {
	Validate(items []ExpectedPaymentItem, total Cents, departure Date) (ValidationResult, error)
}

// AssertResolved fails with a ProgrammingError if any item lacks a due date.
func AssertResolved(op string, items []ExpectedPaymentItem) error {
	for i, it := range items {
		if it.DueDate == nil {
			seq := it.SequenceOrder
			if seq == 0 {
				seq = i + 1
			}
			return &ProgrammingError{Op: op, Item: seq, Err: ErrUnresolvedDueDate}
		}
	}
	return nil
}

func (i Issue) String() string {
	if i.Sequence > 0 {
		return fmt.Sprintf("%s (item %d): %s", i.Code, i.Sequence, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Code, i.Message)
}
