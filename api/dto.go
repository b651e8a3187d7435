/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the schedule domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Templates:
    TemplateDTO (wraps factory.TemplateJSON), ApplyTemplateRequest,
    ApplyTemplateResponse, PreviewResponse

  Schedules:
    ScheduleDTO, ItemDTO, GuaranteeDTO, CreateScheduleRequest

  Items:
    LockItemRequest, UnlockItemRequest, RecordPaymentRequest

  Validation:
    ValidationResultDTO, IssueDTO, ValidateItemsRequest

VALIDATION:
  Request types carry go-playground/validator tags, checked in handlers by
  decodeAndValidate before the service is called. Dates are YYYY-MM-DD.
  Money is always integer cents.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/template.go: TemplateJSON type
*/
package api

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tailfire/payment-engine/factory"
	"github.com/tailfire/payment-engine/schedule"
)

// =============================================================================
// TEMPLATES
// =============================================================================

// TemplateDTO represents a template in API responses.
type TemplateDTO struct {
	factory.TemplateJSON
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ApplyTemplateRequest is the body of POST /api/templates/{id}/apply and
// /api/templates/{id}/preview.
type ApplyTemplateRequest struct {
	ActivityPricingID    string `json:"activity_pricing_id" validate:"required_without=Preview"`
	TotalAmountCents     int64  `json:"total_amount_cents" validate:"gt=0"`
	Currency             string `json:"currency,omitempty" validate:"omitempty,len=3"`
	BookingDate          string `json:"booking_date,omitempty" validate:"omitempty,date"`
	DepartureDate        string `json:"departure_date" validate:"required,date"`
	AllowPartialPayments bool   `json:"allow_partial_payments"`
	ActorID              string `json:"actor_id,omitempty"`

	Preview bool `json:"-"`
}

// ApplyTemplateResponse is returned when a template was applied.
type ApplyTemplateResponse struct {
	Config          ScheduleDTO         `json:"config"`
	Items           []ItemDTO           `json:"items"`
	TemplateID      string              `json:"template_id"`
	TemplateVersion int                 `json:"template_version"`
	Validation      ValidationResultDTO `json:"validation"`
}

// PreviewResponse shows what applying a template would produce.
type PreviewResponse struct {
	Items      []ItemDTO           `json:"items"`
	TotalCents int64               `json:"total_cents"`
	Validation ValidationResultDTO `json:"validation"`
}

// PresetDTO is a built-in template.
type PresetDTO struct {
	Key      string      `json:"key"`
	Name     string      `json:"name"`
	Template TemplateDTO `json:"template"`
}

// =============================================================================
// SCHEDULES
// =============================================================================

// ScheduleDTO represents a schedule config. Items are listed inline.
type ScheduleDTO struct {
	ID                   string        `json:"id"`
	AgencyID             string        `json:"agency_id,omitempty"`
	ActivityPricingID    string        `json:"activity_pricing_id"`
	ScheduleType         string        `json:"schedule_type"`
	DepositType          string        `json:"deposit_type,omitempty"`
	DepositValue         string        `json:"deposit_value,omitempty"`
	InstallmentCount     int           `json:"installment_count,omitempty"`
	AllowPartialPayments bool          `json:"allow_partial_payments"`
	TotalCents           int64         `json:"total_cents"`
	Currency             string        `json:"currency,omitempty"`
	TemplateID           string        `json:"template_id,omitempty"`
	TemplateVersion      int           `json:"template_version,omitempty"`
	Items                []ItemDTO     `json:"items"`
	Guarantee            *GuaranteeDTO `json:"guarantee,omitempty"`
	CreatedAt            string        `json:"created_at"`
	UpdatedAt            string        `json:"updated_at"`
}

// ItemDTO represents an expected payment item.
type ItemDTO struct {
	ID              string `json:"id,omitempty"`
	Sequence        int    `json:"sequence"`
	Name            string `json:"name"`
	Kind            string `json:"kind"`
	AmountCents     int64  `json:"amount_cents"`
	PaidAmountCents int64  `json:"paid_amount_cents"`
	RemainingCents  int64  `json:"remaining_cents"`
	DueDate         string `json:"due_date,omitempty"`
	Status          string `json:"status"`
	Locked          bool   `json:"locked"`
	LockedReason    string `json:"locked_reason,omitempty"`
}

// GuaranteeDTO never carries more than the last four card digits.
type GuaranteeDTO struct {
	MaskedCard        string `json:"masked_card"`
	CardBrand         string `json:"card_brand,omitempty"`
	CardholderName    string `json:"cardholder_name,omitempty"`
	AuthorizationCode string `json:"authorization_code"`
	AuthorizedCents   int64  `json:"authorized_cents"`
	AuthorizedAt      string `json:"authorized_at"`
}

// GuaranteeRequest carries the card for a guarantee schedule. Only the last
// four digits survive the request.
type GuaranteeRequest struct {
	CardNumber        string `json:"card_number" validate:"required"`
	CardBrand         string `json:"card_brand,omitempty"`
	CardholderName    string `json:"cardholder_name,omitempty"`
	AuthorizationCode string `json:"authorization_code" validate:"required"`
	AuthorizedCents   int64  `json:"authorized_cents" validate:"gt=0"`
}

// CreateScheduleRequest is the body of POST /api/schedules.
type CreateScheduleRequest struct {
	AgencyID             string            `json:"agency_id,omitempty"`
	ActivityPricingID    string            `json:"activity_pricing_id" validate:"required"`
	ScheduleType         string            `json:"schedule_type" validate:"required,oneof=full deposit installments guarantee"`
	TotalAmountCents     int64             `json:"total_amount_cents" validate:"gt=0"`
	Currency             string            `json:"currency,omitempty" validate:"omitempty,len=3"`
	DepositType          string            `json:"deposit_type,omitempty" validate:"omitempty,oneof=percentage fixed"`
	DepositValue         string            `json:"deposit_value,omitempty"`
	InstallmentCount     int               `json:"installment_count,omitempty" validate:"gte=0"`
	AllowPartialPayments bool              `json:"allow_partial_payments"`
	BookingDate          string            `json:"booking_date,omitempty" validate:"omitempty,date"`
	DepartureDate        string            `json:"departure_date,omitempty" validate:"omitempty,date"`
	DueDates             []string          `json:"due_dates,omitempty" validate:"omitempty,dive,date"`
	Guarantee            *GuaranteeRequest `json:"guarantee,omitempty"`
	ActorID              string            `json:"actor_id,omitempty"`
}

// =============================================================================
// ITEMS
// =============================================================================

type LockItemRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	Reason  string `json:"reason,omitempty" validate:"max=500"`
}

// UnlockItemRequest requires a written justification.
type UnlockItemRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	Reason  string `json:"reason" validate:"required,min=10,max=500"`
}

type RecordPaymentRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	ActorID     string `json:"actor_id,omitempty"`
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationResultDTO is returned with 422 when a schedule breaks a rule.
type ValidationResultDTO struct {
	IsValid  bool       `json:"is_valid"`
	Errors   []IssueDTO `json:"errors"`
	Warnings []IssueDTO `json:"warnings"`
}

type IssueDTO struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence,omitempty"`
}

// ValidateItemsRequest is the body of POST /api/validate.
type ValidateItemsRequest struct {
	TotalAmountCents int64                 `json:"total_amount_cents" validate:"gt=0"`
	DepartureDate    string                `json:"departure_date" validate:"required,date"`
	Items            []ValidateItemRequest `json:"items" validate:"required,min=1,dive"`
}

type ValidateItemRequest struct {
	Sequence    int    `json:"sequence" validate:"gte=0"`
	Kind        string `json:"kind,omitempty" validate:"omitempty,oneof=full deposit installment balance milestone"`
	AmountCents int64  `json:"amount_cents"`
	DueDate     string `json:"due_date" validate:"required,date"`
}

// AuditEntryDTO represents one audit log row.
type AuditEntryDTO struct {
	ID        string         `json:"id"`
	ItemID    string         `json:"item_id,omitempty"`
	Action    string         `json:"action"`
	ActorID   string         `json:"actor_id,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	OldValues map[string]any `json:"old_values,omitempty"`
	NewValues map[string]any `json:"new_values,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// ErrorResponse is the body of every non-2xx, non-422 response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// =============================================================================
// VALIDATOR
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New()
	err := v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := schedule.ParseDate(fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(fmt.Sprintf("register date validation: %v", err))
	}
	return v
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toScheduleDTO(cfg *schedule.Config) ScheduleDTO {
	dto := ScheduleDTO{
		ID:                   string(cfg.ID),
		AgencyID:             string(cfg.AgencyID),
		ActivityPricingID:    cfg.ActivityPricingID,
		ScheduleType:         string(cfg.ScheduleType),
		InstallmentCount:     cfg.InstallmentCount,
		AllowPartialPayments: cfg.AllowPartialPayments,
		TotalCents:           int64(cfg.TotalCents),
		Currency:             cfg.Currency,
		TemplateID:           string(cfg.TemplateID),
		TemplateVersion:      cfg.TemplateVersion,
		Items:                toItemDTOs(cfg.Items),
		CreatedAt:            cfg.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            cfg.UpdatedAt.Format(time.RFC3339),
	}
	if cfg.Deposit != nil {
		dto.DepositType = string(cfg.Deposit.Type)
		dto.DepositValue = cfg.Deposit.Value.String()
	}
	if g := cfg.Guarantee; g != nil {
		dto.Guarantee = &GuaranteeDTO{
			MaskedCard:        g.MaskedCard(),
			CardBrand:         g.CardBrand,
			CardholderName:    g.CardholderName,
			AuthorizationCode: g.AuthorizationCode,
			AuthorizedCents:   int64(g.AuthorizedCents),
			AuthorizedAt:      g.AuthorizedAt.Format(time.RFC3339),
		}
	}
	return dto
}

func toItemDTO(it schedule.ExpectedPaymentItem) ItemDTO {
	dto := ItemDTO{
		ID:              string(it.ID),
		Sequence:        it.SequenceOrder,
		Name:            it.Name,
		Kind:            string(it.Kind),
		AmountCents:     int64(it.AmountCents),
		PaidAmountCents: int64(it.PaidAmountCents),
		RemainingCents:  int64(it.Remaining()),
		Status:          string(it.Status),
		Locked:          it.Locked,
		LockedReason:    it.LockedReason,
	}
	if it.DueDate != nil {
		dto.DueDate = it.DueDate.String()
	}
	return dto
}

func toItemDTOs(items []schedule.ExpectedPaymentItem) []ItemDTO {
	dtos := make([]ItemDTO, len(items))
	for i, it := range items {
		dtos[i] = toItemDTO(it)
	}
	return dtos
}

func toValidationDTO(r schedule.ValidationResult) ValidationResultDTO {
	return ValidationResultDTO{
		IsValid:  r.IsValid,
		Errors:   toIssueDTOs(r.Errors),
		Warnings: toIssueDTOs(r.Warnings),
	}
}

func toIssueDTOs(issues []schedule.Issue) []IssueDTO {
	dtos := make([]IssueDTO, len(issues))
	for i, is := range issues {
		dtos[i] = IssueDTO{Code: string(is.Code), Message: is.Message, Sequence: is.Sequence}
	}
	return dtos
}

func toTemplateDTO(f *factory.TemplateFactory, t schedule.Template) TemplateDTO {
	dto := TemplateDTO{TemplateJSON: f.ToJSON(t)}
	if !t.CreatedAt.IsZero() {
		dto.CreatedAt = t.CreatedAt.Format(time.RFC3339)
		dto.UpdatedAt = t.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toAuditDTO(e schedule.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		ItemID:    string(e.ItemID),
		Action:    string(e.Action),
		ActorID:   e.ActorID,
		Reason:    e.Reason,
		OldValues: e.OldValues,
		NewValues: e.NewValues,
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
	}
}

// parseOptionalDate returns nil for "".
func parseOptionalDate(s string) (*schedule.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := schedule.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
