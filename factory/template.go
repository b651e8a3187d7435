/*
Package factory provides JSON to Go template conversion.

PURPOSE:
  Converts JSON template definitions (agency admin UI, database rows,
  presets) into schedule.Template values and back.

JSON SCHEMA:
  {
    "id": "standard-3-pay",
    "agency_id": "agency-1",
    "name": "Standard 3-pay",
    "is_active": true,
    "items": [
      {"name": "Deposit", "sequence": 1, "percentage": "25", "days_from_booking": 0},
      {"sequence": 2, "fixed_amount_cents": 50000, "days_before_departure": 90},
      {"sequence": 3, "percentage": 50, "days_before_departure": 45}
    ]
  }

EXCLUSIVE FIELDS:
  Each item sets exactly one of percentage / fixed_amount_cents and exactly
  one of days_from_booking / days_before_departure. Both-set and neither-set
  are rejected here, before any amount or date is computed.

USAGE:
  f := factory.NewTemplateFactory()
  tmpl, err := f.ParseTemplate(tico.StandardThreePayJSON("std", "Standard 3-pay"))

SEE ALSO:
  - schedule/template.go: Template, AmountSpec, TimingSpec
  - tico/presets.go: preset template JSON
*/
package factory

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/tailfire/payment-engine/schedule"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TemplateJSON is the JSON representation of a template.
type TemplateJSON struct {
	ID          string             `json:"id,omitempty"`
	AgencyID    string             `json:"agency_id,omitempty"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	IsActive    *bool              `json:"is_active,omitempty"` // default true
	Version     int                `json:"version,omitempty"`
	Items       []TemplateItemJSON `json:"items"`
}

// TemplateItemJSON represents one milestone. Nil means "not set".
type TemplateItemJSON struct {
	Name                string           `json:"name,omitempty"`
	Sequence            int              `json:"sequence,omitempty"` // default: position + 1
	Percentage          *decimal.Decimal `json:"percentage,omitempty"`
	FixedAmountCents    *int64           `json:"fixed_amount_cents,omitempty"`
	DaysFromBooking     *int             `json:"days_from_booking,omitempty"`
	DaysBeforeDeparture *int             `json:"days_before_departure,omitempty"`
}

// =============================================================================
// TEMPLATE FACTORY
// =============================================================================

// TemplateFactory converts JSON templates to Go structs.
type TemplateFactory struct{}

// NewTemplateFactory creates a new template factory.
func NewTemplateFactory() *TemplateFactory {
	return &TemplateFactory{}
}

// ParseTemplate parses a JSON string into a template.
func (f *TemplateFactory) ParseTemplate(jsonStr string) (schedule.Template, error) {
	var tj TemplateJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return schedule.Template{}, &schedule.InputError{Field: "template", Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return f.FromJSON(tj)
}

// FromJSON converts a decoded TemplateJSON and validates the result.
func (f *TemplateFactory) FromJSON(tj TemplateJSON) (schedule.Template, error) {
	t := schedule.Template{
		ID:          schedule.TemplateID(tj.ID),
		AgencyID:    schedule.AgencyID(tj.AgencyID),
		Name:        tj.Name,
		Description: tj.Description,
		IsActive:    tj.IsActive == nil || *tj.IsActive,
		Version:     tj.Version,
		Items:       make([]schedule.TemplateItem, len(tj.Items)),
	}

	for i, ij := range tj.Items {
		item, err := f.parseItem(i, ij)
		if err != nil {
			return schedule.Template{}, err
		}
		t.Items[i] = item
	}

	if err := t.Validate(); err != nil {
		return schedule.Template{}, err
	}
	return t, nil
}

func (f *TemplateFactory) parseItem(i int, ij TemplateItemJSON) (schedule.TemplateItem, error) {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }

	item := schedule.TemplateItem{Name: ij.Name, Sequence: ij.Sequence}
	if item.Sequence == 0 {
		item.Sequence = i + 1
	}

	switch {
	case ij.Percentage != nil && ij.FixedAmountCents != nil:
		return item, &schedule.InputError{Field: field("amount"), Reason: "percentage and fixed_amount_cents are mutually exclusive"}
	case ij.Percentage != nil:
		item.Amount = schedule.Percentage{Value: *ij.Percentage}
	case ij.FixedAmountCents != nil:
		item.Amount = schedule.FixedAmount{Cents: schedule.Cents(*ij.FixedAmountCents)}
	default:
		return item, &schedule.InputError{Field: field("amount"), Reason: "one of percentage or fixed_amount_cents is required"}
	}

	switch {
	case ij.DaysFromBooking != nil && ij.DaysBeforeDeparture != nil:
		return item, &schedule.InputError{Field: field("timing"), Reason: "days_from_booking and days_before_departure are mutually exclusive"}
	case ij.DaysFromBooking != nil:
		item.Timing = schedule.DaysFromBooking{Days: *ij.DaysFromBooking}
	case ij.DaysBeforeDeparture != nil:
		item.Timing = schedule.DaysBeforeDeparture{Days: *ij.DaysBeforeDeparture}
	default:
		return item, &schedule.InputError{Field: field("timing"), Reason: "one of days_from_booking or days_before_departure is required"}
	}
	return item, nil
}

// ToJSON converts a template to its JSON representation.
func (f *TemplateFactory) ToJSON(t schedule.Template) TemplateJSON {
	active := t.IsActive
	tj := TemplateJSON{
		ID:          string(t.ID),
		AgencyID:    string(t.AgencyID),
		Name:        t.Name,
		Description: t.Description,
		IsActive:    &active,
		Version:     t.Version,
		Items:       make([]TemplateItemJSON, len(t.Items)),
	}
	for i, it := range t.Items {
		ij := TemplateItemJSON{Name: it.Name, Sequence: it.Sequence}
		switch a := it.Amount.(type) {
		case schedule.Percentage:
			v := a.Value
			ij.Percentage = &v
		case schedule.FixedAmount:
			v := int64(a.Cents)
			ij.FixedAmountCents = &v
		}
		switch tm := it.Timing.(type) {
		case schedule.DaysFromBooking:
			d := tm.Days
			ij.DaysFromBooking = &d
		case schedule.DaysBeforeDeparture:
			d := tm.Days
			ij.DaysBeforeDeparture = &d
		}
		tj.Items[i] = ij
	}
	return tj
}

// MarshalTemplate renders a template as indented JSON.
func (f *TemplateFactory) MarshalTemplate(t schedule.Template) (string, error) {
	b, err := json.MarshalIndent(f.ToJSON(t), "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
