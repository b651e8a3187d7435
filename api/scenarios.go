/*
scenarios.go - Demo scenario loaders for development and demonstrations

PURPOSE:

	Seeds the store with realistic templates and schedules so the agency UI
	has something to show. Each scenario builds on the built-in presets.

AVAILABLE SCENARIOS:

	presets:         The built-in templates, nothing else
	agency-demo:     Presets plus a 3-pay cruise, a deposit tour and a
	                 card-guaranteed hotel
	partially-paid:  agency-demo with the cruise deposit paid (and locked)

HOW SCENARIOS WORK:
 1. Save the preset templates that are not stored yet
 2. Create schedules for demo activities that have none yet
 3. Optionally record payments

Dates are relative to today, so a scenario is valid whenever it is loaded.
Loading twice is safe: existing demo schedules are left alone.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "agency-demo"}

NOTE:

	Only routed when RouterOptions.EnableScenarios is set (APP_ENV != production).

SEE ALSO:
  - tico/presets.go: Preset template JSON
  - server.go: Scenario routes
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tailfire/payment-engine/schedule"
	"github.com/tailfire/payment-engine/tico"
)

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "presets",
		Name:        "Presets",
		Description: "Built-in payment templates only",
	},
	{
		ID:          "agency-demo",
		Name:        "Agency Demo",
		Description: "Cruise on standard 3-pay, tour with a 20% deposit, hotel on card guarantee",
	},
	{
		ID:          "partially-paid",
		Name:        "Partially Paid",
		Description: "Agency demo with the cruise deposit received",
	},
}

const (
	demoCruise = "demo-cruise"
	demoTour   = "demo-tour"
	demoHotel  = "demo-hotel"
	demoActor  = "demo-loader"
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id" validate:"required"`
	}
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	var err error
	switch req.ScenarioID {
	case "presets":
		err = h.loadPresets(ctx)
	case "agency-demo":
		err = h.loadAgencyDemo(ctx)
	case "partially-paid":
		err = h.loadPartiallyPaid(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}

	h.Log.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadPresets saves the presets that are not stored yet. Existing ones keep
// their version.
func (h *Handler) loadPresets(ctx context.Context) error {
	for _, p := range tico.Presets() {
		_, err := h.Service.GetTemplate(ctx, schedule.TemplateID(p.Key))
		if err == nil {
			continue
		}
		if !errors.Is(err, schedule.ErrTemplateNotFound) {
			return fmt.Errorf("preset %s: %w", p.Key, err)
		}

		tmpl, err := h.TemplateFactory.ParseTemplate(p.JSON)
		if err != nil {
			return fmt.Errorf("preset %s: %w", p.Key, err)
		}
		if _, err := h.Service.SaveTemplate(ctx, tmpl); err != nil {
			return fmt.Errorf("preset %s: %w", p.Key, err)
		}
	}
	return nil
}

func (h *Handler) loadAgencyDemo(ctx context.Context) error {
	if err := h.loadPresets(ctx); err != nil {
		return err
	}

	today := schedule.Today(h.Service.Clock)
	booking := schedule.DatePtr(today)
	departure := schedule.DatePtr(today.AddDays(180))

	// Cruise: standard 3-pay on $6,000
	if err := h.seedIfMissing(ctx, demoCruise, func() (*schedule.Outcome, error) {
		return h.Service.ApplyTemplate(ctx, schedule.ApplyTemplateRequest{
			TemplateID:        "standard-3-pay",
			ActivityPricingID: demoCruise,
			TotalCents:        600000,
			Currency:          "CAD",
			BookingDate:       booking,
			DepartureDate:     departure,
			ActorID:           demoActor,
		})
	}); err != nil {
		return err
	}

	// Tour: 20% deposit on $2,500, partial payments accepted
	if err := h.seedIfMissing(ctx, demoTour, func() (*schedule.Outcome, error) {
		return h.Service.CreateSchedule(ctx, schedule.CreateScheduleRequest{
			ActivityPricingID:    demoTour,
			Type:                 schedule.ScheduleDeposit,
			TotalCents:           250000,
			Currency:             "CAD",
			Deposit:              &schedule.DepositParams{Type: schedule.DepositPercentage, Value: decimal.NewFromInt(20)},
			AllowPartialPayments: true,
			BookingDate:          booking,
			DepartureDate:        departure,
			ActorID:              demoActor,
		})
	}); err != nil {
		return err
	}

	// Hotel: card guarantee, nothing collected up front
	return h.seedIfMissing(ctx, demoHotel, func() (*schedule.Outcome, error) {
		g, err := schedule.NewCreditCardGuarantee("4111 1111 1111 1111", "visa", "Demo Traveller", "DEMO-AUTH", 80000, h.Service.Clock.Now())
		if err != nil {
			return nil, err
		}
		return h.Service.CreateSchedule(ctx, schedule.CreateScheduleRequest{
			ActivityPricingID: demoHotel,
			Type:              schedule.ScheduleGuarantee,
			TotalCents:        80000,
			Currency:          "CAD",
			Guarantee:         g,
			ActorID:           demoActor,
		})
	})
}

func (h *Handler) loadPartiallyPaid(ctx context.Context) error {
	if err := h.loadAgencyDemo(ctx); err != nil {
		return err
	}
	cfg, err := h.Service.GetSchedule(ctx, demoCruise)
	if err != nil {
		return err
	}
	deposit := cfg.Items[0]
	if deposit.Status == schedule.ItemPaid {
		return nil
	}
	_, err = h.Service.RecordPayment(ctx, deposit.ID, deposit.Remaining(), demoActor)
	return err
}

// seedIfMissing runs create unless the activity already has a schedule.
func (h *Handler) seedIfMissing(ctx context.Context, activityPricingID string, create func() (*schedule.Outcome, error)) error {
	_, err := h.Service.GetSchedule(ctx, activityPricingID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, schedule.ErrScheduleNotFound) {
		return err
	}

	out, err := create()
	if err != nil {
		return fmt.Errorf("%s: %w", activityPricingID, err)
	}
	if out.Schedule == nil {
		return fmt.Errorf("%s: demo schedule failed validation with %d errors", activityPricingID, len(out.Validation.Errors))
	}
	return nil
}
