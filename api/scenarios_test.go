/*
scenarios_test.go - Tests for demo scenario loaders

Each scenario must leave the store in a state the rest of the API can use:
templates saved, demo schedules valid, reloads harmless.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailfire/payment-engine/schedule"
	"github.com/tailfire/payment-engine/tico"
)

func newScenarioFixture(t *testing.T) (apiFixture, *Handler) {
	t.Helper()
	f := newAPIFixture(t)
	h := NewHandler(f.svc, nil)
	f.router = NewRouter(h, RouterOptions{EnableScenarios: true})
	return f, h
}

func TestScenario_Presets(t *testing.T) {
	_, h := newScenarioFixture(t)
	ctx := context.Background()

	require.NoError(t, h.loadPresets(ctx))

	templates, err := h.Service.ListTemplates(ctx, "")
	require.NoError(t, err)
	assert.Len(t, templates, len(tico.Presets()))
}

func TestScenario_AgencyDemo(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: Loading the agency demo
	// THEN: Cruise, tour and hotel schedules exist with the expected shapes

	_, h := newScenarioFixture(t)
	ctx := context.Background()

	require.NoError(t, h.loadAgencyDemo(ctx))

	cruise, err := h.Service.GetSchedule(ctx, demoCruise)
	require.NoError(t, err)
	assert.Len(t, cruise.Items, 3)
	assert.Equal(t, schedule.Cents(600000), schedule.SumCents(cruise.Items))
	assert.Equal(t, schedule.TemplateID("standard-3-pay"), cruise.TemplateID)

	tour, err := h.Service.GetSchedule(ctx, demoTour)
	require.NoError(t, err)
	require.Len(t, tour.Items, 2)
	assert.Equal(t, schedule.Cents(50000), tour.Items[0].AmountCents)

	hotel, err := h.Service.GetSchedule(ctx, demoHotel)
	require.NoError(t, err)
	assert.Empty(t, hotel.Items)
	require.NotNil(t, hotel.Guarantee)
	assert.Equal(t, "1111", hotel.Guarantee.CardLast4)
}

func TestScenario_PartiallyPaidReloads(t *testing.T) {
	// GIVEN: The partially-paid scenario, which locks the cruise deposit
	// WHEN: Loading it a second time
	// THEN: The reload succeeds and the deposit stays paid once

	_, h := newScenarioFixture(t)
	ctx := context.Background()

	require.NoError(t, h.loadPartiallyPaid(ctx))
	require.NoError(t, h.loadPartiallyPaid(ctx))

	cruise, err := h.Service.GetSchedule(ctx, demoCruise)
	require.NoError(t, err)
	deposit := cruise.Items[0]
	assert.Equal(t, schedule.ItemPaid, deposit.Status)
	assert.True(t, deposit.Locked)
	assert.Equal(t, deposit.AmountCents, deposit.PaidAmountCents)
}

func TestScenario_Routes(t *testing.T) {
	f, _ := newScenarioFixture(t)

	rec := f.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))

	rec = f.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "agency-demo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/schedules/"+demoTour, nil).Code)

	rec = f.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenario_RoutesDisabledByDefault(t *testing.T) {
	f := newAPIFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/scenarios", nil).Code)
}

func TestScenario_ReloadKeepsPresetVersions(t *testing.T) {
	_, h := newScenarioFixture(t)
	ctx := context.Background()

	require.NoError(t, h.loadAgencyDemo(ctx))
	require.NoError(t, h.loadAgencyDemo(ctx))
	require.NoError(t, h.loadPresets(ctx))

	templates, err := h.Service.ListTemplates(ctx, "")
	require.NoError(t, err)
	require.Len(t, templates, len(tico.Presets()))
	for _, tmpl := range templates {
		assert.Equal(t, 1, tmpl.Version, tmpl.ID)
	}
}
