package factory_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailfire/payment-engine/factory"
	"github.com/tailfire/payment-engine/schedule"
	"github.com/tailfire/payment-engine/tico"
)

func TestParseTemplate_StandardThreePay(t *testing.T) {
	tmpl, err := factory.NewTemplateFactory().ParseTemplate(tico.StandardThreePayJSON("std", "Standard 3-pay"))
	require.NoError(t, err)

	assert.Equal(t, schedule.TemplateID("std"), tmpl.ID)
	assert.True(t, tmpl.IsActive)
	require.Len(t, tmpl.Items, 3)

	first, ok := tmpl.Items[0].Amount.(schedule.Percentage)
	require.True(t, ok)
	assert.True(t, first.Value.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, schedule.DaysFromBooking{Days: 0}, tmpl.Items[0].Timing)
	assert.Equal(t, schedule.DaysBeforeDeparture{Days: 45}, tmpl.Items[2].Timing)
}

func TestParseTemplate_NumericAndStringPercentages(t *testing.T) {
	f := factory.NewTemplateFactory()
	for _, raw := range []string{`25.5`, `"25.5"`} {
		tmpl, err := f.ParseTemplate(`{"name":"x","items":[
			{"percentage":` + raw + `,"days_from_booking":0},
			{"percentage":74.5,"days_before_departure":45}
		]}`)
		require.NoError(t, err, raw)
		assert.True(t, tmpl.Items[0].Amount.(schedule.Percentage).Value.Equal(decimal.RequireFromString("25.5")))
		assert.Equal(t, 2, tmpl.Items[1].Sequence)
	}
}

func TestParseTemplate_FixedAmount(t *testing.T) {
	tmpl, err := factory.NewTemplateFactory().ParseTemplate(`{"name":"fixed","is_active":false,"items":[
		{"fixed_amount_cents":50000,"days_from_booking":0}
	]}`)
	require.NoError(t, err)
	assert.False(t, tmpl.IsActive)
	assert.Equal(t, schedule.FixedAmount{Cents: 50000}, tmpl.Items[0].Amount)
}

func TestParseTemplate_MutuallyExclusiveFields(t *testing.T) {
	// GIVEN: Items setting both or neither of each exclusive pair
	// WHEN: Parsing
	// THEN: Input error naming the offending item, before any math

	cases := map[string]string{
		"both amounts":   `{"percentage":50,"fixed_amount_cents":100,"days_from_booking":0}`,
		"no amount":      `{"days_from_booking":0}`,
		"both timings":   `{"percentage":50,"days_from_booking":0,"days_before_departure":45}`,
		"no timing":      `{"percentage":50}`,
		"null amount":    `{"percentage":null,"fixed_amount_cents":null,"days_from_booking":0}`,
		"percent > 100":  `{"percentage":150,"days_from_booking":0}`,
		"negative fixed": `{"fixed_amount_cents":-1,"days_from_booking":0}`,
	}
	f := factory.NewTemplateFactory()
	for name, item := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.ParseTemplate(`{"name":"x","items":[` + item + `]}`)
			require.Error(t, err)

			var in *schedule.InputError
			require.True(t, errors.As(err, &in), "got %v", err)
			assert.Contains(t, in.Field, "items[0]")
		})
	}
}

func TestParseTemplate_MalformedJSON(t *testing.T) {
	_, err := factory.NewTemplateFactory().ParseTemplate(`{"name":`)
	assert.ErrorIs(t, err, schedule.ErrInvalidInput)
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := factory.NewTemplateFactory()
	original, err := f.ParseTemplate(tico.MonthlyInstallmentsJSON("m3", "3 monthly", 3))
	require.NoError(t, err)

	out, err := f.MarshalTemplate(original)
	require.NoError(t, err)
	again, err := f.ParseTemplate(out)
	require.NoError(t, err)

	require.Len(t, again.Items, len(original.Items))
	for i := range original.Items {
		a := original.Items[i].Amount.(schedule.Percentage).Value
		b := again.Items[i].Amount.(schedule.Percentage).Value
		assert.True(t, a.Equal(b), "item %d: %s != %s", i, a, b)
		assert.Equal(t, original.Items[i].Timing, again.Items[i].Timing)
	}
}
