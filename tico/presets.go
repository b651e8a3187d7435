package tico

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Preset template JSON, ready for factory.ParseTemplate. Every preset keeps
// its final payment at least MinFinalPaymentDays (default rules) before
// departure. They are built as JSON to avoid an import cycle with factory.
//
//   jsonStr := tico.StandardThreePayJSON("std-3pay", "Standard 3-pay")
//   tmpl, err := factory.ParseTemplate(jsonStr)

type Preset struct {
	Key  string
	Name string
	JSON string
}

// Presets lists the built-in templates.
func Presets() []Preset {
	return []Preset{
		{Key: "standard-3-pay", Name: "Standard 3-pay", JSON: StandardThreePayJSON("standard-3-pay", "Standard 3-pay")},
		{Key: "deposit-balance", Name: "20% deposit, balance at 45 days", JSON: DepositBalanceJSON("deposit-balance", "20% deposit, balance at 45 days", decimal.NewFromInt(20), 45)},
		{Key: "full-at-final", Name: "Pay in full at 60 days", JSON: FullAtFinalJSON("full-at-final", "Pay in full at 60 days", 60)},
		{Key: "monthly-4", Name: "4 monthly payments", JSON: MonthlyInstallmentsJSON("monthly-4", "4 monthly payments", 4)},
	}
}

// StandardThreePayJSON: 25% at booking, 25% 90 days out, 50% 45 days out.
func StandardThreePayJSON(id, name string) string {
	return templateJSON(id, name, "25% at booking, 25% at 90 days, 50% at 45 days", []map[string]any{
		{"name": "Deposit", "sequence": 1, "percentage": "25", "days_from_booking": 0},
		{"name": "Second payment", "sequence": 2, "percentage": "25", "days_before_departure": 90},
		{"name": "Final payment", "sequence": 3, "percentage": "50", "days_before_departure": 45},
	})
}

// DepositBalanceJSON: pct at booking, the rest finalDays before departure.
func DepositBalanceJSON(id, name string, pct decimal.Decimal, finalDays int) string {
	return templateJSON(id, name, "", []map[string]any{
		{"name": "Deposit", "sequence": 1, "percentage": pct.String(), "days_from_booking": 0},
		{"name": "Balance", "sequence": 2, "percentage": decimal.NewFromInt(100).Sub(pct).String(), "days_before_departure": finalDays},
	})
}

// FullAtFinalJSON: one payment daysBefore departure.
func FullAtFinalJSON(id, name string, daysBefore int) string {
	return templateJSON(id, name, "", []map[string]any{
		{"name": "Full payment", "sequence": 1, "percentage": "100", "days_before_departure": daysBefore},
	})
}

// MonthlyInstallmentsJSON: n payments 30 days apart from booking, the last
// one 45 days before departure. Percentages are rounded to two places with
// the remainder on the last payment so they add up to exactly 100.
func MonthlyInstallmentsJSON(id, name string, n int) string {
	hundred := decimal.NewFromInt(100)
	share := hundred.DivRound(decimal.NewFromInt(int64(n)), 2)
	if share.Mul(decimal.NewFromInt(int64(n))).GreaterThan(hundred) {
		share = share.Sub(decimal.New(1, -2))
	}

	items := make([]map[string]any, n)
	allocated := decimal.Zero
	for i := 0; i < n; i++ {
		item := map[string]any{
			"name":     fmt.Sprintf("Payment %d of %d", i+1, n),
			"sequence": i + 1,
		}
		if i == n-1 {
			item["percentage"] = hundred.Sub(allocated).String()
			item["days_before_departure"] = 45
		} else {
			item["percentage"] = share.String()
			item["days_from_booking"] = 30 * i
			allocated = allocated.Add(share)
		}
		items[i] = item
	}
	return templateJSON(id, name, "", items)
}

func templateJSON(id, name, description string, items []map[string]any) string {
	tj := map[string]any{
		"id":          id,
		"name":        name,
		"description": description,
		"is_active":   true,
		"items":       items,
	}
	// Only strings, ints, bools and maps of them: marshalling cannot fail.
	b, _ := json.MarshalIndent(tj, "", "  ")
	return string(b)
}
