package schedule

// Snapshots are plain maps so any AuditLog writer can serialize them.

func snapshotConfig(cfg *Config) map[string]any {
	if cfg == nil {
		return nil
	}
	items := make([]map[string]any, len(cfg.Items))
	for i := range cfg.Items {
		items[i] = snapshotItem(&cfg.Items[i])
	}
	snap := map[string]any{
		"id":                     string(cfg.ID),
		"activity_pricing_id":    cfg.ActivityPricingID,
		"schedule_type":          string(cfg.ScheduleType),
		"total_cents":            int64(cfg.TotalCents),
		"currency":               cfg.Currency,
		"allow_partial_payments": cfg.AllowPartialPayments,
		"items":                  items,
	}
	if cfg.TemplateID != "" {
		snap["template_id"] = string(cfg.TemplateID)
		snap["template_version"] = cfg.TemplateVersion
	}
	if cfg.Guarantee != nil {
		snap["guarantee_card_last4"] = cfg.Guarantee.CardLast4
		snap["guarantee_authorized_cents"] = int64(cfg.Guarantee.AuthorizedCents)
	}
	return snap
}

func snapshotItem(it *ExpectedPaymentItem) map[string]any {
	if it == nil {
		return nil
	}
	snap := map[string]any{
		"id":                string(it.ID),
		"name":              it.Name,
		"kind":              string(it.Kind),
		"amount_cents":      int64(it.AmountCents),
		"status":            string(it.Status),
		"sequence_order":    it.SequenceOrder,
		"paid_amount_cents": int64(it.PaidAmountCents),
		"locked":            it.Locked,
	}
	if it.DueDate != nil {
		snap["due_date"] = it.DueDate.String()
	}
	return snap
}
