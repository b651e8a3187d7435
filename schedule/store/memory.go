// Package store provides in-memory schedule.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/tailfire/payment-engine/schedule"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st *state
}

// state holds the data; its methods assume the caller holds the lock.
type state struct {
	templates map[schedule.TemplateID]schedule.Template
	configs   map[string]schedule.Config // by activity pricing ID
	items     map[schedule.ItemID]string // item -> activity pricing ID
	audit     []schedule.AuditEntry
}

func newState() *state {
	return &state{
		templates: make(map[schedule.TemplateID]schedule.Template),
		configs:   make(map[string]schedule.Config),
		items:     make(map[schedule.ItemID]string),
	}
}

var _ schedule.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

func (m *Memory) SaveTemplate(ctx context.Context, t schedule.Template) (schedule.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveTemplate(ctx, t)
}

func (m *Memory) GetTemplate(ctx context.Context, id schedule.TemplateID) (*schedule.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetTemplate(ctx, id)
}

func (m *Memory) ListTemplates(ctx context.Context, agencyID schedule.AgencyID) ([]schedule.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListTemplates(ctx, agencyID)
}

func (m *Memory) SaveConfig(ctx context.Context, cfg schedule.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveConfig(ctx, cfg)
}

func (m *Memory) GetConfig(ctx context.Context, activityPricingID string) (*schedule.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetConfig(ctx, activityPricingID)
}

func (m *Memory) GetConfigByID(ctx context.Context, id schedule.ConfigID) (*schedule.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetConfigByID(ctx, id)
}

func (m *Memory) DeleteConfig(ctx context.Context, activityPricingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteConfig(ctx, activityPricingID)
}

func (m *Memory) GetItem(ctx context.Context, id schedule.ItemID) (*schedule.ExpectedPaymentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetItem(ctx, id)
}

func (m *Memory) UpdateItem(ctx context.Context, item schedule.ExpectedPaymentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateItem(ctx, item)
}

func (m *Memory) ListOpenItemsDueBefore(ctx context.Context, before schedule.Date) ([]schedule.ExpectedPaymentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListOpenItemsDueBefore(ctx, before)
}

func (m *Memory) ListOpenItemsDueBetween(ctx context.Context, from, to schedule.Date) ([]schedule.ExpectedPaymentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListOpenItemsDueBetween(ctx, from, to)
}

// AppendAudit adds an entry. Append-only.
func (m *Memory) AppendAudit(ctx context.Context, entry schedule.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendAudit(ctx, entry)
}

func (m *Memory) ListAudit(ctx context.Context, configID schedule.ConfigID) ([]schedule.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListAudit(ctx, configID)
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(schedule.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.st); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// =============================================================================
// STATE
// =============================================================================

func (s *state) SaveTemplate(_ context.Context, t schedule.Template) (schedule.Template, error) {
	if prev, ok := s.templates[t.ID]; ok {
		t.Version = prev.Version + 1
		t.CreatedAt = prev.CreatedAt
	} else {
		t.Version = 1
	}
	t.Items = append([]schedule.TemplateItem(nil), t.Items...)
	s.templates[t.ID] = t
	return t, nil
}

func (s *state) GetTemplate(_ context.Context, id schedule.TemplateID) (*schedule.Template, error) {
	t, ok := s.templates[id]
	if !ok {
		return nil, nil
	}
	t.Items = append([]schedule.TemplateItem(nil), t.Items...)
	return &t, nil
}

func (s *state) ListTemplates(_ context.Context, agencyID schedule.AgencyID) ([]schedule.Template, error) {
	var out []schedule.Template
	for _, t := range s.templates {
		if agencyID == "" || t.AgencyID == agencyID {
			t.Items = append([]schedule.TemplateItem(nil), t.Items...)
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *state) SaveConfig(_ context.Context, cfg schedule.Config) error {
	if prev, ok := s.configs[cfg.ActivityPricingID]; ok {
		for _, it := range prev.Items {
			delete(s.items, it.ID)
		}
	}
	cfg = cloneConfig(cfg)
	s.configs[cfg.ActivityPricingID] = cfg
	for _, it := range cfg.Items {
		s.items[it.ID] = cfg.ActivityPricingID
	}
	return nil
}

func (s *state) GetConfig(_ context.Context, activityPricingID string) (*schedule.Config, error) {
	cfg, ok := s.configs[activityPricingID]
	if !ok {
		return nil, nil
	}
	cfg = cloneConfig(cfg)
	return &cfg, nil
}

func (s *state) GetConfigByID(_ context.Context, id schedule.ConfigID) (*schedule.Config, error) {
	for _, cfg := range s.configs {
		if cfg.ID == id {
			cfg = cloneConfig(cfg)
			return &cfg, nil
		}
	}
	return nil, nil
}

func (s *state) DeleteConfig(_ context.Context, activityPricingID string) error {
	cfg, ok := s.configs[activityPricingID]
	if !ok {
		return nil
	}
	for _, it := range cfg.Items {
		delete(s.items, it.ID)
	}
	delete(s.configs, activityPricingID)
	return nil
}

func (s *state) GetItem(_ context.Context, id schedule.ItemID) (*schedule.ExpectedPaymentItem, error) {
	i, cfg := s.findItem(id)
	if i < 0 {
		return nil, nil
	}
	it := cloneItem(cfg.Items[i])
	return &it, nil
}

func (s *state) UpdateItem(_ context.Context, item schedule.ExpectedPaymentItem) error {
	i, cfg := s.findItem(item.ID)
	if i < 0 {
		return schedule.ErrItemNotFound
	}
	cfg.Items[i] = cloneItem(item)
	return nil
}

func (s *state) findItem(id schedule.ItemID) (int, schedule.Config) {
	activity, ok := s.items[id]
	if !ok {
		return -1, schedule.Config{}
	}
	cfg := s.configs[activity]
	for i, it := range cfg.Items {
		if it.ID == id {
			return i, cfg
		}
	}
	return -1, schedule.Config{}
}

func (s *state) ListOpenItemsDueBefore(_ context.Context, before schedule.Date) ([]schedule.ExpectedPaymentItem, error) {
	return s.collect(func(it schedule.ExpectedPaymentItem) bool {
		return (it.Status == schedule.ItemPending || it.Status == schedule.ItemPartial) &&
			it.DueDate.Before(before)
	}), nil
}

func (s *state) ListOpenItemsDueBetween(_ context.Context, from, to schedule.Date) ([]schedule.ExpectedPaymentItem, error) {
	return s.collect(func(it schedule.ExpectedPaymentItem) bool {
		return it.IsOpen() && from.BeforeOrEqual(*it.DueDate) && it.DueDate.BeforeOrEqual(to)
	}), nil
}

// collect returns dated items matching keep, ordered by due date then sequence.
func (s *state) collect(keep func(schedule.ExpectedPaymentItem) bool) []schedule.ExpectedPaymentItem {
	var out []schedule.ExpectedPaymentItem
	for _, cfg := range s.configs {
		for _, it := range cfg.Items {
			if it.DueDate != nil && keep(it) {
				out = append(out, cloneItem(it))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(*out[j].DueDate) {
			return out[i].DueDate.Before(*out[j].DueDate)
		}
		return out[i].SequenceOrder < out[j].SequenceOrder
	})
	return out
}

func (s *state) AppendAudit(_ context.Context, entry schedule.AuditEntry) error {
	s.audit = append(s.audit, entry)
	return nil
}

func (s *state) ListAudit(_ context.Context, configID schedule.ConfigID) ([]schedule.AuditEntry, error) {
	var out []schedule.AuditEntry
	for _, e := range s.audit {
		if e.ConfigID == configID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.templates {
		v.Items = append([]schedule.TemplateItem(nil), v.Items...)
		c.templates[k] = v
	}
	for k, v := range s.configs {
		c.configs[k] = cloneConfig(v)
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	c.audit = append([]schedule.AuditEntry(nil), s.audit...)
	return c
}

func cloneConfig(cfg schedule.Config) schedule.Config {
	items := make([]schedule.ExpectedPaymentItem, len(cfg.Items))
	for i, it := range cfg.Items {
		items[i] = cloneItem(it)
	}
	cfg.Items = items
	if cfg.Guarantee != nil {
		g := *cfg.Guarantee
		cfg.Guarantee = &g
	}
	if cfg.Deposit != nil {
		d := *cfg.Deposit
		cfg.Deposit = &d
	}
	return cfg
}

func cloneItem(it schedule.ExpectedPaymentItem) schedule.ExpectedPaymentItem {
	if it.DueDate != nil {
		d := *it.DueDate
		it.DueDate = &d
	}
	return it
}
