/*
service.go - Schedule lifecycle: apply, create, lock, pay, sweep, delete

PURPOSE:
  Wires the pure components (Calculator, Resolver, Validator) to storage and
  to the outer collaborators (activity lock, event bus, archive).

APPLY FLOW:
  ┌──────────────────────────────────────────────────────────────────────┐
  │                                                                      │
  │  load       acquire       resolve      assert      validate          │
  │  template ─▶ activity ──▶ amounts  ──▶ resolved ──▶ (tico) ─┐        │
  │             lock          + dates                           │        │
  │                                                             ▼        │
  │                                  invalid ◀──────────── IsValid? ──┐  │
  │                                  (return result,                  │  │
  │                                   write nothing)            valid ▼  │
  │                                                    WithTx: config,   │
  │                                                    items, audit      │
  │                                                             │        │
  │                                                             ▼        │
  │                                                    publish + archive │
  └──────────────────────────────────────────────────────────────────────┘

FAILURE KINDS:
  - Malformed input: InputError, returned before any math
  - Rule failures: ValidationResult with IsValid=false, error is nil
  - Locked schedule / concurrent apply: ErrScheduleLocked / ErrLockBusy
  - Unresolved date at validation: ProgrammingError (never from the resolver)

AFTER COMMIT:
  Events and archive copies are sent once the transaction has committed.
  Their failures are logged; the schedule stays persisted.

SEE ALSO:
  - template.go: Resolver
  - calculator.go: Calculator, DefaultDueDates
  - tico/validator.go: the Validator used in production
*/
package schedule

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	applyLockTTL = 30 * time.Second

	// MinUnlockReasonLength is the shortest accepted justification for unlocking an item.
	MinUnlockReasonLength = 10
)

// Limits carries the numbers the calculator side needs from the rule set.
type Limits struct {
	MaxInstallments     int
	MinFinalPaymentDays int
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store      TxStore
	Validator  Validator
	Calculator Calculator
	Resolver   Resolver

	// FinalPaymentDays positions the last default due date before departure.
	FinalPaymentDays int

	Locker  ActivityLocker
	Events  EventPublisher
	Archive Archiver
	Logger  *zap.Logger
	Clock   Clock
	NewID   func() string
}

// NewService returns a Service with in-process defaults for the optional
// collaborators. Replace Locker, Events and Archive to use real backends.
func NewService(store TxStore, validator Validator, limits Limits, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Store:            store,
		Validator:        validator,
		Calculator:       Calculator{MaxInstallments: limits.MaxInstallments},
		FinalPaymentDays: limits.MinFinalPaymentDays,
		Locker:           NewMemoryLocker(),
		Events:           NopPublisher{},
		Archive:          NopArchiver{},
		Logger:           logger,
		Clock:            SystemClock{},
		NewID:            uuid.NewString,
	}
}

// Outcome is what ApplyTemplate and CreateSchedule return when the input was
// well formed. Schedule is nil when validation failed; nothing was written.
type Outcome struct {
	Validation ValidationResult
	Schedule   *Config
}

// =============================================================================
// TEMPLATES
// =============================================================================

// SaveTemplate validates and stores a template. The store bumps its version.
func (s *Service) SaveTemplate(ctx context.Context, t Template) (Template, error) {
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	now := s.Clock.Now()
	if t.ID == "" {
		t.ID = TemplateID(s.NewID())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	saved, err := s.Store.SaveTemplate(ctx, t)
	if err != nil {
		return Template{}, fmt.Errorf("failed to save template: %w", err)
	}
	s.Logger.Info("template saved",
		zap.String("template_id", string(saved.ID)),
		zap.Int("version", saved.Version),
		zap.Int("items", len(saved.Items)),
	)
	return saved, nil
}

func (s *Service) GetTemplate(ctx context.Context, id TemplateID) (*Template, error) {
	t, err := s.Store.GetTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t, nil
}

func (s *Service) ListTemplates(ctx context.Context, agencyID AgencyID) ([]Template, error) {
	return s.Store.ListTemplates(ctx, agencyID)
}

// =============================================================================
// APPLY TEMPLATE
// =============================================================================

type ApplyTemplateRequest struct {
	TemplateID           TemplateID
	ActivityPricingID    string
	TotalCents           Cents
	Currency             string
	BookingDate          *Date
	DepartureDate        *Date
	AllowPartialPayments bool
	ActorID              string
}

// ApplyTemplate resolves a template for one booking, validates the result and
// persists it only if it is valid. An existing unlocked schedule for the
// same activity is replaced.
func (s *Service) ApplyTemplate(ctx context.Context, req ApplyTemplateRequest) (*Outcome, error) {
	if req.ActivityPricingID == "" {
		return nil, invalid("activity_pricing_id", "required")
	}
	if req.DepartureDate == nil {
		return nil, invalid("departure_date", "required")
	}

	tmpl, err := s.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tmpl.IsActive {
		return nil, invalid("template_id", "template is inactive")
	}

	var out *Outcome
	err = s.withActivityLock(ctx, req.ActivityPricingID, func() error {
		if err := s.ensureReplaceable(ctx, req.ActivityPricingID); err != nil {
			return err
		}

		items, err := s.Resolver.Resolve(*tmpl, ApplyInput{
			TotalCents:    req.TotalCents,
			Currency:      req.Currency,
			BookingDate:   req.BookingDate,
			DepartureDate: req.DepartureDate,
		})
		if err != nil {
			return err
		}

		result, err := s.validate("apply_template", items, req.TotalCents, *req.DepartureDate)
		if err != nil {
			return err
		}
		out = &Outcome{Validation: result}
		if !result.IsValid {
			s.Logger.Info("template application rejected",
				zap.String("template_id", string(tmpl.ID)),
				zap.String("activity_pricing_id", req.ActivityPricingID),
				zap.Stringers("errors", result.Errors),
			)
			return nil
		}

		cfg := Config{
			AgencyID:             tmpl.AgencyID,
			ActivityPricingID:    req.ActivityPricingID,
			ScheduleType:         templateScheduleType(len(items)),
			InstallmentCount:     len(items),
			AllowPartialPayments: req.AllowPartialPayments,
			TotalCents:           req.TotalCents,
			Currency:             req.Currency,
			Items:                items,
			TemplateID:           tmpl.ID,
			TemplateVersion:      tmpl.Version,
		}
		out.Schedule, err = s.persist(ctx, cfg, req.ActorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if out.Schedule != nil {
		s.afterCommit(ctx, EventScheduleApplied, out.Schedule)
	}
	return out, nil
}

// PreviewTemplate resolves and validates without writing anything.
func (s *Service) PreviewTemplate(ctx context.Context, id TemplateID, in ApplyInput) ([]ExpectedPaymentItem, ValidationResult, error) {
	tmpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	items, err := s.Resolver.Resolve(*tmpl, in)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	result, err := s.validate("preview_template", items, in.TotalCents, *in.DepartureDate)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	return items, result, nil
}

// ValidateItems runs the rule set over caller-supplied items.
func (s *Service) ValidateItems(items []ExpectedPaymentItem, total Cents, departure Date) (ValidationResult, error) {
	return s.validate("validate_items", items, total, departure)
}

// =============================================================================
// CREATE SCHEDULE (calculator path)
// =============================================================================

type CreateScheduleRequest struct {
	AgencyID             AgencyID
	ActivityPricingID    string
	Type                 ScheduleType
	TotalCents           Cents
	Currency             string
	Deposit              *DepositParams
	InstallmentCount     int
	AllowPartialPayments bool

	BookingDate   *Date // defaults to today
	DepartureDate *Date
	// DueDates overrides the default spread; one per calculated item.
	DueDates []Date

	Guarantee *CreditCardGuarantee
	ActorID   string
}

// CreateSchedule builds a schedule from the calculator instead of a template.
// Guarantee schedules carry no items and skip the payment-timing rules.
func (s *Service) CreateSchedule(ctx context.Context, req CreateScheduleRequest) (*Outcome, error) {
	if req.ActivityPricingID == "" {
		return nil, invalid("activity_pricing_id", "required")
	}
	if !req.Type.Valid() {
		return nil, invalid("schedule_type", fmt.Sprintf("unknown type %q", req.Type))
	}
	if req.Type == ScheduleGuarantee && req.Guarantee == nil {
		return nil, invalid("guarantee", "required for guarantee schedules")
	}
	if req.Type != ScheduleGuarantee && req.DepartureDate == nil {
		return nil, invalid("departure_date", "required")
	}

	calculated, err := s.Calculator.Calculate(CalculationInput{
		TotalCents:       req.TotalCents,
		Type:             req.Type,
		Deposit:          req.Deposit,
		InstallmentCount: req.InstallmentCount,
	})
	if err != nil {
		return nil, err
	}

	cfg := Config{
		AgencyID:             req.AgencyID,
		ActivityPricingID:    req.ActivityPricingID,
		ScheduleType:         req.Type,
		Deposit:              req.Deposit,
		InstallmentCount:     req.InstallmentCount,
		AllowPartialPayments: req.AllowPartialPayments,
		TotalCents:           req.TotalCents,
		Currency:             req.Currency,
		Guarantee:            req.Guarantee,
	}

	out := &Outcome{Validation: ValidationResult{IsValid: true}}
	if req.Type != ScheduleGuarantee {
		dates, err := s.dueDates(calculated, req)
		if err != nil {
			return nil, err
		}
		cfg.Items = make([]ExpectedPaymentItem, len(calculated))
		for i, c := range calculated {
			due := dates[i]
			cfg.Items[i] = ExpectedPaymentItem{
				Name:          c.Name,
				Kind:          c.Kind,
				AmountCents:   c.AmountCents,
				DueDate:       &due,
				Status:        ItemPending,
				SequenceOrder: c.SequenceOrder,
			}
		}
		out.Validation, err = s.validate("create_schedule", cfg.Items, req.TotalCents, *req.DepartureDate)
		if err != nil {
			return nil, err
		}
		if !out.Validation.IsValid {
			return out, nil
		}
	}

	err = s.withActivityLock(ctx, req.ActivityPricingID, func() error {
		var err error
		out.Schedule, err = s.persist(ctx, cfg, req.ActorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, EventScheduleCreated, out.Schedule)
	return out, nil
}

func (s *Service) dueDates(items []CalculatedItem, req CreateScheduleRequest) ([]Date, error) {
	if len(req.DueDates) > 0 {
		if len(req.DueDates) != len(items) {
			return nil, invalid("due_dates", fmt.Sprintf("expected %d dates, got %d", len(items), len(req.DueDates)))
		}
		return req.DueDates, nil
	}
	booking := Today(s.Clock)
	if req.BookingDate != nil {
		booking = *req.BookingDate
	}
	return DefaultDueDates(items, booking, *req.DepartureDate, s.FinalPaymentDays), nil
}

// =============================================================================
// READ
// =============================================================================

func (s *Service) GetSchedule(ctx context.Context, activityPricingID string) (*Config, error) {
	cfg, err := s.Store.GetConfig(ctx, activityPricingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, activityPricingID)
	}
	return cfg, nil
}

// AuditTrail returns the audit entries of an activity's schedule, oldest first.
func (s *Service) AuditTrail(ctx context.Context, activityPricingID string) ([]AuditEntry, error) {
	cfg, err := s.GetSchedule(ctx, activityPricingID)
	if err != nil {
		return nil, err
	}
	return s.Store.ListAudit(ctx, cfg.ID)
}

// UpcomingItems lists open items due in [from, to].
func (s *Service) UpcomingItems(ctx context.Context, from, to Date) ([]ExpectedPaymentItem, error) {
	return s.Store.ListOpenItemsDueBetween(ctx, from, to)
}

// =============================================================================
// ITEM MUTATIONS
// =============================================================================

// LockItem freezes an item against re-resolution and deletion. Locking a
// locked item is a no-op.
func (s *Service) LockItem(ctx context.Context, id ItemID, actorID, reason string) (*ExpectedPaymentItem, error) {
	if reason == "" {
		reason = "locked"
	}
	it, _, err := s.mutateItem(ctx, id, actorID, func(it *ExpectedPaymentItem, _ *Config) (AuditAction, string, error) {
		if it.Locked {
			return "", "", nil
		}
		it.Locked = true
		it.LockedReason = reason
		return AuditLocked, reason, nil
	})
	return it, err
}

// UnlockItem lifts a lock. The reason is mandatory and lands in the audit log.
func (s *Service) UnlockItem(ctx context.Context, id ItemID, actorID, reason string) (*ExpectedPaymentItem, error) {
	if utf8.RuneCountInString(reason) < MinUnlockReasonLength {
		return nil, invalid("reason", fmt.Sprintf("must be at least %d characters", MinUnlockReasonLength))
	}
	it, _, err := s.mutateItem(ctx, id, actorID, func(it *ExpectedPaymentItem, _ *Config) (AuditAction, string, error) {
		if !it.Locked {
			return "", "", nil
		}
		if it.Status == ItemPaid {
			return "", "", fmt.Errorf("%w: %s is paid", ErrItemLocked, it.ID)
		}
		it.Locked = false
		it.LockedReason = ""
		return AuditUnlocked, reason, nil
	})
	return it, err
}

// RecordPayment posts money against an item. A payment that settles the item
// marks it paid and locks it.
func (s *Service) RecordPayment(ctx context.Context, id ItemID, amount Cents, actorID string) (*ExpectedPaymentItem, error) {
	if amount <= 0 {
		return nil, invalid("amount_cents", "must be positive")
	}
	it, cfg, err := s.mutateItem(ctx, id, actorID, func(it *ExpectedPaymentItem, cfg *Config) (AuditAction, string, error) {
		if it.Status == ItemPaid {
			return "", "", invalid("item_id", "item is already paid")
		}
		remaining := it.Remaining()
		if amount > remaining {
			return "", "", invalid("amount_cents", fmt.Sprintf("exceeds remaining %s", remaining))
		}
		if amount < remaining && !cfg.AllowPartialPayments {
			return "", "", fmt.Errorf("%w: %s remaining on %s", ErrPartialPaymentNotAllowed, remaining, it.ID)
		}

		it.PaidAmountCents += amount
		if it.Remaining() == 0 {
			it.Status = ItemPaid
			it.Locked = true
			it.LockedReason = "paid in full"
		} else if it.DueDate != nil && it.DueDate.Before(Today(s.Clock)) {
			it.Status = ItemOverdue
		} else {
			it.Status = ItemPartial
		}
		return AuditStatusChanged, fmt.Sprintf("payment of %s", amount), nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Event{
		Type:              EventPaymentRecorded,
		ActivityPricingID: cfg.ActivityPricingID,
		ConfigID:          cfg.ID,
		ItemID:            it.ID,
		AmountCents:       amount,
		Currency:          cfg.Currency,
	})
	return it, nil
}

// itemChange edits it in place. An empty action means nothing changed.
type itemChange func(it *ExpectedPaymentItem, cfg *Config) (action AuditAction, reason string, err error)

func (s *Service) mutateItem(ctx context.Context, id ItemID, actorID string, change itemChange) (*ExpectedPaymentItem, *Config, error) {
	var (
		result ExpectedPaymentItem
		parent *Config
	)
	err := s.Store.WithTx(ctx, func(tx Store) error {
		it, err := tx.GetItem(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load item: %w", err)
		}
		if it == nil {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		cfg, err := tx.GetConfigByID(ctx, it.ConfigID)
		if err != nil {
			return fmt.Errorf("failed to load schedule: %w", err)
		}
		if cfg == nil {
			return fmt.Errorf("%w: config %s", ErrScheduleNotFound, it.ConfigID)
		}

		before := *it
		action, reason, err := change(it, cfg)
		if err != nil {
			return err
		}
		result, parent = *it, cfg
		if action == "" {
			return nil
		}

		if err := tx.UpdateItem(ctx, *it); err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}
		return tx.AppendAudit(ctx, AuditEntry{
			ID:        s.NewID(),
			ConfigID:  it.ConfigID,
			ItemID:    it.ID,
			Action:    action,
			ActorID:   actorID,
			Reason:    reason,
			OldValues: snapshotItem(&before),
			NewValues: snapshotItem(it),
			Timestamp: s.Clock.Now(),
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return &result, parent, nil
}

// =============================================================================
// OVERDUE SWEEP
// =============================================================================

// MarkOverdue flags every pending or partial item due before asOf. It returns
// the number of items changed.
func (s *Service) MarkOverdue(ctx context.Context, asOf Date) (int, error) {
	var events []Event
	err := s.Store.WithTx(ctx, func(tx Store) error {
		items, err := tx.ListOpenItemsDueBefore(ctx, asOf)
		if err != nil {
			return fmt.Errorf("failed to list due items: %w", err)
		}

		configs := make(map[ConfigID]*Config)
		now := s.Clock.Now()
		for i := range items {
			it := &items[i]
			if it.Status == ItemOverdue {
				continue
			}
			before := *it
			it.Status = ItemOverdue
			if err := tx.UpdateItem(ctx, *it); err != nil {
				return fmt.Errorf("failed to update item %s: %w", it.ID, err)
			}
			if err := tx.AppendAudit(ctx, AuditEntry{
				ID:        s.NewID(),
				ConfigID:  it.ConfigID,
				ItemID:    it.ID,
				Action:    AuditStatusChanged,
				ActorID:   "system",
				Reason:    "past due as of " + asOf.String(),
				OldValues: snapshotItem(&before),
				NewValues: snapshotItem(it),
				Timestamp: now,
			}); err != nil {
				return err
			}

			cfg, ok := configs[it.ConfigID]
			if !ok {
				if cfg, err = tx.GetConfigByID(ctx, it.ConfigID); err != nil {
					return err
				}
				configs[it.ConfigID] = cfg
			}
			e := Event{Type: EventItemOverdue, ConfigID: it.ConfigID, ItemID: it.ID, AmountCents: it.Remaining()}
			if cfg != nil {
				e.ActivityPricingID = cfg.ActivityPricingID
				e.Currency = cfg.Currency
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, e := range events {
		s.publish(ctx, e)
	}
	if len(events) > 0 {
		s.Logger.Info("items marked overdue", zap.Int("count", len(events)), zap.Stringer("as_of", asOf))
	}
	return len(events), nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteSchedule removes an activity's schedule unless any item is locked.
func (s *Service) DeleteSchedule(ctx context.Context, activityPricingID, actorID string) error {
	var deleted Config
	err := s.withActivityLock(ctx, activityPricingID, func() error {
		return s.Store.WithTx(ctx, func(tx Store) error {
			cfg, err := tx.GetConfig(ctx, activityPricingID)
			if err != nil {
				return fmt.Errorf("failed to load schedule: %w", err)
			}
			if cfg == nil {
				return fmt.Errorf("%w: %s", ErrScheduleNotFound, activityPricingID)
			}
			if cfg.HasProtectedItems() {
				return fmt.Errorf("%w: %s", ErrScheduleLocked, activityPricingID)
			}
			if err := tx.DeleteConfig(ctx, activityPricingID); err != nil {
				return fmt.Errorf("failed to delete schedule: %w", err)
			}
			deleted = *cfg
			return tx.AppendAudit(ctx, AuditEntry{
				ID:        s.NewID(),
				ConfigID:  cfg.ID,
				Action:    AuditDeleted,
				ActorID:   actorID,
				OldValues: snapshotConfig(cfg),
				Timestamp: s.Clock.Now(),
			})
		})
	})
	if err != nil {
		return err
	}

	s.publish(ctx, Event{
		Type:              EventScheduleDeleted,
		ActivityPricingID: activityPricingID,
		ConfigID:          deleted.ID,
	})
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// validate is the only path into the Validator.
func (s *Service) validate(op string, items []ExpectedPaymentItem, total Cents, departure Date) (ValidationResult, error) {
	if err := AssertResolved(op, items); err != nil {
		s.Logger.Error("unresolved item reached validation", zap.String("op", op), zap.Error(err))
		return ValidationResult{}, err
	}
	return s.Validator.Validate(items, total, departure)
}

func (s *Service) ensureReplaceable(ctx context.Context, activityPricingID string) error {
	existing, err := s.Store.GetConfig(ctx, activityPricingID)
	if err != nil {
		return fmt.Errorf("failed to load schedule: %w", err)
	}
	if existing != nil && existing.HasProtectedItems() {
		return fmt.Errorf("%w: %s", ErrScheduleLocked, activityPricingID)
	}
	return nil
}

// persist writes cfg and its audit entry in one transaction, replacing any
// unlocked schedule of the same activity.
func (s *Service) persist(ctx context.Context, cfg Config, actorID string) (*Config, error) {
	now := s.Clock.Now()
	err := s.Store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.GetConfig(ctx, cfg.ActivityPricingID)
		if err != nil {
			return fmt.Errorf("failed to load schedule: %w", err)
		}

		action := AuditCreated
		if existing != nil {
			if existing.HasProtectedItems() {
				return fmt.Errorf("%w: %s", ErrScheduleLocked, cfg.ActivityPricingID)
			}
			action = AuditUpdated
			cfg.ID = existing.ID
			cfg.CreatedAt = existing.CreatedAt
		} else {
			cfg.ID = ConfigID(s.NewID())
			cfg.CreatedAt = now
		}
		if cfg.TemplateID != "" {
			action = AuditTemplateApplied
		}
		cfg.UpdatedAt = now
		for i := range cfg.Items {
			cfg.Items[i].ID = ItemID(s.NewID())
			cfg.Items[i].ConfigID = cfg.ID
		}

		if err := tx.SaveConfig(ctx, cfg); err != nil {
			return fmt.Errorf("failed to save schedule: %w", err)
		}
		return tx.AppendAudit(ctx, AuditEntry{
			ID:        s.NewID(),
			ConfigID:  cfg.ID,
			Action:    action,
			ActorID:   actorID,
			OldValues: snapshotConfig(existing),
			NewValues: snapshotConfig(&cfg),
			Timestamp: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("schedule persisted",
		zap.String("config_id", string(cfg.ID)),
		zap.String("activity_pricing_id", cfg.ActivityPricingID),
		zap.Int("items", len(cfg.Items)),
		zap.Stringer("total", cfg.TotalCents),
	)
	return &cfg, nil
}

func (s *Service) withActivityLock(ctx context.Context, activityPricingID string, fn func() error) error {
	key := "schedule:" + activityPricingID
	token, ok, err := s.Locker.TryLock(ctx, key, applyLockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire schedule lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockBusy, activityPricingID)
	}
	defer func() {
		if err := s.Locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			s.Logger.Warn("failed to release schedule lock", zap.String("key", key), zap.Error(err))
		}
	}()
	return fn()
}

func (s *Service) afterCommit(ctx context.Context, typ EventType, cfg *Config) {
	s.publish(ctx, Event{
		Type:              typ,
		ActivityPricingID: cfg.ActivityPricingID,
		ConfigID:          cfg.ID,
		AmountCents:       cfg.TotalCents,
		Currency:          cfg.Currency,
		TemplateID:        cfg.TemplateID,
		TemplateVersion:   cfg.TemplateVersion,
		ItemCount:         len(cfg.Items),
	})
	if err := s.Archive.ArchiveSchedule(ctx, *cfg); err != nil {
		s.Logger.Warn("failed to archive schedule",
			zap.String("config_id", string(cfg.ID)),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = s.NewID()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.Clock.Now()
	}
	if err := s.Events.Publish(ctx, e); err != nil {
		s.Logger.Warn("failed to publish event",
			zap.String("type", string(e.Type)),
			zap.String("config_id", string(e.ConfigID)),
			zap.Error(err),
		)
	}
}

func templateScheduleType(n int) ScheduleType {
	if n == 1 {
		return ScheduleFull
	}
	return ScheduleInstallments
}
