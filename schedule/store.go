/*
store.go - Persistence interface for templates, schedules and the audit log

PURPOSE:
  Defines the interface between the schedule engine and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   Templates, schedules (config + items + guarantee), audit log
  TxStore: Store plus WithTx for all-or-nothing writes

ATOMIC WRITES:
  ApplyTemplate writes the config, every item and an audit entry inside one
  WithTx call. If any write fails, none is visible. A half-written schedule
  is never observable by concurrent readers.

AUDIT LOG:
  Append-only. There is no UpdateAudit or DeleteAudit. Every create,
  update, delete, status change, lock, unlock and template application
  appends one entry holding the before/after snapshots, so the audit writer
  never has to re-derive them.

IMPLEMENTATIONS:
  - schedule/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite
*/
package schedule

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// SaveTemplate inserts or replaces a template. The stored version is
	// incremented on every save; the saved template is returned.
	SaveTemplate(ctx context.Context, t Template) (Template, error)
	GetTemplate(ctx context.Context, id TemplateID) (*Template, error)
	ListTemplates(ctx context.Context, agencyID AgencyID) ([]Template, error)

	// SaveConfig replaces the schedule of cfg.ActivityPricingID, items and
	// guarantee included.
	SaveConfig(ctx context.Context, cfg Config) error
	// GetConfig returns nil, nil when the activity has no schedule.
	GetConfig(ctx context.Context, activityPricingID string) (*Config, error)
	DeleteConfig(ctx context.Context, activityPricingID string) error

	GetItem(ctx context.Context, id ItemID) (*ExpectedPaymentItem, error)
	UpdateItem(ctx context.Context, item ExpectedPaymentItem) error
	// ListOpenItemsDueBefore returns pending/partial items with a due date before `before`.
	ListOpenItemsDueBefore(ctx context.Context, before Date) ([]ExpectedPaymentItem, error)
	// ListOpenItemsDueBetween returns open items due in [from, to].
	ListOpenItemsDueBetween(ctx context.Context, from, to Date) ([]ExpectedPaymentItem, error)
	GetConfigByID(ctx context.Context, id ConfigID) (*Config, error)

	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, configID ConfigID) ([]AuditEntry, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG
// =============================================================================

type AuditAction string

const (
	AuditCreated         AuditAction = "created"
	AuditUpdated         AuditAction = "updated"
	AuditDeleted         AuditAction = "deleted"
	AuditStatusChanged   AuditAction = "status_changed"
	AuditLocked          AuditAction = "locked"
	AuditUnlocked        AuditAction = "unlocked"
	AuditTemplateApplied AuditAction = "template_applied"
)

type AuditEntry struct {
	ID        string
	ConfigID  ConfigID
	ItemID    ItemID // empty for schedule-wide entries
	Action    AuditAction
	ActorID   string
	Reason    string
	OldValues map[string]any
	NewValues map[string]any
	Timestamp time.Time
}
