/*
Package sqlite provides a SQLite-backed implementation of schedule.TxStore.

PURPOSE:
  Persists templates, payment schedules (config + items + guarantee) and the
  audit log. The same schema maps onto PostgreSQL with minor dialect changes.

KEY TABLES:
  payment_templates:         Agency templates, items stored as JSON (versioned)
  payment_schedule_configs:  One row per activity-pricing record
  expected_payment_items:    Scheduled deposits/installments/balances
  credit_card_guarantees:    Masked card + authorization (last 4 only)
  payment_audit_log:         Append-only change history

APPEND-ONLY ENFORCEMENT:
  The audit table carries triggers that abort any UPDATE or DELETE.
  There is no code path that issues one.

ALL-OR-NOTHING WRITES:
  SaveConfig replaces a schedule's rows inside one SQL transaction. WithTx
  runs a whole service operation (schedule + audit entry) in one transaction;
  reads inside fn go through the same *sql.Tx, so they see the writes made
  earlier in fn.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't block
  the single writer.

USAGE:
  store, err := sqlite.New("./data/payments.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := schedule.NewService(store, validator, limits, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - schedule/store.go: Interface definitions
  - schedule/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tailfire/payment-engine/factory"
	"github.com/tailfire/payment-engine/schedule"
)

// Store implements schedule.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ schedule.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewWithDB wraps an already-migrated database handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Templates
	CREATE TABLE IF NOT EXISTS payment_templates (
		id TEXT PRIMARY KEY,
		agency_id TEXT,
		name TEXT NOT NULL,
		description TEXT,
		items_json TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_templates_agency
		ON payment_templates(agency_id);

	-- Schedules
	CREATE TABLE IF NOT EXISTS payment_schedule_configs (
		id TEXT PRIMARY KEY,
		agency_id TEXT,
		activity_pricing_id TEXT NOT NULL UNIQUE,
		schedule_type TEXT NOT NULL,
		deposit_type TEXT,
		deposit_value TEXT,
		installment_count INTEGER,
		allow_partial_payments INTEGER NOT NULL DEFAULT 0,
		total_cents INTEGER NOT NULL,
		currency TEXT,
		template_id TEXT,
		template_version INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS expected_payment_items (
		id TEXT PRIMARY KEY,
		config_id TEXT NOT NULL REFERENCES payment_schedule_configs(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		due_date TEXT,
		status TEXT NOT NULL,
		sequence_order INTEGER NOT NULL,
		paid_amount_cents INTEGER NOT NULL DEFAULT 0,
		locked INTEGER NOT NULL DEFAULT 0,
		locked_reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_items_config
		ON expected_payment_items(config_id, sequence_order);

	-- Overdue sweep and reminders (hot path)
	CREATE INDEX IF NOT EXISTS idx_items_status_due
		ON expected_payment_items(status, due_date);

	CREATE TABLE IF NOT EXISTS credit_card_guarantees (
		config_id TEXT PRIMARY KEY REFERENCES payment_schedule_configs(id) ON DELETE CASCADE,
		card_last4 TEXT NOT NULL CHECK (length(card_last4) = 4),
		card_brand TEXT,
		cardholder_name TEXT,
		authorization_code TEXT NOT NULL,
		authorized_cents INTEGER NOT NULL,
		authorized_at TEXT NOT NULL
	);

	-- Audit log (append-only, outlives deleted schedules)
	CREATE TABLE IF NOT EXISTS payment_audit_log (
		id TEXT PRIMARY KEY,
		config_id TEXT NOT NULL,
		item_id TEXT,
		action TEXT NOT NULL,
		actor_id TEXT,
		reason TEXT,
		old_values_json TEXT,
		new_values_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_config
		ON payment_audit_log(config_id);

	CREATE TRIGGER IF NOT EXISTS trg_audit_no_update
		BEFORE UPDATE ON payment_audit_log
		BEGIN SELECT RAISE(ABORT, 'payment_audit_log is append-only'); END;

	CREATE TRIGGER IF NOT EXISTS trg_audit_no_delete
		BEFORE DELETE ON payment_audit_log
		BEGIN SELECT RAISE(ABORT, 'payment_audit_log is append-only'); END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERIES - shared by Store and txStore
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// inTx runs fn inside a SQL transaction. Callers hold s.mu.
func (s *Store) inTx(ctx context.Context, fn func(q queries) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) read() queries { return queries{db: s.db} }

// =============================================================================
// TEMPLATES
// =============================================================================

func (s *Store) SaveTemplate(ctx context.Context, t schedule.Template) (schedule.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var saved schedule.Template
	err := s.inTx(ctx, func(q queries) error {
		var err error
		saved, err = q.saveTemplate(ctx, t)
		return err
	})
	return saved, err
}

func (s *Store) GetTemplate(ctx context.Context, id schedule.TemplateID) (*schedule.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().getTemplate(ctx, id)
}

func (s *Store) ListTemplates(ctx context.Context, agencyID schedule.AgencyID) ([]schedule.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().listTemplates(ctx, agencyID)
}

const templateColumns = `id, agency_id, name, description, items_json, is_active, version, created_at, updated_at`

func (q queries) saveTemplate(ctx context.Context, t schedule.Template) (schedule.Template, error) {
	var (
		version   int
		createdAt string
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT version, created_at FROM payment_templates WHERE id = ?`, t.ID,
	).Scan(&version, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		t.Version = 1
	case err != nil:
		return t, fmt.Errorf("failed to load template version: %w", err)
	default:
		t.Version = version + 1
		t.CreatedAt = parseTime(createdAt)
	}

	itemsJSON, err := json.Marshal(factory.NewTemplateFactory().ToJSON(t).Items)
	if err != nil {
		return t, fmt.Errorf("failed to encode template items: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO payment_templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.AgencyID,
		t.Name,
		t.Description,
		string(itemsJSON),
		t.IsActive,
		t.Version,
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		return t, fmt.Errorf("failed to save template: %w", err)
	}
	return t, nil
}

func (q queries) getTemplate(ctx context.Context, id schedule.TemplateID) (*schedule.Template, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM payment_templates WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query template: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	t, err := scanTemplate(rows)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (q queries) listTemplates(ctx context.Context, agencyID schedule.AgencyID) ([]schedule.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM payment_templates`
	var args []any
	if agencyID != "" {
		query += ` WHERE agency_id = ?`
		args = append(args, agencyID)
	}
	query += ` ORDER BY name ASC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []schedule.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func scanTemplate(rows *sql.Rows) (schedule.Template, error) {
	var (
		tj          factory.TemplateJSON
		agencyID    sql.NullString
		description sql.NullString
		itemsJSON   string
		isActive    bool
		createdAt   string
		updatedAt   string
	)
	err := rows.Scan(&tj.ID, &agencyID, &tj.Name, &description, &itemsJSON, &isActive, &tj.Version, &createdAt, &updatedAt)
	if err != nil {
		return schedule.Template{}, fmt.Errorf("failed to scan template: %w", err)
	}
	if err := json.Unmarshal([]byte(itemsJSON), &tj.Items); err != nil {
		return schedule.Template{}, fmt.Errorf("failed to decode template %s items: %w", tj.ID, err)
	}
	tj.AgencyID = agencyID.String
	tj.Description = description.String
	tj.IsActive = &isActive

	t, err := factory.NewTemplateFactory().FromJSON(tj)
	if err != nil {
		return schedule.Template{}, fmt.Errorf("stored template %s is invalid: %w", tj.ID, err)
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (s *Store) SaveConfig(ctx context.Context, cfg schedule.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(q queries) error { return q.saveConfig(ctx, cfg) })
}

func (s *Store) GetConfig(ctx context.Context, activityPricingID string) (*schedule.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().getConfig(ctx, "activity_pricing_id", activityPricingID)
}

func (s *Store) GetConfigByID(ctx context.Context, id schedule.ConfigID) (*schedule.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().getConfig(ctx, "id", string(id))
}

func (s *Store) DeleteConfig(ctx context.Context, activityPricingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(q queries) error { return q.deleteConfig(ctx, activityPricingID) })
}

const configColumns = `id, agency_id, activity_pricing_id, schedule_type, deposit_type, deposit_value,
	installment_count, allow_partial_payments, total_cents, currency, template_id, template_version,
	created_at, updated_at`

const itemColumns = `id, config_id, name, kind, amount_cents, due_date, status, sequence_order,
	paid_amount_cents, locked, locked_reason`

// saveConfig replaces every row of the activity's schedule.
func (q queries) saveConfig(ctx context.Context, cfg schedule.Config) error {
	if err := q.deleteConfig(ctx, cfg.ActivityPricingID); err != nil {
		return err
	}

	var depositType, depositValue sql.NullString
	if cfg.Deposit != nil {
		depositType = sql.NullString{String: string(cfg.Deposit.Type), Valid: true}
		depositValue = sql.NullString{String: cfg.Deposit.Value.String(), Valid: true}
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO payment_schedule_configs (`+configColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cfg.ID,
		cfg.AgencyID,
		cfg.ActivityPricingID,
		cfg.ScheduleType,
		depositType,
		depositValue,
		cfg.InstallmentCount,
		cfg.AllowPartialPayments,
		int64(cfg.TotalCents),
		cfg.Currency,
		nullString(string(cfg.TemplateID)),
		cfg.TemplateVersion,
		formatTime(cfg.CreatedAt),
		formatTime(cfg.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}

	for _, it := range cfg.Items {
		if err := q.insertItem(ctx, it); err != nil {
			return err
		}
	}

	if g := cfg.Guarantee; g != nil {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO credit_card_guarantees
			(config_id, card_last4, card_brand, cardholder_name, authorization_code, authorized_cents, authorized_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			cfg.ID,
			g.CardLast4,
			g.CardBrand,
			g.CardholderName,
			g.AuthorizationCode,
			int64(g.AuthorizedCents),
			formatTime(g.AuthorizedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert guarantee: %w", err)
		}
	}
	return nil
}

func (q queries) insertItem(ctx context.Context, it schedule.ExpectedPaymentItem) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO expected_payment_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		it.ID,
		it.ConfigID,
		it.Name,
		it.Kind,
		int64(it.AmountCents),
		formatDate(it.DueDate),
		it.Status,
		it.SequenceOrder,
		int64(it.PaidAmountCents),
		it.Locked,
		nullString(it.LockedReason),
	)
	if err != nil {
		return fmt.Errorf("failed to insert item %d: %w", it.SequenceOrder, err)
	}
	return nil
}

func (q queries) deleteConfig(ctx context.Context, activityPricingID string) error {
	// Children first so the delete does not depend on the foreign_keys pragma.
	stmts := []string{
		`DELETE FROM expected_payment_items WHERE config_id IN
			(SELECT id FROM payment_schedule_configs WHERE activity_pricing_id = ?)`,
		`DELETE FROM credit_card_guarantees WHERE config_id IN
			(SELECT id FROM payment_schedule_configs WHERE activity_pricing_id = ?)`,
		`DELETE FROM payment_schedule_configs WHERE activity_pricing_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := q.db.ExecContext(ctx, stmt, activityPricingID); err != nil {
			return fmt.Errorf("failed to delete schedule: %w", err)
		}
	}
	return nil
}

// getConfig loads a config by one of its unique columns.
func (q queries) getConfig(ctx context.Context, column, value string) (*schedule.Config, error) {
	var (
		cfg             schedule.Config
		agencyID        sql.NullString
		depositType     sql.NullString
		depositValue    sql.NullString
		installments    sql.NullInt64
		totalCents      int64
		currency        sql.NullString
		templateID      sql.NullString
		templateVersion sql.NullInt64
		createdAt       string
		updatedAt       string
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM payment_schedule_configs WHERE `+column+` = ?`, value,
	).Scan(
		&cfg.ID, &agencyID, &cfg.ActivityPricingID, &cfg.ScheduleType, &depositType, &depositValue,
		&installments, &cfg.AllowPartialPayments, &totalCents, &currency, &templateID, &templateVersion,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}

	cfg.AgencyID = schedule.AgencyID(agencyID.String)
	cfg.InstallmentCount = int(installments.Int64)
	cfg.TotalCents = schedule.Cents(totalCents)
	cfg.Currency = currency.String
	cfg.TemplateID = schedule.TemplateID(templateID.String)
	cfg.TemplateVersion = int(templateVersion.Int64)
	cfg.CreatedAt = parseTime(createdAt)
	cfg.UpdatedAt = parseTime(updatedAt)
	if depositType.Valid {
		v, err := decimal.NewFromString(depositValue.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse deposit value %q: %w", depositValue.String, err)
		}
		cfg.Deposit = &schedule.DepositParams{Type: schedule.DepositType(depositType.String), Value: v}
	}

	if cfg.Items, err = q.queryItems(ctx,
		`SELECT `+itemColumns+` FROM expected_payment_items WHERE config_id = ? ORDER BY sequence_order ASC`,
		cfg.ID,
	); err != nil {
		return nil, err
	}

	if cfg.Guarantee, err = q.getGuarantee(ctx, cfg.ID); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (q queries) getGuarantee(ctx context.Context, id schedule.ConfigID) (*schedule.CreditCardGuarantee, error) {
	var (
		g            schedule.CreditCardGuarantee
		brand        sql.NullString
		holder       sql.NullString
		authorized   int64
		authorizedAt string
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT card_last4, card_brand, cardholder_name, authorization_code, authorized_cents, authorized_at
		FROM credit_card_guarantees WHERE config_id = ?
	`, id).Scan(&g.CardLast4, &brand, &holder, &g.AuthorizationCode, &authorized, &authorizedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query guarantee: %w", err)
	}
	g.CardBrand = brand.String
	g.CardholderName = holder.String
	g.AuthorizedCents = schedule.Cents(authorized)
	g.AuthorizedAt = parseTime(authorizedAt)
	return &g, nil
}

// =============================================================================
// ITEMS
// =============================================================================

func (s *Store) GetItem(ctx context.Context, id schedule.ItemID) (*schedule.ExpectedPaymentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().getItem(ctx, id)
}

func (s *Store) UpdateItem(ctx context.Context, item schedule.ExpectedPaymentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().updateItem(ctx, item)
}

func (s *Store) ListOpenItemsDueBefore(ctx context.Context, before schedule.Date) ([]schedule.ExpectedPaymentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().listOpenItemsDueBefore(ctx, before)
}

func (s *Store) ListOpenItemsDueBetween(ctx context.Context, from, to schedule.Date) ([]schedule.ExpectedPaymentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().listOpenItemsDueBetween(ctx, from, to)
}

func (q queries) getItem(ctx context.Context, id schedule.ItemID) (*schedule.ExpectedPaymentItem, error) {
	items, err := q.queryItems(ctx,
		`SELECT `+itemColumns+` FROM expected_payment_items WHERE id = ?`, id)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

func (q queries) updateItem(ctx context.Context, it schedule.ExpectedPaymentItem) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE expected_payment_items
		SET name = ?, kind = ?, amount_cents = ?, due_date = ?, status = ?, sequence_order = ?,
		    paid_amount_cents = ?, locked = ?, locked_reason = ?
		WHERE id = ?
	`,
		it.Name,
		it.Kind,
		int64(it.AmountCents),
		formatDate(it.DueDate),
		it.Status,
		it.SequenceOrder,
		int64(it.PaidAmountCents),
		it.Locked,
		nullString(it.LockedReason),
		it.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", schedule.ErrItemNotFound, it.ID)
	}
	return nil
}

func (q queries) listOpenItemsDueBefore(ctx context.Context, before schedule.Date) ([]schedule.ExpectedPaymentItem, error) {
	return q.queryItems(ctx, `
		SELECT `+itemColumns+` FROM expected_payment_items
		WHERE status IN ('pending', 'partial') AND due_date IS NOT NULL AND due_date < ?
		ORDER BY due_date ASC, sequence_order ASC
	`, before.String())
}

func (q queries) listOpenItemsDueBetween(ctx context.Context, from, to schedule.Date) ([]schedule.ExpectedPaymentItem, error) {
	return q.queryItems(ctx, `
		SELECT `+itemColumns+` FROM expected_payment_items
		WHERE status IN ('pending', 'partial', 'overdue') AND due_date >= ? AND due_date <= ?
		ORDER BY due_date ASC, sequence_order ASC
	`, from.String(), to.String())
}

func (q queries) queryItems(ctx context.Context, query string, args ...any) ([]schedule.ExpectedPaymentItem, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []schedule.ExpectedPaymentItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanItem(rows *sql.Rows) (schedule.ExpectedPaymentItem, error) {
	var (
		it           schedule.ExpectedPaymentItem
		amount       int64
		paid         int64
		dueDate      sql.NullString
		lockedReason sql.NullString
	)
	err := rows.Scan(
		&it.ID, &it.ConfigID, &it.Name, &it.Kind, &amount, &dueDate, &it.Status,
		&it.SequenceOrder, &paid, &it.Locked, &lockedReason,
	)
	if err != nil {
		return it, fmt.Errorf("failed to scan item: %w", err)
	}
	it.AmountCents = schedule.Cents(amount)
	it.PaidAmountCents = schedule.Cents(paid)
	it.LockedReason = lockedReason.String
	if dueDate.Valid {
		d, err := schedule.ParseDate(dueDate.String)
		if err != nil {
			return it, fmt.Errorf("failed to parse due date %q: %w", dueDate.String, err)
		}
		it.DueDate = &d
	}
	return it, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AppendAudit adds an entry. Append-only.
func (s *Store) AppendAudit(ctx context.Context, entry schedule.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().appendAudit(ctx, entry)
}

// ListAudit returns entries in insertion order. Snapshot values come back
// JSON-decoded, so numbers are float64.
func (s *Store) ListAudit(ctx context.Context, configID schedule.ConfigID) ([]schedule.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().listAudit(ctx, configID)
}

func (q queries) appendAudit(ctx context.Context, e schedule.AuditEntry) error {
	oldJSON, err := marshalValues(e.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshalValues(e.NewValues)
	if err != nil {
		return err
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO payment_audit_log
		(id, config_id, item_id, action, actor_id, reason, old_values_json, new_values_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.ConfigID,
		nullString(string(e.ItemID)),
		e.Action,
		nullString(e.ActorID),
		nullString(e.Reason),
		oldJSON,
		newJSON,
		formatTime(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (q queries) listAudit(ctx context.Context, configID schedule.ConfigID) ([]schedule.AuditEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, config_id, item_id, action, actor_id, reason, old_values_json, new_values_json, created_at
		FROM payment_audit_log
		WHERE config_id = ?
		ORDER BY rowid ASC
	`, configID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []schedule.AuditEntry
	for rows.Next() {
		var (
			e                       schedule.AuditEntry
			itemID, actorID, reason sql.NullString
			oldValues, newValues    sql.NullString
			createdAt               string
		)
		if err := rows.Scan(&e.ID, &e.ConfigID, &itemID, &e.Action, &actorID, &reason, &oldValues, &newValues, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.ItemID = schedule.ItemID(itemID.String)
		e.ActorID = actorID.String
		e.Reason = reason.String
		e.Timestamp = parseTime(createdAt)
		if e.OldValues, err = unmarshalValues(oldValues); err != nil {
			return nil, err
		}
		if e.NewValues, err = unmarshalValues(newValues); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (schedule.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store schedule.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(q queries) error {
		return fn(&txStore{q: q})
	})
}

type txStore struct {
	q queries
}

func (ts *txStore) SaveTemplate(ctx context.Context, t schedule.Template) (schedule.Template, error) {
	return ts.q.saveTemplate(ctx, t)
}

func (ts *txStore) GetTemplate(ctx context.Context, id schedule.TemplateID) (*schedule.Template, error) {
	return ts.q.getTemplate(ctx, id)
}

func (ts *txStore) ListTemplates(ctx context.Context, agencyID schedule.AgencyID) ([]schedule.Template, error) {
	return ts.q.listTemplates(ctx, agencyID)
}

func (ts *txStore) SaveConfig(ctx context.Context, cfg schedule.Config) error {
	return ts.q.saveConfig(ctx, cfg)
}

func (ts *txStore) GetConfig(ctx context.Context, activityPricingID string) (*schedule.Config, error) {
	return ts.q.getConfig(ctx, "activity_pricing_id", activityPricingID)
}

func (ts *txStore) GetConfigByID(ctx context.Context, id schedule.ConfigID) (*schedule.Config, error) {
	return ts.q.getConfig(ctx, "id", string(id))
}

func (ts *txStore) DeleteConfig(ctx context.Context, activityPricingID string) error {
	return ts.q.deleteConfig(ctx, activityPricingID)
}

func (ts *txStore) GetItem(ctx context.Context, id schedule.ItemID) (*schedule.ExpectedPaymentItem, error) {
	return ts.q.getItem(ctx, id)
}

func (ts *txStore) UpdateItem(ctx context.Context, item schedule.ExpectedPaymentItem) error {
	return ts.q.updateItem(ctx, item)
}

func (ts *txStore) ListOpenItemsDueBefore(ctx context.Context, before schedule.Date) ([]schedule.ExpectedPaymentItem, error) {
	return ts.q.listOpenItemsDueBefore(ctx, before)
}

func (ts *txStore) ListOpenItemsDueBetween(ctx context.Context, from, to schedule.Date) ([]schedule.ExpectedPaymentItem, error) {
	return ts.q.listOpenItemsDueBetween(ctx, from, to)
}

func (ts *txStore) AppendAudit(ctx context.Context, entry schedule.AuditEntry) error {
	return ts.q.appendAudit(ctx, entry)
}

func (ts *txStore) ListAudit(ctx context.Context, configID schedule.ConfigID) ([]schedule.AuditEntry, error) {
	return ts.q.listAudit(ctx, configID)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func formatDate(d *schedule.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func marshalValues(v map[string]any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode audit values: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalValues(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, fmt.Errorf("failed to decode audit values: %w", err)
	}
	return v, nil
}
