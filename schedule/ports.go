package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ACTIVITY LOCKER - One writer per activity schedule
// =============================================================================

// ActivityLocker serializes schedule writes for the same activity across
// processes. See package lock for the Redis implementation.
type ActivityLocker interface {
	// TryLock returns a token when the lock was acquired.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)
	// Unlock releases the lock only if it is still held with token.
	Unlock(ctx context.Context, key, token string) error
}

// MemoryLocker is an in-process ActivityLocker.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryLock
	clock Clock
}

type memoryLock struct {
	token   string
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryLock), clock: SystemClock{}}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = memoryLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *MemoryLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}

// =============================================================================
// EVENTS - Downstream collaborators (invoicing, disclosure documents)
// =============================================================================

type EventType string

const (
	EventScheduleApplied EventType = "schedule.applied"
	EventScheduleCreated EventType = "schedule.created"
	EventScheduleDeleted EventType = "schedule.deleted"
	EventPaymentRecorded EventType = "payment.recorded"
	EventItemOverdue     EventType = "item.overdue"
)

type Event struct {
	ID                string     `json:"id"`
	Type              EventType  `json:"type"`
	ActivityPricingID string     `json:"activity_pricing_id"`
	ConfigID          ConfigID   `json:"config_id"`
	ItemID            ItemID     `json:"item_id,omitempty"`
	AmountCents       Cents      `json:"amount_cents,omitempty"`
	Currency          string     `json:"currency,omitempty"`
	TemplateID        TemplateID `json:"template_id,omitempty"`
	TemplateVersion   int        `json:"template_version,omitempty"`
	ItemCount         int        `json:"item_count,omitempty"`
	OccurredAt        time.Time  `json:"occurred_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// =============================================================================
// ARCHIVE - Compliance copy of every persisted schedule
// =============================================================================

type Archiver interface {
	ArchiveSchedule(ctx context.Context, cfg Config) error
}

// NopArchiver keeps nothing.
type NopArchiver struct{}

func (NopArchiver) ArchiveSchedule(context.Context, Config) error { return nil }
