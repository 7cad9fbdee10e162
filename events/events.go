package events

import (
	"context"
	"sync"
	"time"

	"betpoints/models"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypePointsAwarded       EventType = "points.awarded"
	EventTypePointsDeducted      EventType = "points.deducted"
	EventTypeRankChanged         EventType = "rank.changed"
	EventTypeAchievementUnlocked EventType = "achievement.unlocked"
	EventTypePredictionResolved  EventType = "prediction.resolved"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// PointsAwardedEvent represents a credit applied to a user's balance.
// ReferenceType/ReferenceID carry the transaction's origin (a prediction
// payout, an earning-rule grant) and are empty for plain awards.
type PointsAwardedEvent struct {
	UserID        int64
	PointTypeID   int64
	PointTypeSlug string
	Kind          models.TransactionKind
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	Reason        string
	TransactionID int64
	ReferenceType models.ReferenceType
	ReferenceID   int64
}

func (e PointsAwardedEvent) Type() EventType {
	return EventTypePointsAwarded
}

// PointsDeductedEvent represents a debit applied to a user's balance
type PointsDeductedEvent struct {
	UserID        int64
	PointTypeID   int64
	PointTypeSlug string
	Kind          models.TransactionKind
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	Reason        string
	TransactionID int64
	ReferenceType models.ReferenceType
	ReferenceID   int64
}

func (e PointsDeductedEvent) Type() EventType {
	return EventTypePointsDeducted
}

// RankChangedEvent represents a user's current rank moving to a new tier
type RankChangedEvent struct {
	UserID       int64
	PreviousRank *int64
	NewRank      int64
	NewRankSlug  string
	AchievedAt   time.Time
}

func (e RankChangedEvent) Type() EventType {
	return EventTypeRankChanged
}

// AchievementUnlockedEvent represents a permanent achievement unlock
type AchievementUnlockedEvent struct {
	UserID        int64
	AchievementID int64
	Slug          string
	PointsReward  int64
	UnlockedAt    time.Time
}

func (e AchievementUnlockedEvent) Type() EventType {
	return EventTypeAchievementUnlocked
}

// PredictionResolvedEvent represents a prediction reaching its terminal state
type PredictionResolvedEvent struct {
	PredictionID         int64
	Choice               models.Outcome
	Method               models.ResolutionMethod
	WinnersCount         int
	TotalWinningsAwarded int64
	FailedPayouts        int
}

func (e PredictionResolvedEvent) Type() EventType {
	return EventTypePredictionResolved
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers. Handlers run
// asynchronously; a failing handler must never unwind the operation that
// emitted the event, so panics are logged and swallowed.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// A transactional event bus for holding pending events coupled to the Unit of Work.
// Flushes to the underlying event bus.
type TransactionalBus struct {
	real    *Bus
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// called after successful DB commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	// Events outlive the transaction context that produced them.
	eventCtx := context.Background()

	for _, ev := range b.pending {
		log.WithFields(log.Fields{
			"eventType": ev.Type(),
		}).Debug("Emitting committed event")
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// called after db rollback or to clear state.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
