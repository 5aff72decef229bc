// Package outbox is the client-side delivery queue: a durable,
// retry-bounded list of messages composed while the real-time channel
// was unavailable, drained in order on reconnect.
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/config"
)

// Item is one composed-but-unsent message.
type Item struct {
	TempID     string    `json:"tempId"`
	MatchID    string    `json:"matchId"`
	Text       string    `json:"text"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Retries    int       `json:"retries"`
}

// Transport delivers a single queued item. Send failures count against
// the item's retry budget; the transport's own timeout semantics apply
// to each attempt.
type Transport interface {
	Connected() bool
	Send(ctx context.Context, item Item) error
}

// Queue is a per-client outbox. All operations are serialized; only one
// drain runs at a time.
type Queue struct {
	store      Store
	mu         sync.Mutex
	items      []Item
	draining   bool
	maxRetries int
	maxAge     time.Duration
}

// Open loads the persisted queue, discarding items older than the stale
// age before they are ever considered for delivery.
func Open(store Store) (*Queue, error) {
	return open(store, time.Now())
}

func open(store Store, now time.Time) (*Queue, error) {
	items, err := store.Load()
	if err != nil {
		return nil, err
	}

	q := &Queue{
		store:      store,
		maxRetries: config.OutboxMaxRetries,
		maxAge:     config.OutboxMaxAge,
	}

	kept := items[:0]
	dropped := 0
	for _, it := range items {
		if now.Sub(it.EnqueuedAt) > q.maxAge {
			dropped++
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept

	if dropped > 0 {
		log.Info().Int("count", dropped).Msg("discarded stale outbox items")
		if err := store.Save(q.items); err != nil {
			return nil, err
		}
	}

	return q, nil
}

// Enqueue appends a message with a locally generated temp id and
// persists immediately.
func (q *Queue) Enqueue(matchID, text string) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := Item{
		TempID:     uuid.NewString(),
		MatchID:    matchID,
		Text:       text,
		EnqueuedAt: time.Now().UTC(),
		Retries:    0,
	}
	q.items = append(q.items, item)

	if err := q.store.Save(q.items); err != nil {
		q.items = q.items[:len(q.items)-1]
		return Item{}, err
	}

	log.Debug().
		Str("tempId", item.TempID).
		Str("matchId", matchID).
		Int("queued", len(q.items)).
		Msg("outbox item enqueued")

	return item, nil
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a snapshot of the queue in enqueue order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Item(nil), q.items...)
}

// Drain attempts delivery of each queued item strictly in enqueue
// order, removing each on success. It is a no-op when a drain is
// already in progress, the transport is disconnected, or the queue is
// empty. On a failed attempt the item's retry counter is incremented;
// an item that reaches the retry ceiling is dropped as undeliverable,
// and the pass stops at the first failure either way: later sends share
// the same connectivity root cause, and retrying them risks reordering
// on partial success.
func (q *Queue) Drain(ctx context.Context, transport Transport) error {
	q.mu.Lock()
	if q.draining || !transport.Connected() || len(q.items) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil || !transport.Connected() {
			// Disconnected mid-pass: remaining items stay queued for the
			// next reconnection.
			return ctx.Err()
		}

		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return nil
		}
		item := q.items[0]
		q.mu.Unlock()

		if err := transport.Send(ctx, item); err != nil {
			return q.recordFailure(item, err)
		}

		q.mu.Lock()
		q.items = q.items[1:]
		saveErr := q.store.Save(q.items)
		q.mu.Unlock()
		if saveErr != nil {
			return saveErr
		}

		log.Debug().Str("tempId", item.TempID).Msg("outbox item delivered")
	}
}

func (q *Queue) recordFailure(item Item, sendErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 || q.items[0].TempID != item.TempID {
		return nil
	}

	q.items[0].Retries++
	if q.items[0].Retries >= q.maxRetries {
		log.Warn().
			Err(sendErr).
			Str("tempId", item.TempID).
			Int("retries", q.items[0].Retries).
			Msg("outbox item dropped after retry ceiling")
		q.items = q.items[1:]
	} else {
		log.Debug().
			Err(sendErr).
			Str("tempId", item.TempID).
			Int("retries", q.items[0].Retries).
			Msg("outbox item delivery failed, stopping drain")
	}

	return q.store.Save(q.items)
}
