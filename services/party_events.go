package services

import (
	"context"
	"encoding/json"
	"sync"

	"gatecrawl-backend/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// subscriberBuffer is how many events a slow subscriber may lag before drops.
const subscriberBuffer = 32

// PartyEvents fans party events out to live subscribers. Nothing is replayed.
type PartyEvents interface {
	Publish(ctx context.Context, ev models.PartyEvent)
	Subscribe(ctx context.Context, partyID string) (<-chan models.PartyEvent, func())
}

// MemoryBroker is an in-process observer registry keyed by party id.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[chan models.PartyEvent]struct{}
	log  *zap.Logger
}

func NewMemoryBroker(log *zap.Logger) *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[string]map[chan models.PartyEvent]struct{}),
		log:  log,
	}
}

func (b *MemoryBroker) Publish(_ context.Context, ev models.PartyEvent) {
	partyEventsPublished.WithLabelValues(string(ev.Type)).Inc()
	b.deliver(ev)
}

func (b *MemoryBroker) deliver(ev models.PartyEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[ev.PartyID] {
		select {
		case ch <- ev:
		default:
			b.log.Warn("[EVENTS] subscriber lagging, event dropped",
				zap.String("party", ev.PartyID), zap.String("type", string(ev.Type)))
		}
	}
}

func (b *MemoryBroker) Subscribe(_ context.Context, partyID string) (<-chan models.PartyEvent, func()) {
	ch := make(chan models.PartyEvent, subscriberBuffer)

	b.mu.Lock()
	if b.subs[partyID] == nil {
		b.subs[partyID] = make(map[chan models.PartyEvent]struct{})
	}
	b.subs[partyID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[partyID], ch)
			if len(b.subs[partyID]) == 0 {
				delete(b.subs, partyID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the live subscriber count for a party.
func (b *MemoryBroker) Subscribers(partyID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[partyID])
}

// RedisBroker shares party events between instances over Redis pub/sub.
type RedisBroker struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRedisBroker(rdb *redis.Client, log *zap.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, log: log}
}

func partyChannel(partyID string) string { return "party:" + partyID }

func (b *RedisBroker) Publish(ctx context.Context, ev models.PartyEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error("[EVENTS] marshal event", zap.Error(err))
		return
	}
	if err := b.rdb.Publish(ctx, partyChannel(ev.PartyID), payload).Err(); err != nil {
		b.log.Error("[EVENTS] redis publish failed", zap.String("party", ev.PartyID), zap.Error(err))
		return
	}
	partyEventsPublished.WithLabelValues(string(ev.Type)).Inc()
}

func (b *RedisBroker) Subscribe(ctx context.Context, partyID string) (<-chan models.PartyEvent, func()) {
	sub := b.rdb.Subscribe(ctx, partyChannel(partyID))
	out := make(chan models.PartyEvent, subscriberBuffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev models.PartyEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn("[EVENTS] bad payload on redis channel", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				default:
					b.log.Warn("[EVENTS] subscriber lagging, event dropped", zap.String("party", partyID))
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, cancel
}
