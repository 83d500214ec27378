// internal/workers/entries/listen-entries/consumer.go
package listenentries

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"frontdesk/internal/common/logger"
	"frontdesk/internal/common/metrics"
	"frontdesk/internal/models"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers subject ids. FirstSeen reports true exactly once per id
// for as long as the id is remembered.
type Deduper interface {
	FirstSeen(ctx context.Context, subjectID string) (bool, error)
}

// MemoryDeduper keeps the most recent ids, evicting the oldest first.
type MemoryDeduper struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	seen     map[string]*list.Element
}

func NewMemoryDeduper(capacity int) *MemoryDeduper {
	if capacity <= 0 {
		capacity = 4096
	}
	return &MemoryDeduper{
		capacity: capacity,
		order:    list.New(),
		seen:     make(map[string]*list.Element, capacity),
	}
}

func (m *MemoryDeduper) FirstSeen(_ context.Context, subjectID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[subjectID]; ok {
		return false, nil
	}
	m.seen[subjectID] = m.order.PushBack(subjectID)
	for m.order.Len() > m.capacity {
		oldest := m.order.Front()
		m.order.Remove(oldest)
		delete(m.seen, oldest.Value.(string))
	}
	return true, nil
}

// Len is the number of remembered ids.
func (m *MemoryDeduper) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// RedisDeduper shares the seen set through SET NX EX, so a terminal that
// restarts does not replay entries it already showed.
type RedisDeduper struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

func NewRedisDeduper(client redis.Cmdable, cfg *DedupeConfig) *RedisDeduper {
	return &RedisDeduper{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
	}
}

func (r *RedisDeduper) FirstSeen(ctx context.Context, subjectID string) (bool, error) {
	first, err := r.client.SetNX(ctx, r.keyPrefix+subjectID, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe set: %w", err)
	}
	return first, nil
}

// EntryHandler is the application's onEntryDetected callback.
type EntryHandler func(ctx context.Context, ev models.EntryEvent)

// Consumer invokes the handler once per subject id. When the seen set cannot
// be consulted the event is delivered anyway.
type Consumer struct {
	dedupe  Deduper
	handler EntryHandler
	logger  logger.Logger
}

func NewConsumer(dedupe Deduper, handler EntryHandler, log logger.Logger) *Consumer {
	return &Consumer{
		dedupe:  dedupe,
		handler: handler,
		logger:  log.WithFields(map[string]interface{}{"component": "entry-consumer"}),
	}
}

// Handle is meant to be passed to Dispatcher.Run.
func (c *Consumer) Handle(ctx context.Context, ev models.EntryEvent) {
	first, err := c.dedupe.FirstSeen(ctx, ev.SubjectID())
	if err != nil {
		c.logger.Warn("dedupe unavailable, delivering entry", map[string]interface{}{
			"entryId": ev.ID,
			"error":   err,
		})
		first = true
	}
	if !first {
		metrics.EntriesDeliveredTotal.WithLabelValues("duplicate").Inc()
		c.logger.Debug("duplicate entry skipped", map[string]interface{}{"entryId": ev.ID})
		return
	}

	metrics.EntriesDeliveredTotal.WithLabelValues("delivered").Inc()
	c.handler(ctx, ev)
}
