package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/prom"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/redis"
)

const metaPrefix = "meta_"

// Message is one stream entry delivered to a handler.
type Message struct {
	ID        string
	Data      []byte
	Metadata  map[string]string
	Timestamp time.Time
	// Attempts counts deliveries of this entry, starting at 1.
	Attempts int
}

// Decode unmarshals the JSON payload into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

// MessageHandler processes one message. A nil error acks it; any error
// leaves it pending so it is reclaimed after the visibility timeout.
type MessageHandler func(ctx context.Context, msg *Message) error

type QueueConfig struct {
	Name              string
	ConsumerGroup     string
	ConsumerName      string
	MaxRetries        int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	MaxLen            int64
	EnableDLQ         bool
	// Concurrency is how many messages this consumer handles at once.
	Concurrency int
}

func (c QueueConfig) DLQName() string {
	return c.Name + ":dlq"
}

// Queue is a Redis Streams work queue with a consumer group. Entries that
// stay pending longer than VisibilityTimeout are claimed again; entries
// delivered more than MaxRetries times go to the dead letter stream.
type Queue struct {
	adapter redis.RedisAdapter
	config  QueueConfig
	handler MessageHandler
	slots   chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

type QueueStats struct {
	TotalMessages   int64
	PendingMessages int64
	DeadLetters     int64
	ConsumerCount   int64
}

func NewQueue(adapter redis.RedisAdapter, config QueueConfig) (*Queue, error) {
	if adapter == nil {
		return nil, errors.New("redis adapter is required")
	}
	if config.Name == "" {
		return nil, errors.New("queue name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "default-group"
	}
	if config.ConsumerName == "" {
		config.ConsumerName = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		adapter: adapter,
		config:  config,
		slots:   make(chan struct{}, config.Concurrency),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := adapter.XGroupCreateMkStream(config.Name, config.ConsumerGroup, "0"); err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		cancel()
		return nil, fmt.Errorf("create consumer group %s: %w", config.ConsumerGroup, err)
	}
	return q, nil
}

func (q *Queue) Config() QueueConfig {
	return q.config
}

// Publish appends data to the stream and returns the entry id.
func (q *Queue) Publish(ctx context.Context, data []byte, metadata map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	values := map[string]interface{}{
		"data":      string(data),
		"timestamp": time.Now().Unix(),
	}
	for k, v := range metadata {
		values[metaPrefix+k] = v
	}

	id, err := q.adapter.XAdd(q.config.Name, values)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", q.config.Name, err)
	}
	if q.config.MaxLen > 0 {
		if err := q.adapter.XTrimApprox(q.config.Name, q.config.MaxLen); err != nil {
			logger.Warn("queue trim failed", "queue", q.config.Name, "error", err)
		}
	}
	return id, nil
}

// PublishJSON publishes the JSON encoding of data.
func (q *Queue) PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode queue payload: %w", err)
	}
	return q.Publish(ctx, raw, metadata)
}

// Consume starts the poll loop in the background. It may be called once.
func (q *Queue) Consume(handler MessageHandler) error {
	if handler == nil {
		return errors.New("message handler is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return errors.New("queue consumer already started")
	}
	q.started = true
	q.handler = handler

	q.wg.Add(1)
	go q.consumeLoop()
	return nil
}

func (q *Queue) consumeLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.processNew()
			q.reclaimStuck()
		}
	}
}

// freeSlots is how many more messages may start now. Only the poll loop
// takes slots, so the count cannot shrink before it dispatches.
func (q *Queue) freeSlots() int64 {
	return int64(cap(q.slots) - len(q.slots))
}

func (q *Queue) processNew() {
	count := min(q.config.BatchSize, q.freeSlots())
	if count <= 0 {
		return
	}
	entries, err := q.adapter.XReadGroup(q.config.ConsumerGroup, q.config.ConsumerName, q.config.Name, ">", count)
	if err != nil {
		if !errors.Is(err, redis.NilError) {
			logger.Error("queue read failed", "queue", q.config.Name, "error", err)
		}
		return
	}
	for _, entry := range entries {
		msg := toMessage(entry)
		msg.Attempts = 1
		q.dispatch(msg)
	}
}

// dispatch runs msg on its own goroutine once a slot is free.
func (q *Queue) dispatch(msg *Message) {
	q.slots <- struct{}{}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer func() { <-q.slots }()
		q.handle(msg)
	}()
}

func (q *Queue) reclaimStuck() {
	pending, err := q.adapter.XPendingExt(q.config.Name, q.config.ConsumerGroup, "-", "+", q.config.BatchSize*10)
	if err != nil {
		if !errors.Is(err, redis.NilError) {
			logger.Warn("queue pending scan failed", "queue", q.config.Name, "error", err)
		}
		return
	}

	free := q.freeSlots()
	deliveries := make(map[string]int64)
	var ids []string
	for _, p := range pending {
		if int64(len(ids)) >= free {
			break
		}
		if p.Idle >= q.config.VisibilityTimeout {
			ids = append(ids, p.ID)
			deliveries[p.ID] = p.RetryCount
		}
	}
	if len(ids) == 0 {
		return
	}

	entries, err := q.adapter.XClaim(q.config.Name, q.config.ConsumerGroup, q.config.ConsumerName, q.config.VisibilityTimeout, ids...)
	if err != nil {
		logger.Warn("queue claim failed", "queue", q.config.Name, "error", err)
		return
	}
	for _, entry := range entries {
		msg := toMessage(entry)
		// XCLAIM itself counts as one more delivery
		msg.Attempts = int(deliveries[entry.ID]) + 1
		q.dispatch(msg)
	}
}

func (q *Queue) handle(msg *Message) {
	if msg.Attempts > q.config.MaxRetries {
		q.deadLetter(msg)
		return
	}

	ctx, cancel := context.WithTimeout(q.ctx, q.config.VisibilityTimeout)
	defer cancel()

	if err := q.handler(ctx, msg); err != nil {
		logger.Warn("queue message not processed", "queue", q.config.Name, "id", msg.ID, "attempt", msg.Attempts, "error", err)
		return
	}
	if err := q.ack(msg.ID); err != nil {
		logger.Error("queue ack failed", "queue", q.config.Name, "id", msg.ID, "error", err)
	}
}

func (q *Queue) ack(id string) error {
	return q.adapter.XAck(q.config.Name, q.config.ConsumerGroup, id)
}

func (q *Queue) deadLetter(msg *Message) {
	if q.config.EnableDLQ {
		values := map[string]interface{}{
			"data":           string(msg.Data),
			"original_id":    msg.ID,
			"attempts":       msg.Attempts,
			"failed_at":      time.Now().Unix(),
			"original_queue": q.config.Name,
		}
		for k, v := range msg.Metadata {
			values[metaPrefix+k] = v
		}
		if _, err := q.adapter.XAdd(q.config.DLQName(), values); err != nil {
			// keep it pending so the next sweep tries again
			logger.Error("dead letter publish failed", "queue", q.config.Name, "id", msg.ID, "error", err)
			return
		}
	}
	logger.Warn("queue message dead-lettered", "queue", q.config.Name, "id", msg.ID, "attempts", msg.Attempts, "dlq", q.config.EnableDLQ)
	if err := q.ack(msg.ID); err != nil {
		logger.Error("queue ack failed", "queue", q.config.Name, "id", msg.ID, "error", err)
	}
}

func toMessage(entry redis.StreamMessage) *Message {
	msg := &Message{
		ID:       entry.ID,
		Metadata: make(map[string]string),
	}
	for k, v := range entry.Values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch {
		case k == "data":
			msg.Data = []byte(s)
		case k == "timestamp":
			if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
				msg.Timestamp = time.Unix(unix, 0)
			}
		case strings.HasPrefix(k, metaPrefix):
			msg.Metadata[strings.TrimPrefix(k, metaPrefix)] = s
		}
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg
}

// Stop ends the poll loop and waits for in-flight messages.
func (q *Queue) Stop(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for queue %s to stop", q.config.Name)
	}
}

// GetStats reads stream length, pending count and dead letters, and
// publishes the length as the queue depth gauge.
func (q *Queue) GetStats() (*QueueStats, error) {
	total, err := q.adapter.XLen(q.config.Name)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{TotalMessages: total}

	if pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup); err == nil && pending != nil {
		stats.PendingMessages = pending.Count
		stats.ConsumerCount = int64(len(pending.Consumers))
	}
	if q.config.EnableDLQ {
		if dead, err := q.adapter.XLen(q.config.DLQName()); err == nil {
			stats.DeadLetters = dead
		}
	}

	prom.QueueDepth(q.config.Name, stats.PendingMessages)
	return stats, nil
}
