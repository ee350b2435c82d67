package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/queue"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/redis"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/worker"
)

const (
	HealthInterval  = time.Second * 30
	MetricsInterval = time.Second * 30
	ShutdownTimeout = time.Minute
	highLagPending  = 10_000
)

// Processor handles one queue message.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

type ProcessorOptions struct {
	Queue queue.QueueConfig
	// Consumers is the number of stream consumers in this process.
	Consumers int
	// Workers is the size of the worker pool shared by all consumers.
	Workers int
	// HandlerTimeout bounds how long a consumer waits for a worker.
	HandlerTimeout time.Duration
}

// ProcessorService consumes the job stream and runs messages on a worker
// pool.
type ProcessorService struct {
	adapter   redis.RedisAdapter
	opts      ProcessorOptions
	queues    []*queue.Queue
	processor Processor
	metrics   *ServiceMetrics
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	worker    *worker.WorkerManager
}

func NewProcessorService(adapter redis.RedisAdapter, processor Processor, opts ProcessorOptions) (*ProcessorService, error) {
	if adapter == nil {
		return nil, errors.New("redis adapter is required")
	}
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if opts.Consumers <= 0 {
		opts.Consumers = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = opts.Queue.VisibilityTimeout
	}
	if opts.Queue.Concurrency <= 0 {
		// consumers together keep every worker busy
		opts.Queue.Concurrency = (opts.Workers + opts.Consumers - 1) / opts.Consumers
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorService{
		adapter:   adapter,
		opts:      opts,
		processor: processor,
		metrics:   NewServiceMetrics(),
		ctx:       ctx,
		cancel:    cancel,
		worker:    worker.NewWorkerManager(opts.Workers*int(max(opts.Queue.BatchSize, 1)), opts.Workers, nil),
	}, nil
}

// Start launches the worker pool, the consumers and the background
// reporters. It does not block.
func (s *ProcessorService) Start() error {
	logger.Info("starting processor service", "type", s.processor.GetType(), "consumers", s.opts.Consumers, "workers", s.opts.Workers)

	s.worker.SetWorker(s.workerHandler)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(); err != nil && !errors.Is(err, worker.ErrWorkersTerminated) {
			logger.Error("worker manager stopped", "error", err)
		}
	}()

	for i := 0; i < s.opts.Consumers; i++ {
		cfg := s.opts.Queue
		if cfg.ConsumerName != "" {
			cfg.ConsumerName = fmt.Sprintf("%s-%d", cfg.ConsumerName, i)
		}

		q, err := queue.NewQueue(s.adapter, cfg)
		if err != nil {
			return fmt.Errorf("create consumer %d: %w", i, err)
		}
		if err := q.Consume(s.messageHandler); err != nil {
			return fmt.Errorf("start consumer %d: %w", i, err)
		}
		s.queues = append(s.queues, q)
	}

	s.wg.Add(2)
	go s.metricsReporter()
	go s.healthChecker()
	return nil
}

func (s *ProcessorService) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	stats := s.metrics.Snapshot()
	logger.Info("processor metrics",
		"processed", stats.Processed,
		"failed", stats.Failed,
		"in_flight", stats.InFlight,
		"rate_per_second", stats.RatePerSecond,
		"avg_duration_ms", stats.AvgDuration.Milliseconds(),
		"slowest_ms", stats.Slowest.Milliseconds(),
		"worker_backlog", s.worker.GetUnreadCount(),
		"uptime_seconds", stats.Uptime.Seconds())

	// consumers share one stream, the first one is enough
	if len(s.queues) > 0 {
		if qs, err := s.queues[0].GetStats(); err == nil {
			logger.Info("queue stats", "queue", s.opts.Queue.Name, "total", qs.TotalMessages, "pending", qs.PendingMessages, "dead_letters", qs.DeadLetters)
		}
	}
}

func (s *ProcessorService) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) performHealthCheck() {
	if err := s.adapter.Client().Ping(s.ctx).Err(); err != nil {
		logger.Error("health check failed: redis unreachable", "error", err)
		return
	}
	if len(s.queues) == 0 {
		return
	}
	stats, err := s.queues[0].GetStats()
	if err != nil {
		logger.Warn("health check: queue stats unavailable", "error", err)
		return
	}
	if stats.PendingMessages > highLagPending {
		logger.Warn("health check: queue has high lag", "pending_messages", stats.PendingMessages)
	}
}

// Stop drains the consumers, then the worker pool.
func (s *ProcessorService) Stop() {
	logger.Info("shutting down processor service")
	s.cancel()

	var wg sync.WaitGroup
	for i, q := range s.queues {
		wg.Add(1)
		go func(index int, q *queue.Queue) {
			defer wg.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("error stopping consumer", "consumer", index, "error", err)
			}
		}(i, q)
	}
	wg.Wait()

	s.worker.Exit()
	s.wg.Wait()
	s.reportMetrics()
	logger.Info("processor service stopped")
}

type task struct {
	msg    *queue.Message
	result chan error
	ctx    context.Context
}

// messageHandler hands the message to the worker pool and waits for its
// result so the consumer can ack or leave it pending.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.HandlerTimeout)
	defer cancel()

	t := &task{msg: msg, result: make(chan error, 1), ctx: ctx}
	if !s.worker.Enqueue(t) {
		return errors.New("worker pool is shut down")
	}

	select {
	case err := <-t.result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for worker: %w", ctx.Err())
	}
}

func (s *ProcessorService) workerHandler(workerIndex int, item interface{}) {
	t, ok := item.(*task)
	if !ok {
		logger.Error("invalid task type in worker", "worker", workerIndex)
		return
	}

	select {
	case <-t.ctx.Done():
		logger.Warn("task expired before a worker picked it up", "worker", workerIndex, "id", t.msg.ID)
		return
	default:
	}

	done := s.metrics.Begin()
	err := s.processor.Process(t.ctx, t.msg)
	done(err)
	// buffered, never blocks
	t.result <- err
}
