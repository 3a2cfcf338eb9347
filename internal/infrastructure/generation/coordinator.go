package generation

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/session"
	domainerrors "github.com/AtRiskMedia/lessonforge-go/internal/domain/errors"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/caching"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/metrics"
)

// Task is one pending generation unit of work. All concurrent requests for
// the same cache key share a single task; its done channel is closed exactly
// once when the task resolves.
type Task struct {
	ID         string
	Key        caching.Key
	Request    content.Request
	Fixed      session.FixedAttributes
	Priority   Priority
	Attempts   int
	EnqueuedAt time.Time

	done   chan struct{}
	bundle *content.Bundle
	err    error
	index  int

	// waiters is read by workers for logging while Submit keeps coalescing
	// new callers onto the task, so it must be atomic.
	waiters atomic.Int64
}

// Handle is a caller's view of a submitted task. Wait on Done, then read
// Result.
type Handle struct {
	task *Task
}

// Done is closed when the task resolves, successfully or not.
func (h *Handle) Done() <-chan struct{} { return h.task.done }

// Result returns the resolved bundle or error. Only valid after Done is
// closed.
func (h *Handle) Result() (*content.Bundle, error) {
	return h.task.bundle, h.task.err
}

// Validator is the consistency gate applied to every generated bundle before
// it may be cached. Check returns the (possibly corrected) bundle, or an
// error when the bundle cannot be made consistent.
type Validator interface {
	Check(ctx context.Context, bundle *content.Bundle, fixed session.FixedAttributes) (*content.Bundle, error)
}

// BundleCache is the write-through target for validated bundles.
type BundleCache interface {
	Put(ctx context.Context, key caching.Key, bundle *content.Bundle, ttl time.Duration) error
}

// Config tunes the worker pool and retry policy.
type Config struct {
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	CacheTTL    time.Duration
}

// Coordinator owns the generation pipeline: request coalescing, the priority
// queue, the worker pool, retries, the consistency gate, and the cache
// write-through.
type Coordinator struct {
	mu      sync.Mutex
	pending map[caching.Key]*Task
	queue   taskHeap
	wake    chan struct{}

	backend   Backend
	validator Validator
	cache     BundleCache
	cfg       Config
	logger    *logging.ChanneledLogger
	metrics   *metrics.Metrics
}

// NewCoordinator creates a coordinator. The validator and cache may be nil in
// tests exercising the queue alone.
func NewCoordinator(cfg Config, backend Backend, validator Validator, cache BundleCache, logger *logging.ChanneledLogger, m *metrics.Metrics) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Coordinator{
		pending:   make(map[caching.Key]*Task),
		wake:      make(chan struct{}, 1),
		backend:   backend,
		validator: validator,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

// Start launches the worker pool. Workers drain the queue until ctx is
// cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	c.logger.Generation().Info("Generation coordinator started",
		"workers", c.cfg.Workers, "maxAttempts", c.cfg.MaxAttempts)
	for i := 0; i < c.cfg.Workers; i++ {
		go c.worker(ctx, i)
	}
}

// Submit enqueues a generation task for the request, coalescing onto an
// existing pending task for the same key. A coalesced submit at a higher
// priority promotes the queued task. The returned handle resolves when the
// shared task does.
func (c *Coordinator) Submit(ctx context.Context, req content.Request, fixed session.FixedAttributes, priority Priority) (*Handle, error) {
	key, err := caching.KeyFor(req, fixed)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if t, ok := c.pending[key]; ok {
		t.waiters.Add(1)
		if priority > t.Priority && t.index >= 0 {
			c.metrics.QueueDepth.WithLabelValues(t.Priority.String()).Dec()
			t.Priority = priority
			heap.Fix(&c.queue, t.index)
			c.metrics.QueueDepth.WithLabelValues(priority.String()).Inc()
		}
		c.mu.Unlock()
		c.metrics.TasksCoalesced.Inc()
		c.logger.Generation().Debug("Request coalesced onto pending task",
			"taskId", t.ID, "key", key.String(), "priority", priority.String())
		return &Handle{task: t}, nil
	}

	t := &Task{
		ID:         ulid.Make().String(),
		Key:        key,
		Request:    req.Normalize(),
		Fixed:      fixed,
		Priority:   priority,
		EnqueuedAt: time.Now().UTC(),
		done:       make(chan struct{}),
	}
	t.waiters.Store(1)
	c.pending[key] = t
	heap.Push(&c.queue, t)
	c.mu.Unlock()

	c.metrics.TasksSubmitted.WithLabelValues(priority.String()).Inc()
	c.metrics.QueueDepth.WithLabelValues(priority.String()).Inc()
	c.notify()
	return &Handle{task: t}, nil
}

// PendingCount returns the number of unresolved tasks.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// QueueSnapshot is the admin view of the coordinator.
type QueueSnapshot struct {
	Pending int `json:"pending"`
	Queued  int `json:"queued"`
	Workers int `json:"workers"`
}

// Snapshot reports current queue occupancy.
func (c *Coordinator) Snapshot() QueueSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return QueueSnapshot{
		Pending: len(c.pending),
		Queued:  c.queue.Len(),
		Workers: c.cfg.Workers,
	}
}

func (c *Coordinator) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
		for {
			t := c.dequeue()
			if t == nil {
				break
			}
			c.process(ctx, t)
		}
	}
}

func (c *Coordinator) dequeue() *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue.Len() == 0 {
		return nil
	}
	t := heap.Pop(&c.queue).(*Task)
	c.metrics.QueueDepth.WithLabelValues(t.Priority.String()).Dec()
	return t
}

func (c *Coordinator) process(ctx context.Context, t *Task) {
	start := time.Now()
	c.logger.Generation().Info("Generating content bundle",
		"taskId", t.ID, "skillId", t.Request.SkillID,
		"priority", t.Priority.String(), "waiters", t.waiters.Load(),
		"queuedFor", time.Since(t.EnqueuedAt))

	bundle, err := c.generateWithRetry(ctx, t)
	if err != nil {
		c.metrics.GenerationFailures.Inc()
		c.resolve(t, nil, err)
		return
	}

	if c.validator != nil {
		bundle, err = c.validateWithRegeneration(ctx, t, bundle)
		if err != nil {
			c.resolve(t, nil, err)
			return
		}
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, t.Key, bundle, c.cfg.CacheTTL); err != nil {
			c.logger.Generation().Warn("Cache write-through failed",
				"taskId", t.ID, "error", err.Error())
		}
	}

	c.metrics.GenerationLatency.Observe(time.Since(start).Seconds())
	c.resolve(t, bundle, nil)
}

func (c *Coordinator) generateWithRetry(ctx context.Context, t *Task) (*content.Bundle, error) {
	bo := backoff.NewExponentialBackOff()
	if c.cfg.BackoffBase > 0 {
		bo.InitialInterval = c.cfg.BackoffBase
	}
	if c.cfg.BackoffMax > 0 {
		bo.MaxInterval = c.cfg.BackoffMax
	}
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		t.Attempts = attempt
		bundle, err := c.backend.Generate(ctx, t.Request, t.Fixed)
		if err == nil {
			return bundle, nil
		}
		lastErr = err
		c.logger.Generation().Warn("Generation attempt failed",
			"taskId", t.ID, "attempt", attempt, "error", err.Error())

		if attempt == c.cfg.MaxAttempts {
			break
		}
		c.metrics.GenerationRetries.Inc()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
	return nil, domainerrors.GenerationFailed(t.Attempts, lastErr)
}

// validateWithRegeneration applies the consistency gate. A rejected bundle
// earns exactly one regeneration pass; a second rejection fails the task so
// inconsistent content never reaches the cache.
func (c *Coordinator) validateWithRegeneration(ctx context.Context, t *Task, bundle *content.Bundle) (*content.Bundle, error) {
	checked, err := c.validator.Check(ctx, bundle, t.Fixed)
	if err == nil {
		return checked, nil
	}
	c.metrics.ValidatorRejections.Inc()
	c.logger.Validation().Warn("Bundle rejected by consistency gate, regenerating once",
		"taskId", t.ID, "bundleId", bundle.ID, "error", err.Error())

	regenerated, gerr := c.backend.Generate(ctx, t.Request, t.Fixed)
	if gerr != nil {
		return nil, domainerrors.GenerationFailed(t.Attempts+1, gerr)
	}
	checked, err = c.validator.Check(ctx, regenerated, t.Fixed)
	if err != nil {
		c.metrics.ValidatorRejections.Inc()
		return nil, err
	}
	return checked, nil
}

func (c *Coordinator) resolve(t *Task, bundle *content.Bundle, err error) {
	c.mu.Lock()
	delete(c.pending, t.Key)
	c.mu.Unlock()

	t.bundle = bundle
	t.err = err
	close(t.done)

	if err != nil {
		c.logger.Generation().Error("Generation task failed",
			"taskId", t.ID, "attempts", t.Attempts, "waiters", t.waiters.Load(), "error", err.Error())
		return
	}
	c.logger.Generation().Info("Generation task resolved",
		"taskId", t.ID, "bundleId", bundle.ID, "attempts", t.Attempts, "waiters", t.waiters.Load())
}
