package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule    = "@every 1m"
	DefaultMaxAttempts = 5
	defaultBatchSize   = 100
	defaultBackoff     = 30 * time.Second
)

// Handler performs the side effect a task describes
type Handler func(ctx context.Context, task Task) error

// Observer is told about abandoned tasks
type Observer interface {
	ObserveSideEffectFailure(kind string)
}

// Dispatcher retries stored tasks on a cron schedule
type Dispatcher struct {
	store       Store
	schedule    string
	maxAttempts int
	backoff     time.Duration
	observer    Observer
	now         func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler

	sweepMu sync.Mutex
	cron    *cron.Cron
}

type Option func(*Dispatcher)

func WithSchedule(schedule string) Option {
	return func(d *Dispatcher) {
		if schedule != "" {
			d.schedule = schedule
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay; the n-th failure waits base * 2^(n-1)
func WithBackoff(base time.Duration) Option {
	return func(d *Dispatcher) {
		if base > 0 {
			d.backoff = base
		}
	}
}

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func NewDispatcher(store Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		schedule:    DefaultSchedule,
		maxAttempts: DefaultMaxAttempts,
		backoff:     defaultBackoff,
		now:         time.Now,
		handlers:    make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register sets the handler for a task kind, replacing any previous one
func (d *Dispatcher) Register(kind string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = handler
}

// Sweep runs every due task once and returns how many succeeded
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	d.sweepMu.Lock()
	defer d.sweepMu.Unlock()

	tasks, err := d.store.Due(ctx, d.now(), defaultBatchSize)
	if err != nil {
		return 0, err
	}

	succeeded := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			return succeeded, ctx.Err()
		}
		if err := d.run(ctx, task); err != nil {
			d.fail(ctx, task, err)
			continue
		}
		if err := d.store.Complete(ctx, task.ID); err != nil {
			slog.Error("Failed to complete outbox task", "id", task.ID, "kind", task.Kind, "err", err)
			continue
		}
		slog.Info("Outbox task succeeded", "id", task.ID, "kind", task.Kind, "attempts", task.Attempts+1)
		succeeded++
	}
	return succeeded, nil
}

func (d *Dispatcher) run(ctx context.Context, task Task) (err error) {
	d.mu.RLock()
	handler, ok := d.handlers[task.Kind]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for task kind %q", task.Kind)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("outbox handler panicked: %v", r)
		}
	}()
	return handler(ctx, task)
}

func (d *Dispatcher) fail(ctx context.Context, task Task, cause error) {
	attempts := task.Attempts + 1
	if attempts >= d.maxAttempts {
		slog.Error("Outbox task abandoned", "id", task.ID, "kind", task.Kind, "attempts", attempts, "err", cause)
		if d.observer != nil {
			d.observer.ObserveSideEffectFailure(task.Kind)
		}
		if err := d.store.Complete(ctx, task.ID); err != nil {
			slog.Error("Failed to remove abandoned outbox task", "id", task.ID, "err", err)
		}
		return
	}

	next := d.now().Add(d.backoff << (attempts - 1))
	slog.Warn("Outbox task failed, rescheduling", "id", task.ID, "kind", task.Kind, "attempts", attempts, "next", next, "err", cause)
	if err := d.store.Reschedule(ctx, task.ID, attempts, cause.Error(), next); err != nil {
		slog.Error("Failed to reschedule outbox task", "id", task.ID, "err", err)
	}
}

// Start schedules Sweep; the returned error reports an invalid schedule
func (d *Dispatcher) Start(ctx context.Context) error {
	d.cron = cron.New()
	_, err := d.cron.AddFunc(d.schedule, func() {
		if _, err := d.Sweep(ctx); err != nil {
			slog.Error("Outbox sweep failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid outbox schedule %q: %w", d.schedule, err)
	}
	d.cron.Start()
	slog.Info("Outbox dispatcher started", "schedule", d.schedule, "maxAttempts", d.maxAttempts)
	return nil
}

// Stop halts the schedule and waits for a running sweep
func (d *Dispatcher) Stop() {
	if d.cron == nil {
		return
	}
	<-d.cron.Stop().Done()
}
