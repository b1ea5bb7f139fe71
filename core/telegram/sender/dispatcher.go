package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/callerbot/core/logger"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job, server
	// requested waits included.
	MaxDuration time.Duration
	// Component is the log component of job events; defaults to tg.sender.
	Component string
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher runs outbound calls off the update path: Telegram replies,
// operator reports, Slack posts and analytics events. Failed attempts are
// retried when the error says the call may succeed later.
type Dispatcher struct {
	opts Options
	jobs chan job
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	errs atomic.Uint64
}

// NewDispatcher starts opts.Workers goroutines; zero options get defaults.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}
	if opts.Component == "" {
		opts.Component = "tg.sender"
	}

	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.handleJob(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run without blocking. run must be safe to repeat when
// retries are enabled.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("sender: nil run function")
	}
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of jobs that finally failed.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits until the queued ones are done.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.stop)
		close(d.jobs)
		d.wg.Wait()
	})
}

func (d *Dispatcher) handleJob(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	budget, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	logger.Debug(ctx, d.opts.Component, "send.start", attrs...)

	limit := d.opts.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		err := j.run()
		if err == nil {
			event, level := "send.success", slog.LevelDebug
			if attempt > 1 {
				event, level = "send.retry.success", slog.LevelInfo
			}
			logger.Event(ctx, d.opts.Component, level, event, append(attrs,
				slog.Int("attempt", attempt),
				slog.Duration("duration", logger.RoundMS(time.Since(start))),
			)...)
			return
		}

		f := describe(err)
		stopReason := ""
		switch {
		case !f.retry:
			stopReason = "permanent"
		case attempt >= limit:
			stopReason = "attempts"
		}
		var delay time.Duration
		if stopReason == "" {
			delay = f.wait
			if delay <= 0 {
				delay = d.opts.RetryBackoff * time.Duration(attempt)
			}
			if dl, ok := budget.Deadline(); ok && time.Until(dl) < delay {
				stopReason = "deadline"
			}
		}
		if stopReason == "" {
			logger.Debug(ctx, d.opts.Component, "send.retry.backoff", append(attrs,
				slog.Int("attempt", attempt),
				slog.String("error_kind", f.kind),
				slog.Duration("delay", delay),
			)...)
			if sleep(budget, delay) {
				continue
			}
			stopReason = "deadline"
		}

		d.errs.Add(1)
		fail := append(attrs,
			slog.String("error", redact(err)),
			slog.String("error_kind", f.kind),
			slog.Int("attempts", attempt),
			slog.String("gave_up", stopReason),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
		if f.status != 0 {
			fail = append(fail, slog.Int("http_code", f.status))
		}
		if f.code != "" {
			fail = append(fail, slog.String("error_code", f.code))
		}
		logger.Error(ctx, d.opts.Component, "send.fail", fail...)
		return
	}
}

// sleep waits for delay and reports false when ctx ends first.
func sleep(ctx context.Context, delay time.Duration) bool {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
