// Package dispatch runs bulk jobs: one job at a time, one recipient at a
// time, with a fixed wait between recipients.
package dispatch

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/cuongbtq/bulksend/internal/domain"
	"github.com/cuongbtq/bulksend/internal/metrics"
	"github.com/cuongbtq/bulksend/internal/progress"
	"github.com/cuongbtq/bulksend/internal/storage"
)

const (
	defaultQueueSize   = 16
	defaultSendTimeout = 60 * time.Second
	storeTimeout       = 5 * time.Second
)

// Sender is the session surface the dispatch loop needs.
type Sender interface {
	Ready() bool
	IsRegistered(ctx context.Context, number string) (bool, error)
	SendText(ctx context.Context, number, text string) error
	SendMedia(ctx context.Context, number string, media *domain.Media, caption string) error
}

// Config holds dispatcher configuration
type Config struct {
	Logger    *slog.Logger
	Sender    Sender
	Store     storage.Store
	Publisher progress.Publisher
	Metrics   metrics.Sink

	DefaultDelay time.Duration
	MinDelay     time.Duration
	MaxDelay     time.Duration
	SendTimeout  time.Duration
	MaxPerMinute int
	QueueSize    int
	Footer       string
	RequireReady bool
	StatusMax    int
	StatusTTL    time.Duration
}

// entry is the live state of a submitted job. Fields other than the job's
// immutable request data are guarded by Dispatcher.mu.
type entry struct {
	job      *domain.Job
	cancel   context.CancelFunc
	canceled bool
}

// Dispatcher owns the job queue and the single worker draining it.
type Dispatcher struct {
	cfg     Config
	logger  *slog.Logger
	sender  Sender
	store   storage.Store
	pub     progress.Publisher
	metrics metrics.Sink
	limiter *rate.Limiter

	queue chan *entry

	mu   sync.RWMutex
	jobs map[string]*entry

	persistMu sync.Mutex

	running   atomic.Bool
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a dispatcher. Call Start to begin draining the queue.
func New(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopSink()
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemory(cfg.StatusMax)
	}

	d := &Dispatcher{
		cfg:     cfg,
		logger:  cfg.Logger,
		sender:  cfg.Sender,
		store:   cfg.Store,
		pub:     cfg.Publisher,
		metrics: cfg.Metrics,
		queue:   make(chan *entry, cfg.QueueSize),
		jobs:    make(map[string]*entry),
		now:     time.Now,
		sleep:   sleepCtx,
	}
	if cfg.MaxPerMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MaxPerMinute)), 1)
	}
	return d
}

// Start runs the dispatch worker until ctx is canceled or Stop is called.
// Jobs still queued at shutdown are marked failed.
func (d *Dispatcher) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.runCancel = cancel
	d.mu.Unlock()
	defer cancel()

	d.logger.Info("Starting dispatcher",
		slog.Int("queue_size", d.cfg.QueueSize),
		slog.Duration("send_timeout", d.cfg.SendTimeout),
		slog.Int("max_per_minute", d.cfg.MaxPerMinute),
	)

	d.running.Store(true)
	d.wg.Add(1)
	go d.workerLoop(runCtx)

	<-runCtx.Done()
	d.mu.Lock()
	d.running.Store(false)
	d.mu.Unlock()
	d.logger.Info("Dispatcher context canceled, stopping...")

	d.wg.Wait()
	d.drainQueue()
	d.logger.Info("Dispatcher stopped")
	return nil
}

// Stop cancels the running job and waits for the worker to exit.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.runCancel
	d.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

// Running reports whether Submit currently accepts jobs.
func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

// QueueLen is the number of jobs waiting behind the running one.
func (d *Dispatcher) QueueLen() int {
	return len(d.queue)
}

func (d *Dispatcher) workerLoop(ctx context.Context) {
	defer d.wg.Done()

	d.logger.Info("Dispatch worker started")
	for {
		// stop wins over queued work
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatch worker stopping - context canceled")
			return
		default:
		}

		select {
		case <-ctx.Done():
			d.logger.Info("Dispatch worker stopping - context canceled")
			return
		case e := <-d.queue:
			d.metrics.QueueDepth(len(d.queue))
			d.runJob(ctx, e)
		}
	}
}

func (d *Dispatcher) runJob(ctx context.Context, e *entry) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic in dispatch worker",
				slog.String("job_id", e.job.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			d.finish(e, domain.JobStatusFailed, errPanic)
		}
	}()
	d.processJob(ctx, e)
}

func (d *Dispatcher) drainQueue() {
	for {
		select {
		case e := <-d.queue:
			d.mu.RLock()
			pending := !e.canceled && e.job.Status == domain.JobStatusPending
			d.mu.RUnlock()
			if pending {
				d.finish(e, domain.JobStatusFailed, domain.ErrDispatcherStopped)
			}
		default:
			d.metrics.QueueDepth(0)
			return
		}
	}
}

// persist writes the entry's current snapshot. Saves are serialized and
// snapshot at write time, so the store always ends with the latest state.
func (d *Dispatcher) persist(e *entry) {
	d.persistMu.Lock()
	defer d.persistMu.Unlock()

	d.mu.RLock()
	snap := e.job.Summary()
	d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := d.store.Save(ctx, snap); err != nil {
		d.logger.Error("Failed to save job",
			slog.String("job_id", snap.ID),
			slog.String("status", snap.Status),
			slog.Any("error", err),
		)
	}
}

func (d *Dispatcher) publish(s progress.Status) {
	if d.pub == nil {
		return
	}
	progress.PublishStatus(d.pub, s)
}
