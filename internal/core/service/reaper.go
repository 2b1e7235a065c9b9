package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yndnr/sessiondb/internal/telemetry/logger"
	"github.com/yndnr/sessiondb/pkg/oneshot"
)

// Reaper defaults.
const (
	DefaultReapSchedule = "@every 10m"
	DefaultReapMaxAge   = 24 * time.Hour
	DefaultReapTimeout  = 5 * time.Minute
)

// Reapable removes sessions older than maxAge. *Store implements it.
type Reapable interface {
	Reap(ctx context.Context, maxAge time.Duration) (int64, error)
}

// ReaperConfig configures a Reaper.
type ReaperConfig struct {
	// Schedule is a cron spec or descriptor ("@every 10m", "0 3 * * *").
	// Empty disables scheduled runs; Trigger still works.
	Schedule string

	// MaxAge is the idle age after which a session is reaped.
	MaxAge time.Duration

	// Timeout bounds one run. Zero means DefaultReapTimeout.
	Timeout time.Duration
}

// ReapResult describes one completed reap run.
type ReapResult struct {
	Removed    int64         `json:"removed"`
	MaxAge     time.Duration `json:"max_age"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Reaper triggers Reap on a schedule.
//
// At most one run is in flight. Trigger joins the running one instead of
// starting a second, and every run resolves its promise exactly once.
type Reaper struct {
	store   Reapable
	cfg     ReaperConfig
	logger  logger.Logger
	cron    *cron.Cron
	entryID cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight *oneshot.Promise[ReapResult]
	last     *oneshot.Promise[ReapResult]
}

// NewReaper creates a stopped Reaper. It fails when the schedule does not
// parse or MaxAge is negative.
func NewReaper(store Reapable, cfg ReaperConfig, l logger.Logger) (*Reaper, error) {
	if cfg.MaxAge < 0 {
		return nil, fmt.Errorf("reaper: max age must not be negative, got %s", cfg.MaxAge)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultReapTimeout
	}
	if l == nil {
		l = logger.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Reaper{
		store:  store,
		cfg:    cfg,
		logger: l,
		ctx:    ctx,
		cancel: cancel,
		cron:   cron.New(cron.WithLogger(cronLogger{l})),
	}

	if cfg.Schedule != "" {
		id, err := r.cron.AddFunc(cfg.Schedule, r.scheduled)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("reaper: invalid schedule %q: %w", cfg.Schedule, err)
		}
		r.entryID = id
	}
	return r, nil
}

// MaxAge returns the configured idle age.
func (r *Reaper) MaxAge() time.Duration {
	return r.cfg.MaxAge
}

// Start begins scheduled runs.
func (r *Reaper) Start() {
	r.cron.Start()
	if r.entryID != 0 {
		r.logger.Info("reaper started",
			"schedule", r.cfg.Schedule,
			"max_age", r.cfg.MaxAge,
		)
	}
}

// Stop halts scheduled runs, cancels the in-flight run and waits for it
// to finish or ctx to end.
func (r *Reaper) Stop(ctx context.Context) error {
	// Under mu so no Trigger can pass its ctx check and add to wg after
	// the wait below has started.
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	jobs := r.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-jobs.Done()
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("reaper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the time of the next scheduled run, or zero when there is
// no schedule or the reaper is not started.
func (r *Reaper) Next() time.Time {
	if r.entryID == 0 {
		return time.Time{}
	}
	return r.cron.Entry(r.entryID).Next
}

// Trigger starts a run, or joins the one already in flight, and returns
// its result promise.
//
// The run is detached from ctx cancellation so joined callers are not cut
// short by the first caller; it ends on Stop or the run timeout.
func (r *Reaper) Trigger(ctx context.Context) *oneshot.Promise[ReapResult] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inflight != nil {
		return r.inflight
	}
	if r.ctx.Err() != nil {
		return oneshot.Resolved(ReapResult{}, fmt.Errorf("reaper: stopped"))
	}

	p := oneshot.New[ReapResult]()
	r.inflight = p
	r.wg.Add(1)
	go r.run(context.WithoutCancel(ctx), p)
	return p
}

// LastResult returns the most recent completed run. ok is false until a
// run has completed.
func (r *Reaper) LastResult() (res ReapResult, err error, ok bool) {
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()

	if last == nil {
		return ReapResult{}, nil, false
	}
	return last.Peek()
}

func (r *Reaper) scheduled() {
	_, _ = r.Trigger(r.ctx).Wait(r.ctx)
}

func (r *Reaper) run(ctx context.Context, p *oneshot.Promise[ReapResult]) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	res := ReapResult{
		MaxAge:    r.cfg.MaxAge,
		StartedAt: time.Now(),
	}
	n, err := r.store.Reap(ctx, r.cfg.MaxAge)
	res.Removed = n
	res.FinishedAt = time.Now()

	r.mu.Lock()
	r.inflight = nil
	r.last = p
	p.Resolve(res, err)
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("reap failed", "error", err, "max_age", r.cfg.MaxAge)
	}
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
