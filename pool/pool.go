// Package pool implements C4: a fixed-size group of Workers, all
// executing the same transformation type, routed to by smallest
// mailbox and supervised one-for-one.
package pool

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/janhicken/schedoscope/driver"
	"github.com/janhicken/schedoscope/transform"
	"github.com/janhicken/schedoscope/worker"
)

// StatusSink and EscalationSink mirror the Worker package's dependency
// interfaces; a Pool fans every Worker's Report/Escalate calls through
// to the single sink supplied at construction (normally the
// Dispatcher), tagging each escalation with the Pool's own name.
type StatusSink interface {
	Report(transform.WorkerStatus)
}

// EscalationSink receives unknown faults the Pool could not itself
// resolve by restarting the offending Worker in place.
type EscalationSink interface {
	Escalate(poolName string, fault worker.Fault)
}

// Pool owns a fixed number of Workers named "{type}-pool", all backed
// by the same driver.Factory. It never grows or shrinks once started.
type Pool struct {
	name        string
	typeName    string
	concurrency int
	factory     driver.Factory
	logger      *slog.Logger

	status     StatusSink
	escalation EscalationSink

	deployLimiter *rate.Limiter

	workers []*worker.Worker

	mu      sync.Mutex
	running bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithDeployRateLimit paces how fast a broadcast DeployCommand is
// enqueued onto the Pool's Workers with a golang.org/x/time/rate
// limiter: up to burst Workers at once, then perSecond per second. It
// does not bound how many Workers run DeployAll at the same time.
func WithDeployRateLimit(perSecond float64, burst int) Option {
	return func(p *Pool) {
		p.deployLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger overrides the Pool's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// New constructs a Pool of concurrency Workers for typeName, named
// "{typeName}-pool" per the Dispatcher's bootstrap convention.
// mailboxCapacity bounds each Worker's queue depth. concurrency must be
// at least 1 — validating that is the caller's responsibility (the
// Dispatcher rejects a non-positive concurrency at bootstrap).
func New(typeName string, concurrency, mailboxCapacity int, factory driver.Factory, status StatusSink, escalation EscalationSink, opts ...Option) *Pool {
	p := &Pool{
		name:        typeName + "-pool",
		typeName:    typeName,
		concurrency: concurrency,
		factory:     factory,
		logger:      slog.Default(),
		status:      status,
		escalation:  escalation,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.workers = make([]*worker.Worker, p.concurrency)
	for i := range p.workers {
		p.workers[i] = worker.New(p.name, i, mailboxCapacity, factory, poolStatusAdapter{p}, poolEscalationAdapter{p}, p.logger)
	}
	return p
}

// Name returns the pool's "{typeName}-pool" name.
func (p *Pool) Name() string { return p.name }

// TypeName returns the transformation type this Pool serves.
func (p *Pool) TypeName() string { return p.typeName }

// Size returns the number of Workers in the pool.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every Worker's event loop in its own goroutine. It
// does not tick them: each Worker boots and then waits for a tick from
// the Dispatcher (or from BootTick) before it dequeues work.
// Start is idempotent.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true

	for _, w := range p.workers {
		go w.Run()
	}
}

// BootTick delivers an activation tick to the Worker at index; an
// out-of-range index is ignored. The Dispatcher ticks Workers directly
// through Worker.Tick; BootTick lets tests and simpler callers do the
// same without a full Dispatcher.
func (p *Pool) BootTick(index int) {
	if index < 0 || index >= len(p.workers) {
		return
	}
	p.workers[index].Tick()
}

// Route enqueues cmd on the Worker with the smallest mailbox, the
// load-balancing policy for this Pool. It returns false if every
// Worker's mailbox was full at the moment of routing.
func (p *Pool) Route(cmd transform.DriverCommand) bool {
	w := p.smallestMailbox()
	if w == nil {
		return false
	}
	return w.Enqueue(cmd)
}

func (p *Pool) smallestMailbox() *worker.Worker {
	var best *worker.Worker
	bestLen := -1
	for _, w := range p.workers {
		l := w.MailboxLen()
		if bestLen == -1 || l < bestLen {
			best = w
			bestLen = l
		}
	}
	return best
}

// Broadcast delivers a DeployCommand to every Worker concurrently via
// golang.org/x/sync/errgroup, pacing concurrency with the configured
// deploy rate limiter if set. It returns once every Worker has
// accepted the command onto its mailbox (not once every deploy has
// finished — completion is observed asynchronously via status reports
// and, if ReplyTo is set, via that channel). A Worker whose mailbox is
// full drops the command with a logged warning.
func (p *Pool) Broadcast(ctx context.Context, cmd transform.DeployCommand, replyTo transform.CallerHandle) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		g.Go(func() error {
			if p.deployLimiter != nil {
				if err := p.deployLimiter.Wait(gctx); err != nil {
					return err
				}
			}
			if !w.Enqueue(transform.DriverCommand{Payload: cmd, ReplyTo: replyTo}) {
				p.logger.Warn("pool: dropped deploy broadcast, mailbox full",
					slog.String("pool", p.name), slog.Int("worker_index", w.Index()))
			}
			return nil
		})
	}
	return g.Wait()
}

// Stop signals every Worker to stop and waits for all of them to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	for _, w := range p.workers {
		w.Stop()
	}
	for _, w := range p.workers {
		<-w.Stopped()
	}
}

// Workers exposes the underlying Workers, read-only; the Dispatcher
// indexes them by WorkerID at bootstrap so its status-routing loop can
// tick the Worker that booted.
func (p *Pool) Workers() []*worker.Worker { return p.workers }

// poolStatusAdapter forwards a Worker's status reports to the Pool's
// own StatusSink.
type poolStatusAdapter struct{ p *Pool }

func (a poolStatusAdapter) Report(st transform.WorkerStatus) {
	if a.p.status != nil {
		a.p.status.Report(st)
	}
}

// poolEscalationAdapter forwards a Worker's unknown-fault escalations
// to the Pool's own EscalationSink, tagging the Pool's name.
type poolEscalationAdapter struct{ p *Pool }

func (a poolEscalationAdapter) Escalate(f worker.Fault) {
	if a.p.escalation != nil {
		a.p.escalation.Escalate(a.p.name, f)
	}
}
