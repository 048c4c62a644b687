package schedoscope

import (
	"log/slog"

	"github.com/janhicken/schedoscope/driver"
	"github.com/janhicken/schedoscope/ext"
	"github.com/janhicken/schedoscope/middleware"
	"github.com/janhicken/schedoscope/pool"
	"github.com/janhicken/schedoscope/statusbus"
	"github.com/janhicken/schedoscope/store"
	"github.com/janhicken/schedoscope/worker"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// WithConfig sets the Dispatcher's configuration, overriding DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) error {
		d.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger used by the Dispatcher and
// everything it constructs (Pools, Workers, the extension registry).
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = l
		return nil
	}
}

// WithDriverRegistry supplies the driver.Registry the Dispatcher
// consults at bootstrap to construct a Factory for each configured
// transformation type. Required — New fails with ErrNoDriverRegistry
// without it.
func WithDriverRegistry(r *driver.Registry) Option {
	return func(d *Dispatcher) error {
		d.registry = r
		return nil
	}
}

// WithRunStore attaches a run-history audit sink. Append failures are
// logged, never propagated into the routing path.
func WithRunStore(s store.RunStore) Option {
	return func(d *Dispatcher) error {
		d.runStore = s
		return nil
	}
}

// WithStatusPublisher attaches a statusbus.Publisher so every
// WorkerStatus transition also fans out to its Redis pub/sub channel.
func WithStatusPublisher(p *statusbus.Publisher) Option {
	return func(d *Dispatcher) error {
		d.publisher = p
		return nil
	}
}

// WithExtension registers a lifecycle extension. Extensions are
// notified in registration order.
func WithExtension(e ext.Extension) Option {
	return func(d *Dispatcher) error {
		d.pendingExtensions = append(d.pendingExtensions, e)
		return nil
	}
}

// WithMiddleware appends a middleware.Middleware to the chain wrapped
// around every Driver the Dispatcher constructs. Middleware run in the
// order given, outermost first.
func WithMiddleware(m middleware.Middleware) Option {
	return func(d *Dispatcher) error {
		d.mws = append(d.mws, m)
		return nil
	}
}

// WithDeployRateLimit paces, per Pool, how fast a broadcast
// DeployCommand is enqueued onto the Workers (see
// pool.WithDeployRateLimit). It does not bound how many Workers run
// DeployAll at the same time.
func WithDeployRateLimit(perSecond float64, burst int) Option {
	return func(d *Dispatcher) error {
		d.poolOpts = append(d.poolOpts, pool.WithDeployRateLimit(perSecond, burst))
		return nil
	}
}

// WithEscalationHandler registers a callback invoked whenever a Pool
// escalates an unknown (non-restart-eligible) fault. If unset, the
// Dispatcher only logs the escalation — this is the dispatcher's own
// "fail-fast for unknown faults" behavior, since as a library it has
// no process supervisor above it to hand the fault to.
func WithEscalationHandler(fn func(poolName string, fault worker.Fault)) Option {
	return func(d *Dispatcher) error {
		d.escalationHandler = fn
		return nil
	}
}
