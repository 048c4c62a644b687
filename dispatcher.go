package schedoscope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/janhicken/schedoscope/backoff"
	"github.com/janhicken/schedoscope/driver"
	"github.com/janhicken/schedoscope/ext"
	"github.com/janhicken/schedoscope/middleware"
	"github.com/janhicken/schedoscope/pool"
	"github.com/janhicken/schedoscope/statusbus"
	"github.com/janhicken/schedoscope/store"
	"github.com/janhicken/schedoscope/transform"
	"github.com/janhicken/schedoscope/worker"
)

// workerRef is everything the Dispatcher's event loop needs to know
// about a Worker beyond its latest WorkerStatus: which Pool and
// transformation type it belongs to, and a handle to deliver it a tick.
type workerRef struct {
	typeName string
	poolName string
	worker   *worker.Worker
}

// routedMessage is a command awaiting routing to the Pool matching its
// transformation type (or, for a DeployCommand, broadcast to all Pools).
type routedMessage struct {
	payload any
	replyTo transform.CallerHandle
}

// escalation is an unknown (non-restart-eligible) fault forwarded by a
// Pool's supervisor.
type escalation struct {
	poolName string
	fault    worker.Fault
}

// Dispatcher is the root coordinator (C5): it bootstraps one Pool per
// configured transformation type, routes every inbound command to the
// right Pool, and runs manage_driver_lifecycle — the backoff-paced
// restart loop that reactivates a Worker with a "tick" after it reboots.
//
// Dispatcher runs its own single-threaded event loop on a dedicated
// goroutine; all of its own state (driverStates, backoffs, workerIndex)
// is touched only from that goroutine, so none of it needs locking.
type Dispatcher struct {
	config   Config
	logger   *slog.Logger
	registry *driver.Registry

	runStore  store.RunStore
	publisher *statusbus.Publisher

	extensions        *ext.Registry
	pendingExtensions []ext.Extension
	mws               []middleware.Middleware
	poolOpts          []pool.Option
	escalationHandler func(poolName string, fault worker.Fault)

	pools       map[string]*pool.Pool
	workerIndex map[string]workerRef

	// driverStates and backoffs are DispatcherState (§3): in-memory only,
	// owned exclusively by the event-loop goroutine, never persisted.
	driverStates map[string]transform.WorkerStatus
	backoffs     map[string]*backoff.State
	runStarts    map[string]time.Time

	cmdCh      chan routedMessage
	statusCh   chan transform.WorkerStatus
	escalateCh chan escalation
	tickCh     chan string
	snapshotCh chan chan transform.TransformationStatusListResponse
	done       chan struct{}

	mu      sync.Mutex
	started bool
}

// New constructs a Dispatcher, bootstrapping one Pool per configured
// transformation type. A driver.Registry (WithDriverRegistry) and at
// least one configured type are required.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		config:       DefaultConfig(),
		logger:       slog.Default(),
		pools:        make(map[string]*pool.Pool),
		workerIndex:  make(map[string]workerRef),
		driverStates: make(map[string]transform.WorkerStatus),
		backoffs:     make(map[string]*backoff.State),
		runStarts:    make(map[string]time.Time),
		cmdCh:        make(chan routedMessage, 256),
		statusCh:     make(chan transform.WorkerStatus, 1024),
		escalateCh:   make(chan escalation, 64),
		tickCh:       make(chan string, 256),
		snapshotCh:   make(chan chan transform.TransformationStatusListResponse),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.registry == nil {
		return nil, ErrNoDriverRegistry
	}

	d.extensions = ext.NewRegistry(d.logger)
	for _, e := range d.pendingExtensions {
		d.extensions.Register(e)
	}

	if err := d.bootstrap(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) bootstrap() error {
	if len(d.config.Types) == 0 {
		return ErrNoTransformationTypes
	}

	chain := middleware.Chain(d.mws...)
	for typeName, cfg := range d.config.Types {
		factory, err := d.registry.Factory(typeName)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnknownTransformationType, typeName)
		}
		if cfg.Concurrency < 1 {
			return fmt.Errorf("%w: %s has concurrency %d", ErrInvalidConcurrency, typeName, cfg.Concurrency)
		}

		poolOpts := append([]pool.Option{pool.WithLogger(d.logger)}, d.poolOpts...)
		p := pool.New(typeName, cfg.Concurrency, d.config.MailboxCapacity, wrapDriverFactory(factory, chain), d, d, poolOpts...)
		d.pools[typeName] = p

		for _, w := range p.Workers() {
			d.workerIndex[w.ID().String()] = workerRef{typeName: typeName, poolName: p.Name(), worker: w}
		}
	}
	return nil
}

// wrapDriverFactory adapts factory so every Driver it builds runs
// behind the Dispatcher's middleware chain, applied once at
// construction time rather than per call — Workers rebuild their
// Driver via Factory on every restart, so the chain is re-applied on
// every restart too, which is the correct behavior for middleware like
// tracing that should observe the fresh driver instance.
func wrapDriverFactory(factory driver.Factory, chain middleware.Middleware) driver.Factory {
	return func() (driver.Driver, error) {
		d, err := factory()
		if err != nil {
			return nil, err
		}
		return middleware.Wrap(d, chain), nil
	}
}

// Start launches the Dispatcher's event loop and every Pool's Workers.
// Calling Start while the Dispatcher is running returns ErrAlreadyStarted.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrAlreadyStarted
	}
	d.started = true

	go d.loop()
	for _, p := range d.pools {
		p.Start()
	}
	return nil
}

// Stop signals every Pool to stop, waits up to Config.ShutdownTimeout
// for it, then halts the event loop and closes the run-history store.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return ErrNotStarted
	}
	d.started = false
	d.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, d.config.ShutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, p := range d.pools {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Stop()
		}()
	}
	doneStopping := make(chan struct{})
	go func() { wg.Wait(); close(doneStopping) }()

	select {
	case <-doneStopping:
	case <-stopCtx.Done():
		d.logger.Warn("schedoscope: shutdown timeout elapsed waiting for pools to stop")
	}

	close(d.done)
	d.extensions.EmitShutdown(ctx)

	if d.runStore != nil {
		return d.runStore.Close()
	}
	return nil
}

// loop is the Dispatcher's single-threaded event loop. All Dispatcher
// operations here are O(1) or O(pools+workers) and never block on
// Driver work — suspension only ever happens inside a Worker.
func (d *Dispatcher) loop() {
	for {
		select {
		case msg := <-d.cmdCh:
			d.handleRouted(msg)
		case st := <-d.statusCh:
			d.manageDriverLifecycle(st)
		case e := <-d.escalateCh:
			d.handleEscalation(e)
		case workerID := <-d.tickCh:
			d.deliverTick(workerID)
		case req := <-d.snapshotCh:
			d.handleSnapshot(req)
		case <-d.done:
			return
		}
	}
}

// Report implements pool.StatusSink; every Pool forwards its Workers'
// status transitions here.
func (d *Dispatcher) Report(st transform.WorkerStatus) {
	select {
	case d.statusCh <- st:
	case <-d.done:
	}
}

// Escalate implements pool.EscalationSink; an unknown fault a Pool
// could not resolve by restarting the offending Worker lands here.
func (d *Dispatcher) Escalate(poolName string, fault worker.Fault) {
	select {
	case d.escalateCh <- escalation{poolName: poolName, fault: fault}:
	case <-d.done:
	}
}

func (d *Dispatcher) handleEscalation(e escalation) {
	d.logger.Error("schedoscope: unknown fault escalated, dispatcher is fail-fast for unrecoverable faults",
		slog.String("pool", e.poolName), slog.String("error", e.fault.Error()))
	d.extensions.EmitWorkerEscalated(context.Background(), e.poolName, e.fault)
	if d.escalationHandler != nil {
		d.escalationHandler(e.poolName, e.fault)
	}
}

func (d *Dispatcher) handleSnapshot(req chan transform.TransformationStatusListResponse) {
	states := make([]transform.WorkerStatus, 0, len(d.driverStates))
	for _, st := range d.driverStates {
		states = append(states, st)
	}
	req <- transform.TransformationStatusListResponse{States: states}
}

func (d *Dispatcher) deliverTick(workerID string) {
	ref, ok := d.workerIndex[workerID]
	if !ok {
		return
	}
	ref.worker.Tick()
}

// manageDriverLifecycle is the heart of the backoff loop (§4.5). It
// records the latest status unconditionally, activates a newly booted
// Worker immediately on its first boot, paces every subsequent reboot
// by that Worker's backoff.State, and appends a RunRecord for any status
// that concludes a run.
func (d *Dispatcher) manageDriverLifecycle(status transform.WorkerStatus) {
	d.driverStates[status.WorkerID] = status
	d.publishStatus(status)

	ref, known := d.workerIndex[status.WorkerID]

	switch status.Message {
	case transform.MessageRunning:
		d.runStarts[status.WorkerID] = status.Timestamp
		if known && status.Current != nil {
			d.extensions.EmitTransformationStarted(context.Background(), status.WorkerID, *status.Current)
		}

	case transform.MessageBooted:
		if known {
			d.extensions.EmitWorkerBooted(context.Background(), status.WorkerID, ref.poolName)
		}
		state, exists := d.backoffs[status.WorkerID]
		if !exists {
			cfg := d.config.Types[ref.typeName]
			d.backoffs[status.WorkerID] = backoff.New(cfg.BackoffSlotTime, cfg.BackoffMinimumDelay)
			ref.worker.Tick()
			break
		}

		if known {
			d.extensions.EmitWorkerRestarted(context.Background(), status.WorkerID, restartFault(ref))
		}
		state.Next()
		if known {
			d.extensions.EmitDriverLifecycleTicked(context.Background(), ref.typeName, state.CurrentWait, state.Retries)
		}
		d.scheduleTick(status.WorkerID, state.CurrentWait)

	case transform.MessageFailed:
		if known {
			d.extensions.EmitTransformationRetrying(context.Background(), status.WorkerID, transformationOf(status), restartFault(ref))
		}
		d.recordRun(status, ref, known)
	}

	if status.Message == transform.MessageIdle && status.Outcome != nil {
		d.recordRun(status, ref, known)
	}
}

// publishStatus forwards status to the dashboard publisher, if any, on
// its own goroutine with a bounded timeout — the publisher's own
// contract requires that callers on the status-processing loop never
// stall waiting on an unreachable subscriber.
func (d *Dispatcher) publishStatus(status transform.WorkerStatus) {
	if d.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.publisher.Publish(ctx, status)
	}()
}

// restartFault synthesizes a worker.Fault describing the reboot/retry
// the Dispatcher just observed. transform.WorkerStatus carries no Fault
// detail (transform cannot import worker without creating an import
// cycle), so this is the best description available at this point in
// the event loop: the restarting Worker's stable index and a fixed
// cause, since the original fault value was already consumed inside
// the Worker's own supervisor loop.
func restartFault(ref workerRef) worker.Fault {
	return worker.Fault{
		Kind:  worker.FaultRetryable,
		Err:   errors.New("worker fault: restart triggered"),
		Index: ref.worker.Index(),
	}
}

func (d *Dispatcher) scheduleTick(workerID string, wait time.Duration) {
	time.AfterFunc(wait, func() {
		select {
		case d.tickCh <- workerID:
		case <-d.done:
		}
	})
}

// recordRun appends a RunRecord to the run-history store for a status
// that concludes a run — "idle" following a completed run, or "failed"
// (a run dropped by a retryable fault, recorded with what little is
// known since no terminal outcome exists for it). Append runs in its
// own goroutine so a slow store can never stall the event loop.
func (d *Dispatcher) recordRun(status transform.WorkerStatus, ref workerRef, known bool) {
	if d.runStore == nil {
		return
	}

	rec := store.RunRecord{
		WorkerID:   status.WorkerID,
		FinishedAt: status.Timestamp,
	}
	if known {
		rec.TypeName = ref.typeName
	}
	if start, ok := d.runStarts[status.WorkerID]; ok {
		rec.StartedAt = start
		delete(d.runStarts, status.WorkerID)
	} else {
		rec.StartedAt = status.Timestamp
	}

	switch status.Message {
	case transform.MessageIdle:
		rec.ViewName = status.Outcome.View
		rec.Success = status.Outcome.Success
		rec.Checksum = status.Outcome.Checksum
		rec.Reason = status.Outcome.Reason
		d.extensions.EmitTransformationCompleted(context.Background(), status.WorkerID, transformationOf(status), time.Since(rec.StartedAt), *status.Outcome)
	case transform.MessageFailed:
		rec.Success = false
		rec.Reason = "worker fault: restart triggered"
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.runStore.Append(ctx, rec); err != nil {
			d.logger.Warn("schedoscope: append run record failed", slog.String("error", err.Error()))
		}
	}()
}

func transformationOf(status transform.WorkerStatus) transform.Transformation {
	if status.Current == nil {
		return transform.Transformation{}
	}
	return *status.Current
}

// handleRouted dispatches one routedMessage per the Dispatcher's
// command-routing table (§4.5).
func (d *Dispatcher) handleRouted(msg routedMessage) {
	switch v := msg.payload.(type) {
	case transform.TransformView:
		d.routeToPool(v.Transformation.TypeName, transform.DriverCommand{Payload: v, ReplyTo: msg.replyTo})
	case transform.FilesystemTransformation:
		d.routeToPool("filesystem", transform.DriverCommand{Payload: v.Transformation, ReplyTo: msg.replyTo})
	case transform.Transformation:
		d.routeToPool(v.TypeName, transform.DriverCommand{Payload: v, ReplyTo: msg.replyTo})
	case transform.DeployCommand:
		d.broadcastDeploy(v, msg.replyTo)
	case transform.View:
		t := transform.ForView(v.Transformation(), v)
		tv := transform.TransformView{Transformation: t, View: v}
		d.routeToPool(t.TypeName, transform.DriverCommand{Payload: tv, ReplyTo: msg.replyTo})
	default:
		d.replyFailure(msg.replyTo, "", fmt.Sprintf("schedoscope: unrecognized command payload %T", v))
	}
}

func (d *Dispatcher) routeToPool(typeName string, cmd transform.DriverCommand) {
	p, ok := d.pools[typeName]
	if !ok {
		d.replyFailure(cmd.ReplyTo, "", fmt.Sprintf("schedoscope: unknown transformation type %q", typeName))
		return
	}
	if !p.Route(cmd) {
		d.replyFailure(cmd.ReplyTo, "", fmt.Sprintf("schedoscope: pool %q has no spare worker capacity", p.Name()))
	}
}

func (d *Dispatcher) broadcastDeploy(cmd transform.DeployCommand, replyTo transform.CallerHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.ShutdownTimeout)
	go func() {
		defer cancel()
		for _, p := range d.pools {
			if err := p.Broadcast(ctx, cmd, replyTo); err != nil {
				d.logger.Warn("schedoscope: broadcast deploy failed", slog.String("pool", p.Name()), slog.String("error", err.Error()))
			}
		}
	}()
}

func (d *Dispatcher) replyFailure(replyTo transform.CallerHandle, view, reason string) {
	if replyTo == nil {
		return
	}
	select {
	case replyTo <- transform.TransformationFailure{View: view, Reason: reason, Timestamp: time.Now()}:
	default:
	}
}

// Dispatch submits payload for routing and blocks for its terminal
// reply. payload must be one of transform.DriverCommand,
// transform.TransformView, transform.Transformation,
// transform.FilesystemTransformation, transform.View, or
// transform.DeployCommand. A DeployCommand returns as soon as it is
// queued for routing; the per-Pool broadcasts run asynchronously and
// their failures are only logged.
func (d *Dispatcher) Dispatch(ctx context.Context, payload any) (any, error) {
	var replyTo transform.CallerHandle
	switch p := payload.(type) {
	case transform.DriverCommand:
		replyTo = p.ReplyTo
		payload = p.Payload
	default:
		replyTo = transform.NewCallerHandle()
	}

	msg := routedMessage{payload: payload, replyTo: replyTo}
	select {
	case d.cmdCh <- msg:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		return nil, ErrDispatcherStopped
	}

	if _, isDeploy := payload.(transform.DeployCommand); isDeploy {
		return nil, nil
	}
	if replyTo == nil {
		return nil, nil
	}

	select {
	case reply := <-replyTo:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		return nil, ErrDispatcherStopped
	}
}

// GetTransformations returns a snapshot of every Worker's latest
// observed WorkerStatus.
func (d *Dispatcher) GetTransformations(ctx context.Context) (transform.TransformationStatusListResponse, error) {
	req := make(chan transform.TransformationStatusListResponse, 1)
	select {
	case d.snapshotCh <- req:
	case <-ctx.Done():
		return transform.TransformationStatusListResponse{}, ctx.Err()
	case <-d.done:
		return transform.TransformationStatusListResponse{}, ErrDispatcherStopped
	}

	select {
	case resp := <-req:
		return resp, nil
	case <-ctx.Done():
		return transform.TransformationStatusListResponse{}, ctx.Err()
	}
}

// Logger returns the Dispatcher's logger.
func (d *Dispatcher) Logger() *slog.Logger { return d.logger }

// Config returns a copy of the Dispatcher's configuration.
func (d *Dispatcher) Config() Config { return d.config }
