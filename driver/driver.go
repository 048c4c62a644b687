// Package driver defines the contract a transformation executor must
// satisfy to be slotted behind a Worker, plus the run-state machinery
// (RunHandle/RunState) that lets Workers poll or block on completion
// without the Dispatcher ever blocking.
package driver

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/janhicken/schedoscope/transform"
)

// RetryableFailure is reported as the Cause of a Failed RunState (from
// Poll or RunAndWait) when the driver's execution environment is
// transiently unhealthy. The Worker recognises it with IsRetryable and
// restarts instead of replying; it is never delivered to a caller as a
// terminal reply.
type RetryableFailure struct {
	// Cause is the underlying error that triggered the classification,
	// if any.
	Cause error
}

func (e *RetryableFailure) Error() string {
	if e.Cause == nil {
		return "driver: retryable failure"
	}
	return "driver: retryable failure: " + e.Cause.Error()
}

func (e *RetryableFailure) Unwrap() error { return e.Cause }

// IsRetryable reports whether err (or something it wraps) is a
// RetryableFailure.
func IsRetryable(err error) bool {
	var rf *RetryableFailure
	return errors.As(err, &rf)
}

// Status enumerates the terminal/non-terminal states a run can be in.
type Status int

const (
	// Ongoing means the run has not yet concluded.
	Ongoing Status = iota
	// Succeeded means the run concluded successfully.
	Succeeded
	// Failed means the run concluded in a non-retryable failure.
	Failed
)

// RunState reports the outcome of a Run, as observed by Poll or
// RunAndWait. Comment is set on success; Reason and Cause are set on
// failure.
type RunState struct {
	Status   Status
	Comment  string
	Reason   string
	Cause    error
	Checksum string
}

// RunHandle is the opaque handle returned by Run. It carries a
// completion future that Poll and RunAndWait read from without
// blocking the caller longer than necessary.
type RunHandle struct {
	id string

	mu       sync.Mutex
	state    RunState
	done     chan struct{}
	killed   bool
	killFunc context.CancelFunc
}

func newRunHandle(id string, cancel context.CancelFunc) *RunHandle {
	return &RunHandle{
		id:       id,
		state:    RunState{Status: Ongoing},
		done:     make(chan struct{}),
		killFunc: cancel,
	}
}

// ID returns the handle's stable identifier, useful for logging.
func (h *RunHandle) ID() string { return h.id }

func (h *RunHandle) complete(s RunState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return // already completed; idempotent.
	default:
	}
	h.state = s
	close(h.done)
}

func (h *RunHandle) snapshot() RunState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// DeploySettings configures a DeployAll call.
type DeploySettings struct {
	Libs     []string
	Unpack   bool
	Location string
}

// Driver executes transformations of one type. Implementations must
// classify failures as RetryableFailure (environment is unhealthy,
// Worker should restart) versus an ordinary Failed RunState (the work
// itself could not succeed, Worker stays alive).
type Driver interface {
	// Name returns the stable type name used for routing. Drivers
	// declare this explicitly; it is never derived reflectively.
	Name() string

	// Run begins executing t and returns immediately with a handle
	// whose completion can be observed via Poll or RunAndWait.
	Run(ctx context.Context, t transform.Transformation) (*RunHandle, error)

	// Poll returns the current RunState for h without blocking.
	Poll(h *RunHandle) RunState

	// RunAndWait is a convenience that runs t and blocks until it
	// concludes or ctx is done. A zero-valued deadline on ctx means
	// unbounded waiting.
	RunAndWait(ctx context.Context, t transform.Transformation) RunState

	// Kill requests best-effort cancellation of the run behind h. Kill
	// is idempotent; killing an already-completed or already-killed
	// run is a no-op.
	Kill(h *RunHandle) error

	// DeployAll stages all configured libraries into the driver's
	// working area, optionally unpacking archives, and reports whether
	// every stage step succeeded.
	DeployAll(ctx context.Context, settings DeploySettings) (bool, error)
}

// runFunc is the shape every concrete driver's work function takes:
// given a cancellable context and the transformation, produce a
// terminal RunState (or a *RetryableFailure error to signal the Worker
// should restart).
type runFunc func(ctx context.Context, t transform.Transformation) (RunState, error)

// base provides the Run/Poll/RunAndWait/Kill plumbing shared by every
// Driver implementation in this package, so each concrete driver only
// needs to supply its runFunc and DeployAll.
type base struct {
	name string
	work runFunc

	mu      sync.Mutex
	handles map[string]*RunHandle
	seq     int
}

func newBase(name string, work runFunc) *base {
	return &base{name: name, work: work, handles: make(map[string]*RunHandle)}
}

func (b *base) Name() string { return b.name }

func (b *base) Run(ctx context.Context, t transform.Transformation) (*RunHandle, error) {
	runCtx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	b.seq++
	hid := b.name + "-" + strconv.Itoa(b.seq)
	h := newRunHandle(hid, cancel)
	b.handles[hid] = h
	b.mu.Unlock()

	go func() {
		state, err := b.work(runCtx, t)
		if err != nil {
			var rf *RetryableFailure
			if errors.As(err, &rf) {
				// Retryable failures complete the handle as Failed with
				// the *RetryableFailure as Cause; the Worker checks
				// IsRetryable(state.Cause) and restarts rather than
				// replying to the caller.
				h.complete(RunState{Status: Failed, Reason: "retryable failure", Cause: err})
				return
			}
			h.complete(RunState{Status: Failed, Reason: err.Error(), Cause: err})
			return
		}
		h.complete(state)

		b.mu.Lock()
		delete(b.handles, hid)
		b.mu.Unlock()
	}()

	return h, nil
}

func (b *base) Poll(h *RunHandle) RunState {
	return h.snapshot()
}

func (b *base) RunAndWait(ctx context.Context, t transform.Transformation) RunState {
	h, err := b.Run(ctx, t)
	if err != nil {
		return RunState{Status: Failed, Reason: err.Error(), Cause: err}
	}
	select {
	case <-h.done:
		return h.snapshot()
	case <-ctx.Done():
		_ = b.Kill(h)
		return RunState{Status: Failed, Reason: "run and wait: context done", Cause: ctx.Err()}
	}
}

func (b *base) Kill(h *RunHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.killed {
		return nil
	}
	h.killed = true
	if h.killFunc != nil {
		h.killFunc()
	}
	return nil
}

// simulateDelay sleeps for d or until ctx is cancelled, whichever comes
// first, returning ctx.Err() in the latter case.
func simulateDelay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
