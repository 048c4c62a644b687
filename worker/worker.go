// Package worker implements the single-threaded event loop (C3 in the
// design) that owns one Driver and processes one DriverCommand at a
// time, emitting WorkerStatus transitions and restarting in place on a
// retryable or initialization fault.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/janhicken/schedoscope/driver"
	"github.com/janhicken/schedoscope/id"
	"github.com/janhicken/schedoscope/transform"
)

// FaultKind classifies why a Worker's command-processing loop stopped.
type FaultKind int

const (
	// FaultRetryable is a RetryableFailure raised by the Driver during a
	// run. The Worker restarts.
	FaultRetryable FaultKind = iota
	// FaultInit is a Driver construction failure. The Worker restarts.
	FaultInit
	// FaultUnknown is anything else (a panic in command handling). The
	// Worker does not restart; the fault escalates to the Pool's
	// supervisor.
	FaultUnknown
)

// Fault reports a non-recoverable (from the Worker's own perspective)
// condition observed while processing commands.
type Fault struct {
	Kind  FaultKind
	Err   error
	Index int
}

func (f Fault) Error() string {
	return fmt.Sprintf("worker[%d]: %v", f.Index, f.Err)
}

// StatusSink receives every WorkerStatus this Worker emits, in emission
// order. Implementations must not block for long — the Dispatcher's own
// event loop depends on draining this promptly.
type StatusSink interface {
	Report(transform.WorkerStatus)
}

// EscalationSink receives unknown faults that should not trigger a
// restart — propagated up to the Pool's own supervisor.
type EscalationSink interface {
	Escalate(Fault)
}

// Worker owns exactly one Driver and one mailbox. Its identity
// (WorkerID, pool name, index) is assigned once at construction and
// survives every in-place restart.
type Worker struct {
	id      id.WorkerID
	index   int
	pool    string
	factory driver.Factory
	logger  *slog.Logger

	mailbox chan transform.DriverCommand
	tick    chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	status     StatusSink
	escalation EscalationSink

	active driver.Driver
}

// New creates a Worker with the given stable index within pool. The
// mailbox capacity bounds how many DriverCommands may queue for this
// Worker before its Pool's router must look elsewhere.
func New(poolName string, index int, mailboxCapacity int, factory driver.Factory, status StatusSink, escalation EscalationSink, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if mailboxCapacity < 1 {
		mailboxCapacity = 1
	}
	return &Worker{
		id:         id.NewWorkerID(),
		index:      index,
		pool:       poolName,
		factory:    factory,
		logger:     logger,
		mailbox:    make(chan transform.DriverCommand, mailboxCapacity),
		tick:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		status:     status,
		escalation: escalation,
	}
}

// ID returns the Worker's stable identity.
func (w *Worker) ID() id.WorkerID { return w.id }

// Index returns the Worker's stable position within its Pool.
func (w *Worker) Index() int { return w.index }

// MailboxLen reports the number of commands currently queued, used by
// the Pool's smallest-mailbox router.
func (w *Worker) MailboxLen() int { return len(w.mailbox) }

// Enqueue places cmd on the Worker's mailbox, returning false if the
// mailbox is full. The Pool's router picks the Worker with the smallest
// mailbox and passes a false result on to its own caller; it does not
// retry or try another Worker.
func (w *Worker) Enqueue(cmd transform.DriverCommand) bool {
	select {
	case w.mailbox <- cmd:
		return true
	default:
		return false
	}
}

// Tick delivers a one-shot activation signal. It never blocks: a
// pending, undelivered tick is coalesced with a new one, since a single
// tick is all a Worker ever needs to begin its continuous dequeue loop.
func (w *Worker) Tick() {
	select {
	case w.tick <- struct{}{}:
	default:
	}
}

// Stop signals the Worker's loop to exit. Stop does not wait for the
// in-flight command, if any, to finish — callers needing that should
// wait on Stopped().
func (w *Worker) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
}

// Stopped returns a channel closed once the Worker's run loop has
// exited for good (Stop was called, or an unknown fault escalated).
func (w *Worker) Stopped() <-chan struct{} { return w.stopped }

// Run is the Worker's event loop. It blocks until Stop is called or an
// unknown fault escalates. Callers (the owning Pool) run this in its
// own goroutine.
func (w *Worker) Run() {
	defer close(w.stopped)

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		d, err := w.factory()
		if err != nil {
			w.logger.Error("worker: driver initialization failed, restarting",
				slog.Int("index", w.index), slog.String("error", err.Error()))
			if !w.waitBeforeRestart() {
				return
			}
			continue
		}
		w.active = d
		w.emit(transform.MessageBooted, nil)

		select {
		case <-w.stop:
			return
		case <-w.tick:
		}

		restart := w.dequeueLoop()
		if !restart {
			return
		}
	}
}

// waitBeforeRestart is a small guard against a tight crash loop when
// Driver construction itself fails repeatedly with no backoff in
// effect yet (the Dispatcher only paces restarts after a successful
// boot). It simply respects Stop.
func (w *Worker) waitBeforeRestart() bool {
	select {
	case <-w.stop:
		return false
	case <-time.After(10 * time.Millisecond):
		return true
	}
}

// dequeueLoop runs continuously once ticked, pulling and processing one
// command at a time, until Stop is requested or a fault is observed.
// It returns true if the Worker should restart in place (a retryable
// fault, reported via emit(Failed) just before returning), false if it
// should stop for good. Init faults are handled by Run, not here.
func (w *Worker) dequeueLoop() bool {
	for {
		select {
		case <-w.stop:
			return false
		case cmd := <-w.mailbox:
			fault, ok := w.process(cmd)
			if !ok {
				return false // unknown fault: escalate, do not restart.
			}
			if fault {
				w.emit(transform.MessageFailed, nil)
				return true
			}
		}
	}
}

// process executes one command to completion. The first return value is
// true if a retryable fault occurred (caller should restart); the
// second is false if an unknown fault occurred (caller should stop and
// escalate, no restart).
func (w *Worker) process(cmd transform.DriverCommand) (retryableFault bool, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			w.logger.Error("worker: unknown fault, escalating",
				slog.Int("index", w.index),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			if w.escalation != nil {
				w.escalation.Escalate(Fault{Kind: FaultUnknown, Err: fmt.Errorf("panic: %v", r), Index: w.index})
			}
		}
	}()

	switch payload := cmd.Payload.(type) {
	case transform.DeployCommand:
		return w.processDeploy(cmd, payload), true
	default:
		t, view := extractTransformation(payload)
		if t == nil {
			w.replyFailure(cmd, view, "worker: unrecognised command payload")
			return false, true
		}
		return w.processTransformation(cmd, *t, view), true
	}
}

func extractTransformation(payload any) (*transform.Transformation, string) {
	switch p := payload.(type) {
	case transform.Transformation:
		return &p, ""
	case transform.TransformView:
		return &p.Transformation, p.View.Name()
	default:
		return nil, ""
	}
}

func (w *Worker) processTransformation(cmd transform.DriverCommand, t transform.Transformation, view string) bool {
	w.emit(transform.MessageRunning, &t)

	state := w.active.RunAndWait(context.Background(), t)

	if state.Cause != nil && driver.IsRetryable(state.Cause) {
		// Retryable: no reply is sent. The caller must rely on its own
		// timeout, per the error-handling design.
		return true
	}

	var outcome transform.RunOutcome
	if state.Status == driver.Succeeded {
		w.replySuccess(cmd, view, state.Checksum)
		outcome = transform.RunOutcome{View: view, Success: true, Checksum: state.Checksum}
	} else {
		reason := state.Reason
		if reason == "" && state.Cause != nil {
			reason = state.Cause.Error()
		}
		w.replyFailure(cmd, view, reason)
		outcome = transform.RunOutcome{View: view, Success: false, Reason: reason}
	}

	w.emitOutcome(transform.MessageIdle, nil, &outcome)
	return false
}

func (w *Worker) processDeploy(cmd transform.DriverCommand, payload transform.DeployCommand) bool {
	w.emit(transform.MessageRunning, nil)

	ok, err := w.active.DeployAll(context.Background(), driver.DeploySettings{
		Libs:     payload.Libs,
		Unpack:   payload.Unpack,
		Location: payload.Location,
	})

	if err != nil && driver.IsRetryable(err) {
		return true
	}

	outcome := transform.RunOutcome{Success: err == nil && ok}
	if cmd.ReplyTo != nil {
		if err != nil {
			w.replyFailure(cmd, "", err.Error())
			outcome.Reason = err.Error()
		} else if !ok {
			const reason = "deploy_all: not every stage step succeeded"
			w.replyFailure(cmd, "", reason)
			outcome.Reason = reason
		} else {
			w.replySuccess(cmd, "", "")
		}
	}

	w.emitOutcome(transform.MessageIdle, nil, &outcome)
	return false
}

func (w *Worker) replySuccess(cmd transform.DriverCommand, view, checksum string) {
	if cmd.ReplyTo == nil {
		return
	}
	select {
	case cmd.ReplyTo <- transform.TransformationSuccess{View: view, Checksum: checksum, Timestamp: time.Now().UTC()}:
	default:
	}
}

func (w *Worker) replyFailure(cmd transform.DriverCommand, view, reason string) {
	if cmd.ReplyTo == nil {
		return
	}
	select {
	case cmd.ReplyTo <- transform.TransformationFailure{View: view, Reason: reason, Timestamp: time.Now().UTC()}:
	default:
	}
}

func (w *Worker) emit(message transform.Message, current *transform.Transformation) {
	w.emitOutcome(message, current, nil)
}

func (w *Worker) emitOutcome(message transform.Message, current *transform.Transformation, outcome *transform.RunOutcome) {
	if w.status == nil {
		return
	}
	w.status.Report(transform.WorkerStatus{
		WorkerID:  w.id.String(),
		Message:   message,
		Current:   current,
		Timestamp: time.Now().UTC(),
		Outcome:   outcome,
	})
}
