// Package transform defines the data model shared between callers, the
// Dispatcher, Pools, Workers, and Drivers: transformations, views, the
// command envelope, status reports, and reply messages.
package transform

import "time"

// Transformation is a tagged value carrying a type name (e.g. "hive",
// "filesystem") and type-specific parameters. The type name is drawn
// from the closed, configuration-derived set of transformation types
// the Dispatcher was bootstrapped with.
type Transformation struct {
	// TypeName identifies the transformation kind and therefore which
	// Pool a DriverCommand carrying this Transformation is routed to.
	TypeName string
	// Params holds type-specific parameters, opaque to the dispatcher
	// core. Drivers interpret Params according to their own contract.
	Params map[string]any
}

// FilesystemTransformation is a Transformation whose TypeName is always
// "filesystem" — a convenience wrapper so callers don't have to spell
// out the type name for the one transformation kind that is always
// available.
type FilesystemTransformation struct {
	Transformation
}

// NewFilesystemTransformation builds a FilesystemTransformation with the
// given parameters.
func NewFilesystemTransformation(params map[string]any) FilesystemTransformation {
	return FilesystemTransformation{Transformation{TypeName: "filesystem", Params: params}}
}

// View is opaque to the dispatcher core; it only ever reads
// Transformation() to obtain the recipe for materializing the view.
type View interface {
	// Name returns a stable identifier for the view, used in replies
	// and run-history records.
	Name() string
	// Transformation returns the Transformation that materializes this
	// view. ForView binds a Transformation to a specific View so drivers
	// can resolve view-specific parameters (partition paths, table
	// names, etc.) at run time.
	Transformation() Transformation
}

// ForView binds t to view, returning a copy whose Params includes the
// view's name. Transformation-specific binding logic beyond that is
// left to drivers, which read Params themselves.
func ForView(t Transformation, view View) Transformation {
	bound := Transformation{TypeName: t.TypeName, Params: make(map[string]any, len(t.Params)+1)}
	for k, v := range t.Params {
		bound.Params[k] = v
	}
	bound.Params["view"] = view.Name()
	return bound
}

// TransformView pairs a Transformation with the View it materializes.
// It is the view-bound sub-shape of a DriverCommand payload.
type TransformView struct {
	Transformation Transformation
	View           View
}

// DeployCommand instructs every Worker in every Pool to stage its
// driver's libraries via Driver.DeployAll.
type DeployCommand struct {
	// Libs is the list of library URIs to stage.
	Libs []string
	// Unpack indicates whether staged archives should be unpacked.
	Unpack bool
	// Location is the destination URI within the driver's working area.
	Location string
}

// GetTransformations requests a snapshot of all known WorkerStatus
// values from the Dispatcher.
type GetTransformations struct{}

// CallerHandle is how a DriverCommand's issuer receives its terminal
// reply. A routed transformation gets at most one TransformationSuccess
// or TransformationFailure on it, and none if the run is dropped by a
// retryable fault; a broadcast DeployCommand shares one handle among
// every Worker it reaches, each sending its own reply. Callers never
// hold a reference to the Worker or Driver that serves their command —
// only this handle.
type CallerHandle chan any

// NewCallerHandle creates a buffered reply channel. A buffer of 1
// ensures the serving Worker never blocks delivering its one reply even
// if the caller has stopped listening.
func NewCallerHandle() CallerHandle {
	return make(CallerHandle, 1)
}

// DriverCommand is the unit of work routed by the Dispatcher to exactly
// one Worker of the matching Pool (except DeployCommand, which
// broadcasts). Payload is one of Transformation, TransformView, or
// DeployCommand.
type DriverCommand struct {
	Payload any
	ReplyTo CallerHandle
}

// TypeName returns the transformation type name used to route this
// command, or "" if the payload carries no type name (e.g. a bare
// DeployCommand, which is routed by broadcast instead).
func (c DriverCommand) TypeName() string {
	switch p := c.Payload.(type) {
	case Transformation:
		return p.TypeName
	case TransformView:
		return p.Transformation.TypeName
	default:
		return ""
	}
}

// Message enumerates the WorkerStatus lifecycle values.
type Message string

const (
	// MessageBooted is emitted once a Worker's Driver has finished
	// initializing, before the Worker is permitted to pull work.
	MessageBooted Message = "booted"
	// MessageIdle is emitted when a Worker is ready for its next command.
	MessageIdle Message = "idle"
	// MessageRunning is emitted when a Worker begins executing a command.
	MessageRunning Message = "running"
	// MessageFailed is emitted when a Worker's Driver raised a retryable
	// fault and the Worker is about to be restarted. An unknown fault
	// escalates without emitting it.
	MessageFailed Message = "failed"
)

// WorkerStatus is the status report a Worker emits to the Dispatcher on
// every state transition. WorkerID is stable across restarts — it is
// generated once when the Worker is constructed and belongs to the
// Worker, not to any particular Driver instance; it does not encode the
// Worker's pool or index.
type WorkerStatus struct {
	WorkerID  string
	Message   Message
	Current   *Transformation
	Timestamp time.Time
	// Outcome is set only on the "idle" emitted after a run concluded;
	// "failed" carries none. It carries just enough of the terminal result for
	// the Dispatcher to append a RunRecord to the run-history store; the
	// routing/backoff logic never reads it.
	Outcome *RunOutcome
}

// RunOutcome is the terminal result of one transformation run, attached
// to the WorkerStatus that reports it.
type RunOutcome struct {
	View     string
	Success  bool
	Checksum string
	Reason   string
}

// TransformationSuccess is the terminal reply for a command whose
// Driver run succeeded.
type TransformationSuccess struct {
	View      string
	Checksum  string
	Timestamp time.Time
}

// TransformationFailure is the terminal reply for a command whose
// Driver run concluded in a non-retryable failure.
type TransformationFailure struct {
	View      string
	Reason    string
	Timestamp time.Time
}

// TransformationStatusListResponse is the reply to GetTransformations.
type TransformationStatusListResponse struct {
	States []WorkerStatus
}
