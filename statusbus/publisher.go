// Package statusbus fans every WorkerStatus transition out to a Redis
// pub/sub channel so external dashboards can observe restart storms
// and throughput without polling GetTransformations. Publishing is
// best-effort: a publish failure is logged and otherwise has no effect
// on dispatch — this is observability, not a dependency of routing.
package statusbus

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/janhicken/schedoscope/transform"
)

// DefaultChannel is the Redis pub/sub channel used when none is given.
const DefaultChannel = "schedoscope:worker-status"

// wireStatus is the msgpack-encoded shape published on the channel.
// Current is flattened to its type name and params rather than nested,
// since transform.Transformation has no msgpack tags of its own and
// subscribers only need enough to render a dashboard row.
type wireStatus struct {
	WorkerID    string         `msgpack:"worker_id"`
	Message     string         `msgpack:"message"`
	TypeName    string         `msgpack:"type_name,omitempty"`
	Params      map[string]any `msgpack:"params,omitempty"`
	TimestampNS int64          `msgpack:"timestamp_ns"`
}

// Publisher publishes WorkerStatus transitions to Redis.
type Publisher struct {
	client  redis.Cmdable
	channel string
	logger  *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithChannel overrides the pub/sub channel name.
func WithChannel(channel string) Option {
	return func(p *Publisher) { p.channel = channel }
}

// WithLogger overrides the Publisher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// New creates a Publisher over an existing Redis client. The caller
// owns the client's lifecycle.
func New(client redis.Cmdable, opts ...Option) *Publisher {
	p := &Publisher{client: client, channel: DefaultChannel, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish encodes st and publishes it. Errors are logged, never
// returned — callers on the Dispatcher's status-processing loop must
// not stall because a dashboard subscriber is unreachable.
func (p *Publisher) Publish(ctx context.Context, st transform.WorkerStatus) {
	w := wireStatus{
		WorkerID:    st.WorkerID,
		Message:     string(st.Message),
		TimestampNS: st.Timestamp.UnixNano(),
	}
	if st.Current != nil {
		w.TypeName = st.Current.TypeName
		w.Params = st.Current.Params
	}

	data, err := msgpack.Marshal(w)
	if err != nil {
		p.logger.Warn("statusbus: marshal status", slog.String("error", err.Error()))
		return
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Warn("statusbus: publish status", slog.String("error", err.Error()))
	}
}
