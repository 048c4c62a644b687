package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/janhicken/schedoscope/transform"
)

// Redis writes materialized view results into a Redis key via
// github.com/redis/go-redis/v9. Connection errors (the client being
// unable to reach the server) are classified as RetryableFailure so the
// Worker restarts and the Dispatcher paces reconnection attempts with
// backoff; any other failure (e.g. a missing required parameter) is a
// terminal RunFailed.
type Redis struct {
	*base
	client redis.Cmdable
	logger *slog.Logger
}

// NewRedis creates the Redis driver over an existing client. The caller
// owns the client's lifecycle.
func NewRedis(client redis.Cmdable, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Redis{client: client, logger: logger}
	r.base = newBase("redis", r.run)
	return r
}

func (r *Redis) run(ctx context.Context, t transform.Transformation) (RunState, error) {
	key, _ := t.Params["key"].(string)
	value, _ := t.Params["value"].(string)
	if key == "" {
		return RunState{Status: Failed, Reason: "redis: transformation has no key parameter"}, nil
	}

	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		if isConnectionError(err) {
			r.logger.Warn("redis: connection error, will restart worker", slog.String("error", err.Error()))
			return RunState{}, &RetryableFailure{Cause: err}
		}
		return RunState{Status: Failed, Reason: err.Error(), Cause: err}, nil
	}

	return RunState{
		Status:   Succeeded,
		Comment:  "wrote key " + key,
		Checksum: fmt.Sprintf("redis-%s-%d", key, len(value)),
	}, nil
}

// isConnectionError reports whether err looks like a transient network
// or connection-pool failure rather than a request-level error.
func isConnectionError(err error) bool {
	if errors.Is(err, redis.ErrClosed) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr)
}

// DeployAll stages nothing: there is no artifact staging for a Redis
// sink, so it ignores settings and only pings the server, reporting
// success when the ping succeeds.
func (r *Redis) DeployAll(ctx context.Context, _ DeploySettings) (bool, error) {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return false, err
	}
	return true, nil
}
