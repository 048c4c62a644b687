package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/janhicken/schedoscope/transform"
)

// Filesystem is the always-available Driver for local filesystem
// operations (copy, move, mkdir). Params on the Transformation select
// the operation via the "op" key ("copy", "move", "mkdir") and its
// arguments via "src"/"dst".
//
// The original Schedoscope filesystem driver swallowed every throwable
// from partition creation that wasn't an "already exists" error,
// writing the result to a variable nobody read. This driver does not
// reproduce that: mkdir treats ErrExist as success (the partition is
// already there, which is what the caller wanted) and surfaces every
// other error as a non-retryable Failed RunState.
type Filesystem struct {
	*base
	logger *slog.Logger
}

// NewFilesystem creates the filesystem Driver.
func NewFilesystem(logger *slog.Logger) *Filesystem {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Filesystem{logger: logger}
	f.base = newBase("filesystem", f.run)
	return f
}

func (f *Filesystem) run(ctx context.Context, t transform.Transformation) (RunState, error) {
	op, _ := t.Params["op"].(string)
	switch op {
	case "mkdir":
		return f.mkdir(t)
	case "copy":
		return f.copy(t)
	case "move":
		return f.move(t)
	default:
		return RunState{Status: Failed, Reason: fmt.Sprintf("filesystem: unknown op %q", op)}, nil
	}
}

func (f *Filesystem) mkdir(t transform.Transformation) (RunState, error) {
	dst, _ := t.Params["dst"].(string)
	if dst == "" {
		return RunState{Status: Failed, Reason: "filesystem: mkdir requires dst"}, nil
	}

	err := os.MkdirAll(dst, 0o755)
	if err != nil && !errors.Is(err, os.ErrExist) {
		f.logger.Error("filesystem: mkdir failed", slog.String("dst", dst), slog.String("error", err.Error()))
		return RunState{Status: Failed, Reason: err.Error(), Cause: err}, nil
	}
	return RunState{Status: Succeeded, Comment: "directory ready: " + dst}, nil
}

func (f *Filesystem) copy(t transform.Transformation) (RunState, error) {
	src, _ := t.Params["src"].(string)
	dst, _ := t.Params["dst"].(string)
	if src == "" || dst == "" {
		return RunState{Status: Failed, Reason: "filesystem: copy requires src and dst"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return RunState{Status: Failed, Reason: err.Error(), Cause: err}, nil
	}

	in, err := os.Open(src) //nolint:gosec // src is operator-supplied by design, not end-user input.
	if err != nil {
		return RunState{Status: Failed, Reason: err.Error(), Cause: err}, nil
	}
	defer in.Close()

	out, err := os.Create(dst) //nolint:gosec // dst is operator-supplied by design.
	if err != nil {
		return RunState{Status: Failed, Reason: err.Error(), Cause: err}, nil
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return RunState{Status: Failed, Reason: err.Error(), Cause: err}, nil
	}
	return RunState{Status: Succeeded, Comment: "copied " + src + " to " + dst}, nil
}

func (f *Filesystem) move(t transform.Transformation) (RunState, error) {
	src, _ := t.Params["src"].(string)
	dst, _ := t.Params["dst"].(string)
	if src == "" || dst == "" {
		return RunState{Status: Failed, Reason: "filesystem: move requires src and dst"}, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return RunState{Status: Failed, Reason: err.Error(), Cause: err}, nil
	}
	if err := os.Rename(src, dst); err != nil {
		return RunState{Status: Failed, Reason: err.Error(), Cause: err}, nil
	}
	return RunState{Status: Succeeded, Comment: "moved " + src + " to " + dst}, nil
}

// DeployAll stages libs by copying them into settings.Location. No
// archive unpacking is implemented; Unpack requests are rejected with
// an error rather than silently ignored.
func (f *Filesystem) DeployAll(ctx context.Context, settings DeploySettings) (bool, error) {
	if settings.Unpack {
		return false, errors.New("filesystem: archive unpacking is not supported")
	}
	if err := os.MkdirAll(settings.Location, 0o755); err != nil {
		return false, err
	}
	for _, lib := range settings.Libs {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}
		dst := filepath.Join(settings.Location, filepath.Base(lib))
		if err := copyFile(lib, dst); err != nil {
			f.logger.Error("filesystem: deploy failed", slog.String("lib", lib), slog.String("error", err.Error()))
			return false, err
		}
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // operator-supplied library path.
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst) //nolint:gosec // operator-supplied destination path.
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
