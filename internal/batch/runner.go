package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"abide2nidm/internal/config"
	"abide2nidm/internal/logging"
	"abide2nidm/internal/nidmtools"
	"abide2nidm/internal/pipeline"
	"abide2nidm/internal/procgroup"
	"abide2nidm/internal/services"
)

// SiteRunner processes one site in isolation from the others.
type SiteRunner interface {
	RunSite(ctx context.Context, site string) pipeline.Result
}

// InProcessRunner runs the pipeline in the calling process, with a per-site
// logger per call.
type InProcessRunner struct {
	Config      *config.Config
	Logger      *slog.Logger
	Force       bool
	ToolOptions []nidmtools.Option
}

// RunSite implements SiteRunner.
func (r *InProcessRunner) RunSite(ctx context.Context, site string) pipeline.Result {
	return pipeline.Execute(ctx, r.Config, r.Logger, site, pipeline.Options{Force: r.Force}, r.ToolOptions...)
}

// stderrTail bounds how much child stderr a failed result carries.
const stderrTail = 4 * 1024

// ProcessRunner re-executes Executable as "invoke <site>" in a child process.
// On timeout or cancellation the child's process group gets SIGTERM, so the
// child can stop its own tools, and SIGKILL five seconds later.
type ProcessRunner struct {
	Executable string
	ConfigPath string
	Force      bool
	Timeout    time.Duration
	// Stdout receives the child's standard output; nil discards it.
	Stdout io.Writer
	Logger *slog.Logger

	stdoutMu sync.Mutex
}

// Args returns the child argument vector for site.
func (r *ProcessRunner) Args(site string) []string {
	args := []string{"invoke", site}
	if r.ConfigPath != "" {
		args = append(args, "--config", r.ConfigPath)
	}
	if r.Force {
		args = append(args, "--force")
	}
	return args
}

// RunSite implements SiteRunner. A zero exit status is a success; the exact
// Success or PartialSuccess split is recovered later from disk.
func (r *ProcessRunner) RunSite(ctx context.Context, site string) pipeline.Result {
	start := time.Now()
	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	stdout := r.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := &tailBuffer{limit: stderrTail}
	cmd := exec.CommandContext(runCtx, r.Executable, r.Args(site)...) //nolint:gosec
	cmd.Stdout = &lockedWriter{mu: &r.stdoutMu, w: stdout}
	cmd.Stderr = stderr
	cmd.WaitDelay = 5 * time.Second
	if id, ok := services.RunIDFromContext(ctx); ok {
		cmd.Env = append(os.Environ(), services.RunIDEnv+"="+id)
	}

	logger := logging.NewComponentLogger(r.Logger, "batch")
	logger.Debug("starting site process", logging.Site(site), logging.String("args", strings.Join(cmd.Args, " ")))

	procgroup.Configure(cmd)
	err := cmd.Start()
	if err == nil {
		stop := procgroup.Supervise(runCtx, cmd, cmd.WaitDelay)
		err = cmd.Wait()
		stop()
	}
	result := pipeline.Result{Site: site, Outcome: pipeline.Success, Elapsed: time.Since(start)}
	if err == nil {
		return result
	}

	detail := strings.TrimSpace(stderr.String())
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		err = services.Wrap(services.ErrTimeout, "batch", "invoke", fmt.Sprintf("site process exceeded %s", r.Timeout), err)
	case ctx.Err() != nil:
		err = services.Wrap(services.ErrTransient, "batch", "invoke", "cancelled", ctx.Err())
	default:
		err = services.Wrap(services.ErrExternalTool, "batch", "invoke", "site process failed", err)
	}
	result.Outcome = pipeline.Failure
	result.Err = err
	result.Reason = err.Error()
	if detail != "" {
		result.Reason += ": " + detail
	}
	return result
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// lockedWriter serializes writes from concurrent children onto one writer.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
