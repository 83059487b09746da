package nidmtools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"abide2nidm/internal/config"
	"abide2nidm/internal/fileutil"
	"abide2nidm/internal/logging"
	"abide2nidm/internal/services"
)

// outputTail is how many trailing tool output lines a CommandError keeps.
const outputTail = 20

// ConvertRequest describes one BIDS to NIDM conversion.
type ConvertRequest struct {
	SiteDir string
	Output  string
	Mapping string
}

// MergeRequest describes one phenotype merge into an existing NIDM file.
// Target is both read and rewritten by the merger.
type MergeRequest struct {
	CSV     string
	Mapping string
	Target  string
	LogDir  string
}

// CommandError reports a converter that exited unsuccessfully.
type CommandError struct {
	Binary   string
	Args     []string
	ExitCode int
	Output   []string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Binary, e.ExitCode)
	if e.ExitCode < 0 {
		msg = fmt.Sprintf("%s failed: %v", e.Binary, e.Err)
	}
	if len(e.Output) > 0 {
		msg += ": " + strings.Join(e.Output, " | ")
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger sets the logger receiving tool output lines.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client runs the configured converters.
type Client struct {
	bidsBinary string
	csvBinary  string
	timeout    time.Duration
	noConcepts bool
	exec       Executor
	logger     *slog.Logger
}

// New constructs a converter client from the tools configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("nidmtools: config required")
	}
	bids := strings.TrimSpace(cfg.Tools.BIDSConverter)
	csv := strings.TrimSpace(cfg.Tools.CSVConverter)
	if bids == "" || csv == "" {
		return nil, services.Wrap(services.ErrConfiguration, "tools", "init", "converter binaries required", nil)
	}
	client := &Client{
		bidsBinary: bids,
		csvBinary:  csv,
		timeout:    cfg.ToolTimeout(),
		noConcepts: cfg.Tools.NoConcepts,
		exec:       commandExecutor{},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// ConvertArgs returns the converter argument vector for req.
func (c *Client) ConvertArgs(req ConvertRequest) []string {
	args := []string{"-d", req.SiteDir, "-o", req.Output, "-json_map", req.Mapping}
	if c.noConcepts {
		args = append(args, "-no_concepts")
	}
	return args
}

// MergeArgs returns the merger argument vector for req.
func (c *Client) MergeArgs(req MergeRequest) []string {
	args := []string{"-csv", req.CSV, "-json_map", req.Mapping, "-nidm", req.Target, "-out", req.Target, "-log", req.LogDir}
	if c.noConcepts {
		args = append(args, "-no_concepts")
	}
	return args
}

// Convert runs the BIDS to NIDM converter and confirms its output exists.
func (c *Client) Convert(ctx context.Context, req ConvertRequest) error {
	if req.SiteDir == "" || req.Output == "" {
		return services.Wrap(services.ErrValidation, "convert", "prepare", "site directory and output path required", nil)
	}
	if err := c.run(ctx, "convert", c.bidsBinary, c.ConvertArgs(req)); err != nil {
		return err
	}
	if !fileutil.IsFile(req.Output) {
		return services.Wrap(services.ErrExternalTool, "convert", c.bidsBinary, "converter produced no output file", nil)
	}
	return nil
}

// MergePhenotype runs the CSV merger against req.Target.
func (c *Client) MergePhenotype(ctx context.Context, req MergeRequest) error {
	if req.CSV == "" || req.Target == "" {
		return services.Wrap(services.ErrValidation, "merge", "prepare", "csv and target required", nil)
	}
	return c.run(ctx, "merge", c.csvBinary, c.MergeArgs(req))
}

func (c *Client) run(ctx context.Context, stage, binary string, args []string) error {
	toolCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	logger := logging.WithContext(services.WithStage(ctx, stage), c.logger)
	logger.Info("running external tool",
		logging.String("binary", binary),
		logging.String("args", strings.Join(args, " ")),
		logging.String(logging.FieldEventType, "tool_start"),
	)

	var tail []string
	start := time.Now()
	err := c.exec.Run(toolCtx, binary, args, func(line string) {
		if strings.TrimSpace(line) == "" {
			return
		}
		logger.Info(line, logging.String("source", binary))
		tail = append(tail, line)
		if len(tail) > outputTail {
			tail = tail[len(tail)-outputTail:]
		}
	})
	elapsed := time.Since(start)
	if err == nil {
		logger.Info("external tool finished",
			logging.String("binary", binary),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldEventType, "tool_complete"),
		)
		return nil
	}

	switch {
	case errors.Is(toolCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return services.Wrap(services.ErrTimeout, stage, binary, fmt.Sprintf("timed out after %s", c.timeout), err)
	case ctx.Err() != nil:
		return services.Wrap(services.ErrTransient, stage, binary, "cancelled", ctx.Err())
	}

	cmdErr := &CommandError{Binary: binary, Args: args, ExitCode: -1, Output: tail, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cmdErr.ExitCode = exitErr.ExitCode()
	}
	return services.Wrap(services.ErrExternalTool, stage, binary, "tool failed", cmdErr)
}
