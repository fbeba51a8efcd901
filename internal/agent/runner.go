package agent

import (
	"context"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kylegalloway/trellm/internal/config"
)

const stderrTail = 500

// Request is one prompt to run against a project's working directory.
type Request struct {
	Project   string
	TaskID    string
	Prompt    string
	Dir       string
	SessionID string
}

// ExecutionResult is the outcome of a single agent run.
type ExecutionResult struct {
	Success   bool
	SessionID string
	Summary   string
	Output    string
	Usage     *UsageInfo
	RunID     string
	Duration  time.Duration
}

// Driver launches the agent binary and decodes its output.
type Driver struct {
	Exec    Executor
	Binary  string
	Timeout time.Duration
	Yolo    bool

	// Stream selects stream-json output, rendered to Out as it arrives.
	Stream bool
	Out    io.Writer

	Logger *zap.Logger
	Now    func() time.Time
}

// NewDriver builds a Driver from the claude config section.
func NewDriver(exec Executor, cfg config.ClaudeConfig, stream bool, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		Exec:    exec,
		Binary:  cfg.Binary,
		Timeout: cfg.Timeout,
		Yolo:    cfg.Yolo,
		Stream:  stream,
		Out:     os.Stdout,
		Logger:  logger.Named("driver"),
		Now:     time.Now,
	}
}

// BuildArgs returns the argument vector for a prompt.
func BuildArgs(prompt, sessionID string, stream, yolo bool) []string {
	args := []string{"-p", prompt}
	if stream {
		args = append(args, "--output-format", "stream-json", "--verbose")
	} else {
		args = append(args, "--output-format", "json")
	}
	if yolo {
		args = append(args, "--dangerously-skip-permissions")
	}
	if sessionID != "" {
		args = append(args, "--resume", sessionID)
	}
	return args
}

// Run executes one attempt of a task prompt. On a recognized failure the
// returned error is a *ContextOverflowError or *ThrottledError and the
// partial result still carries the session the agent reported.
func (d *Driver) Run(ctx context.Context, req Request) (*ExecutionResult, error) {
	inv := Invocation{
		Binary:  d.Binary,
		Args:    BuildArgs(req.Prompt, req.SessionID, d.Stream, d.Yolo),
		Dir:     req.Dir,
		Timeout: d.Timeout,
		Kind:    KindTask,
		Project: req.Project,
		TaskID:  req.TaskID,
	}
	if d.Stream && d.Out != nil {
		printer := NewStreamPrinter(d.Out, req.Project)
		inv.OnStdout = printer.PrintLine
		inv.OnStderr = printer.PrintStderr
	}

	completed, err := d.Exec.Execute(ctx, inv)
	if err != nil {
		return nil, err
	}

	out := ParseOutput(completed.Stdout)
	res := &ExecutionResult{
		SessionID: out.SessionID,
		Summary:   out.Summary(),
		Output:    completed.Stdout,
		RunID:     completed.RunID,
		Duration:  completed.Duration,
	}
	if completed.ExitCode == 0 && !out.IsError {
		res.Success = true
		return res, nil
	}
	return res, d.failure(completed, out)
}

// Command runs a one-shot slash command against an existing session with
// buffered JSON output.
func (d *Driver) Command(ctx context.Context, kind, project, dir, sessionID, prompt string, timeout time.Duration) (Output, error) {
	completed, err := d.Exec.Execute(ctx, Invocation{
		Binary:  d.Binary,
		Args:    BuildArgs(prompt, sessionID, false, d.Yolo),
		Dir:     dir,
		Timeout: timeout,
		Kind:    kind,
		Project: project,
	})
	if err != nil {
		return Output{}, err
	}
	out := ParseOutput(completed.Stdout)
	if completed.ExitCode != 0 || out.IsError {
		return out, d.failure(completed, out)
	}
	return out, nil
}

func (d *Driver) failure(c *Completed, out Output) error {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	if err := Classify(c.Combined(), now()); err != nil {
		if overflow, ok := err.(*ContextOverflowError); ok {
			overflow.SessionID = out.SessionID
		}
		return err
	}
	msg := strings.TrimSpace(c.Stderr)
	if msg == "" && out.IsError {
		msg = out.Result
	}
	return &ProcessError{ExitCode: c.ExitCode, Stderr: tail(msg, stderrTail)}
}

// tail returns at most the last n bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
