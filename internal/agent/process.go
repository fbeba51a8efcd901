package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// maxLineSize bounds a single output line; stream-json lines carrying whole
// file contents can be large.
const maxLineSize = 10 * 1024 * 1024

// killGrace is how long a process group gets between SIGTERM and SIGKILL.
const killGrace = 5 * time.Second

// Invocation describes one agent subprocess run.
type Invocation struct {
	Binary  string
	Args    []string
	Dir     string
	Timeout time.Duration

	Kind    string
	Project string
	TaskID  string

	// OnStdout and OnStderr, when set, receive each line as it is read.
	OnStdout func(line string)
	OnStderr func(line string)
}

// Completed is the outcome of a subprocess that ran to exit.
type Completed struct {
	RunID    string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Combined returns stderr followed by stdout, the text failure signatures
// are matched against.
func (c *Completed) Combined() string {
	return c.Stderr + "\n" + c.Stdout
}

// Executor runs agent subprocesses. A non-zero exit is not an error; the
// caller inspects ExitCode. Timeouts yield *TimeoutError and cancellation
// yields ctx.Err(), in both cases after the process group was killed.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) (*Completed, error)
}

// ProcessExecutor runs real processes in their own process group.
type ProcessExecutor struct {
	Registry *Registry
}

func (e *ProcessExecutor) Execute(ctx context.Context, inv Invocation) (*Completed, error) {
	cmd := exec.Command(inv.Binary, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", inv.Binary, err)
	}

	runID := uuid.NewString()
	pid := cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		pgid = pid
	}
	if e.Registry != nil {
		e.Registry.Register(ProcessEntry{
			ID:        runID,
			PID:       pid,
			PGID:      pgid,
			Kind:      inv.Kind,
			Project:   inv.Project,
			TaskID:    inv.TaskID,
			StartTime: started,
		})
		defer e.Registry.Unregister(runID)
	}

	var stdout, stderr strings.Builder
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		readLines(stdoutPipe, &stdout, inv.OnStdout)
	}()
	go func() {
		defer readers.Done()
		readLines(stderrPipe, &stderr, inv.OnStderr)
	}()

	done := make(chan error, 1)
	go func() {
		readers.Wait()
		done <- cmd.Wait()
	}()

	var timeout <-chan time.Time
	if inv.Timeout > 0 {
		timer := time.NewTimer(inv.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var waitErr error
	select {
	case waitErr = <-done:
	case <-timeout:
		terminate(pgid, pid, done)
		return nil, &TimeoutError{After: inv.Timeout}
	case <-ctx.Done():
		terminate(pgid, pid, done)
		return nil, ctx.Err()
	}

	res := &Completed{
		RunID:    runID,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("wait %s: %w", inv.Binary, waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

// terminate sends SIGTERM to the process group, escalating to SIGKILL if it
// has not exited within killGrace, and waits for the reader goroutines.
func terminate(pgid, pid int, done <-chan error) {
	signalGroup(pgid, pid, syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(killGrace):
		signalGroup(pgid, pid, syscall.SIGKILL)
		<-done
	}
}

func readLines(r io.Reader, buf *strings.Builder, onLine func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if onLine != nil {
			onLine(line)
		}
	}
	// Drain anything left after an oversized line so the child never blocks.
	_, _ = io.Copy(io.Discard, r)
}
