package agent

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSession is returned when a context overflow cannot be compacted
	// because no session handle is known.
	ErrNoSession = errors.New("no session to compact")

	// ErrCompactionUnchanged is returned when the compact command answers
	// with the same session handle it was given.
	ErrCompactionUnchanged = errors.New("compaction returned the original session")
)

// ContextOverflowError reports that the prompt exceeded the model's context window.
type ContextOverflowError struct {
	Tokens    int
	Maximum   int
	HasCounts bool
	// SessionID is the session that was active when the overflow happened.
	SessionID string
}

func (e *ContextOverflowError) Error() string {
	if e.HasCounts {
		return fmt.Sprintf("prompt is too long: %d tokens > %d maximum", e.Tokens, e.Maximum)
	}
	return "prompt is too long"
}

// ThrottledError reports that the provider refused the request due to rate limits.
type ThrottledError struct {
	ResetAfter time.Duration
	HasReset   bool
}

func (e *ThrottledError) Error() string {
	if e.HasReset {
		return fmt.Sprintf("rate limited, resets in %v", e.ResetAfter)
	}
	return "rate limited"
}

// TimeoutError reports that a process was killed after exceeding its timeout.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("agent timed out after %v", e.After)
}

// ProcessError reports a non-zero exit with no recognized failure signature.
type ProcessError struct {
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("agent exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("agent exited with code %d: %s", e.ExitCode, e.Stderr)
}

// RecoveryError is the terminal failure of a recovered run.
type RecoveryError struct {
	State    State
	Attempts int
	Err      error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", e.State, e.Attempts, e.Err)
}

func (e *RecoveryError) Unwrap() error { return e.Err }

// IsRecoverable reports whether err is a context overflow or a throttle.
func IsRecoverable(err error) bool {
	var overflow *ContextOverflowError
	var throttled *ThrottledError
	return errors.As(err, &overflow) || errors.As(err, &throttled)
}
