package agent

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kylegalloway/trellm/internal/metrics"
)

// State is a recovery controller state.
type State int

const (
	StateRunning State = iota
	StateContextOverflow
	StateThrottled
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateContextOverflow:
		return "context_overflow"
	case StateThrottled:
		return "throttled"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is a task prompt together with the session context it runs in.
type Job struct {
	Request
	// LastTaskID is the task most recently run on Request.SessionID.
	LastTaskID    string
	CompactPrompt string
	// OnCompacted is called with each session handle a compaction confirms,
	// before the task runs on it.
	OnCompacted func(sessionID string)
}

// Recovery runs a job through the driver, compacting on context overflow
// and backing off on throttling, for at most MaxRetries retries.
type Recovery struct {
	Driver         *Driver
	Compactor      *Compactor
	MaxRetries     int
	DefaultBackoff time.Duration

	// Sleep waits for d or until ctx is done.
	Sleep   func(ctx context.Context, d time.Duration) error
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// NewRecovery creates a controller with a context-aware sleep.
func NewRecovery(d *Driver, c *Compactor, maxRetries int, backoff time.Duration, m *metrics.Metrics, logger *zap.Logger) *Recovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recovery{
		Driver:         d,
		Compactor:      c,
		MaxRetries:     maxRetries,
		DefaultBackoff: backoff,
		Sleep:          sleepContext,
		Logger:         logger.Named("recovery"),
		Metrics:        m,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs job until it succeeds or fails terminally. Terminal failures
// are returned as *RecoveryError; a cancelled ctx is returned as is.
func (r *Recovery) Execute(ctx context.Context, job Job) (*ExecutionResult, error) {
	log := r.Logger.With(zap.String("project", job.Project), zap.String("task", job.TaskID))
	session := job.SessionID

	if session != "" && job.LastTaskID != job.TaskID {
		log.Info("proactive compaction before new task",
			zap.String("session", session), zap.String("last_task", job.LastTaskID))
		r.Metrics.Recovery("proactive_compact")
		if res, err := r.Compactor.Compact(ctx, job.Project, job.Dir, session, job.CompactPrompt); err != nil {
			log.Warn("proactive compaction failed, continuing with original session", zap.Error(err))
		} else {
			session = res.SessionID
			job.compacted(session)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	for attempt := 1; ; attempt++ {
		req := job.Request
		req.SessionID = session
		log.Info("starting attempt", zap.Int("attempt", attempt), zap.String("session", sessionLabel(session)))

		res, err := r.Driver.Run(ctx, req)
		if err == nil {
			if res.SessionID == "" {
				res.SessionID = session
			}
			r.Metrics.Attempt("succeeded")
			log.Info("attempt succeeded", zap.Int("attempt", attempt), zap.String("session", res.SessionID))
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !IsRecoverable(err) {
			var timeout *TimeoutError
			if errors.As(err, &timeout) {
				r.Metrics.Attempt("timeout")
			} else {
				r.Metrics.Attempt("failed")
			}
			return nil, r.fail(log, StateRunning, attempt, err)
		}

		var overflow *ContextOverflowError
		var throttled *ThrottledError
		switch {
		case errors.As(err, &overflow):
			r.Metrics.Attempt("context_overflow")
			log.Warn("context overflow", zap.Int("attempt", attempt), zap.Int("tokens", overflow.Tokens), zap.Int("maximum", overflow.Maximum))
			if attempt > r.MaxRetries {
				return nil, r.fail(log, StateContextOverflow, attempt, err)
			}
			target := overflow.SessionID
			if target == "" {
				target = session
			}
			if target == "" {
				return nil, r.fail(log, StateContextOverflow, attempt, errors.Join(err, ErrNoSession))
			}
			r.Metrics.Recovery("compact")
			cres, cerr := r.Compactor.Compact(ctx, job.Project, job.Dir, target, job.CompactPrompt)
			if cerr != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, r.fail(log, StateContextOverflow, attempt, errors.Join(err, cerr))
			}
			session = cres.SessionID
			job.compacted(session)

		case errors.As(err, &throttled):
			r.Metrics.Attempt("throttled")
			if attempt > r.MaxRetries {
				return nil, r.fail(log, StateThrottled, attempt, err)
			}
			wait := r.DefaultBackoff
			if throttled.HasReset {
				wait = throttled.ResetAfter
			}
			r.Metrics.Recovery("backoff")
			log.Warn("throttled, backing off", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Bool("reset_known", throttled.HasReset))
			if err := r.Sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
}

func (j Job) compacted(sessionID string) {
	if j.OnCompacted != nil && sessionID != "" {
		j.OnCompacted(sessionID)
	}
}

func (r *Recovery) fail(log *zap.Logger, from State, attempts int, err error) error {
	log.Error("giving up", zap.Stringer("state", from), zap.Int("attempts", attempts), zap.Error(err))
	return &RecoveryError{State: from, Attempts: attempts, Err: err}
}

func sessionLabel(id string) string {
	if id == "" {
		return "new"
	}
	return id
}
