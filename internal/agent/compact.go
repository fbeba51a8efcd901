package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kylegalloway/trellm/internal/metrics"
)

// CompactionResult reports the new session and the context size on each side.
type CompactionResult struct {
	SessionID string
	Before    int64
	After     int64
}

// Reduction returns the absolute and percentage drop in context size.
// The percentage is 0 when the size before is unknown.
func (r CompactionResult) Reduction() (int64, float64) {
	saved := r.Before - r.After
	if r.Before <= 0 {
		return saved, 0
	}
	return saved, float64(saved) / float64(r.Before) * 100
}

// Compactor asks the agent to shrink a session's context.
type Compactor struct {
	Driver  *Driver
	Usage   *UsageAccountant
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// NewCompactor creates a compactor with its own timeout.
func NewCompactor(d *Driver, usage *UsageAccountant, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Compactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compactor{Driver: d, Usage: usage, Timeout: timeout, Metrics: m, Logger: logger.Named("compact")}
}

// CompactPrompt returns the compact command, with the retention
// instruction appended when one is configured.
func CompactPrompt(instruction string) string {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return "/compact"
	}
	return "/compact " + instruction
}

// Compact runs the compact command against sessionID. On any error the
// caller keeps using sessionID; the returned session always differs from it.
func (c *Compactor) Compact(ctx context.Context, project, dir, sessionID, instruction string) (*CompactionResult, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}
	log := c.Logger.With(zap.String("project", project), zap.String("session", sessionID))

	var before int64
	if c.Usage != nil {
		before = c.Usage.ContextSize(dir, sessionID)
	}

	log.Info("compacting session", zap.Int64("context_tokens", before))
	out, err := c.Driver.Command(ctx, KindCompact, project, dir, sessionID, CompactPrompt(instruction), c.Timeout)
	if err != nil {
		c.Metrics.Compaction("failed")
		log.Warn("compaction failed", zap.Error(err))
		return nil, fmt.Errorf("compact %s: %w", sessionID, err)
	}
	if out.SessionID == "" {
		c.Metrics.Compaction("failed")
		return nil, fmt.Errorf("compact %s: no session id in output", sessionID)
	}
	if out.SessionID == sessionID {
		c.Metrics.Compaction("unchanged")
		return nil, ErrCompactionUnchanged
	}

	res := &CompactionResult{SessionID: out.SessionID, Before: before}
	if c.Usage != nil {
		res.After = c.Usage.ContextSize(dir, out.SessionID)
	}
	saved, pct := res.Reduction()
	log.Info("compaction complete",
		zap.String("new_session", res.SessionID),
		zap.Int64("before_tokens", res.Before),
		zap.Int64("after_tokens", res.After),
		zap.Int64("reduced_tokens", saved),
		zap.String("reduction", fmt.Sprintf("%.1f%%", pct)),
	)
	c.Metrics.Compaction("succeeded")
	return res, nil
}
