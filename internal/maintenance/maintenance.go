// Package maintenance runs the periodic per-project housekeeping prompt
// every N completed tickets.
package maintenance

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kylegalloway/trellm/internal/agent"
	"github.com/kylegalloway/trellm/internal/config"
	"github.com/kylegalloway/trellm/internal/state"
)

const summaryLimit = 200

// Result is the outcome of one maintenance run.
type Result struct {
	Success   bool
	Summary   string
	SessionID string
}

// ShouldRun reports whether maintenance is due after the project's
// ticketCount-th completed ticket.
func ShouldRun(cfg *config.MaintenanceConfig, ticketCount int) bool {
	if cfg == nil || !cfg.Enabled || cfg.Interval < 1 {
		return false
	}
	return ticketCount > 0 && ticketCount%cfg.Interval == 0
}

// Runner counts completed tickets and triggers maintenance when due.
type Runner struct {
	Driver *agent.Driver
	State  *state.Manager
	Logger *zap.Logger
	Now    func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(d *agent.Driver, st *state.Manager, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Driver: d, State: st, Logger: logger.Named("maintenance"), Now: time.Now}
}

// AfterTicket records a completed ticket for project and, when due, runs
// maintenance against sessionID. It returns nil when nothing ran. A failed
// run is reported in the Result, never as an error; errors are reserved
// for state persistence.
func (r *Runner) AfterTicket(ctx context.Context, project, dir, sessionID string, cfg *config.MaintenanceConfig) (*Result, error) {
	count, err := r.State.IncrementTicketCount(project)
	if err != nil {
		return nil, fmt.Errorf("increment ticket count: %w", err)
	}
	if !ShouldRun(cfg, count) {
		return nil, nil
	}

	log := r.Logger.With(zap.String("project", project))
	log.Info("running maintenance", zap.Int("ticket_count", count), zap.Int("interval", cfg.Interval))

	var last time.Time
	if prev := r.State.Maintenance(project).LastMaintenance; prev != nil {
		last = *prev
	}
	prompt := agent.RenderMaintenancePrompt(agent.MaintenancePromptData{
		Project:         project,
		TicketCount:     count,
		LastMaintenance: last,
		Interval:        cfg.Interval,
		Now:             r.Now(),
	})

	res := r.run(ctx, log, project, dir, sessionID, prompt, cfg.Timeout)

	if res.Success && res.SessionID != "" && res.SessionID != sessionID {
		if err := r.State.SetSession(project, res.SessionID, ""); err != nil {
			return res, fmt.Errorf("save maintenance session: %w", err)
		}
	}
	if err := r.State.MarkMaintenance(project); err != nil {
		return res, fmt.Errorf("record maintenance: %w", err)
	}
	return res, nil
}

func (r *Runner) run(ctx context.Context, log *zap.Logger, project, dir, sessionID, prompt string, timeout time.Duration) *Result {
	out, err := r.Driver.Command(ctx, agent.KindMaintenance, project, dir, sessionID, prompt, timeout)
	if err != nil {
		log.Error("maintenance failed", zap.Error(err))
		return &Result{Success: false, Summary: truncate("Maintenance failed: "+err.Error(), summaryLimit)}
	}
	summary := "Maintenance completed"
	if out.HasResult && out.Result != "" {
		summary = out.Result
	}
	log.Info("maintenance completed", zap.String("summary", truncate(summary, 100)))
	return &Result{Success: true, Summary: summary, SessionID: out.SessionID}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
