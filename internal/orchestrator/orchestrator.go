package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kylegalloway/trellm/internal/agent"
	"github.com/kylegalloway/trellm/internal/board"
	"github.com/kylegalloway/trellm/internal/config"
	"github.com/kylegalloway/trellm/internal/locks"
	"github.com/kylegalloway/trellm/internal/maintenance"
	"github.com/kylegalloway/trellm/internal/metrics"
	"github.com/kylegalloway/trellm/internal/state"
	"github.com/kylegalloway/trellm/internal/stats"
	"github.com/kylegalloway/trellm/internal/tasks"
	"github.com/kylegalloway/trellm/internal/ui"
)

const shutdownGrace = 10 * time.Second

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Board    board.Board
	State    *state.Manager
	Executor agent.Executor
	Registry *agent.Registry
	Metrics  *metrics.Metrics
	// Stream renders the agent conversation to stdout.
	Stream bool
	Logger *zap.Logger
	Now    func() time.Time
}

// Orchestrator polls the board and runs each task through the recovery
// pipeline, one task per project at a time.
type Orchestrator struct {
	config   *config.Config
	board    board.Board
	state    *state.Manager
	registry *agent.Registry
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time

	sched    *locks.Scheduler
	recovery *agent.Recovery
	usage    *agent.UsageAccountant
	maint    *maintenance.Runner

	group errgroup.Group

	cycles    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	costCents atomic.Int64
	tokens    atomic.Int64
	started   time.Time
}

// New wires the pipeline from cfg.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	driver := agent.NewDriver(deps.Executor, cfg.Claude, deps.Stream, logger)
	usage := agent.NewUsageAccountant(driver, cfg.Claude.CostTimeout, config.ExpandHome(cfg.Claude.LogDir), logger)
	compactor := agent.NewCompactor(driver, usage, cfg.Claude.CompactTimeout, deps.Metrics, logger)
	recovery := agent.NewRecovery(driver, compactor, cfg.Claude.MaxRetries, cfg.Claude.DefaultBackoff, deps.Metrics, logger)
	maint := maintenance.NewRunner(driver, deps.State, logger)
	maint.Now = now

	return &Orchestrator{
		config:   cfg,
		board:    deps.Board,
		state:    deps.State,
		registry: deps.Registry,
		metrics:  deps.Metrics,
		logger:   logger.Named("orchestrator"),
		now:      now,
		sched:    locks.NewScheduler(agent.EffectiveConcurrency(cfg.Claude, logger)),
		recovery: recovery,
		usage:    usage,
		maint:    maint,
		started:  now(),
	}
}

// Recovery exposes the recovery controller, e.g. to replace its sleep in tests.
func (o *Orchestrator) Recovery() *agent.Recovery { return o.recovery }

// Run polls until ctx is cancelled, then waits for in-flight tasks to
// unwind and kills any agent process still alive.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("polling started", zap.Duration("interval", o.config.Polling.Interval))
	defer o.shutdown()

	ticker := time.NewTicker(o.config.Polling.Interval)
	defer ticker.Stop()
	for {
		if _, err := o.Poll(ctx); err != nil && ctx.Err() == nil {
			o.logger.Error("poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce polls a single time and waits for every dispatched task.
// It returns the number of tasks completed.
func (o *Orchestrator) RunOnce(ctx context.Context) (int, error) {
	defer o.shutdown()
	before := o.completed.Load()
	if _, err := o.Poll(ctx); err != nil {
		return 0, err
	}
	o.group.Wait()
	return int(o.completed.Load() - before), nil
}

// Wait blocks until every dispatched task has finished.
func (o *Orchestrator) Wait() { o.group.Wait() }

func (o *Orchestrator) shutdown() {
	o.group.Wait()
	if o.registry != nil {
		o.registry.KillAll(shutdownGrace)
	}
	o.logger.Info("stopped", zap.String("summary", ui.FormatProgress(o.progress())))
}

// Summary reports the counters accumulated so far.
func (o *Orchestrator) Summary() ui.RunSummary {
	return ui.RunSummary{
		Completed: int(o.completed.Load()),
		Failed:    int(o.failed.Load()),
		CostCents: o.costCents.Load(),
		Tokens:    o.tokens.Load(),
		Duration:  o.now().Sub(o.started),
	}
}

func (o *Orchestrator) progress() ui.ProgressState {
	return ui.ProgressState{
		Cycle:     int(o.cycles.Load()),
		InFlight:  o.sched.InFlightCount(),
		Completed: int(o.completed.Load()),
		Failed:    int(o.failed.Load()),
		CostCents: o.costCents.Load(),
		StartTime: o.started,
	}
}

// Poll fetches the todo list, answers stats requests and dispatches the
// remaining tasks in the background. It returns the number dispatched.
func (o *Orchestrator) Poll(ctx context.Context) (int, error) {
	cycle := o.cycles.Add(1)
	todo, err := o.board.TodoTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch todo tasks: %w", err)
	}
	o.logger.Debug("polled board", zap.Int64("cycle", cycle), zap.Int("todo", len(todo)))

	batch := selectReady(todo, o.state, o.sched, o.config.ProjectNames(), o.logger)
	for _, t := range batch.Stats {
		if err := o.answerStats(ctx, t); err != nil {
			o.logger.Error("stats request failed", zap.String("task", t.ID), zap.Error(err))
		}
	}

	dispatched := 0
	for _, t := range batch.Work {
		if err := o.sched.Claim(t.ID); err != nil {
			continue
		}
		if o.sched.Busy(t.Project()) {
			o.logger.Debug("project busy, task queued", zap.String("task", t.ID), zap.String("project", t.Project()))
		}
		dispatched++
		o.group.Go(func() error {
			defer o.sched.Done(t.ID)
			err := o.ProcessTask(ctx, t)
			switch {
			case err == nil:
			case IsTerminal(err):
				o.failed.Add(1)
				o.logger.Error("task failed, left in todo", zap.String("task", t.ID), zap.String("project", t.Project()), zap.Error(err))
			default:
				o.logger.Info("task interrupted", zap.String("task", t.ID), zap.Error(err))
			}
			return nil
		})
	}
	if dispatched > 0 {
		o.logger.Info("dispatched tasks", zap.Int("count", dispatched), zap.String("progress", ui.FormatProgress(o.progress())))
	}
	return dispatched, nil
}

func (o *Orchestrator) answerStats(ctx context.Context, t tasks.Task) error {
	project := t.Project()
	report := ui.ProjectReport(o.state.Stats(), project, o.now())
	if err := o.board.AddComment(ctx, t.ID, report); err != nil {
		return fmt.Errorf("post stats: %w", err)
	}
	if err := o.board.MoveToReady(ctx, t.ID); err != nil {
		return fmt.Errorf("move stats task: %w", err)
	}
	if err := o.state.MarkProcessed(t.ID); err != nil {
		return fmt.Errorf("mark stats task: %w", err)
	}
	o.logger.Info("/stats command processed", zap.String("project", project), zap.String("task", t.ID))
	return nil
}

// ProcessTask runs one task end to end and reports it back to the board.
// On error the task is left untouched for a later poll.
func (o *Orchestrator) ProcessTask(ctx context.Context, t tasks.Task) error {
	project := t.Project()
	log := o.logger.With(zap.String("project", project), zap.String("task", t.ID))

	release, err := o.sched.Lock(ctx, project)
	if err != nil {
		return err
	}
	defer release()

	o.metrics.TaskStarted()
	defer o.metrics.TaskFinished()

	sess, _ := o.state.Session(project)
	sessionID := sess.SessionID
	if sessionID == "" {
		sessionID = o.config.InitialSessionID(project)
	}
	dir := o.config.WorkingDir(project)
	log.Info("processing task", zap.String("name", t.Name), zap.String("session", sessionOrNew(sessionID)))

	res, err := o.recovery.Execute(ctx, agent.Job{
		Request: agent.Request{
			Project:   project,
			TaskID:    t.ID,
			Prompt:    agent.RenderTaskPrompt(agent.TaskPromptData{Task: &t, ReadyListID: o.config.Board.ReadyListID}),
			Dir:       dir,
			SessionID: sessionID,
		},
		LastTaskID:    sess.LastTaskID,
		CompactPrompt: o.config.CompactPrompt(project),
		OnCompacted: func(id string) {
			if err := o.state.SetSession(project, id, t.ID); err != nil {
				log.Warn("save compacted session", zap.Error(err))
			}
		},
	})
	if err != nil {
		o.metrics.Ticket(project, "failed", 0)
		return err
	}

	session := res.SessionID
	if session != "" {
		if err := o.state.SetSession(project, session, t.ID); err != nil {
			log.Warn("save session", zap.Error(err))
		}
	} else {
		session = sessionID
	}

	info, err := o.usage.Query(ctx, project, dir, session)
	if err != nil {
		log.Warn("usage query failed, recording zero usage", zap.Error(err))
		info = &agent.UsageInfo{}
	}
	res.Usage = info

	rec, err := o.state.RecordTicket(t.ID, project, t.Name, toStatsUsage(info))
	if err != nil {
		log.Warn("record ticket stats", zap.Error(err))
	}
	o.metrics.Ticket(project, "succeeded", rec.Usage.CostCents)
	o.completed.Add(1)
	o.costCents.Add(rec.Usage.CostCents)
	o.tokens.Add(rec.Usage.TotalTokens())

	if err := o.state.MarkProcessed(t.ID); err != nil {
		log.Warn("mark processed", zap.Error(err))
	}
	if err := o.board.MoveToReady(ctx, t.ID); err != nil {
		log.Warn("move to ready", zap.Error(err))
	}
	log.Info("task completed",
		zap.String("summary", res.Summary),
		zap.String("cost", info.Cost),
		zap.Duration("duration", res.Duration),
	)

	mres, err := o.maint.AfterTicket(ctx, project, dir, session, o.config.Maintenance(project))
	if err != nil {
		log.Warn("maintenance bookkeeping", zap.Error(err))
	} else if mres != nil && !mres.Success {
		log.Warn("maintenance did not complete", zap.String("summary", mres.Summary))
	}
	return nil
}

func toStatsUsage(u *agent.UsageInfo) stats.Usage {
	return stats.Usage{
		Cost:                u.Cost,
		WallDuration:        u.WallDuration,
		APIDuration:         u.APIDuration,
		CodeChanges:         u.CodeChanges,
		InputTokens:         u.InputTokens,
		OutputTokens:        u.OutputTokens,
		CacheCreationTokens: u.CacheCreationTokens,
		CacheReadTokens:     u.CacheReadTokens,
	}
}

func sessionOrNew(id string) string {
	if id == "" {
		return "new"
	}
	return id
}

// IsTerminal reports whether err is a recovery failure rather than a
// cancellation.
func IsTerminal(err error) bool {
	var rerr *agent.RecoveryError
	return errors.As(err, &rerr)
}
