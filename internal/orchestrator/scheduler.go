package orchestrator

import (
	"go.uber.org/zap"

	"github.com/kylegalloway/trellm/internal/locks"
	"github.com/kylegalloway/trellm/internal/state"
	"github.com/kylegalloway/trellm/internal/tasks"
)

// Batch is one poll's worth of work, in board order.
type Batch struct {
	// Stats are "<project> /stats" requests, answered without the agent.
	Stats []tasks.Task
	// Work are tasks to hand to the agent.
	Work []tasks.Task
}

// selectReady splits the todo list into stats requests and runnable tasks:
//   - tasks already in flight are skipped
//   - processed tasks are skipped unless they saw activity since, in
//     which case their processed mark is cleared and they run again
func selectReady(todo []tasks.Task, st *state.Manager, sched *locks.Scheduler, projects []string, logger *zap.Logger) Batch {
	var b Batch
	for _, t := range todo {
		if sched.InFlight(t.ID) {
			continue
		}
		if st.IsProcessed(t.ID) {
			if !st.ShouldReprocess(t.ID, t.LastActivity) {
				continue
			}
			logger.Info("task moved back to todo, reprocessing", zap.String("task", t.ID))
			if err := st.ClearProcessed(t.ID); err != nil {
				logger.Warn("clear processed mark", zap.String("task", t.ID), zap.Error(err))
			}
		}
		if tasks.IsStatsCommand(t.Name, projects) {
			b.Stats = append(b.Stats, t)
			continue
		}
		b.Work = append(b.Work, t)
	}
	return b
}
