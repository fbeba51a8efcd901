// Package board is the minimal work-board contract the orchestrator needs,
// with a Trello REST implementation.
package board

import (
	"context"

	"github.com/kylegalloway/trellm/internal/tasks"
)

// Board lists pending tasks and reports results back.
type Board interface {
	// TodoTasks returns the tasks waiting to be worked on.
	TodoTasks(ctx context.Context) ([]tasks.Task, error)
	// MoveToReady moves a finished task to the review list.
	MoveToReady(ctx context.Context, taskID string) error
	// AddComment posts text on a task.
	AddComment(ctx context.Context, taskID, text string) error
}

var (
	_ Board = (*Trello)(nil)
	_ Board = (*Memory)(nil)
)
