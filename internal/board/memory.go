package board

import (
	"context"
	"sync"

	"github.com/kylegalloway/trellm/internal/tasks"
)

// Memory is an in-process Board, used by tests and dry runs.
type Memory struct {
	mu       sync.Mutex
	todo     []tasks.Task
	ready    []string
	comments map[string][]string
	// Err, when set, is returned from every call.
	Err error
}

// NewMemory returns a board whose todo list holds ts.
func NewMemory(ts ...tasks.Task) *Memory {
	return &Memory{todo: append([]tasks.Task(nil), ts...), comments: make(map[string][]string)}
}

// Add appends a task to the todo list.
func (m *Memory) Add(t tasks.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.todo = append(m.todo, t)
}

func (m *Memory) TodoTasks(ctx context.Context) ([]tasks.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]tasks.Task(nil), m.todo...), nil
}

func (m *Memory) MoveToReady(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for i, t := range m.todo {
		if t.ID == taskID {
			m.todo = append(m.todo[:i], m.todo[i+1:]...)
			break
		}
	}
	m.ready = append(m.ready, taskID)
	return nil
}

func (m *Memory) AddComment(ctx context.Context, taskID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.comments[taskID] = append(m.comments[taskID], text)
	return nil
}

// Ready returns the ids moved to ready, in order.
func (m *Memory) Ready() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ready...)
}

// Comments returns the comments posted on taskID.
func (m *Memory) Comments(taskID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.comments[taskID]...)
}
