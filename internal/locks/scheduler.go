package locks

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrInFlight is returned when a task is claimed twice.
var ErrInFlight = errors.New("task already in flight")

// Scheduler serializes work per project and tracks in-flight task ids.
// Distinct projects run concurrently, optionally capped by a global limit.
type Scheduler struct {
	mu       sync.Mutex
	projects map[string]*semaphore.Weighted
	inflight map[string]struct{}
	global   *semaphore.Weighted
}

// NewScheduler creates a Scheduler. maxConcurrent < 1 means no global cap.
func NewScheduler(maxConcurrent int) *Scheduler {
	s := &Scheduler{
		projects: make(map[string]*semaphore.Weighted),
		inflight: make(map[string]struct{}),
	}
	if maxConcurrent > 0 {
		s.global = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return s
}

// Claim marks taskID as in flight. It fails with ErrInFlight if the task
// is already claimed.
func (s *Scheduler) Claim(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[taskID]; ok {
		return ErrInFlight
	}
	s.inflight[taskID] = struct{}{}
	return nil
}

// Done removes taskID from the in-flight set.
func (s *Scheduler) Done(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, taskID)
}

// InFlight reports whether taskID is claimed.
func (s *Scheduler) InFlight(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[taskID]
	return ok
}

// InFlightCount returns the number of claimed tasks.
func (s *Scheduler) InFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *Scheduler) token(project string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.projects[project]
	if !ok {
		t = semaphore.NewWeighted(1)
		s.projects[project] = t
	}
	return t
}

// Lock blocks until project's token and a global slot are held. The
// returned func releases both and must be called exactly once.
func (s *Scheduler) Lock(ctx context.Context, project string) (func(), error) {
	t := s.token(project)
	if err := t.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if s.global != nil {
		if err := s.global.Acquire(ctx, 1); err != nil {
			t.Release(1)
			return nil, err
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if s.global != nil {
				s.global.Release(1)
			}
			t.Release(1)
		})
	}, nil
}

// Busy reports whether project's token is currently held.
func (s *Scheduler) Busy(project string) bool {
	t := s.token(project)
	if !t.TryAcquire(1) {
		return true
	}
	t.Release(1)
	return false
}
