package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MockExecutor implements Executor with scripted responses for testing.
type MockExecutor struct {
	// Respond decides the outcome of the n-th call (0-based).
	Respond func(n int, inv Invocation) (*Completed, error)
	// Delay is how long each mock process takes to "run".
	Delay time.Duration

	mu    sync.Mutex
	calls []Invocation
}

func (m *MockExecutor) Execute(ctx context.Context, inv Invocation) (*Completed, error) {
	m.mu.Lock()
	n := len(m.calls)
	m.calls = append(m.calls, inv)
	m.mu.Unlock()

	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Respond == nil {
		return Succeed(ResultLine("mock-session", "done")), nil
	}
	res, err := m.Respond(n, inv)
	if res != nil && res.RunID == "" {
		res.RunID = "mock-run"
	}
	return res, err
}

// Calls returns a copy of every invocation seen so far.
func (m *MockExecutor) Calls() []Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Invocation(nil), m.calls...)
}

// CallsOfKind returns the invocations of one process kind.
func (m *MockExecutor) CallsOfKind(kind string) []Invocation {
	var out []Invocation
	for _, inv := range m.Calls() {
		if inv.Kind == kind {
			out = append(out, inv)
		}
	}
	return out
}

// Succeed is a zero-exit completion with the given stdout.
func Succeed(stdout string) *Completed {
	return &Completed{Stdout: stdout}
}

// Fail is a non-zero exit completion with the given stderr.
func Fail(code int, stderr string) *Completed {
	return &Completed{ExitCode: code, Stderr: stderr}
}

// ResultLine renders a final result object as the agent prints it.
func ResultLine(sessionID, result string) string {
	data, _ := json.Marshal(map[string]any{
		"type":       "result",
		"session_id": sessionID,
		"result":     result,
	})
	return string(data) + "\n"
}

// ArgValue returns the value following flag in an invocation, or "".
func (inv Invocation) ArgValue(flag string) string {
	for i := 0; i+1 < len(inv.Args); i++ {
		if inv.Args[i] == flag {
			return inv.Args[i+1]
		}
	}
	return ""
}

// HasArg reports whether flag appears in the invocation.
func (inv Invocation) HasArg(flag string) bool {
	for _, a := range inv.Args {
		if a == flag {
			return true
		}
	}
	return false
}
