package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactPrompt(t *testing.T) {
	assert.Equal(t, "/compact", CompactPrompt(""))
	assert.Equal(t, "/compact", CompactPrompt("   "))
	assert.Equal(t, "/compact keep the API notes", CompactPrompt("keep the API notes"))
}

func TestCompactSuccessReportsReduction(t *testing.T) {
	logDir := t.TempDir()
	workDir := t.TempDir()
	writeSessionLog(t, logDir, workDir, "old", usageLine(150000, 10, 0, 0))
	writeSessionLog(t, logDir, workDir, "new", usageLine(30000, 10, 0, 0))

	mock := &MockExecutor{Respond: func(int, Invocation) (*Completed, error) {
		return Succeed(ResultLine("new", "Compacted")), nil
	}}
	d := testDriver(mock)
	c := NewCompactor(d, NewUsageAccountant(d, time.Second, logDir, nil), 2*time.Minute, nil, nil)

	res, err := c.Compact(context.Background(), "app", workDir, "old", "keep tests")
	require.NoError(t, err)
	assert.Equal(t, "new", res.SessionID)
	assert.Equal(t, int64(150000), res.Before)
	assert.Equal(t, int64(30000), res.After)
	saved, pct := res.Reduction()
	assert.Equal(t, int64(120000), saved)
	assert.InDelta(t, 80.0, pct, 0.001)

	inv := mock.Calls()[0]
	assert.Equal(t, KindCompact, inv.Kind)
	assert.Equal(t, "/compact keep tests", inv.ArgValue("-p"))
	assert.Equal(t, "old", inv.ArgValue("--resume"))
	assert.Equal(t, 2*time.Minute, inv.Timeout)
}

func TestCompactFailures(t *testing.T) {
	tests := []struct {
		name    string
		respond func(int, Invocation) (*Completed, error)
		is      error
	}{
		{"non-zero exit", func(int, Invocation) (*Completed, error) { return Fail(1, "Error running compact"), nil }, nil},
		{"timeout", func(int, Invocation) (*Completed, error) { return nil, &TimeoutError{After: time.Second} }, nil},
		{"no session id", func(int, Invocation) (*Completed, error) { return Succeed(`{"result":"ok"}`), nil }, nil},
		{"same session", func(int, Invocation) (*Completed, error) { return Succeed(ResultLine("old", "ok")), nil }, ErrCompactionUnchanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompactor(testDriver(&MockExecutor{Respond: tt.respond}), nil, time.Second, nil, nil)
			res, err := c.Compact(context.Background(), "app", "/tmp", "old", "")
			assert.Nil(t, res)
			require.Error(t, err)
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is))
			}
		})
	}
}

func TestCompactWithoutSession(t *testing.T) {
	mock := &MockExecutor{}
	c := NewCompactor(testDriver(mock), nil, time.Second, nil, nil)
	_, err := c.Compact(context.Background(), "app", "/tmp", "", "")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, mock.Calls())
}

func TestReductionUnknownBefore(t *testing.T) {
	saved, pct := CompactionResult{Before: 0, After: 10}.Reduction()
	assert.Equal(t, int64(-10), saved)
	assert.Equal(t, 0.0, pct)
}
