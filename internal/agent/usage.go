package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// UsageInfo is what one ticket cost. Cost and durations keep the agent's
// own rendering ("$1.50", "2m 30s"); the stats ledger parses them.
type UsageInfo struct {
	Cost         string `json:"cost"`
	WallDuration string `json:"wall_duration"`
	APIDuration  string `json:"api_duration"`
	CodeChanges  string `json:"code_changes"`

	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens"`
}

// LogUsage is the token usage summed from a conversation log.
type LogUsage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
	// ContextSize is the last non-zero input token count in the log.
	ContextSize int64
}

// UsageAccountant queries what a session cost and how large its context is.
type UsageAccountant struct {
	Driver  *Driver
	Timeout time.Duration
	LogDir  string
	Logger  *zap.Logger
}

// NewUsageAccountant creates an accountant reading logs under logDir.
func NewUsageAccountant(d *Driver, timeout time.Duration, logDir string, logger *zap.Logger) *UsageAccountant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageAccountant{Driver: d, Timeout: timeout, LogDir: logDir, Logger: logger.Named("usage")}
}

// Query runs the cost command against a session and fills token counts
// from the session's conversation log. Token counts reported by the cost
// command are ignored.
func (u *UsageAccountant) Query(ctx context.Context, project, dir, sessionID string) (*UsageInfo, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}
	out, err := u.Driver.Command(ctx, KindCost, project, dir, sessionID, "/cost", u.Timeout)
	if err != nil {
		return nil, fmt.Errorf("cost query: %w", err)
	}

	info := ParseCostReport(out.Result)
	if info.Cost == "" && out.TotalCostUSD > 0 {
		info.Cost = fmt.Sprintf("$%.2f", out.TotalCostUSD)
	}
	if info.WallDuration == "" && out.DurationMS > 0 {
		info.WallDuration = FormatDuration(time.Duration(out.DurationMS) * time.Millisecond)
	}
	if info.APIDuration == "" && out.DurationAPIMS > 0 {
		info.APIDuration = FormatDuration(time.Duration(out.DurationAPIMS) * time.Millisecond)
	}

	logUsage, err := u.sessionUsage(dir, sessionID)
	if err != nil {
		u.Logger.Warn("read conversation log", zap.String("session", sessionID), zap.Error(err))
	} else {
		info.InputTokens = logUsage.InputTokens
		info.OutputTokens = logUsage.OutputTokens
		info.CacheCreationTokens = logUsage.CacheCreationTokens
		info.CacheReadTokens = logUsage.CacheReadTokens
	}
	return &info, nil
}

// ContextSize returns the current context size of a session, or 0 when
// the conversation log cannot be read.
func (u *UsageAccountant) ContextSize(dir, sessionID string) int64 {
	logUsage, err := u.sessionUsage(dir, sessionID)
	if err != nil {
		return 0
	}
	return logUsage.ContextSize
}

func (u *UsageAccountant) sessionUsage(dir, sessionID string) (LogUsage, error) {
	path, err := FindSessionLog(u.LogDir, dir, sessionID)
	if err != nil {
		return LogUsage{}, err
	}
	return ReadLogUsage(path)
}

// FindSessionLog locates <logDir>/<encoded dir>/<session>.jsonl, falling back
// to a search across every project directory under logDir.
func FindSessionLog(logDir, dir, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrNoSession
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	path := filepath.Join(logDir, EncodeProjectDir(dir), sessionID+".jsonl")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	matches, _ := filepath.Glob(filepath.Join(logDir, "*", sessionID+".jsonl"))
	if len(matches) > 0 {
		return matches[0], nil
	}
	return "", fmt.Errorf("conversation log for session %s not found under %s", sessionID, logDir)
}

// EncodeProjectDir maps a working directory to the log directory name the
// agent uses: every rune that is not a letter or digit becomes '-'.
func EncodeProjectDir(dir string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '-'
	}, dir)
}

type logEntry struct {
	Message struct {
		Usage struct {
			InputTokens              int64 `json:"input_tokens"`
			OutputTokens             int64 `json:"output_tokens"`
			CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
			CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

// ReadLogUsage sums message usage across a JSONL conversation log.
// Unparseable lines are skipped.
func ReadLogUsage(path string) (LogUsage, error) {
	f, err := os.Open(path)
	if err != nil {
		return LogUsage{}, err
	}
	defer f.Close()

	var u LogUsage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		var e logEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		usage := e.Message.Usage
		u.InputTokens += usage.InputTokens
		u.OutputTokens += usage.OutputTokens
		u.CacheCreationTokens += usage.CacheCreationInputTokens
		u.CacheReadTokens += usage.CacheReadInputTokens
		if usage.InputTokens > 0 {
			u.ContextSize = usage.InputTokens
		}
	}
	if err := scanner.Err(); err != nil {
		return u, fmt.Errorf("scan %s: %w", path, err)
	}
	return u, nil
}

var (
	costLinePattern    = regexp.MustCompile(`(?i)total cost:\s*\$?([\d.,]+)`)
	apiLinePattern     = regexp.MustCompile(`(?i)total duration \(api\):\s*([^\n]+)`)
	wallLinePattern    = regexp.MustCompile(`(?i)total duration \(wall\):\s*([^\n]+)`)
	changesLinePattern = regexp.MustCompile(`(?i)total code changes:\s*(\d+)\s+lines?\s+added,\s*(\d+)\s+lines?\s+removed`)
)

// ParseCostReport extracts cost, durations and code changes from the text
// the cost command prints. Missing fields are left empty.
func ParseCostReport(text string) UsageInfo {
	var info UsageInfo
	if m := costLinePattern.FindStringSubmatch(text); m != nil {
		info.Cost = "$" + strings.ReplaceAll(m[1], ",", "")
	}
	if m := apiLinePattern.FindStringSubmatch(text); m != nil {
		info.APIDuration = strings.TrimSpace(m[1])
	}
	if m := wallLinePattern.FindStringSubmatch(text); m != nil {
		info.WallDuration = strings.TrimSpace(m[1])
	}
	if m := changesLinePattern.FindStringSubmatch(text); m != nil {
		added, _ := strconv.Atoi(m[1])
		removed, _ := strconv.Atoi(m[2])
		info.CodeChanges = fmt.Sprintf("+%d -%d", added, removed)
	}
	return info
}

// FormatDuration renders d as "Nms", "N.Ts", "Nm N.Ts" or "Nh Nm".
// Seconds are truncated to tenths so a value never renders as "60.0s".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return tenths(d)
	case d < time.Hour:
		minutes := int(d / time.Minute)
		rest := d - time.Duration(minutes)*time.Minute
		return fmt.Sprintf("%dm %s", minutes, tenths(rest))
	default:
		hours := int(d / time.Hour)
		minutes := int((d - time.Duration(hours)*time.Hour) / time.Minute)
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
}

func tenths(d time.Duration) string {
	n := int64(d / (100 * time.Millisecond))
	return fmt.Sprintf("%d.%ds", n/10, n%10)
}
