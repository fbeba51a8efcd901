package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

const (
	thinkingPreview = 500
	commandPreview  = 80
)

// StreamPrinter renders stream-json lines as readable, project-prefixed text.
type StreamPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
}

// NewStreamPrinter creates a printer writing to w with a "[project] " prefix.
func NewStreamPrinter(w io.Writer, project string) *StreamPrinter {
	return &StreamPrinter{w: w, prefix: "[" + project + "] "}
}

type streamMessage struct {
	Type    string `json:"type"`
	Result  string `json:"result"`
	Message struct {
		Content []streamContent `json:"content"`
	} `json:"message"`
}

type streamContent struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Thinking string          `json:"thinking"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
	IsError  bool            `json:"is_error"`
}

type toolInput struct {
	FilePath string `json:"file_path"`
	Command  string `json:"command"`
	Pattern  string `json:"pattern"`
}

// PrintLine renders one stdout line. Lines that are not JSON objects are ignored.
func (p *StreamPrinter) PrintLine(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return
	}
	var msg streamMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch msg.Type {
	case "assistant":
		for _, c := range msg.Message.Content {
			p.printAssistant(c)
		}
	case "user":
		for _, c := range msg.Message.Content {
			if c.Type != "tool_result" {
				continue
			}
			status := "done"
			if c.IsError {
				status = "error"
			}
			fmt.Fprintf(p.w, "%s  [%s]\n", p.prefix, status)
		}
	case "result":
		if msg.Result == "" {
			return
		}
		rule := strings.Repeat("=", 60)
		fmt.Fprintf(p.w, "\n%s%s\n", p.prefix, rule)
		fmt.Fprintf(p.w, "%s[Result]\n", p.prefix)
		fmt.Fprintf(p.w, "%s%s\n", p.prefix, strings.Repeat("-", 60))
		for _, l := range strings.Split(msg.Result, "\n") {
			fmt.Fprintf(p.w, "%s%s\n", p.prefix, l)
		}
		fmt.Fprintf(p.w, "%s%s\n", p.prefix, rule)
	}
}

func (p *StreamPrinter) printAssistant(c streamContent) {
	switch c.Type {
	case "thinking":
		if c.Thinking == "" {
			return
		}
		fmt.Fprintf(p.w, "\n%s[Thinking] %s\n", p.prefix, truncate(c.Thinking, thinkingPreview, "..."))
	case "text":
		if c.Text != "" {
			fmt.Fprintf(p.w, "\n%s[Claude] %s\n", p.prefix, c.Text)
		}
	case "tool_use":
		name := c.Name
		if name == "" {
			name = "unknown"
		}
		var in toolInput
		_ = json.Unmarshal(c.Input, &in)
		detail := ""
		switch name {
		case "Edit", "Read", "Write":
			detail = in.FilePath
		case "Bash":
			detail = truncate(in.Command, commandPreview, "")
		case "Grep":
			detail = in.Pattern
		}
		if detail == "" {
			fmt.Fprintf(p.w, "\n%s[Tool: %s]\n", p.prefix, name)
			return
		}
		fmt.Fprintf(p.w, "\n%s[Tool: %s] %s\n", p.prefix, name, detail)
	}
}

// PrintStderr echoes a stderr line with the project prefix.
func (p *StreamPrinter) PrintStderr(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s%s\n", p.prefix, line)
}

func truncate(s string, n int, suffix string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + suffix
}
