package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/kylegalloway/trellm/internal/sanitize"
	"github.com/kylegalloway/trellm/internal/tasks"
)

// TaskPromptData holds data for rendering a task prompt.
type TaskPromptData struct {
	Task        *tasks.Task
	ReadyListID string
}

// MaintenancePromptData holds data for rendering a maintenance prompt.
type MaintenancePromptData struct {
	Project         string
	TicketCount     int
	LastMaintenance time.Time
	Interval        int
	Now             time.Time
}

// RenderTaskPrompt builds the prompt that sends the agent to work on a card.
func RenderTaskPrompt(d TaskPromptData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Work on Trello card %s\n\nCard URL: %s\n", d.Task.ID, d.Task.URL)

	if name := strings.TrimSpace(sanitize.TaskContent(d.Task.Name)); name != "" {
		fmt.Fprintf(&b, "\n<task-description>\n%s", name)
		if desc := strings.TrimSpace(sanitize.TaskContent(d.Task.Description)); desc != "" {
			fmt.Fprintf(&b, "\n\n%s", desc)
		}
		b.WriteString("\n</task-description>\n")
	}

	b.WriteString(`
When done, commit your changes and provide a brief summary.

Important guidelines:
- Fetch the card details from Trello to get the full description and requirements
- Check ALL comments on the card; comments after your last "Claude:" comment are feedback you need to address (the card was moved back to TODO)
- As soon as you start working, add a comment starting with "Claude:" acknowledging you've started
- Read and understand existing code before making changes
- Write clean, maintainable code following the project's style
- Add tests when appropriate
- Commit with a clear, descriptive message
- Push your changes to the remote repository
- When done, add a comment starting with "Claude:" summarizing what was done
`)
	if d.ReadyListID != "" {
		fmt.Fprintf(&b, "- Move the card to list ID %s when done\n", d.ReadyListID)
	} else {
		b.WriteString("- Move the card to the READY TO TRY list when done\n")
	}

	b.WriteString(`
Voice note handling:
- Check if the card has audio attachments (.opus, .ogg, .m4a, .mp3, .wav)
- Skip any voice note already transcribed (look for "Transcribed: [filename]" in comments)
- For new voice notes: download, transcribe, and add a comment "Claude: Transcribed: [filename]" followed by the transcription
- If the card is new with only a voice note, update its name and description from the transcription
- Process the transcribed instructions along with the rest of the card`)
	return b.String()
}

// RenderMaintenancePrompt builds the periodic maintenance prompt for a project.
func RenderMaintenancePrompt(d MaintenancePromptData) string {
	last := "never"
	if !d.LastMaintenance.IsZero() {
		last = d.LastMaintenance.UTC().Format(time.RFC3339)
	}
	now := d.Now
	if now.IsZero() {
		now = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are performing maintenance on the %s project.\n\n", d.Project)
	fmt.Fprintf(&b, "Recent ticket count: %d\nLast maintenance: %s\nMaintenance interval: every %d tickets\n\n", d.TicketCount, last, d.Interval)
	b.WriteString("Please perform the following maintenance tasks:\n\n")

	b.WriteString("## 1. CLAUDE.md Review\n")
	b.WriteString("- Check if CLAUDE.md exists in the project directory and review it\n")
	fmt.Fprintf(&b, "- Analyze recent work from git history (last %d commits)\n", d.Interval)
	b.WriteString("- Suggest updates for new conventions, architecture decisions, test patterns and pitfalls\n")
	b.WriteString("- Output recommendations but DO NOT change CLAUDE.md\n\n")

	b.WriteString("## 2. Compaction Prompt Review\n")
	b.WriteString("- Identify context that keeps being re-read or must survive compaction\n")
	b.WriteString("- Suggest compact_prompt updates for review (DO NOT modify config files)\n\n")

	b.WriteString("## 3. Documentation Freshness\n")
	b.WriteString("- Flag outdated README sections, API docs that no longer match, and stale TODOs\n\n")

	b.WriteString("## 4. Maintenance Log\n")
	b.WriteString("Create or update `.claude/maintenance-log.md` in the project directory with:\n\n")
	fmt.Fprintf(&b, "## Maintenance Run - %s\n\n", now.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "### Ticket Count: %d\n\n### Observations\n\n### Recommendations\n\n", d.TicketCount)
	b.WriteString("Be concise. Do not make any changes other than updating the maintenance log.")
	return b.String()
}
