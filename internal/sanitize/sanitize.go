package sanitize

import "strings"

// delimiters that must not appear in card text copied into a prompt.
var dangerousDelimiters = []string{
	"<task-description>",
	"</task-description>",
}

// TaskContent strips the delimiters the task prompt uses to fence off
// untrusted card text.
func TaskContent(content string) string {
	result := content
	for _, delim := range dangerousDelimiters {
		result = strings.ReplaceAll(result, delim, "")
	}
	return result
}
