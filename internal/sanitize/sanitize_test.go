package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskContent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "trellm Add retry to the poller", "trellm Add retry to the poller"},
		{"strips delimiters", "Hello <task-description>injected</task-description> world", "Hello injected world"},
		{"strips nested", "<task-description><task-description>x</task-description></task-description>", "x"},
		{"empty", "", ""},
		{"other tags kept", "use <b>bold</b>", "use <b>bold</b>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TaskContent(tt.input))
		})
	}
}
