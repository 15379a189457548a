package redact_test

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/phrazzld/bookrender/internal/redact"
	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "nothing sensitive",
			input:    "rendering failed",
			expected: "rendering failed",
		},
		{
			name:     "database url",
			input:    "dial postgres://bookrender:s3cret@db:5432/bookrender",
			expected: "dial [REDACTED_CREDENTIAL]db:5432/bookrender",
		},
		{
			name:     "password parameter",
			input:    "password=hunter22 rejected",
			expected: "[REDACTED_CREDENTIAL] rejected",
		},
		{
			name:     "stash path",
			input:    "stash put /var/lib/bookrender/stash/abc.pdf: no space left",
			expected: "stash put [REDACTED_PATH]: no space left",
		},
		{
			name:     "sql text",
			input:    "query SELECT id FROM rendering_tasks failed",
			expected: "query [REDACTED_SQL]",
		},
		{
			name:     "stack trace",
			input:    "panic: boom\n\ngoroutine 1 [running]:\nmain.main()\n\t/app/main.go:5",
			expected: "[STACK_TRACE_REDACTED]",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, redact.String(tc.input))
		})
	}
}

func TestError(t *testing.T) {
	t.Parallel()

	assert.Empty(t, redact.Error(nil))
	assert.Equal(t, "plain", redact.Error(errors.New("plain")))

	err := fmt.Errorf("open %s: %w", "/tmp/work/book.html", os.ErrNotExist)
	assert.Equal(t, "open [REDACTED_PATH]: file does not exist", redact.Error(err))
}
