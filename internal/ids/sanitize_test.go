package ids_test

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebus/eventbus/internal/ids"
)

func TestSanitize_AllowedCharactersPassThrough(t *testing.T) {
	allowed := "AZaz09_-:."
	require.Equal(t, allowed, ids.Sanitize(allowed))
}

func TestSanitize_ReplacesDisallowedBytes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"space", "dev one", "dev_one"},
		{"hyphen preserved", "dev-one", "dev-one"},
		{"slash", "a/b/c", "a_b_c"},
		{"at sign", "user@example.com", "user_example.com"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids.Sanitize(tt.in))
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	samples := []string{"dev-one", "a/b/c", "", "Hello, World!", "😀namespace"}

	for _, s := range samples {
		once := ids.Sanitize(s)
		twice := ids.Sanitize(once)
		assert.Equal(t, once, twice, "sanitize should be idempotent for %q", s)
	}
}

func TestSanitize_OnlyAllowedCharacterClassRemains(t *testing.T) {
	samples := []string{"dev-one", "a/b/c", "Hello, World!", "😀namespace", "tab\ttab"}

	for _, s := range samples {
		out := ids.Sanitize(s)

		for i := 0; i < len(out); i++ {
			c := out[i]
			isAllowed := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
				(c >= '0' && c <= '9') || c == '_' || c == '-' || c == ':' || c == '.'
			assert.True(t, isAllowed, "byte %q in output %q not in allowed class", c, out)
		}

		assert.True(t, utf8.ValidString(out))
	}
}

func TestQueueName(t *testing.T) {
	assert.Equal(t, "core_events_dev_one", ids.QueueName("dev-one"))
	assert.Equal(t, "core_events_demo", ids.QueueName("demo"))
}

func TestDeadLetterQueueName(t *testing.T) {
	assert.Equal(t, "core_events_dev_one_dlq", ids.DeadLetterQueueName("dev-one"))
}
