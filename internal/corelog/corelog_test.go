package corelog

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestGet_ReturnsSameLoggerAcrossCalls(t *testing.T) {
	a := Get()
	b := Get()
	assert.Equal(t, a.GetLevel(), b.GetLevel())
}

func TestWithDriver_TagsDriverField(t *testing.T) {
	var buf bytes.Buffer
	logger := WithDriver("openai").Output(&buf).Level(zerolog.DebugLevel)
	logger.Debug().Msg("probe")
	assert.Contains(t, buf.String(), `"driver":"openai"`)
}

func TestLogRetryDecision_DoesNotPanic(t *testing.T) {
	logger := WithDriver("openai")
	assert.NotPanics(t, func() {
		LogRetryDecision(logger, "corr-1", 1, "retry", 500*time.Millisecond)
	})
}

func TestLogStreamLifecycle_DoesNotPanic(t *testing.T) {
	logger := WithDriver("anthropic")
	assert.NotPanics(t, func() {
		LogStreamLifecycle(logger, "start", "")
		LogStreamLifecycle(logger, "end", "end_turn")
	})
}
