package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNew_Level(t *testing.T) {
	assert.True(t, New("debug").Core().Enabled(zapcore.DebugLevel))
	assert.False(t, New("warn").Core().Enabled(zapcore.InfoLevel))
	assert.True(t, New("nonsense").Core().Enabled(zapcore.InfoLevel))
	assert.False(t, New("nonsense").Core().Enabled(zapcore.DebugLevel))
}
