package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSetup(t *testing.T) {
	t.Cleanup(func() { _ = Setup("", "debug", "arcanum") })

	require.NoError(t, Setup("production", "warn", "arcanum-test"))
	l := GetLogger()
	assert.False(t, l.log.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.log.Desugar().Core().Enabled(zapcore.WarnLevel))

	require.NoError(t, Setup("dev", "debug", ""))
	assert.True(t, GetLogger().log.Desugar().Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, Setup("dev", "loud", "arcanum-test"))
}
