package diagnostics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/snow-wind-001/CodeRecoder/internal/diagnostics"
)

func TestModule_ReturnsUsableLoggerAndDoesNotPanic(t *testing.T) {
	log := diagnostics.Module("coderecoder/test")

	assert.NotNil(t, log)

	assert.NotPanics(t, func() {
		log.Infow("hello", "key", "value")
		log.Warnw("careful", "key", "value")
	})
}

func TestModule_DifferentNamesReturnIndependentLoggers(t *testing.T) {
	a := diagnostics.Module("coderecoder/a")
	b := diagnostics.Module("coderecoder/b")

	assert.NotSame(t, a, b)
}

func TestSetLevel_DoesNotPanicAcrossLevels(t *testing.T) {
	assert.NotPanics(t, func() {
		diagnostics.SetLevel(zapcore.DebugLevel)
		diagnostics.Module("coderecoder/level-check").Debugw("visible now")
		diagnostics.SetLevel(zapcore.InfoLevel)
	})
}
