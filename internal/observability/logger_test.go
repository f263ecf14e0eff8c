package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/refintel/internal/config"
)

// -- Test Helper Functions --

// setupTestLogger initializes the global logger to write to a buffer for testing.
func setupTestLogger(cfg config.LoggerConfig) *bytes.Buffer {
	buf := new(bytes.Buffer)
	initializeLogger(cfg, zapcore.AddSync(buf))
	return buf
}

// resetGlobalLogger restores test isolation; the logger is a global singleton.
func resetGlobalLogger() {
	once = sync.Once{}
	globalLogger.Store(nil)
}

// -- Test Cases --

func TestInitializeLogger(t *testing.T) {

	t.Run("should initialize console logger with colors", func(t *testing.T) {
		resetGlobalLogger()

		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors: config.ColorConfig{
				Warn: "yellow",
			},
		}

		buf := setupTestLogger(cfg)

		logger := GetLogger()
		logger.Warn("Unknown code encountered.", zap.String("field", "source"))
		Sync()

		output := buf.String()
		assert.Contains(t, output, "WARN")
		assert.Contains(t, output, "Unknown code encountered.")
		assert.Contains(t, output, colorYellow, "Warn level should be colorized yellow")
		assert.Contains(t, output, colorReset)
	})

	t.Run("should initialize json logger", func(t *testing.T) {
		resetGlobalLogger()

		cfg := config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		}

		buf := setupTestLogger(cfg)

		logger := GetLogger()
		logger.Warn("Identity unresolved.", zap.Int("record_index", 7))
		Sync()

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry), "Log output should be valid JSON")

		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "Identity unresolved.", logEntry["msg"])
		assert.Equal(t, float64(7), logEntry["record_index"])
	})

	t.Run("should respect the configured level", func(t *testing.T) {
		resetGlobalLogger()

		buf := setupTestLogger(config.LoggerConfig{Level: "warn", Format: "json"})
		GetLogger().Info("hidden")
		Sync()

		assert.Empty(t, buf.String())
	})

	t.Run("should write to a log file if configured", func(t *testing.T) {
		resetGlobalLogger()
		logFile := filepath.Join(t.TempDir(), "refintel.log")

		cfg := config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1,
		}
		setupTestLogger(cfg)
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		resetGlobalLogger()

		buf1 := setupTestLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "First"})
		logger1 := GetLogger()

		buf2 := setupTestLogger(config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "Second"})
		logger2 := GetLogger()

		assert.Equal(t, logger1, logger2)
		logger2.Info("test message")
		Sync()

		output := buf1.String()
		assert.True(t, strings.Contains(output, "First"))
		assert.True(t, strings.Contains(output, "test message"))
		assert.False(t, strings.Contains(output, "Second"))
		assert.Empty(t, buf2.String())
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("should return a fallback logger if not initialized", func(t *testing.T) {
		resetGlobalLogger()
		require.NotNil(t, GetLogger())
	})

	t.Run("should return the global logger after initialization", func(t *testing.T) {
		resetGlobalLogger()
		setupTestLogger(config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})

		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}

func TestNewLoggerDoesNotTouchGlobal(t *testing.T) {
	resetGlobalLogger()

	buf := new(bytes.Buffer)
	logger := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "isolated"}, zapcore.AddSync(buf))
	logger.Info("run started")

	assert.Nil(t, globalLogger.Load())
	assert.Contains(t, buf.String(), "run started")
}
