package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	t.Run("创建日志实例", func(t *testing.T) {
		log := NewLogger(t.TempDir(), "debug")
		if log == nil {
			t.Fatal("expected logger instance")
		}
		log.Debug("debug %s", "message")
		log.Info("info %s", "message")
	})

	t.Run("未知级别回退到info", func(t *testing.T) {
		log := NewLogger(t.TempDir(), "no-such-level")
		if log == nil {
			t.Fatal("expected logger instance")
		}
	})

	t.Run("级别过滤", func(t *testing.T) {
		observedCore, observedLogs := observer.New(zapcore.InfoLevel)
		sugar := zap.New(observedCore).Sugar()

		sugar.Debug("debug message")
		sugar.Info("info message")

		logs := observedLogs.All()
		if len(logs) != 1 {
			t.Errorf("expected 1 log record, got: %d", len(logs))
		}
		if logs[0].Message != "info message" {
			t.Errorf("log message mismatch: %s", logs[0].Message)
		}
	})
}
