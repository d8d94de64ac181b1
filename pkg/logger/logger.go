// logger.go - 日志组件
// 控制台走可读编码供命令行用户查看，文件走JSON编码并按大小滚动
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 日志级别映射
var logLevelMap = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// 日志接口
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	Fatal(format string, args ...any)
}

// 日志实现
type logger struct {
	sugar *zap.SugaredLogger
}

// NewLogger 创建新日志实例，未知级别回退到info
func NewLogger(logsDir, level string) Logger {
	logLevel, exists := logLevelMap[strings.ToLower(level)]
	if !exists {
		logLevel = zapcore.InfoLevel
	}

	// 日志文件按日期命名，按大小滚动
	currentDate := time.Now().Format("20060102")
	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:  filepath.Join(logsDir, fmt.Sprintf("metadb-builder-%s.log", currentDate)),
		MaxSize:   100, // megabytes
		MaxAge:    5,   // days
		Compress:  true,
		LocalTime: true,
	})

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig()), zapcore.AddSync(os.Stdout), logLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig()), fileWriter, logLevel),
	)

	return &logger{
		sugar: zap.New(core, zap.AddCaller()).Sugar(),
	}
}

func fileEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := fileEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	return cfg
}

// 调试级日志
func (l *logger) Debug(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

// 信息级日志
func (l *logger) Info(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

// 警告级日志
func (l *logger) Warn(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

// 错误级日志
func (l *logger) Error(format string, args ...any) {
	l.sugar.Errorf(format, args...)
}

// 致命错误日志
func (l *logger) Fatal(format string, args ...any) {
	l.sugar.Fatalf(format, args...)
}
