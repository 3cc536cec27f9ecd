// Package logutil builds the structured zap logger used across datascope.
package logutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paveg/datascope/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeLayout = "2006/01/02 15:04:05.000000 -0700"

// NewLogger builds a logger from cfg. An empty Filename logs to stderr,
// otherwise output goes to a size-rotated file.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := getLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	encoder, err := getEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}
	syncer, err := getSyncer(cfg)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, syncer, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// Must is NewLogger for program entry points.
func Must(cfg config.LogConfig) *zap.Logger {
	logger, err := NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	return logger
}

func getLevel(name string) (zap.AtomicLevel, error) {
	if name == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}
	level, err := zap.ParseAtomicLevel(name)
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

func getEncoder(format string) (zapcore.Encoder, error) {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "name",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	switch format {
	case "", "console":
		return zapcore.NewConsoleEncoder(encCfg), nil
	case "json":
		return zapcore.NewJSONEncoder(encCfg), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func getSyncer(cfg config.LogConfig) (zapcore.WriteSyncer, error) {
	if cfg.Filename == "" {
		return zapcore.Lock(os.Stderr), nil
	}
	if stat, err := os.Stat(cfg.Filename); err == nil && stat.IsDir() {
		return nil, fmt.Errorf("log file %s is a directory", cfg.Filename)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxDays,
		MaxBackups: cfg.MaxBackups,
		LocalTime:  true,
	}), nil
}
