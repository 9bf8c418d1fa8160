package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

type ZapLogger struct {
	logger *zap.Logger
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger creates a new logger wrapped around zap.Logger. In development
// mode it writes to both console and a per-process log file; in production
// only to the file.
func NewZapLogger(config LoggerConfig) (Logger, error) {
	logDir := config.LogDir
	if logDir == "" {
		logDir = BaseDataDir
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15-04-05Z")
	processDir := filepath.Join(logDir, LogsDir, string(config.ProcessName))
	if err := os.MkdirAll(processDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logPath := filepath.Join(processDir, fmt.Sprintf("%s.log", timestamp))

	var zapConfig zap.Config
	if config.IsDevelopment {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.OutputPaths = []string{"stdout", logPath}
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.OutputPaths = []string{logPath}
	}

	return NewZapLoggerByConfig(zapConfig, zap.AddCallerSkip(1))
}

// NewZapLoggerByConfig creates a logger from a raw zap.Config.
// Note if the logger needs to show the caller, use `zap.AddCallerSkip(1)` as option.
func NewZapLoggerByConfig(config zap.Config, options ...zap.Option) (Logger, error) {
	logger, err := config.Build(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	return &ZapLogger{
		logger: logger,
	}, nil
}

// NewNoOpLogger returns a logger that discards everything. Used in tests.
func NewNoOpLogger() Logger {
	return &ZapLogger{logger: zap.NewNop()}
}

func (z *ZapLogger) Debug(msg string, tags ...any) {
	z.logger.Sugar().Debugw(msg, tags...)
}

func (z *ZapLogger) Info(msg string, tags ...any) {
	z.logger.Sugar().Infow(msg, tags...)
}

func (z *ZapLogger) Warn(msg string, tags ...any) {
	z.logger.Sugar().Warnw(msg, tags...)
}

func (z *ZapLogger) Error(msg string, tags ...any) {
	z.logger.Sugar().Errorw(msg, tags...)
}

func (z *ZapLogger) Fatal(msg string, tags ...any) {
	z.logger.Sugar().Fatalw(msg, tags...)
}

func (z *ZapLogger) Debugf(template string, args ...interface{}) {
	z.logger.Sugar().Debugf(template, args...)
}

func (z *ZapLogger) Infof(template string, args ...interface{}) {
	z.logger.Sugar().Infof(template, args...)
}

func (z *ZapLogger) Warnf(template string, args ...interface{}) {
	z.logger.Sugar().Warnf(template, args...)
}

func (z *ZapLogger) Errorf(template string, args ...interface{}) {
	z.logger.Sugar().Errorf(template, args...)
}

func (z *ZapLogger) Fatalf(template string, args ...interface{}) {
	z.logger.Sugar().Fatalf(template, args...)
}

func (z *ZapLogger) With(tags ...any) Logger {
	return &ZapLogger{
		logger: z.logger.Sugar().With(tags...).Desugar(),
	}
}

// Sync flushes any buffered log entries. Sync errors on stdout are expected
// and can be ignored on shutdown.
func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}
