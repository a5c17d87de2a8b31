package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *Logger
	mu           sync.RWMutex
	once         sync.Once
)

// LogLevel 日志级别
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      LogLevel `json:"level" yaml:"level"`
	OutputPath string   `json:"outputPath" yaml:"outputPath"`
	// 开发模式：更易读的格式，生产模式：JSON格式
	Development bool `json:"development" yaml:"development"`
	// 是否输出到控制台
	Console bool `json:"console" yaml:"console"`
}

// DefaultConfig 默认配置
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:       LevelInfo,
		OutputPath:  "",
		Development: true,
		Console:     true,
	}
}

// Logger holds the named zap loggers used across the tracking core.
type Logger struct {
	appLogger       *zap.Logger // 应用级别日志
	componentLogger *zap.Logger // 组件级别日志
	attemptLogger   *zap.Logger // 同步尝试级别日志
	messageLogger   *zap.Logger // 协议消息日志
}

// Initialize 初始化全局日志管理器
func Initialize(config *LoggerConfig) error {
	var err error
	once.Do(func() {
		if config == nil {
			config = DefaultConfig()
		}
		var l *Logger
		l, err = newLogger(config)
		if err == nil {
			mu.Lock()
			globalLogger = l
			mu.Unlock()
		}
	})
	return err
}

func parseLevel(level LogLevel) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newLogger(config *LoggerConfig) (*Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapConfig.DisableStacktrace = false
	zapConfig.EncoderConfig.StacktraceKey = "stacktrace"

	zapConfig.Level = zap.NewAtomicLevelAt(parseLevel(config.Level))

	var outputPaths []string
	if config.Console {
		outputPaths = append(outputPaths, "stdout")
	}
	if config.OutputPath != "" {
		outputPaths = append(outputPaths, config.OutputPath)
	}
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}
	zapConfig.OutputPaths = outputPaths
	zapConfig.ErrorOutputPaths = outputPaths

	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.MessageKey = "message"
	zapConfig.EncoderConfig.LevelKey = "level"

	// 调用者信息总是指向logger包内部，没有用处
	zapConfig.DisableCaller = true

	baseLogger, err := zapConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %v", err)
	}

	return fromZap(baseLogger), nil
}

func fromZap(base *zap.Logger) *Logger {
	return &Logger{
		appLogger:       base.Named("APP"),
		componentLogger: base.Named("COMPONENT"),
		attemptLogger:   base.Named("ATTEMPT"),
		messageLogger:   base.Named("MESSAGES"),
	}
}

// UseLogger replaces the global logger with one built on base. Tests use it
// with zap.NewNop() or an observer core.
func UseLogger(base *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	globalLogger = fromZap(base)
}

// GetLogger 获取全局日志器
func GetLogger() *Logger {
	if l := current(); l != nil {
		return l
	}
	// 如果未初始化，使用默认配置
	_ = Initialize(DefaultConfig())
	if l := current(); l != nil {
		return l
	}
	UseLogger(zap.NewNop())
	return current()
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// ApplicationLogger 应用级日志接口
type ApplicationLogger interface {
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
}

// ComponentLogger 组件级日志接口
type ComponentLogger interface {
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	WithComponent(component string) ComponentLogger
	With(fields ...zap.Field) ComponentLogger
}

// AttemptLogger 同步尝试级日志接口，按 job/attempt 打标
type AttemptLogger interface {
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	WithJob(jobID int64) AttemptLogger
	WithAttempt(attemptNumber int) AttemptLogger
	WithContext(ctx context.Context) AttemptLogger
}

// App 获取应用级日志器
func (l *Logger) App() ApplicationLogger {
	return &appLogger{logger: l.appLogger}
}

// Component 获取组件级日志器
func (l *Logger) Component() ComponentLogger {
	return &componentLogger{logger: l.componentLogger}
}

// Attempt 获取同步尝试级日志器
func (l *Logger) Attempt() AttemptLogger {
	return &attemptLogger{logger: l.attemptLogger}
}

// Messages returns the raw zap logger used for protocol message logging.
func (l *Logger) Messages() *zap.Logger {
	return l.messageLogger
}

type appLogger struct {
	logger *zap.Logger
}

func (a *appLogger) Info(msg string, fields ...zap.Field) {
	a.logger.Info(msg, fields...)
}

func (a *appLogger) Warn(msg string, fields ...zap.Field) {
	a.logger.Warn(msg, fields...)
}

func (a *appLogger) Error(msg string, fields ...zap.Field) {
	a.logger.Error(msg, fields...)
}

func (a *appLogger) Debug(msg string, fields ...zap.Field) {
	a.logger.Debug(msg, fields...)
}

type componentLogger struct {
	logger *zap.Logger
}

func (c *componentLogger) Info(msg string, fields ...zap.Field) {
	c.logger.Info(msg, fields...)
}

func (c *componentLogger) Warn(msg string, fields ...zap.Field) {
	c.logger.Warn(msg, fields...)
}

func (c *componentLogger) Error(msg string, fields ...zap.Field) {
	c.logger.Error(msg, fields...)
}

func (c *componentLogger) Debug(msg string, fields ...zap.Field) {
	c.logger.Debug(msg, fields...)
}

func (c *componentLogger) WithComponent(component string) ComponentLogger {
	return &componentLogger{
		logger: c.logger.Named(component),
	}
}

func (c *componentLogger) With(fields ...zap.Field) ComponentLogger {
	return &componentLogger{
		logger: c.logger.With(fields...),
	}
}

type attemptLogger struct {
	logger *zap.Logger
}

func (t *attemptLogger) Info(msg string, fields ...zap.Field) {
	t.logger.Info(msg, fields...)
}

func (t *attemptLogger) Warn(msg string, fields ...zap.Field) {
	t.logger.Warn(msg, fields...)
}

func (t *attemptLogger) Error(msg string, fields ...zap.Field) {
	t.logger.Error(msg, fields...)
}

func (t *attemptLogger) Debug(msg string, fields ...zap.Field) {
	t.logger.Debug(msg, fields...)
}

func (t *attemptLogger) WithJob(jobID int64) AttemptLogger {
	return &attemptLogger{
		logger: t.logger.With(zap.Int64("jobId", jobID)),
	}
}

func (t *attemptLogger) WithAttempt(attemptNumber int) AttemptLogger {
	return &attemptLogger{
		logger: t.logger.With(zap.Int("attempt", attemptNumber)),
	}
}

func (t *attemptLogger) WithContext(ctx context.Context) AttemptLogger {
	var l AttemptLogger = t
	if connectionID, ok := GetConnectionID(ctx); ok {
		l = &attemptLogger{logger: t.logger.With(zap.String("connectionId", connectionID))}
	}
	if jobID, ok := GetJobID(ctx); ok {
		l = l.WithJob(jobID)
	}
	if attemptNumber, ok := GetAttemptNumber(ctx); ok {
		l = l.WithAttempt(attemptNumber)
	}
	return l
}

// Sync 同步所有缓冲的日志
func (l *Logger) Sync() error {
	for _, zl := range []*zap.Logger{l.appLogger, l.componentLogger, l.attemptLogger, l.messageLogger} {
		if err := zl.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// 全局便捷方法

// App 获取应用级日志器
func App() ApplicationLogger {
	return GetLogger().App()
}

// Component 获取组件级日志器
func Component() ComponentLogger {
	return GetLogger().Component()
}

// Attempt 获取同步尝试级日志器
func Attempt() AttemptLogger {
	return GetLogger().Attempt()
}

// Messages returns the protocol message logger.
func Messages() *zap.Logger {
	return GetLogger().Messages()
}

// Sync 同步所有日志
func Sync() error {
	return GetLogger().Sync()
}

// ComponentWithName 创建带组件名的日志器
func ComponentWithName(component string) ComponentLogger {
	return Component().WithComponent(component)
}
