package logger

import (
	"time"

	"go.uber.org/zap"
)

// SummaryLogger logs attempt lifecycle and final bookkeeping figures.
type SummaryLogger struct {
	logger ComponentLogger
}

// NewSummaryLogger 创建同步摘要日志器
func NewSummaryLogger(component string) *SummaryLogger {
	return &SummaryLogger{
		logger: Component().WithComponent(component),
	}
}

// AttemptFigures is the flattened view of a sync summary used for logging.
// Absent values are logged as -1.
type AttemptFigures struct {
	StartTime        time.Time
	EndTime          time.Time
	RecordsEmitted   int64
	BytesEmitted     int64
	RecordsCommitted int64
	BytesCommitted   int64
	SourceStates     int64
	DestStates       int64
	StatsReliable    bool
	FailureCount     int
}

// Duration 计算同步尝试时长
func (f *AttemptFigures) Duration() time.Duration {
	if f.EndTime.IsZero() {
		return time.Since(f.StartTime)
	}
	return f.EndTime.Sub(f.StartTime)
}

// Throughput returns emitted records per second.
func (f *AttemptFigures) Throughput() float64 {
	seconds := f.Duration().Seconds()
	if seconds <= 0 || f.RecordsEmitted < 0 {
		return 0
	}
	return float64(f.RecordsEmitted) / seconds
}

// LogAttemptStart 记录同步尝试开始
func (sl *SummaryLogger) LogAttemptStart(connectionID string, jobID int64, attemptNumber int) {
	sl.logger.Info("Sync attempt started",
		zap.String("connectionId", connectionID),
		zap.Int64("jobId", jobID),
		zap.Int("attempt", attemptNumber),
		zap.Time("startTime", time.Now()))
}

// LogAttemptComplete 记录同步尝试结束
func (sl *SummaryLogger) LogAttemptComplete(connectionID string, jobID int64, attemptNumber int, figures *AttemptFigures) {
	sl.logger.Info("Sync attempt finished",
		zap.String("connectionId", connectionID),
		zap.Int64("jobId", jobID),
		zap.Int("attempt", attemptNumber),
		zap.Duration("duration", figures.Duration()),
		zap.Int64("recordsEmitted", figures.RecordsEmitted),
		zap.Int64("bytesEmitted", figures.BytesEmitted),
		zap.Int64("recordsCommitted", figures.RecordsCommitted),
		zap.Int64("bytesCommitted", figures.BytesCommitted),
		zap.Int64("sourceStateMessages", figures.SourceStates),
		zap.Int64("destinationStateMessages", figures.DestStates),
		zap.Bool("statsReliable", figures.StatsReliable),
		zap.Float64("recordsPerSecond", figures.Throughput()),
		zap.Int("failures", figures.FailureCount))
}

// LogAttemptError 记录同步尝试错误
func (sl *SummaryLogger) LogAttemptError(connectionID string, jobID int64, attemptNumber int, err error) {
	sl.logger.Error("Sync attempt error",
		zap.String("connectionId", connectionID),
		zap.Int64("jobId", jobID),
		zap.Int("attempt", attemptNumber),
		zap.Error(err))
}
