package logger

import (
	"context"
)

// Context keys for attempt information
type contextKey string

const (
	JobIDKey         contextKey = "jobId"
	AttemptNumberKey contextKey = "attemptNumber"
	ConnectionIDKey  contextKey = "connectionId"
)

// WithJobID 在context中添加jobId
func WithJobID(ctx context.Context, jobID int64) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// WithAttemptNumber 在context中添加attempt序号
func WithAttemptNumber(ctx context.Context, attemptNumber int) context.Context {
	return context.WithValue(ctx, AttemptNumberKey, attemptNumber)
}

// WithConnectionID 在context中添加connectionId
func WithConnectionID(ctx context.Context, connectionID string) context.Context {
	return context.WithValue(ctx, ConnectionIDKey, connectionID)
}

// WithAttemptContext 在context中添加完整的同步尝试信息
func WithAttemptContext(ctx context.Context, connectionID string, jobID int64, attemptNumber int) context.Context {
	ctx = WithConnectionID(ctx, connectionID)
	ctx = WithJobID(ctx, jobID)
	ctx = WithAttemptNumber(ctx, attemptNumber)
	return ctx
}

// GetJobID 从context中获取jobId
func GetJobID(ctx context.Context) (int64, bool) {
	jobID, ok := ctx.Value(JobIDKey).(int64)
	return jobID, ok
}

// GetAttemptNumber 从context中获取attempt序号
func GetAttemptNumber(ctx context.Context) (int, bool) {
	attemptNumber, ok := ctx.Value(AttemptNumberKey).(int)
	return attemptNumber, ok
}

// GetConnectionID 从context中获取connectionId
func GetConnectionID(ctx context.Context) (string, bool) {
	connectionID, ok := ctx.Value(ConnectionIDKey).(string)
	return connectionID, ok
}

// AttemptLoggerFromContext 从context创建带同步尝试信息的日志器
func AttemptLoggerFromContext(ctx context.Context) AttemptLogger {
	return Attempt().WithContext(ctx)
}
