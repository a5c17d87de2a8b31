package statusstore

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go"
	"github.com/longkeyy/datax-synctrack/common/logger"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"github.com/longkeyy/datax-synctrack/core/streamstatus"
	"go.uber.org/zap"
)

// RetryOption configures a RetryingStore.
type RetryOption func(*RetryingStore)

// WithAttempts sets the total number of tries per call.
func WithAttempts(n uint) RetryOption {
	return func(s *RetryingStore) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithDelay sets the base backoff delay.
func WithDelay(d time.Duration) RetryOption {
	return func(s *RetryingStore) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithTimeout bounds every single try.
func WithTimeout(d time.Duration) RetryOption {
	return func(s *RetryingStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// RetryingStore retries failed calls of another store with backoff.
// ErrStatusNotFound is not retried.
type RetryingStore struct {
	next     streamstatus.Store
	attempts uint
	delay    time.Duration
	timeout  time.Duration
	log      logger.ComponentLogger
}

var _ streamstatus.Store = (*RetryingStore)(nil)

// NewRetryingStore wraps next. Defaults: 3 attempts, 500ms delay, 10s timeout.
func NewRetryingStore(next streamstatus.Store, opts ...RetryOption) *RetryingStore {
	s := &RetryingStore{
		next:     next,
		attempts: 3,
		delay:    500 * time.Millisecond,
		timeout:  10 * time.Second,
		log:      logger.ComponentWithName("StatusStore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Unwrap returns the wrapped store.
func (s *RetryingStore) Unwrap() streamstatus.Store {
	return s.next
}

func (s *RetryingStore) do(ctx context.Context, operation string, fn func(context.Context) error) error {
	return retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			return fn(callCtx)
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrStatusNotFound)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.log.Warn("Status store call failed, retrying",
				zap.String("operation", operation),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
}

func (s *RetryingStore) CreateStatus(ctx context.Context, rc streamstatus.ReplicationContext, stream protocol.StreamKey, transitionedAt time.Time) (string, error) {
	var id string
	err := s.do(ctx, "create", func(callCtx context.Context) error {
		var err error
		id, err = s.next.CreateStatus(callCtx, rc, stream, transitionedAt)
		return err
	})
	return id, err
}

func (s *RetryingStore) UpdateStatus(ctx context.Context, update streamstatus.StatusUpdate) error {
	return s.do(ctx, "update", func(callCtx context.Context) error {
		return s.next.UpdateStatus(callCtx, update)
	})
}
