// Package resilient 为不稳定的上游调用提供有限次数的重试。
//
// 策略固定：最多 MaxRetries+1 次尝试，两次尝试之间等待固定的 Delay，
// 不加抖动也不做指数退避。全部失败后返回统一的 503 错误，不向调用方透出底层错误。
package resilient

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fund_api/internal/apperr"
)

const (
	DefaultMaxRetries = 2
	DefaultDelay      = time.Second
)

// Policy 重试策略
type Policy struct {
	MaxRetries int
	Delay      time.Duration
	Logger     *zap.Logger
}

// NewPolicy 创建重试策略，maxRetries 小于 0 时使用默认值
func NewPolicy(maxRetries int, delay time.Duration, logger *zap.Logger) Policy {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if delay < 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Policy{MaxRetries: maxRetries, Delay: delay, Logger: logger}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记不应重试的错误（例如基金代码不存在），Do 会原样返回其内部错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do 执行 op，失败时按策略重试。成功立即返回；重试耗尽返回 apperr.UpstreamUnavailable。
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}

		lastErr = err
		logger.Warn("上游调用失败",
			zap.String("op", name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", p.MaxRetries+1),
			zap.Error(err))

		if attempt == p.MaxRetries {
			break
		}
		if err := sleep(ctx, p.Delay); err != nil {
			lastErr = err
			break
		}
	}

	return zero, apperr.UpstreamUnavailable(lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
