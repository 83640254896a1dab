package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config - параметры повторов запросов к индексеру
//
// Экспоненциальный backoff с jitter:
// delay = min(InitialDelay * Multiplier^attempt, MaxDelay) ± JitterFactor
type Config struct {
	// MaxAttempts - общее число попыток, включая первую. <= 0 означает 1.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFactor в [0,1]
	JitterFactor float64

	// RetryIf решает, повторять ли ошибку. nil - используется IsRetryable.
	RetryIf func(error) bool

	// OnRetry вызывается перед ожиданием, attempt считается с 1
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig: 3 попытки, задержки 200ms, 400ms (+ jitter)
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// normalize подставляет значения по умолчанию
func (c *Config) normalize() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
	if c.RetryIf == nil {
		c.RetryIf = IsRetryable
	}
}

// Delay вычисляет задержку перед попыткой attempt+1 (attempt с 0)
func (c Config) Delay(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		delay += delay * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Do выполняет операцию с повторами
//
// Возвращает nil при успехе, иначе последнюю ошибку операции.
// Отмена контекста во время ожидания прерывает повторы.
func Do(ctx context.Context, cfg Config, operation func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	})
	return err
}

// DoWithResult - Do для операций, возвращающих значение
//
//	markets, err := retry.DoWithResult(ctx, cfg, func(ctx context.Context) (*MarketsResponse, error) {
//	    return c.fetchMarkets(ctx)
//	})
func DoWithResult[T any](ctx context.Context, cfg Config, operation func(ctx context.Context) (T, error)) (T, error) {
	cfg.normalize()

	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		result, err := operation(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !cfg.RetryIf(err) || attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.Delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// ============================================================
// Классификация ошибок
// ============================================================

// RetryableError - ошибка, которая сама знает, можно ли ее повторять
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable:
// - ошибки контекста не повторяются
// - RetryableError решает сама
// - остальное (сетевые ошибки транспорта) повторяется
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}
	return true
}

// PermanentError помечает ошибку как неповторяемую
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string   { return e.Err.Error() }
func (e *PermanentError) Unwrap() error   { return e.Err }
func (e *PermanentError) Retryable() bool { return false }

// Permanent оборачивает ошибку в PermanentError. nil остается nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
