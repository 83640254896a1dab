package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - token bucket для исходящих запросов к индексеру dYdX.
//
// Ведро пополняется на rate токенов в секунду до burst, запрос берет один токен.
// Pause опустошает ведро и блокирует выдачу до указанного момента:
// клиент вызывает его, когда индексер ответил 429 с Retry-After.
//
//	limiter := NewRateLimiter(10, 20)
//	if err := limiter.Wait(ctx); err != nil { ... }
type RateLimiter struct {
	mu sync.Mutex

	rate   float64
	burst  float64
	tokens float64

	lastRefill  time.Time
	pausedUntil time.Time
}

// NewRateLimiter создает limiter. rate <= 0 дает 10 req/sec,
// burst по умолчанию 2*rate и не меньше rate.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = rate * 2
	}
	if burst < rate {
		burst = rate
	}

	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst,
		lastRefill: time.Now(),
	}
}

// take пытается взять токен. При неудаче возвращает время до следующей попытки.
// Вызывается под mu.
func (rl *RateLimiter) take(now time.Time) (bool, time.Duration) {
	if now.Before(rl.pausedUntil) {
		return false, rl.pausedUntil.Sub(now)
	}

	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true, 0
	}
	return false, time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
}

// Wait блокирует до получения токена или отмены ctx
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		ok, wait := rl.take(time.Now())
		rl.mu.Unlock()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Allow берет токен без ожидания
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	ok, _ := rl.take(time.Now())
	return ok
}

// Pause запрещает выдачу токенов на d. Более короткая пауза не сокращает текущую.
func (rl *RateLimiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	until := time.Now().Add(d)
	if until.After(rl.pausedUntil) {
		rl.pausedUntil = until
	}
	rl.tokens = 0
	rl.lastRefill = until
}

// PausedUntil возвращает конец текущей паузы (нулевое время, если паузы не было)
func (rl *RateLimiter) PausedUntil() time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.pausedUntil
}

// Tokens - доступные токены на текущий момент
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Before(rl.pausedUntil) {
		return 0
	}
	tokens := rl.tokens + now.Sub(rl.lastRefill).Seconds()*rl.rate
	if tokens > rl.burst {
		tokens = rl.burst
	}
	return tokens
}

func (rl *RateLimiter) Rate() float64  { return rl.rate }
func (rl *RateLimiter) Burst() float64 { return rl.burst }
