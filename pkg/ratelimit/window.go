package ratelimit

import (
	"context"
	"sync"
	"time"
)

// WindowLimiter - лимит входящих запросов по ключу (кошелек или IP) в фиксированном окне
//
// Каждый ключ получает limit запросов на окно window. Окно ключа начинается
// с первого запроса и сбрасывается по истечении. Просроченные ключи
// удаляются фоновой очисткой, запущенной через Start.
//
// Использование:
//
//	wl := NewWindowLimiter(100, time.Minute)
//	go wl.Start(ctx)
//	res := wl.Allow(key)
//	if !res.Allowed { ... res.RetryAfter ... }
type WindowLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*windowBucket

	now func() time.Time
}

type windowBucket struct {
	count   int
	resetAt time.Time
}

// Result - решение по одному запросу
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// NewWindowLimiter создает лимитер: limit запросов на window
func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &WindowLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*windowBucket),
		now:     time.Now,
	}
}

// Allow учитывает запрос ключа и возвращает решение
func (wl *WindowLimiter) Allow(key string) Result {
	now := wl.now()

	wl.mu.Lock()
	defer wl.mu.Unlock()

	b, ok := wl.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &windowBucket{resetAt: now.Add(wl.window)}
		wl.buckets[key] = b
	}

	res := Result{Limit: wl.limit, ResetAt: b.resetAt}
	if b.count >= wl.limit {
		res.RetryAfter = b.resetAt.Sub(now)
		return res
	}

	b.count++
	res.Allowed = true
	res.Remaining = wl.limit - b.count
	return res
}

// Cleanup удаляет ключи с истекшим окном, возвращает число удаленных
func (wl *WindowLimiter) Cleanup() int {
	now := wl.now()

	wl.mu.Lock()
	defer wl.mu.Unlock()

	removed := 0
	for key, b := range wl.buckets {
		if !now.Before(b.resetAt) {
			delete(wl.buckets, key)
			removed++
		}
	}
	return removed
}

// Start запускает периодическую очистку до отмены контекста. Блокирующий.
func (wl *WindowLimiter) Start(ctx context.Context) {
	ticker := time.NewTicker(wl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wl.Cleanup()
		}
	}
}

// Len - число отслеживаемых ключей
func (wl *WindowLimiter) Len() int {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	return len(wl.buckets)
}

// Limit возвращает лимит на окно
func (wl *WindowLimiter) Limit() int {
	return wl.limit
}

// Window возвращает длительность окна
func (wl *WindowLimiter) Window() time.Duration {
	return wl.window
}
