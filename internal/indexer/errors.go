package indexer

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrNotFound - рынок, субаккаунт или адрес неизвестен индексеру
	ErrNotFound = errors.New("indexer: not found")

	// ErrRateLimited - индексер ответил 429
	ErrRateLimited = errors.New("indexer: rate limited")
)

// APIError - неуспешный HTTP ответ индексера
type APIError struct {
	Status  int
	Path    string
	Message string

	// RetryAfter из заголовка ответа 429, 0 если не передан
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("indexer %s: status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("indexer %s: status %d: %s", e.Path, e.Status, e.Message)
}

// Is позволяет проверять ответ через errors.Is(err, ErrNotFound)
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// Retryable: 429 и 5xx повторяются, остальные 4xx нет
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}
