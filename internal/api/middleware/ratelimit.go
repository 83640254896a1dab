package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/temitopeohassan/perpraid/internal/metrics"
	"github.com/temitopeohassan/perpraid/pkg/ratelimit"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// RateLimiter - хранилище лимитов по ключу (ratelimit.WindowLimiter)
type RateLimiter interface {
	Allow(key string) ratelimit.Result
}

// RateLimitOptions - выбор ключа лимита
type RateLimitOptions struct {
	// Tokens проверяет Bearer токен, ключом становится кошелек владельца.
	// nil - ключ всегда IP.
	Tokens TokenValidator

	// TrustProxy разрешает брать IP из X-Forwarded-For и X-Real-IP.
	// Включать только за своим прокси, иначе заголовки подделываются клиентом.
	TrustProxy bool
}

// RateLimit - middleware ограничения частоты запросов
//
// Ключ - кошелек из проверенного токена (в нижнем регистре), иначе IP клиента.
// X-Wallet-Address на ключ не влияет: его выставляет сам клиент.
// Каждый ответ получает X-RateLimit-Limit, X-RateLimit-Remaining и X-RateLimit-Reset (unix).
// При превышении: 429 {"error": "Rate limit exceeded", "retry_after": <секунды>} и Retry-After.
func RateLimit(limiter RateLimiter, opts RateLimitOptions, logger *utils.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = utils.L()
	}
	logger = logger.WithComponent("rate_limit")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.key(r)
			res := limiter.Allow(key)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				metrics.RateLimited.Inc()
				logger.Debug("rate limit exceeded", utils.String("key", key), utils.Int("retry_after", retryAfter))

				h.Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, http.StatusTooManyRequests, errorBody{
					Error:      "Rate limit exceeded",
					Code:       "RATE_LIMITED",
					RetryAfter: retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (o RateLimitOptions) key(r *http.Request) string {
	if o.Tokens != nil {
		if token := bearerToken(r); token != "" {
			if wallet, err := o.Tokens.ValidateToken(token); err == nil && wallet != "" {
				return "wallet:" + strings.ToLower(wallet)
			}
		}
	}
	if o.TrustProxy {
		return "ip:" + ClientIP(r)
	}
	return "ip:" + RemoteIP(r)
}
