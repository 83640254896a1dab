package middleware

import (
	"net/http"
	"strings"
)

// DefaultAllowedOrigins - origins для локальной разработки frontend
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:5173", // Vite dev server
	"http://127.0.0.1:5173",
}

// CORS - middleware для настройки Cross-Origin Resource Sharing
//
// Разрешенные origins передаются из конфигурации (CORS_ALLOWED_ORIGINS).
// "*" в списке разрешает любой origin, но без credentials.
//
// Важные заголовки:
// - Access-Control-Allow-Origin: конкретный домен (не * при credentials)
// - Access-Control-Allow-Methods: GET, POST, OPTIONS
// - Access-Control-Allow-Headers: Content-Type, Authorization, X-Wallet-Address
// - Access-Control-Max-Age: 86400 (24 часа)
//
// Preflight (OPTIONS) отвечает 204 без вызова handler.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	wildcard := false
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			wildcard = true
		default:
			allowed[origin] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			switch {
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			case origin != "" && wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			// Для неразрешенных origins заголовки не ставим - браузер заблокирует

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Wallet-Address, X-Request-ID")
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
