package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/temitopeohassan/perpraid/pkg/crypto"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// TokenValidator проверяет токен доступа и возвращает адрес кошелька владельца
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// DebugAuth - middleware для защиты /debug/pprof через HTTP Basic Authentication
//
// Пустые username или password закрывают доступ полностью (403).
// password может быть bcrypt хешем (см. cmd/hashsecret).
//
// Использование:
//
//	debug := router.PathPrefix("/debug").Subrouter()
//	debug.Use(middleware.DebugAuth(cfg.Debug.Username, cfg.Debug.Password))
func DebugAuth(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username == "" || password == "" {
				http.Error(w, "Debug endpoints disabled. Set DEBUG_USERNAME and DEBUG_PASSWORD.", http.StatusForbidden)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passMatch := crypto.VerifySecret(pass, password) == nil
			if !userMatch || !passMatch {
				w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Auth - middleware проверки JWT из заголовка Authorization: Bearer <token>
//
// Ответы:
// - 401 {"error": "Access token required"} если токена нет
// - 403 {"error": "Invalid or expired token"} если подпись, срок или issuer неверны
//
// Кошелек владельца токена кладется в контекст (AuthWalletFromContext),
// WalletAddress сверяет с ним адрес запроса.
func Auth(validator TokenValidator, logger *utils.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = utils.L()
	}
	logger = logger.WithComponent("auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, errorBody{Error: "Access token required", Code: "UNAUTHORIZED"})
				return
			}

			wallet, err := validator.ValidateToken(token)
			if err != nil {
				logger.Debug("token rejected", utils.Path(r.URL.Path), utils.Err(err))
				writeError(w, http.StatusForbidden, errorBody{Error: "Invalid or expired token", Code: "FORBIDDEN"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthWallet(r.Context(), wallet)))
		})
	}
}

// OptionalAuth проверяет токен, если он передан. Без токена запрос проходит анонимно,
// невалидный токен отклоняется так же, как в Auth.
func OptionalAuth(validator TokenValidator, logger *utils.Logger) func(http.Handler) http.Handler {
	required := Auth(validator, logger)
	return func(next http.Handler) http.Handler {
		withToken := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearerToken(r) == "" {
				next.ServeHTTP(w, r)
				return
			}
			withToken.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
