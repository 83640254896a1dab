package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers
//
// Перехватывает panic, пишет в лог сообщение и stack trace
// и отвечает клиенту 500 Internal Server Error. Сервер продолжает работу.
//
// http.ErrAbortHandler пробрасывается дальше: net/http обрывает соединение без лога.
func Recovery(logger *utils.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = utils.L()
	}
	logger = logger.WithComponent("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("panic recovered",
					utils.Method(r.Method),
					utils.Path(r.URL.Path),
					utils.RequestID(RequestIDFromContext(r.Context())),
					utils.String("panic", fmt.Sprint(rec)),
					utils.String("stack", string(debug.Stack())),
				)

				writeError(w, http.StatusInternalServerError, errorBody{
					Error: "Internal server error",
					Code:  "INTERNAL_ERROR",
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
