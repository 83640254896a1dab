package middleware

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// RequestIDHeader - заголовок идентификатора запроса
const RequestIDHeader = "X-Request-ID"

// responseWriter запоминает статус и размер ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Hijack нужен для апгрейда /ws/stream
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	rw.wroteHeader = true
	return hj.Hijack()
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Logging - middleware для логирования HTTP запросов через zap
//
// Каждый запрос получает request_id (из X-Request-ID или новый),
// он возвращается в ответе и доступен через RequestIDFromContext.
// Пишет метод, путь, статус, время обработки, IP клиента и размер ответа.
// 5xx логируются как error, 4xx как warn, остальное как info.
func Logging(logger *utils.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = utils.L()
	}
	logger = logger.WithComponent("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > 64 {
				requestID = newRequestID()
			}
			w.Header().Set(RequestIDHeader, requestID)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				utils.Method(r.Method),
				utils.Path(r.URL.Path),
				utils.Status(wrapped.statusCode),
				utils.Latency(float64(time.Since(start).Microseconds()) / 1000),
				utils.String("client_ip", ClientIP(r)),
				utils.Int64("bytes", wrapped.written),
				utils.RequestID(requestID),
			}

			switch {
			case wrapped.statusCode >= http.StatusInternalServerError:
				logger.Error("http request", fields...)
			case wrapped.statusCode >= http.StatusBadRequest:
				logger.Warn("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
		})
	}
}

func newRequestID() string {
	return uuid.NewString()
}
