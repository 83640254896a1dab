package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/temitopeohassan/perpraid/internal/metrics"
)

// Metrics записывает количество и время обработки запросов в Prometheus.
// Метка route - шаблон маршрута mux (/api/markets/{market}/data).
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		metrics.RecordHTTPRequest(routeTemplate(r), r.Method, wrapped.statusCode,
			float64(time.Since(start).Microseconds())/1000)
	})
}

func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tpl
}
