package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP возвращает адрес клиента: первый X-Forwarded-For, X-Real-IP или RemoteAddr.
// Заголовки задает клиент или прокси, для ограничений без доверенного прокси - RemoteIP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return RemoteIP(r)
}

// RemoteIP возвращает адрес TCP соединения без порта
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
