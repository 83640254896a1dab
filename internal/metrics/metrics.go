// Package metrics содержит Prometheus метрики сервиса.
//
// Метрики регистрируются в DefaultRegisterer при импорте пакета
// и отдаются через /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "perpraid"

// ============ HTTP API ============

// HTTPRequestDuration - время обработки запросов API
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	},
	[]string{"route", "method"},
)

// HTTPRequests - запросы по маршрутам и статусам
var HTTPRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests",
	},
	[]string{"route", "method", "status"},
)

// RateLimited - отклоненные лимитером запросы
var RateLimited = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	},
)

// ============ Индексер dYdX ============

// IndexerRequestDuration - латентность REST запросов к индексеру
var IndexerRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "request_duration_ms",
		Help:      "dYdX indexer request latency in milliseconds",
		Buckets:   []float64{25, 50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"endpoint", "status"},
)

// IndexerRetries - повторы запросов к индексеру
var IndexerRetries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "retries_total",
		Help:      "Number of retried indexer requests",
	},
	[]string{"endpoint"},
)

// StreamConnection - состояние ws подписки на индексер (1=connected)
var StreamConnection = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "stream_connected",
		Help:      "Indexer websocket connection status (1=connected, 0=disconnected)",
	},
)

// StreamMessages - сообщения ws индексера по каналам
var StreamMessages = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "stream_messages_total",
		Help:      "Messages received from the indexer websocket",
	},
	[]string{"channel", "type"},
)

// ============ Риск ============

// RiskScore - распределение рассчитанных risk score
var RiskScore = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "score",
		Help:      "Distribution of computed position risk scores",
		Buckets:   []float64{20, 30, 40, 50, 60, 70, 80},
	},
	[]string{"market"},
)

// RiskCalculations - вызовы калькулятора по операциям
var RiskCalculations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "calculations_total",
		Help:      "Risk calculator invocations",
	},
	[]string{"operation", "result"}, // result: ok, invalid, upstream_error
)

// AccountsAtRisk - оценки субаккаунтов по уровню риска ликвидации
var AccountsAtRisk = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "account_assessments_total",
		Help:      "Subaccount assessments by liquidation risk level",
	},
	[]string{"level"},
)

// ============ WebSocket клиентов ============

// WSClients - подключенные клиенты /ws/stream
var WSClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "clients",
		Help:      "Connected websocket clients",
	},
)

// WSDropped - сообщения, не доставленные из-за переполнения буферов
var WSDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "dropped_messages_total",
		Help:      "Messages dropped because of full buffers",
	},
	[]string{"buffer"}, // broadcast, client
)

// ============ Вспомогательные функции ============

// RecordHTTPRequest записывает обработанный запрос
func RecordHTTPRequest(route, method string, status int, latencyMs float64) {
	HTTPRequestDuration.WithLabelValues(route, method).Observe(latencyMs)
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// RecordIndexerRequest записывает запрос к индексеру. status 0 - сетевая ошибка.
func RecordIndexerRequest(endpoint string, status int, latencyMs float64) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	IndexerRequestDuration.WithLabelValues(endpoint, label).Observe(latencyMs)
}

// RecordRiskCalculation записывает вызов калькулятора
func RecordRiskCalculation(operation, result string) {
	RiskCalculations.WithLabelValues(operation, result).Inc()
}

// RecordRiskScore записывает рассчитанный score позиции
func RecordRiskScore(market string, score int) {
	RiskScore.WithLabelValues(market).Observe(float64(score))
}

// SetStreamConnected обновляет статус ws индексера
func SetStreamConnected(connected bool) {
	if connected {
		StreamConnection.Set(1)
	} else {
		StreamConnection.Set(0)
	}
}
