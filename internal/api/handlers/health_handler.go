package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/temitopeohassan/perpraid/internal/models"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

const healthCheckTimeout = 3 * time.Second

// Pinger - компонент с проверкой доступности (индексер, БД)
type Pinger interface {
	Ping(ctx context.Context) error
}

// StreamState сообщает состояние потока индексера
type StreamState interface {
	IsConnected() bool
}

// ClientCounter сообщает число клиентов /ws/stream
type ClientCounter interface {
	ClientCount() int
}

// HealthConfig - зависимости HealthHandler. Database и Stream могут быть nil:
// тогда компонент считается отключенным.
type HealthConfig struct {
	Network  string
	Indexer  Pinger
	Database Pinger
	Stream   StreamState
	Clients  ClientCounter
}

// HealthHandler отвечает на GET /health.
//
// Response 200 OK: {"status": "ok", ...}
// Response 503 Service Unavailable: {"status": "degraded", ...} если недоступны индексер или БД.
// Разрыв потока не делает сервис degraded: рынки читаются через REST.
type HealthHandler struct {
	cfg    HealthConfig
	logger *utils.Logger
	now    func() time.Time
}

// NewHealthHandler создает новый HealthHandler
func NewHealthHandler(cfg HealthConfig, logger *utils.Logger) *HealthHandler {
	if logger == nil {
		logger = utils.L()
	}
	return &HealthHandler{
		cfg:    cfg,
		logger: logger.WithComponent("health_handler"),
		now:    time.Now,
	}
}

// Health проверяет компоненты сервиса
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := models.HealthStatus{
		Status:    models.HealthOK,
		Timestamp: h.now().UTC(),
		Network:   h.cfg.Network,
		Indexer:   h.check(ctx, "indexer", h.cfg.Indexer),
		Database:  h.check(ctx, "database", h.cfg.Database),
		Stream:    models.ComponentDisabled,
	}
	if h.cfg.Stream != nil {
		status.Stream = models.ComponentDisconnected
		if h.cfg.Stream.IsConnected() {
			status.Stream = models.ComponentConnected
		}
	}
	if h.cfg.Clients != nil {
		status.Clients = h.cfg.Clients.ClientCount()
	}

	code := http.StatusOK
	if status.Indexer == models.ComponentDisconnected || status.Database == models.ComponentDisconnected {
		status.Status = models.HealthDegraded
		code = http.StatusServiceUnavailable
	}

	respondWithJSON(w, code, status)
}

func (h *HealthHandler) check(ctx context.Context, name string, p Pinger) string {
	if p == nil {
		return models.ComponentDisabled
	}
	if err := p.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", utils.String("check", name), utils.Err(err))
		return models.ComponentDisconnected
	}
	return models.ComponentConnected
}
