package models

import "time"

// HealthStatus представляет состояние сервиса для /health
type HealthStatus struct {
	Status    string    `json:"status"` // ok, degraded
	Timestamp time.Time `json:"timestamp"`
	Network   string    `json:"network"`
	Indexer   string    `json:"indexer"`  // connected, disconnected
	Database  string    `json:"database"` // connected, disconnected, disabled
	Stream    string    `json:"stream"`   // состояние потока индексера
	Clients   int       `json:"ws_clients"`
}

// Значения компонентов health
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"

	ComponentConnected    = "connected"
	ComponentDisconnected = "disconnected"
	ComponentDisabled     = "disabled"
)
