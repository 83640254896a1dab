package websocket

import (
	"time"
)

// messages.go - типы сообщений /ws/stream
//
// Сервер -> клиент:
// - marketUpdate: изменение рынка из потока индексера
// - riskAlert: изменение уровня риска отслеживаемого кошелька
// - streamStatus: подключение к индексеру потеряно или восстановлено
// - pong: ответ на ping клиента
// - error: ошибка разбора команды клиента
//
// Клиент -> сервер (ClientMessage):
//
//	{"action":"subscribe","markets":["BTC-USD"],"wallets":["dydx1..."]}
//	{"action":"unsubscribe","markets":["BTC-USD"]}
//	{"action":"ping"}

// MessageType - тип сообщения сервера
type MessageType string

const (
	MessageTypeMarketUpdate MessageType = "marketUpdate"
	MessageTypeRiskAlert    MessageType = "riskAlert"
	MessageTypeStreamStatus MessageType = "streamStatus"
	MessageTypePong         MessageType = "pong"
	MessageTypeError        MessageType = "error"
)

// Команды клиента
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// MarketData - поля рынка, пришедшие в обновлении. Пустые поля не изменились.
type MarketData struct {
	Status          string `json:"status,omitempty"`
	OraclePrice     string `json:"oracle_price,omitempty"`
	NextFundingRate string `json:"next_funding_rate,omitempty"`
	OpenInterest    string `json:"open_interest,omitempty"`
	PriceChange24h  string `json:"price_change_24h,omitempty"`
	Volume24h       string `json:"volume_24h,omitempty"`
}

// MarketUpdateMessage - обновление рынка
type MarketUpdateMessage struct {
	Type      MessageType `json:"type"`
	Market    string      `json:"market"`
	Data      MarketData  `json:"data"`
	Timestamp int64       `json:"timestamp"` // unix ms
}

// NewMarketUpdateMessage создаёт сообщение marketUpdate
func NewMarketUpdateMessage(market string, data MarketData) *MarketUpdateMessage {
	return &MarketUpdateMessage{
		Type:      MessageTypeMarketUpdate,
		Market:    market,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// RiskAlertData - оценка риска субаккаунта
type RiskAlertData struct {
	LiquidationRisk  string   `json:"liquidation_risk"`
	PreviousRisk     string   `json:"previous_risk,omitempty"`
	TotalMarginRatio string   `json:"total_margin_ratio"`
	Warnings         []string `json:"warnings"`
}

// RiskAlertMessage - изменение риска кошелька
type RiskAlertMessage struct {
	Type      MessageType   `json:"type"`
	Wallet    string        `json:"wallet"`
	Data      RiskAlertData `json:"data"`
	Timestamp int64         `json:"timestamp"`
}

// NewRiskAlertMessage создаёт сообщение riskAlert
func NewRiskAlertMessage(wallet string, data RiskAlertData) *RiskAlertMessage {
	if data.Warnings == nil {
		data.Warnings = []string{}
	}
	return &RiskAlertMessage{
		Type:      MessageTypeRiskAlert,
		Wallet:    wallet,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// StreamStatusMessage - состояние подключения к индексеру
type StreamStatusMessage struct {
	Type      MessageType `json:"type"`
	Connected bool        `json:"connected"`
	Timestamp int64       `json:"timestamp"`
}

// NewStreamStatusMessage создаёт сообщение streamStatus
func NewStreamStatusMessage(connected bool) *StreamStatusMessage {
	return &StreamStatusMessage{
		Type:      MessageTypeStreamStatus,
		Connected: connected,
		Timestamp: time.Now().UnixMilli(),
	}
}

// replyMessage - ответ конкретному клиенту (pong, error)
type replyMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message,omitempty"`
}

// ClientMessage - команда клиента
type ClientMessage struct {
	Action  string   `json:"action"`
	Markets []string `json:"markets,omitempty"`
	Wallets []string `json:"wallets,omitempty"`
}
