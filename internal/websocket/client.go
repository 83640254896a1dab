package websocket

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/temitopeohassan/perpraid/pkg/utils"
)

const (
	// Время ожидания записи сообщения
	writeWait = 10 * time.Second

	// Время ожидания между pong сообщениями
	pongWait = 60 * time.Second

	// Интервал отправки ping сообщений (должен быть меньше pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Команды клиента маленькие
	maxMessageSize = 4096

	clientSendBufferSize = 256
	clientReplyBufferSize = 8
)

// OriginChecker проверяет Origin с O(1) lookup через map
// Потокобезопасен для чтения после создания
type OriginChecker struct {
	allowedOrigins map[string]struct{}
	allowAll       bool
}

// NewOriginChecker: пустой список или "*" разрешает все origins
func NewOriginChecker(origins []string) *OriginChecker {
	checker := &OriginChecker{allowedOrigins: make(map[string]struct{})}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			checker.allowAll = true
		}
		if origin != "" {
			checker.allowedOrigins[origin] = struct{}{}
		}
	}
	if len(checker.allowedOrigins) == 0 {
		checker.allowAll = true
	}
	return checker
}

// Check проверяет origin за O(1)
func (oc *OriginChecker) Check(origin string) bool {
	if origin == "" {
		return true // не браузерные клиенты
	}
	if oc.allowAll {
		return true
	}
	_, ok := oc.allowedOrigins[origin]
	return ok
}

// Client представляет одно WebSocket соединение
//
// Каждый клиент имеет две горутины:
// 1. readPump - читает команды подписки
// 2. writePump - пишет сообщения hub и ответы на команды
//
// Канал send закрывает только hub. Ответы на команды идут через
// отдельный канал reply, который никогда не закрывается.
type Client struct {
	conn *websocket.Conn
	hub  *Hub

	send  chan []byte
	reply chan []byte

	// подписки; пустые множества означают "все рынки" и "никаких кошельков"
	filterMu sync.RWMutex
	markets  map[string]struct{}
	wallets  map[string]struct{}
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn:    conn,
		hub:     hub,
		send:    make(chan []byte, clientSendBufferSize),
		reply:   make(chan []byte, clientReplyBufferSize),
		markets: make(map[string]struct{}),
		wallets: make(map[string]struct{}),
	}
}

// wants решает, нужно ли клиенту сообщение
func (c *Client) wants(env envelope) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()

	switch env.topic {
	case topicMarket:
		if len(c.markets) == 0 {
			return true
		}
		_, ok := c.markets[env.key]
		return ok
	case topicWallet:
		_, ok := c.wallets[env.key]
		return ok
	default:
		return true
	}
}

// apply применяет команду подписки
func (c *Client) apply(msg ClientMessage) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()

	for _, m := range msg.Markets {
		key := utils.NormalizeMarket(m)
		if msg.Action == ActionSubscribe {
			c.markets[key] = struct{}{}
		} else {
			delete(c.markets, key)
		}
	}
	for _, w := range msg.Wallets {
		key := strings.ToLower(strings.TrimSpace(w))
		if msg.Action == ActionSubscribe {
			c.wallets[key] = struct{}{}
		} else {
			delete(c.wallets, key)
		}
	}
}

// respond кладет ответ в reply без блокировки
func (c *Client) respond(msg replyMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.reply <- data:
	default:
	}
}

// handle разбирает команду клиента
func (c *Client) handle(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.respond(replyMessage{Type: MessageTypeError, Message: "invalid message format"})
		return
	}

	switch msg.Action {
	case ActionSubscribe, ActionUnsubscribe:
		for _, m := range msg.Markets {
			if err := utils.ValidateMarket(m); err != nil {
				c.respond(replyMessage{Type: MessageTypeError, Message: err.Error()})
				return
			}
		}
		for _, w := range msg.Wallets {
			if err := utils.ValidateWalletAddress(w); err != nil {
				c.respond(replyMessage{Type: MessageTypeError, Message: err.Error()})
				return
			}
		}
		c.apply(msg)
	case ActionPing:
		c.respond(replyMessage{Type: MessageTypePong})
	default:
		c.respond(replyMessage{Type: MessageTypeError, Message: "unknown action: " + msg.Action})
	}
}

// readPump читает команды клиента до ошибки соединения
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", utils.Err(err))
			}
			return
		}
		c.handle(message)
	}
}

// writePump отправляет сообщения клиенту, пока hub не закроет send
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case message := <-c.reply:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS апгрейдит HTTP соединение и регистрирует клиента
//
// Использование в routes:
//
//	router.HandleFunc("/ws/stream", hub.ServeWS)
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return h.origins.Check(r.Header.Get("Origin"))
		},
		EnableCompression: true,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", utils.Err(err))
		return
	}

	client := newClient(h, conn)
	select {
	case h.register <- client:
	case <-h.stop:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
