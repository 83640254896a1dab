package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/temitopeohassan/perpraid/internal/metrics"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// StreamConfig - параметры websocket подключения к индексеру
type StreamConfig struct {
	URL string

	InitialDelay   time.Duration // первая задержка переподключения
	MaxDelay       time.Duration // потолок exponential backoff
	MaxRetries     int           // 0 = бесконечно
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// DefaultStreamConfig: задержки 2s, 4s, 8s, 16s, до 10 попыток подряд
func DefaultStreamConfig(url string) StreamConfig {
	return StreamConfig{
		URL:            url,
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     10,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

// StreamState - состояние подключения
type StreamState int32

const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamConnected
	StreamReconnecting
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamDisconnected:
		return "disconnected"
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamReconnecting:
		return "reconnecting"
	case StreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Каналы индексера
const (
	ChannelMarkets    = "v4_markets"
	ChannelOrderbook  = "v4_orderbook"
	ChannelTrades     = "v4_trades"
	ChannelCandles    = "v4_candles"
	ChannelSubaccount = "v4_subaccounts"
)

// Типы сообщений индексера
const (
	MessageConnected        = "connected"
	MessageSubscribed       = "subscribed"
	MessageUnsubscribed     = "unsubscribed"
	MessageChannelData      = "channel_data"
	MessageChannelBatchData = "channel_batch_data"
	MessageError            = "error"
)

// StreamMessage - конверт сообщения индексера
type StreamMessage struct {
	Type         string             `json:"type"`
	ConnectionID string             `json:"connection_id,omitempty"`
	MessageID    int64              `json:"message_id,omitempty"`
	Channel      string             `json:"channel,omitempty"`
	ID           string             `json:"id,omitempty"`
	Message      string             `json:"message,omitempty"`
	Contents     jsoniter.RawMessage `json:"contents,omitempty"`
}

// subscription - запрос подписки, повторяется после переподключения
type subscription struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	ID      string `json:"id,omitempty"`
}

var errStreamClosed = errors.New("indexer stream is closed")

// Stream - websocket поток индексера с автоматическим переподключением
//
// Функции:
// - переподключение с exponential backoff
// - повторная подписка на каналы после переподключения
// - ping для проверки живости соединения
// - callbacks на сообщения, подключение и разрыв
//
// Использование:
//  1. NewStream(cfg, logger)
//  2. SetOnMessage / SetOnConnect / SetOnDisconnect
//  3. Subscribe(ChannelMarkets, "")
//  4. Connect(ctx)
//  5. Close()
type Stream struct {
	config StreamConfig
	logger *utils.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	// gorilla разрешает только одного писателя одновременно
	writeMu sync.Mutex

	state      int32 // atomic StreamState
	retryCount int32 // atomic

	closeChan chan struct{}
	closeOnce sync.Once

	onMessage    func(StreamMessage)
	onConnect    func()
	onDisconnect func(error)
	callbackMu   sync.RWMutex

	subscriptions   []subscription
	subscriptionsMu sync.RWMutex
}

// NewStream создаёт поток, не подключаясь
func NewStream(config StreamConfig, logger *utils.Logger) *Stream {
	defaults := DefaultStreamConfig(config.URL)
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaults.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = defaults.PongTimeout
	}
	if logger == nil {
		logger = utils.L()
	}

	return &Stream{
		config:    config,
		logger:    logger.WithComponent("indexer_stream"),
		closeChan: make(chan struct{}),
	}
}

// SetOnMessage устанавливает callback для входящих сообщений
func (s *Stream) SetOnMessage(handler func(StreamMessage)) {
	s.callbackMu.Lock()
	s.onMessage = handler
	s.callbackMu.Unlock()
}

// SetOnConnect устанавливает callback для подключения и переподключения
func (s *Stream) SetOnConnect(handler func()) {
	s.callbackMu.Lock()
	s.onConnect = handler
	s.callbackMu.Unlock()
}

// SetOnDisconnect устанавливает callback для разрыва соединения
func (s *Stream) SetOnDisconnect(handler func(error)) {
	s.callbackMu.Lock()
	s.onDisconnect = handler
	s.callbackMu.Unlock()
}

// Subscribe добавляет подписку. При активном соединении она отправляется сразу,
// иначе при следующем подключении.
func (s *Stream) Subscribe(channel, id string) error {
	sub := subscription{Type: "subscribe", Channel: channel, ID: id}

	s.subscriptionsMu.Lock()
	s.subscriptions = append(s.subscriptions, sub)
	s.subscriptionsMu.Unlock()

	if s.IsConnected() {
		return s.writeJSON(sub)
	}
	return nil
}

// State возвращает текущее состояние соединения
func (s *Stream) State() StreamState {
	return StreamState(atomic.LoadInt32(&s.state))
}

// IsConnected проверяет, установлено ли соединение
func (s *Stream) IsConnected() bool {
	return s.State() == StreamConnected
}

// RetryCount - попытки переподключения с последнего успешного подключения
func (s *Stream) RetryCount() int {
	return int(atomic.LoadInt32(&s.retryCount))
}

// Connect устанавливает соединение и запускает чтение.
// Ошибка первого подключения возвращается, дальнейшие разрывы обрабатываются сами.
func (s *Stream) Connect(ctx context.Context) error {
	if s.isClosed() {
		return errStreamClosed
	}

	s.setState(StreamConnecting)
	if err := s.dial(ctx); err != nil {
		s.setState(StreamDisconnected)
		return err
	}
	s.connected()
	return nil
}

// dial подключается и восстанавливает подписки
func (s *Stream) dial(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: s.config.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, s.config.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.config.URL, err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.PingInterval + s.config.PongTimeout))
	})

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	if err := s.resubscribe(); err != nil {
		// подписки будут повторены при следующем переподключении
		s.logger.Warn("resubscribe failed", utils.Err(err))
	}
	return nil
}

func (s *Stream) connected() {
	s.setState(StreamConnected)
	atomic.StoreInt32(&s.retryCount, 0)
	metrics.SetStreamConnected(true)

	s.callbackMu.RLock()
	onConnect := s.onConnect
	s.callbackMu.RUnlock()
	if onConnect != nil {
		onConnect()
	}

	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	go s.readPump(conn)
	go s.pingPump(conn)

	s.logger.Info("indexer stream connected", utils.String("url", s.config.URL))
}

func (s *Stream) resubscribe() error {
	s.subscriptionsMu.RLock()
	subs := make([]subscription, len(s.subscriptions))
	copy(subs, s.subscriptions)
	s.subscriptionsMu.RUnlock()

	for _, sub := range subs {
		if err := s.writeJSON(sub); err != nil {
			return err
		}
	}
	if len(subs) > 0 {
		s.logger.Debug("resubscribed", utils.Int("channels", len(subs)))
	}
	return nil
}

func (s *Stream) writeJSON(v interface{}) error {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.config.PongTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readPump читает сообщения соединения conn до ошибки
func (s *Stream) readPump(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(s.config.PingInterval + s.config.PongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(conn, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.config.PingInterval + s.config.PongTimeout))

		var msg StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("malformed indexer message", utils.Err(err))
			continue
		}
		metrics.StreamMessages.WithLabelValues(msg.Channel, msg.Type).Inc()

		if msg.Type == MessageError {
			s.logger.Warn("indexer stream error", utils.String("message", msg.Message))
		}

		s.callbackMu.RLock()
		onMessage := s.onMessage
		s.callbackMu.RUnlock()
		if onMessage != nil {
			onMessage(msg)
		}
	}
}

// pingPump отправляет ping пока conn активно
func (s *Stream) pingPump(conn *websocket.Conn) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeChan:
			return
		case <-ticker.C:
			s.connMu.RLock()
			current := s.conn
			s.connMu.RUnlock()
			if current != conn {
				return
			}

			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.PongTimeout))
			s.writeMu.Unlock()
			if err != nil {
				s.handleDisconnect(conn, err)
				return
			}
		}
	}
}

// handleDisconnect обрабатывает разрыв conn. Разрыв уже замененного соединения игнорируется.
func (s *Stream) handleDisconnect(conn *websocket.Conn, err error) {
	if s.isClosed() {
		return
	}

	s.connMu.Lock()
	if s.conn != conn {
		s.connMu.Unlock()
		return
	}
	s.conn = nil
	s.connMu.Unlock()
	conn.Close()

	s.setState(StreamReconnecting)
	metrics.SetStreamConnected(false)

	s.callbackMu.RLock()
	onDisconnect := s.onDisconnect
	s.callbackMu.RUnlock()
	if onDisconnect != nil {
		onDisconnect(err)
	}

	s.logger.Warn("indexer stream disconnected", utils.Err(err))
	go s.reconnectLoop()
}

// reconnectLoop переподключается с exponential backoff
func (s *Stream) reconnectLoop() {
	delay := s.config.InitialDelay

	for {
		attempt := atomic.AddInt32(&s.retryCount, 1)
		if s.config.MaxRetries > 0 && int(attempt) > s.config.MaxRetries {
			s.logger.Error("max reconnect attempts reached", utils.Int("max_retries", s.config.MaxRetries))
			s.setState(StreamDisconnected)
			return
		}

		s.logger.Info("reconnecting to indexer stream",
			utils.String("delay", delay.String()),
			utils.Int("attempt", int(attempt)),
		)

		timer := time.NewTimer(delay)
		select {
		case <-s.closeChan:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-s.closeChan:
				cancel()
			case <-ctx.Done():
			}
		}()
		err := s.dial(ctx)
		cancel()

		if err != nil {
			s.logger.Warn("reconnect failed", utils.Err(err))
			delay *= 2
			if delay > s.config.MaxDelay {
				delay = s.config.MaxDelay
			}
			continue
		}

		if s.isClosed() {
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()
			return
		}

		s.connected()
		return
	}
}

// Close закрывает соединение и останавливает переподключение. Повторный вызов безопасен.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeChan)
		s.setState(StreamClosed)
		metrics.SetStreamConnected(false)

		s.connMu.Lock()
		defer s.connMu.Unlock()
		if s.conn != nil {
			s.writeMu.Lock()
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			s.writeMu.Unlock()
			err = s.conn.Close()
			s.conn = nil
		}
	})
	return err
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.closeChan:
		return true
	default:
		return false
	}
}

func (s *Stream) setState(state StreamState) {
	atomic.StoreInt32(&s.state, int32(state))
}
