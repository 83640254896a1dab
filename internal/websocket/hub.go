package websocket

import (
	"bytes"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"github.com/temitopeohassan/perpraid/internal/metrics"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonBufferPool убирает аллокацию буфера при каждом Broadcast
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

const broadcastBufferSize = 256

// topic определяет, каким клиентам доставляется сообщение
type topic int

const (
	topicAll    topic = iota // всем
	topicMarket              // клиентам без фильтра рынков или подписанным на рынок
	topicWallet              // только подписанным на кошелек
)

type envelope struct {
	topic topic
	key   string
	data  []byte
}

// Hub управляет всеми активными WebSocket соединениями /ws/stream
//
// Назначение:
// Рассылает клиентам обновления рынков из потока индексера
// и алерты риска отслеживаемых кошельков.
//
// Функции:
// - регистрация и отмена регистрации клиентов
// - неблокирующий Broadcast: при переполненном канале сообщение отбрасывается
// - фильтрация по подпискам клиента (рынки, кошельки)
// - отключение клиентов, не успевающих читать
//
// Жизненный цикл: NewHub при старте процесса, go hub.Run(), hub.Stop() при shutdown.
type Hub struct {
	clients map[*Client]struct{}

	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client

	stop     chan struct{}
	stopOnce sync.Once

	dropped uint64 // atomic

	origins *OriginChecker
	logger  *utils.Logger

	mu sync.RWMutex
}

// NewHub создает Hub. allowedOrigins пустой или ["*"] разрешает любой Origin.
func NewHub(allowedOrigins []string, logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.L()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan envelope, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		origins:    NewOriginChecker(allowedOrigins),
		logger:     logger.WithComponent("websocket"),
	}
}

// Run запускает главный цикл Hub до вызова Stop.
// Список клиентов копируется под коротким RLock, отправка идет без блокировки.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			metrics.WSClients.Set(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WSClients.Set(float64(total))
			h.logger.Debug("client connected", utils.Int("clients", total))

		case client := <-h.unregister:
			h.remove(client)

		case env := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var slow []*Client
			for _, client := range clients {
				if !client.wants(env) {
					continue
				}
				select {
				case client.send <- env.data:
				default:
					slow = append(slow, client)
				}
			}

			for _, client := range slow {
				metrics.WSDropped.WithLabelValues("client").Inc()
				h.remove(client)
			}
			if len(slow) > 0 {
				h.logger.Warn("removed slow clients", utils.Int("count", len(slow)))
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSClients.Set(float64(total))
}

// Stop останавливает Run и закрывает каналы всех клиентов. Повторный вызов безопасен.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Broadcast сериализует сообщение и рассылает всем клиентам
func (h *Hub) Broadcast(message interface{}) {
	if data, ok := h.encode(message); ok {
		h.enqueue(envelope{topic: topicAll, data: data})
	}
}

// BroadcastRaw рассылает уже сериализованное сообщение
func (h *Hub) BroadcastRaw(data []byte) {
	msg := make([]byte, len(data))
	copy(msg, data)
	h.enqueue(envelope{topic: topicAll, data: msg})
}

// BroadcastMarketUpdate рассылает обновление рынка с учетом фильтров клиентов
func (h *Hub) BroadcastMarketUpdate(market string, data MarketData) {
	market = utils.NormalizeMarket(market)
	if encoded, ok := h.encode(NewMarketUpdateMessage(market, data)); ok {
		h.enqueue(envelope{topic: topicMarket, key: market, data: encoded})
	}
}

// BroadcastRiskAlert отправляет алерт клиентам, подписанным на кошелек
func (h *Hub) BroadcastRiskAlert(wallet string, data RiskAlertData) {
	if encoded, ok := h.encode(NewRiskAlertMessage(wallet, data)); ok {
		h.enqueue(envelope{topic: topicWallet, key: strings.ToLower(wallet), data: encoded})
	}
}

// BroadcastStreamStatus сообщает всем о состоянии потока индексера
func (h *Hub) BroadcastStreamStatus(connected bool) {
	h.Broadcast(NewStreamStatusMessage(connected))
}

func (h *Hub) encode(message interface{}) ([]byte, bool) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.logger.Error("marshal broadcast message", utils.Err(err))
		return nil, false
	}

	data := bytes.TrimRight(buf.Bytes(), "\n")
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// enqueue не блокирует: при полном канале сообщение считается потерянным
func (h *Hub) enqueue(env envelope) {
	select {
	case h.broadcast <- env:
	default:
		atomic.AddUint64(&h.dropped, 1)
		metrics.WSDropped.WithLabelValues("broadcast").Inc()
	}
}

// DroppedMessages - число сообщений, отброшенных из-за переполнения broadcast канала
func (h *Hub) DroppedMessages() uint64 {
	return atomic.LoadUint64(&h.dropped)
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscribedWallets возвращает кошельки, на которые подписан хотя бы один клиент
func (h *Hub) SubscribedWallets() []string {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, client := range clients {
		client.filterMu.RLock()
		for wallet := range client.wallets {
			seen[wallet] = struct{}{}
		}
		client.filterMu.RUnlock()
	}

	wallets := make([]string, 0, len(seen))
	for wallet := range seen {
		wallets = append(wallets, wallet)
	}
	sort.Strings(wallets)
	return wallets
}
