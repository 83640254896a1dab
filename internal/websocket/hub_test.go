package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/temitopeohassan/perpraid/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error"})
}

// ============================================================
// Unit Tests
// ============================================================

func TestNewHub(t *testing.T) {
	hub := NewHub(nil, testLogger())

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func TestOriginChecker_Check(t *testing.T) {
	checker := NewOriginChecker([]string{"http://localhost:3000", " https://example.com "})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},                       // empty origin allowed
		{"http://localhost:3000", true},  // allowed
		{"https://example.com", true},    // allowed after trim
		{"http://evil.com", false},       // not allowed
		{"http://localhost:8080", false}, // not in list
	}

	for _, tt := range tests {
		got := checker.Check(tt.origin)
		if got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginChecker_AllowAll(t *testing.T) {
	for _, list := range [][]string{nil, {}, {"*"}, {"http://localhost:3000", "*"}} {
		checker := NewOriginChecker(list)
		for _, origin := range []string{"http://localhost:3000", "https://evil.com"} {
			if !checker.Check(origin) {
				t.Errorf("origins %v: Check(%q) = false", list, origin)
			}
		}
	}
}

func TestClient_Wants(t *testing.T) {
	c := newClient(nil, nil)

	if !c.wants(envelope{topic: topicMarket, key: "BTC-USD"}) {
		t.Error("client without market filter must receive every market")
	}
	if c.wants(envelope{topic: topicWallet, key: "dydx1abc"}) {
		t.Error("client without wallet subscription must not receive alerts")
	}

	c.apply(ClientMessage{
		Action:  ActionSubscribe,
		Markets: []string{"eth/usd"},
		Wallets: []string{"DYDX18C37S9SQ89V55VUFFAJKFCD3XJ9M67SQ2TVA8A"},
	})

	if !c.wants(envelope{topic: topicMarket, key: "ETH-USD"}) {
		t.Error("subscribed market filtered out")
	}
	if c.wants(envelope{topic: topicMarket, key: "BTC-USD"}) {
		t.Error("unsubscribed market delivered")
	}
	if !c.wants(envelope{topic: topicWallet, key: "dydx18c37s9sq89v55vuffajkfcd3xj9m67sq2tva8a"}) {
		t.Error("subscribed wallet filtered out")
	}
	if !c.wants(envelope{topic: topicAll}) {
		t.Error("topicAll must always be delivered")
	}

	c.apply(ClientMessage{Action: ActionUnsubscribe, Markets: []string{"ETH-USD"}})
	if !c.wants(envelope{topic: topicMarket, key: "BTC-USD"}) {
		t.Error("empty market filter must deliver every market again")
	}
}

func TestClient_HandleReplies(t *testing.T) {
	c := newClient(nil, nil)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"ping", `{"action":"ping"}`, `"type":"pong"`},
		{"bad json", `{"action":`, "invalid message format"},
		{"unknown action", `{"action":"dance"}`, "unknown action: dance"},
		{"bad market", `{"action":"subscribe","markets":["not a market"]}`, `"type":"error"`},
		{"bad wallet", `{"action":"subscribe","wallets":["0x123"]}`, `"type":"error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.handle([]byte(tt.raw))
			select {
			case data := <-c.reply:
				if !strings.Contains(string(data), tt.want) {
					t.Errorf("reply %s does not contain %s", data, tt.want)
				}
			default:
				t.Fatal("no reply")
			}
		})
	}

	// валидная подписка ответа не требует
	c.handle([]byte(`{"action":"subscribe","markets":["BTC-USD"]}`))
	if len(c.reply) != 0 {
		t.Error("unexpected reply to valid subscribe")
	}
	if c.wants(envelope{topic: topicMarket, key: "ETH-USD"}) {
		t.Error("subscribe was not applied")
	}
}

func TestHub_BroadcastNonBlocking(t *testing.T) {
	hub := NewHub(nil, testLogger())
	// Run не запущен: канал broadcast переполняется

	for i := 0; i < broadcastBufferSize+10; i++ {
		hub.Broadcast(map[string]int{"i": i})
	}

	if got := hub.DroppedMessages(); got != 10 {
		t.Errorf("expected 10 dropped messages, got %d", got)
	}
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub(nil, testLogger())

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	hub.Stop()
	hub.Stop()

	select {
	case <-done:
		// OK - Run() exited
	case <-time.After(1 * time.Second):
		t.Error("Hub.Run() did not exit after Stop()")
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub(nil, testLogger())
	go hub.Run()

	client := newClient(hub, nil)
	hub.register <- client
	hub.Stop()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
}

func TestHub_RemovesSlowClient(t *testing.T) {
	hub := NewHub(nil, testLogger())
	go hub.Run()
	defer hub.Stop()

	slow := newClient(hub, nil)
	slow.send = make(chan []byte) // никто не читает
	hub.register <- slow
	waitForClients(t, hub, 1)

	hub.BroadcastStreamStatus(true)
	waitForClients(t, hub, 0)
}

func TestHub_SubscribedWallets(t *testing.T) {
	hub := NewHub(nil, testLogger())
	go hub.Run()
	defer hub.Stop()

	a := newClient(hub, nil)
	a.apply(ClientMessage{Action: ActionSubscribe, Wallets: []string{"dydx1bbb", "DYDX1AAA"}})
	b := newClient(hub, nil)
	b.apply(ClientMessage{Action: ActionSubscribe, Wallets: []string{"dydx1aaa"}, Markets: []string{"btc-usd"}})

	hub.register <- a
	hub.register <- b
	waitForClients(t, hub, 2)

	got := hub.SubscribedWallets()
	if len(got) != 2 || got[0] != "dydx1aaa" || got[1] != "dydx1bbb" {
		t.Errorf("SubscribedWallets() = %v, want [dydx1aaa dydx1bbb]", got)
	}
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", want, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ============================================================
// End-to-end через настоящее WebSocket соединение
// ============================================================

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readType(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestHub_ServeWS_Filtering(t *testing.T) {
	hub := NewHub(nil, testLogger())
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	wallet := "dydx1e2tczyk2rw7u47kzxxee5g7ufkncdmlc7c779v"
	if err := conn.WriteJSON(ClientMessage{Action: ActionSubscribe, Markets: []string{"BTC-USD"}, Wallets: []string{wallet}}); err != nil {
		t.Fatal(err)
	}
	// pong приходит после обработки подписки
	if err := conn.WriteJSON(ClientMessage{Action: ActionPing}); err != nil {
		t.Fatal(err)
	}
	if msg := readType(t, conn); msg["type"] != string(MessageTypePong) {
		t.Fatalf("expected pong, got %v", msg)
	}

	hub.BroadcastMarketUpdate("ETH-USD", MarketData{OraclePrice: "2500"})
	hub.BroadcastRiskAlert("dydx18c37s9sq89v55vuffajkfcd3xj9m67sq2tva8a", RiskAlertData{LiquidationRisk: "HIGH"})
	hub.BroadcastMarketUpdate("btc-usd", MarketData{OraclePrice: "42000"})
	hub.BroadcastRiskAlert(wallet, RiskAlertData{LiquidationRisk: "CRITICAL", PreviousRisk: "HIGH"})

	msg := readType(t, conn)
	if msg["type"] != string(MessageTypeMarketUpdate) || msg["market"] != "BTC-USD" {
		t.Errorf("expected BTC market update, got %v", msg)
	}

	msg = readType(t, conn)
	if msg["type"] != string(MessageTypeRiskAlert) || msg["wallet"] != wallet {
		t.Errorf("expected risk alert for subscribed wallet, got %v", msg)
	}
	data, _ := msg["data"].(map[string]interface{})
	if data["liquidation_risk"] != "CRITICAL" {
		t.Errorf("unexpected alert data: %v", data)
	}
}

func TestHub_ServeWS_RejectsOrigin(t *testing.T) {
	hub := NewHub([]string{"https://app.example.com"}, testLogger())
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 response, got %v", resp)
	}
}

// ============================================================
// Benchmarks
// ============================================================

// BenchmarkHub_Broadcast тестирует скорость broadcast
func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub(nil, testLogger())
	go hub.Run()
	defer hub.Stop()

	msg := map[string]interface{}{
		"type": "test",
		"data": "benchmark message",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(msg)
	}
}

// BenchmarkHub_BroadcastMarketUpdate тестирует реальный use case
func BenchmarkHub_BroadcastMarketUpdate(b *testing.B) {
	hub := NewHub(nil, testLogger())
	go hub.Run()
	defer hub.Stop()

	data := MarketData{OraclePrice: "42000.5", NextFundingRate: "0.00001", OpenInterest: "1234.5"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastMarketUpdate("BTC-USD", data)
	}
}

// BenchmarkOriginChecker_Check тестирует скорость проверки origin
func BenchmarkOriginChecker_Check(b *testing.B) {
	checker := NewOriginChecker([]string{"http://localhost:3000"})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		checker.Check("http://localhost:3000")
	}
}

// BenchmarkHub_ManyClients симулирует много клиентов с фильтрами
func BenchmarkHub_ManyClients(b *testing.B) {
	hub := NewHub(nil, testLogger())
	go hub.Run()
	defer hub.Stop()

	for i := 0; i < 100; i++ {
		client := newClient(hub, nil)
		if i%2 == 0 {
			client.apply(ClientMessage{Action: ActionSubscribe, Markets: []string{"ETH-USD"}})
		}
		hub.register <- client

		go func(c *Client) {
			for range c.send {
				// discard
			}
		}(client)
	}

	data := MarketData{OraclePrice: "42000"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastMarketUpdate("BTC-USD", data)
	}
}

// ============================================================
// Parallel Stress Test
// ============================================================

func TestHub_ConcurrentOperations(t *testing.T) {
	hub := NewHub(nil, testLogger())
	go hub.Run()
	defer hub.Stop()

	var wg sync.WaitGroup
	const goroutines = 10
	const operations = 1000

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				hub.Broadcast(map[string]int{"goroutine": id, "op": j})
			}
		}(i)
	}

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				_ = hub.ClientCount()
			}
		}()
	}

	wg.Wait()
}
