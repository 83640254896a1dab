package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/temitopeohassan/perpraid/internal/indexer"
	"github.com/temitopeohassan/perpraid/internal/models"
	"github.com/temitopeohassan/perpraid/internal/risk"
	"github.com/temitopeohassan/perpraid/internal/websocket"
	"github.com/temitopeohassan/perpraid/pkg/retry"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// Значения по умолчанию монитора
const (
	DefaultRiskCheckInterval = 30 * time.Second
	DefaultRiskCheckWorkers  = 4
)

// DefaultConnectRetry: 5 попыток первого подключения с задержками 2s..16s
func DefaultConnectRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// riskCheckTimeout - ограничение на проверку одного кошелька
const riskCheckTimeout = 10 * time.Second

// StreamSource - поток индексера, на который подписывается монитор
type StreamSource interface {
	SetOnMessage(handler func(indexer.StreamMessage))
	SetOnConnect(handler func())
	SetOnDisconnect(handler func(error))
	Subscribe(channel, id string) error
	Connect(ctx context.Context) error
	Close() error
}

// TickApplier применяет изменения рынков к кэшу
type TickApplier interface {
	ApplyTicks(ticks []indexer.MarketTick) int
}

// AccountRiskSource оценивает риск субаккаунта
type AccountRiskSource interface {
	GetAccountRisk(ctx context.Context, wallet string) (*models.AccountRisk, error)
}

// Broadcaster рассылает события клиентам /ws/stream
type Broadcaster interface {
	BroadcastMarketUpdate(market string, data websocket.MarketData)
	BroadcastRiskAlert(wallet string, data websocket.RiskAlertData)
	BroadcastStreamStatus(connected bool)
	SubscribedWallets() []string
}

var (
	_ StreamSource      = (*indexer.Stream)(nil)
	_ TickApplier       = (*MarketService)(nil)
	_ AccountRiskSource = (*AccountService)(nil)
	_ Broadcaster       = (*websocket.Hub)(nil)
)

// MonitorConfig - параметры MarketMonitor
type MonitorConfig struct {
	// Wallets - кошельки, которые проверяются всегда, вне зависимости от подписок
	Wallets []string

	// Interval - период проверки риска кошельков
	Interval time.Duration

	// Workers - параллельные проверки кошельков
	Workers int

	// Connect - повторы первого подключения к потоку
	Connect retry.Config
}

// MarketMonitor связывает поток индексера с кэшем рынков и клиентами /ws/stream
//
// Функции:
// - тики v4_markets обновляют кэш MarketService и рассылаются как marketUpdate
// - подключение и разрыв потока рассылаются как streamStatus
// - периодически проверяет риск кошельков (из конфига и подписок клиентов)
//   и рассылает riskAlert при смене уровня
type MarketMonitor struct {
	stream   StreamSource
	markets  TickApplier
	accounts AccountRiskSource
	hub      Broadcaster
	cfg      MonitorConfig
	logger   *utils.Logger

	mu       sync.Mutex
	lastRisk map[string]string

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMarketMonitor создает монитор. stream может быть nil: тогда работает только проверка риска.
func NewMarketMonitor(stream StreamSource, markets TickApplier, accounts AccountRiskSource, hub Broadcaster, cfg MonitorConfig, logger *utils.Logger) *MarketMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRiskCheckInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultRiskCheckWorkers
	}
	if cfg.Connect.MaxAttempts <= 0 {
		cfg.Connect = DefaultConnectRetry()
	}
	if logger == nil {
		logger = utils.L()
	}

	wallets := make([]string, 0, len(cfg.Wallets))
	for _, w := range cfg.Wallets {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			wallets = append(wallets, w)
		}
	}
	cfg.Wallets = wallets

	return &MarketMonitor{
		stream:   stream,
		markets:  markets,
		accounts: accounts,
		hub:      hub,
		cfg:      cfg,
		logger:   logger.WithComponent("market_monitor"),
		lastRisk: make(map[string]string),
		stopCh:   make(chan struct{}),
	}
}

// Start подключается к потоку и проверяет риск кошельков до отмены ctx или Stop.
// Неудачное подключение не останавливает монитор: рынки читаются из REST.
func (m *MarketMonitor) Start(ctx context.Context) {
	if m.stream != nil {
		m.stream.SetOnMessage(m.handleMessage)
		m.stream.SetOnConnect(m.handleConnect)
		m.stream.SetOnDisconnect(m.handleDisconnect)

		if err := m.stream.Subscribe(indexer.ChannelMarkets, ""); err != nil {
			m.logger.Warn("subscribe to markets channel failed", utils.Err(err))
		}

		connectCfg := m.cfg.Connect
		connectCfg.RetryIf = func(err error) bool { return !errors.Is(err, context.Canceled) }
		connectCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			m.logger.Warn("indexer stream connect failed, retrying",
				utils.Int("attempt", attempt),
				utils.Duration("delay", delay),
				utils.Err(err),
			)
		}
		if err := retry.Do(ctx, connectCfg, m.stream.Connect); err != nil {
			m.logger.Error("indexer stream unavailable, continuing with REST data", utils.Err(err))
		}
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.CheckRisks(ctx)
		}
	}
}

// Stop останавливает монитор и закрывает поток. Повторный вызов безопасен.
func (m *MarketMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.stream != nil {
			if err := m.stream.Close(); err != nil {
				m.logger.Debug("close indexer stream", utils.Err(err))
			}
		}
	})
}

func (m *MarketMonitor) handleMessage(msg indexer.StreamMessage) {
	if msg.Channel != indexer.ChannelMarkets {
		return
	}

	ticks, err := indexer.ParseMarketsMessage(msg)
	if err != nil {
		m.logger.Warn("bad markets message", utils.String("type", msg.Type), utils.Err(err))
		return
	}
	if len(ticks) == 0 {
		return
	}

	m.markets.ApplyTicks(ticks)

	// полный снимок при подписке не рассылаем, клиенты получают его через REST
	if msg.Type == indexer.MessageSubscribed {
		return
	}
	for _, t := range ticks {
		m.hub.BroadcastMarketUpdate(t.Ticker, toMarketData(t))
	}
}

func (m *MarketMonitor) handleConnect() {
	m.hub.BroadcastStreamStatus(true)
}

func (m *MarketMonitor) handleDisconnect(err error) {
	m.logger.Warn("indexer stream disconnected", utils.Err(err))
	m.hub.BroadcastStreamStatus(false)
}

// toMarketData переводит тик в сообщение клиенту, пустые поля не изменились
func toMarketData(t indexer.MarketTick) websocket.MarketData {
	return websocket.MarketData{
		Status:          t.Status,
		OraclePrice:     nullString(t.OraclePrice),
		NextFundingRate: nullString(t.NextFundingRate),
		OpenInterest:    nullString(t.OpenInterest),
		PriceChange24h:  nullString(t.PriceChange24H),
		Volume24h:       nullString(t.Volume24H),
	}
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// ============================================================
// Проверка риска кошельков
// ============================================================

// Wallets возвращает кошельки для проверки: из конфига и из подписок клиентов
func (m *MarketMonitor) Wallets() []string {
	seen := make(map[string]struct{}, len(m.cfg.Wallets))
	wallets := make([]string, 0, len(m.cfg.Wallets))
	add := func(w string) {
		if _, ok := seen[w]; ok {
			return
		}
		seen[w] = struct{}{}
		wallets = append(wallets, w)
	}
	for _, w := range m.cfg.Wallets {
		add(w)
	}
	for _, w := range m.hub.SubscribedWallets() {
		add(strings.ToLower(w))
	}
	return wallets
}

// CheckRisks проверяет все кошельки пулом из cfg.Workers горутин.
// Уровни кошельков, выпавших из списка, забываются.
func (m *MarketMonitor) CheckRisks(ctx context.Context) {
	wallets := m.Wallets()
	m.forgetExcept(wallets)
	if len(wallets) == 0 {
		return
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < m.cfg.Workers && i < len(wallets); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for wallet := range jobs {
				m.checkWallet(ctx, wallet)
			}
		}()
	}

	for _, wallet := range wallets {
		select {
		case jobs <- wallet:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
}

// forgetExcept удаляет сохраненные уровни риска кошельков не из списка
func (m *MarketMonitor) forgetExcept(wallets []string) {
	keep := make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		keep[w] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for w := range m.lastRisk {
		if _, ok := keep[w]; !ok {
			delete(m.lastRisk, w)
		}
	}
}

// checkWallet рассылает riskAlert, если уровень риска изменился с прошлой проверки.
// Первая проверка кошелька рассылается только при уровне выше low.
func (m *MarketMonitor) checkWallet(ctx context.Context, wallet string) {
	ctx, cancel := context.WithTimeout(ctx, riskCheckTimeout)
	defer cancel()

	assessment, err := m.accounts.GetAccountRisk(ctx, wallet)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			m.logger.WithWallet(wallet).Warn("risk check failed", utils.Err(err))
		}
		return
	}

	m.mu.Lock()
	previous, seen := m.lastRisk[wallet]
	m.lastRisk[wallet] = assessment.LiquidationRisk
	m.mu.Unlock()

	if previous == assessment.LiquidationRisk {
		return
	}
	if !seen && assessment.LiquidationRisk == string(risk.LiquidationRiskLow) {
		return
	}

	m.hub.BroadcastRiskAlert(wallet, websocket.RiskAlertData{
		LiquidationRisk:  assessment.LiquidationRisk,
		PreviousRisk:     previous,
		TotalMarginRatio: assessment.TotalMarginRatio.String(),
		Warnings:         assessment.Warnings,
	})

	m.logger.WithWallet(wallet).Info("liquidation risk changed",
		utils.String("previous", previous),
		utils.String("current", assessment.LiquidationRisk),
	)
}
