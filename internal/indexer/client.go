// Package indexer - клиент REST API и websocket потока индексера dYdX v4.
//
// Индексер только читает данные: рынки, стаканы, свечи, funding,
// субаккаунты, позиции, исполнения и переводы. Подпись транзакций
// и торговля через валидаторы сюда не входят.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/temitopeohassan/perpraid/internal/metrics"
	"github.com/temitopeohassan/perpraid/pkg/ratelimit"
	"github.com/temitopeohassan/perpraid/pkg/retry"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Сети dYdX
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

const (
	mainnetRESTURL = "https://indexer.dydx.trade/v4"
	mainnetWSURL   = "wss://indexer.dydx.trade/v4/ws"
	testnetRESTURL = "https://indexer.v4testnet.dydx.exchange/v4"
	testnetWSURL   = "wss://indexer.v4testnet.dydx.exchange/v4/ws"

	// maxResponseBytes ограничивает размер читаемого ответа
	maxResponseBytes = 8 << 20

	// maxRetryAfter - потолок паузы по Retry-After
	maxRetryAfter = time.Minute
)

// Endpoints возвращает REST и websocket адреса сети.
// Все кроме "mainnet" считается testnet.
func Endpoints(network string) (restURL, wsURL string) {
	if strings.EqualFold(network, NetworkMainnet) {
		return mainnetRESTURL, mainnetWSURL
	}
	return testnetRESTURL, testnetWSURL
}

// Config - настройки клиента
type Config struct {
	Network string

	// BaseURL переопределяет REST адрес сети (для тестов и своих нод)
	BaseURL string

	// RateLimit - запросов в секунду к индексеру, Burst - размер всплеска
	RateLimit float64
	Burst     float64

	Retry retry.Config
	HTTP  HTTPClientConfig
}

// Client - REST клиент индексера
//
// Все методы потокобезопасны. Каждый запрос проходит через
// общий token bucket и повторяется по retry.Config.
type Client struct {
	baseURL string
	network string
	http    *http.Client
	limiter *ratelimit.RateLimiter
	retry   retry.Config
	logger  *utils.Logger
}

// NewClient создает клиент
func NewClient(cfg Config, logger *utils.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL, _ = Endpoints(cfg.Network)
	}
	if cfg.HTTP == (HTTPClientConfig{}) {
		cfg.HTTP = DefaultHTTPClientConfig()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if logger == nil {
		logger = utils.L()
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		network: cfg.Network,
		http:    NewHTTPClient(cfg.HTTP),
		limiter: ratelimit.NewRateLimiter(cfg.RateLimit, cfg.Burst),
		retry:   cfg.Retry,
		logger:  logger.WithComponent("indexer"),
	}
	return c
}

// Network возвращает имя сети клиента
func (c *Client) Network() string {
	return c.network
}

// BaseURL возвращает REST адрес индексера
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close закрывает idle соединения
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// get выполняет GET с лимитом и повторами и декодирует ответ в out.
// endpoint - короткое имя для метрик и логов.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.IndexerRetries.WithLabelValues(endpoint).Inc()
		c.logger.Warn("indexer request failed, retrying",
			utils.String("endpoint", endpoint),
			utils.Int("attempt", attempt),
			utils.Err(err),
			utils.String("delay", delay.String()),
		)
	}

	return retry.Do(ctx, cfg, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		body, err := c.do(ctx, endpoint, path, reqURL)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				c.limiter.Pause(apiErr.RetryAfter)
			}
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return retry.Permanent(fmt.Errorf("indexer %s: decode response: %w", path, err))
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, endpoint, path, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		metrics.RecordIndexerRequest(endpoint, 0, latency)
		return nil, fmt.Errorf("indexer %s: %w", path, err)
	}
	defer resp.Body.Close()
	metrics.RecordIndexerRequest(endpoint, resp.StatusCode, latency)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("indexer %s: read body: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Path: path}
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && len(errResp.Errors) > 0 {
			apiErr.Message = errResp.Errors[0].Msg
		}
		return nil, apiErr
	}

	c.logger.Debug("indexer request",
		utils.String("endpoint", endpoint),
		utils.Latency(latency),
	)
	return body, nil
}

// parseRetryAfter понимает секунды и HTTP-дату, ответ ограничен maxRetryAfter
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		d = time.Until(at)
	}

	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// ============================================================
// Рынки
// ============================================================

// GetPerpetualMarkets возвращает все перпетуальные рынки по тикеру
func (c *Client) GetPerpetualMarkets(ctx context.Context) (map[string]PerpetualMarket, error) {
	var resp perpetualMarketsResponse
	if err := c.get(ctx, "perpetualMarkets", "/perpetualMarkets", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Markets == nil {
		resp.Markets = map[string]PerpetualMarket{}
	}
	return resp.Markets, nil
}

// GetPerpetualMarket возвращает один рынок. Неизвестный тикер дает ErrNotFound.
func (c *Client) GetPerpetualMarket(ctx context.Context, ticker string) (*PerpetualMarket, error) {
	var resp perpetualMarketsResponse
	query := url.Values{"ticker": {ticker}}
	if err := c.get(ctx, "perpetualMarkets", "/perpetualMarkets", query, &resp); err != nil {
		return nil, err
	}
	m, ok := resp.Markets[ticker]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", ticker, ErrNotFound)
	}
	return &m, nil
}

// GetOrderbook возвращает стакан рынка
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (*Orderbook, error) {
	var ob Orderbook
	path := "/orderbooks/perpetualMarket/" + url.PathEscape(ticker)
	if err := c.get(ctx, "orderbook", path, nil, &ob); err != nil {
		return nil, err
	}
	return &ob, nil
}

// GetCandles возвращает свечи, новые первыми
func (c *Client) GetCandles(ctx context.Context, ticker, resolution string, limit int) ([]Candle, error) {
	query := url.Values{"resolution": {resolution}}
	setLimit(query, limit)

	var resp candlesResponse
	path := "/candles/perpetualMarkets/" + url.PathEscape(ticker)
	if err := c.get(ctx, "candles", path, query, &resp); err != nil {
		return nil, err
	}
	return resp.Candles, nil
}

// GetTrades возвращает последние сделки рынка
func (c *Client) GetTrades(ctx context.Context, ticker string, limit int) ([]Trade, error) {
	query := url.Values{}
	setLimit(query, limit)

	var resp tradesResponse
	path := "/trades/perpetualMarket/" + url.PathEscape(ticker)
	if err := c.get(ctx, "trades", path, query, &resp); err != nil {
		return nil, err
	}
	return resp.Trades, nil
}

// GetHistoricalFunding возвращает историю funding, новые первыми
func (c *Client) GetHistoricalFunding(ctx context.Context, ticker string, limit int) ([]HistoricalFunding, error) {
	query := url.Values{}
	setLimit(query, limit)

	var resp historicalFundingResponse
	path := "/historicalFunding/" + url.PathEscape(ticker)
	if err := c.get(ctx, "historicalFunding", path, query, &resp); err != nil {
		return nil, err
	}
	return resp.HistoricalFunding, nil
}

// ============================================================
// Субаккаунты
// ============================================================

// GetSubaccount возвращает субаккаунт адреса с открытыми позициями
func (c *Client) GetSubaccount(ctx context.Context, address string, number int) (*Subaccount, error) {
	var resp subaccountResponse
	path := "/addresses/" + url.PathEscape(address) + "/subaccountNumber/" + strconv.Itoa(number)
	if err := c.get(ctx, "subaccount", path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Subaccount, nil
}

// GetPerpetualPositions возвращает позиции субаккаунта. Пустой status - все.
func (c *Client) GetPerpetualPositions(ctx context.Context, address string, number int, status string, limit int) ([]PerpetualPosition, error) {
	query := subaccountQuery(address, number)
	if status != "" {
		query.Set("status", status)
	}
	setLimit(query, limit)

	var resp perpetualPositionsResponse
	if err := c.get(ctx, "perpetualPositions", "/perpetualPositions", query, &resp); err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

// GetFills возвращает исполнения субаккаунта. Пустой market - по всем рынкам.
func (c *Client) GetFills(ctx context.Context, address string, number int, market string, limit int) ([]Fill, error) {
	query := subaccountQuery(address, number)
	if market != "" {
		query.Set("market", market)
		query.Set("marketType", "PERPETUAL")
	}
	setLimit(query, limit)

	var resp fillsResponse
	if err := c.get(ctx, "fills", "/fills", query, &resp); err != nil {
		return nil, err
	}
	return resp.Fills, nil
}

// GetTransfers возвращает депозиты, выводы и переводы субаккаунта
func (c *Client) GetTransfers(ctx context.Context, address string, number int, limit int) ([]Transfer, error) {
	query := subaccountQuery(address, number)
	setLimit(query, limit)

	var resp transfersResponse
	if err := c.get(ctx, "transfers", "/transfers", query, &resp); err != nil {
		return nil, err
	}
	return resp.Transfers, nil
}

// GetHeight возвращает последний блок индексера
func (c *Client) GetHeight(ctx context.Context) (*Height, error) {
	var h Height
	if err := c.get(ctx, "height", "/height", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Ping проверяет доступность индексера запросом /height
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.GetHeight(ctx)
	return err
}

func subaccountQuery(address string, number int) url.Values {
	return url.Values{
		"address":          {address},
		"subaccountNumber": {strconv.Itoa(number)},
	}
}

func setLimit(query url.Values, limit int) {
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
}
