package indexer

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// MarketTick - изменение рынка из канала v4_markets.
// Поля, не пришедшие в сообщении, имеют Valid == false.
type MarketTick struct {
	Ticker          string              `json:"ticker"`
	Status          string              `json:"status,omitempty"`
	OraclePrice     decimal.NullDecimal `json:"oraclePrice"`
	NextFundingRate decimal.NullDecimal `json:"nextFundingRate"`
	OpenInterest    decimal.NullDecimal `json:"openInterest"`
	PriceChange24H  decimal.NullDecimal `json:"priceChange24H"`
	Volume24H       decimal.NullDecimal `json:"volume24H"`
}

type tradingUpdate struct {
	Status          string              `json:"status"`
	NextFundingRate decimal.NullDecimal `json:"nextFundingRate"`
	OpenInterest    decimal.NullDecimal `json:"openInterest"`
	PriceChange24H  decimal.NullDecimal `json:"priceChange24H"`
	Volume24H       decimal.NullDecimal `json:"volume24H"`
}

type oraclePriceUpdate struct {
	OraclePrice decimal.NullDecimal `json:"oraclePrice"`
	EffectiveAt string              `json:"effectiveAt"`
}

type marketsContents struct {
	Markets      map[string]PerpetualMarket   `json:"markets"`
	Trading      map[string]tradingUpdate     `json:"trading"`
	OraclePrices map[string]oraclePriceUpdate `json:"oraclePrices"`
}

// ParseMarketsMessage разбирает сообщение канала v4_markets в список изменений по тикерам.
//
// subscribed несет полный снимок рынков, channel_data - частичные обновления,
// channel_batch_data - массив частичных обновлений. Изменения одного тикера
// сливаются, более поздние значения перекрывают ранние. Результат отсортирован по тикеру.
func ParseMarketsMessage(msg StreamMessage) ([]MarketTick, error) {
	if msg.Channel != ChannelMarkets {
		return nil, fmt.Errorf("unexpected channel %q", msg.Channel)
	}
	if len(msg.Contents) == 0 {
		return nil, nil
	}

	var batch []marketsContents
	switch msg.Type {
	case MessageSubscribed, MessageChannelData:
		var c marketsContents
		if err := json.Unmarshal(msg.Contents, &c); err != nil {
			return nil, fmt.Errorf("decode %s contents: %w", msg.Type, err)
		}
		batch = append(batch, c)
	case MessageChannelBatchData:
		if err := json.Unmarshal(msg.Contents, &batch); err != nil {
			return nil, fmt.Errorf("decode batch contents: %w", err)
		}
	default:
		return nil, nil
	}

	ticks := make(map[string]*MarketTick)
	get := func(ticker string) *MarketTick {
		t, ok := ticks[ticker]
		if !ok {
			t = &MarketTick{Ticker: ticker}
			ticks[ticker] = t
		}
		return t
	}

	for _, c := range batch {
		for ticker, m := range c.Markets {
			t := get(ticker)
			t.Status = m.Status
			t.OraclePrice = decimal.NewNullDecimal(m.OraclePrice)
			t.NextFundingRate = decimal.NewNullDecimal(m.NextFundingRate)
			t.OpenInterest = decimal.NewNullDecimal(m.OpenInterest)
			t.PriceChange24H = decimal.NewNullDecimal(m.PriceChange24H)
			t.Volume24H = decimal.NewNullDecimal(m.Volume24H)
		}
		for ticker, u := range c.Trading {
			t := get(ticker)
			if u.Status != "" {
				t.Status = u.Status
			}
			merge(&t.NextFundingRate, u.NextFundingRate)
			merge(&t.OpenInterest, u.OpenInterest)
			merge(&t.PriceChange24H, u.PriceChange24H)
			merge(&t.Volume24H, u.Volume24H)
		}
		for ticker, p := range c.OraclePrices {
			merge(&get(ticker).OraclePrice, p.OraclePrice)
		}
	}

	out := make([]MarketTick, 0, len(ticks))
	for _, t := range ticks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func merge(dst *decimal.NullDecimal, src decimal.NullDecimal) {
	if src.Valid {
		*dst = src
	}
}
