package models

import "time"

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// GENERAL ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Exchange identifiers. Every FundingRecord carries one of these.
const (
	ExchangeBinance = "binance"
	ExchangeBybit   = "bybit"
	ExchangeOkx     = "okx"
	ExchangeKucoin  = "kucoin"
)

// FundingInterval is the settlement interval assumed when an exchange does not
// expose the next funding time. The approximation is intentional; see the
// kucoin reader.
const FundingInterval = 8 * time.Hour

// FundingRecord is one exchange's funding state for one instrument at one
// instant. Symbol is the normalized base asset (BTC, ETH, ...), never an
// exchange-specific contract name.
type FundingRecord struct {
	Exchange      string    `json:"exchange"`
	Symbol        string    `json:"symbol"`
	FundingRate   float64   `json:"funding_rate"`
	NextFundingAt time.Time `json:"next_funding_at"`
	// MarkPrice is 0 when the source does not expose one.
	MarkPrice  float64   `json:"mark_price"`
	ObservedAt time.Time `json:"observed_at"`
}

// AggregateSnapshot is one complete merged view of all sources. It is built
// once per aggregation run and never mutated afterwards.
type AggregateSnapshot struct {
	Records []FundingRecord `json:"records"`
	// PerSourceCounts holds the number of records each exchange contributed,
	// 0 when the source failed entirely.
	PerSourceCounts map[string]int `json:"per_source_counts"`
	ProducedAt      time.Time      `json:"produced_at"`
}

// CacheEntry wraps the latest snapshot with its capture time.
type CacheEntry struct {
	Snapshot *AggregateSnapshot
	StoredAt time.Time
}

// FundingTick is a single live funding update from a streaming source.
type FundingTick struct {
	Exchange      string    `json:"exchange"`
	Symbol        string    `json:"symbol"`
	FundingRate   float64   `json:"funding_rate"`
	MarkPrice     float64   `json:"mark_price"`
	NextFundingAt time.Time `json:"next_funding_at"`
	ReceivedAt    time.Time `json:"received_at"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BYBIT /////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// BybitTickersResult mirrors the result object of Bybit's v5 market tickers
// endpoint for the linear category.
type BybitTickersResult struct {
	Category string        `json:"category"`
	List     []BybitTicker `json:"list"`
}

// BybitTicker is a single instrument entry in the tickers list. Bybit encodes
// all numbers as strings.
type BybitTicker struct {
	Symbol          string `json:"symbol"`
	LastPrice       string `json:"lastPrice"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// OKX ///////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// OkxFundingResp mirrors OKX's public funding-rate response envelope.
type OkxFundingResp struct {
	Code string           `json:"code"`
	Msg  string           `json:"msg"`
	Data []OkxFundingRate `json:"data"`
}

// OkxFundingRate is one funding-rate entry for a swap instrument.
// FundingTime is the upcoming settlement time in epoch milliseconds.
type OkxFundingRate struct {
	InstID          string `json:"instId"`
	InstType        string `json:"instType"`
	FundingRate     string `json:"fundingRate"`
	FundingTime     string `json:"fundingTime"`
	NextFundingRate string `json:"nextFundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// KUCOIN ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// KucoinContractsResp mirrors KuCoin futures' active contracts response.
type KucoinContractsResp struct {
	Code string           `json:"code"`
	Data []KucoinContract `json:"data"`
}

// KucoinContract is the subset of the active contract payload the readers
// need. MarkPrice comes from discovery because the funding endpoint does not
// carry one.
type KucoinContract struct {
	Symbol        string  `json:"symbol"`
	BaseCurrency  string  `json:"baseCurrency"`
	QuoteCurrency string  `json:"quoteCurrency"`
	Status        string  `json:"status"`
	MarkPrice     float64 `json:"markPrice"`
}

// KucoinFundingResp mirrors the current funding rate response for one
// contract.
type KucoinFundingResp struct {
	Code string            `json:"code"`
	Data KucoinFundingRate `json:"data"`
}

// KucoinFundingRate carries the current funding value for a contract.
type KucoinFundingRate struct {
	Symbol         string  `json:"symbol"`
	Granularity    int64   `json:"granularity"`
	TimePoint      int64   `json:"timePoint"`
	Value          float64 `json:"value"`
	PredictedValue float64 `json:"predictedValue"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BINANCE ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Binance premium index entries are decoded directly into
// futures.PremiumIndex from github.com/adshao/go-binance/v2/futures.

// BinanceMarkPriceEvent mirrors one entry of the !markPrice@arr websocket
// stream used by the live feed.
type BinanceMarkPriceEvent struct {
	EventType       string `json:"e"`
	EventTime       int64  `json:"E"`
	Symbol          string `json:"s"`
	MarkPrice       string `json:"p"`
	IndexPrice      string `json:"i"`
	FundingRate     string `json:"r"`
	NextFundingTime int64  `json:"T"`
}
