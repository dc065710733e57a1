package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"fundingflow/config"
	"fundingflow/internal/fetch"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
	"fundingflow/models"
)

// Bybit_Funding_Reader fetches funding state for linear perpetuals from
// Bybit's v5 market tickers endpoint.
type Bybit_Funding_Reader struct {
	config    *config.Config
	client    *fetch.Client
	log       *logger.Log
	supported symbols.Set
}

// Bybit_Funding_NewReader creates a new funding reader for Bybit.
func Bybit_Funding_NewReader(cfg *config.Config, client *fetch.Client) *Bybit_Funding_Reader {
	log := logger.GetLogger()

	log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"url": cfg.Source.Bybit.TickersURL,
	}).Info("bybit funding reader initialized")

	return &Bybit_Funding_Reader{
		config:    cfg,
		client:    client,
		log:       log,
		supported: symbols.NewSet(cfg.Assets.Supported),
	}
}

// Name returns the exchange identifier this reader contributes records under.
func (r *Bybit_Funding_Reader) Name() string { return models.ExchangeBybit }

// Fetch retrieves tickers for the linear category and keeps the allow-listed
// USDT perpetuals.
func (r *Bybit_Funding_Reader) Fetch(ctx context.Context) ([]models.FundingRecord, error) {
	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{"operation": "fetch_funding"})

	url := r.config.Source.Bybit.TickersURL + "?category=linear"

	start := time.Now()
	var envelope bybit.ServerResponse
	size, err := r.client.GetJSON(ctx, url, &envelope)
	if err != nil {
		log.WithError(err).Warn("failed to fetch tickers")
		return nil, fmt.Errorf("bybit tickers: %w", err)
	}
	logger.LogPerformanceEntry(log, "bybit_reader", "api_request", time.Since(start), nil)

	if envelope.RetCode != 0 {
		log.WithFields(logger.Fields{"ret_code": envelope.RetCode, "ret_msg": envelope.RetMsg}).Warn("tickers request rejected")
		return nil, fmt.Errorf("bybit tickers: retCode %d: %s", envelope.RetCode, envelope.RetMsg)
	}

	payload, err := json.Marshal(envelope.Result)
	if err != nil {
		return nil, fmt.Errorf("bybit tickers: failed to marshal result: %w", err)
	}
	var result models.BybitTickersResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("bybit tickers: failed to decode result: %w", err)
	}

	now := time.Now().UTC()
	records := make([]models.FundingRecord, 0, len(result.List))
	for _, ticker := range result.List {
		base, ok := symbols.BaseAsset(models.ExchangeBybit, ticker.Symbol, r.config.Assets.Quote)
		if !ok || !r.supported.Contains(base) {
			continue
		}

		rate, err := strconv.ParseFloat(ticker.FundingRate, 64)
		if err != nil {
			log.WithFields(logger.Fields{"symbol": ticker.Symbol}).Warn("unparseable funding rate, skipping instrument")
			continue
		}
		mark, _ := strconv.ParseFloat(ticker.MarkPrice, 64)

		next := now.Add(models.FundingInterval)
		if ms, err := strconv.ParseInt(ticker.NextFundingTime, 10, 64); err == nil && ms > 0 {
			next = time.UnixMilli(ms).UTC()
		}

		records = append(records, models.FundingRecord{
			Exchange:      models.ExchangeBybit,
			Symbol:        base,
			FundingRate:   rate,
			NextFundingAt: next,
			MarkPrice:     mark,
			ObservedAt:    now,
		})
	}

	logger.RecordSourceRead(models.ExchangeBybit, len(records), size)
	logger.LogDataFlowEntry(log, "bybit_api", "aggregator", len(records), "funding_records")
	return records, nil
}
