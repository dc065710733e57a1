package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"

	"fundingflow/config"
	"fundingflow/internal/fetch"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
	"fundingflow/models"
)

// Binance_Funding_Reader fetches the funding state of USDT perpetuals from
// Binance's premium index endpoint. One call covers every listed contract.
type Binance_Funding_Reader struct {
	config    *config.Config
	client    *fetch.Client
	log       *logger.Log
	supported symbols.Set
}

// Binance_Funding_NewReader creates a new Binance_Funding_Reader issuing its
// calls through the shared fetch client.
func Binance_Funding_NewReader(cfg *config.Config, client *fetch.Client) *Binance_Funding_Reader {
	log := logger.GetLogger()

	log.WithComponent("binance_reader").WithFields(logger.Fields{
		"url": cfg.Source.Binance.PremiumIndexURL,
	}).Info("binance funding reader initialized")

	return &Binance_Funding_Reader{
		config:    cfg,
		client:    client,
		log:       log,
		supported: symbols.NewSet(cfg.Assets.Supported),
	}
}

// Name returns the exchange identifier this reader contributes records under.
func (r *Binance_Funding_Reader) Name() string { return models.ExchangeBinance }

// Fetch retrieves the premium index for all contracts and keeps the
// allow-listed USDT perpetuals.
func (r *Binance_Funding_Reader) Fetch(ctx context.Context) ([]models.FundingRecord, error) {
	log := r.log.WithComponent("binance_reader").WithFields(logger.Fields{"operation": "fetch_funding"})

	start := time.Now()
	var indexes []*futures.PremiumIndex
	size, err := r.client.GetJSON(ctx, r.config.Source.Binance.PremiumIndexURL, &indexes)
	if err != nil {
		log.WithError(err).Warn("failed to fetch premium index")
		return nil, fmt.Errorf("binance premium index: %w", err)
	}
	logger.LogPerformanceEntry(log, "binance_reader", "api_request", time.Since(start), nil)

	now := time.Now().UTC()
	records := make([]models.FundingRecord, 0, len(indexes))
	for _, idx := range indexes {
		if idx == nil {
			continue
		}
		base, ok := symbols.BaseAsset(models.ExchangeBinance, idx.Symbol, r.config.Assets.Quote)
		if !ok || !r.supported.Contains(base) {
			continue
		}

		rate, err := strconv.ParseFloat(idx.LastFundingRate, 64)
		if err != nil {
			log.WithFields(logger.Fields{"symbol": idx.Symbol}).Warn("unparseable funding rate, skipping instrument")
			continue
		}
		mark, _ := strconv.ParseFloat(idx.MarkPrice, 64)

		next := time.UnixMilli(idx.NextFundingTime).UTC()
		if idx.NextFundingTime <= 0 {
			next = now.Add(models.FundingInterval)
		}

		records = append(records, models.FundingRecord{
			Exchange:      models.ExchangeBinance,
			Symbol:        base,
			FundingRate:   rate,
			NextFundingAt: next,
			MarkPrice:     mark,
			ObservedAt:    now,
		})
	}

	logger.RecordSourceRead(models.ExchangeBinance, len(records), size)
	logger.LogDataFlowEntry(log, "binance_api", "aggregator", len(records), "funding_records")
	return records, nil
}
