package okx

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"fundingflow/config"
	"fundingflow/internal/fetch"
	"fundingflow/logger"
	"fundingflow/models"
)

// Okx_Funding_Reader fetches funding rates from OKX. The public funding-rate
// endpoint serves one instrument per call, so the reader fans out one request
// per allow-listed asset.
type Okx_Funding_Reader struct {
	config *config.Config
	client *fetch.Client
	log    *logger.Log
	assets []string
}

// Okx_Funding_NewReader creates a new funding reader for OKX.
func Okx_Funding_NewReader(cfg *config.Config, client *fetch.Client) *Okx_Funding_Reader {
	log := logger.GetLogger()

	// Stable per-source record order regardless of config map iteration.
	assets := make([]string, len(cfg.Assets.Supported))
	copy(assets, cfg.Assets.Supported)
	sort.Strings(assets)

	log.WithComponent("okx_reader").WithFields(logger.Fields{
		"url":    cfg.Source.Okx.FundingRateURL,
		"assets": assets,
	}).Info("okx funding reader initialized")

	return &Okx_Funding_Reader{
		config: cfg,
		client: client,
		log:    log,
		assets: assets,
	}
}

// Name returns the exchange identifier this reader contributes records under.
func (r *Okx_Funding_Reader) Name() string { return models.ExchangeOkx }

// Fetch issues one funding-rate call per allow-listed asset concurrently.
// A transport failure for a single instrument degrades to a zero-rate record
// with an approximated settlement time; instruments OKX does not list are
// dropped. The endpoint carries no mark price, so MarkPrice stays 0.
func (r *Okx_Funding_Reader) Fetch(ctx context.Context) ([]models.FundingRecord, error) {
	log := r.log.WithComponent("okx_reader").WithFields(logger.Fields{"operation": "fetch_funding"})

	start := time.Now()
	results := make([]*models.FundingRecord, len(r.assets))
	totalSize := int64(0)

	var wg sync.WaitGroup
	var sizeMu sync.Mutex
	for i, asset := range r.assets {
		wg.Add(1)
		go func(i int, asset string) {
			defer wg.Done()
			rec, size := r.fetchInstrument(ctx, asset)
			results[i] = rec
			sizeMu.Lock()
			totalSize += int64(size)
			sizeMu.Unlock()
		}(i, asset)
	}
	wg.Wait()
	logger.LogPerformanceEntry(log, "okx_reader", "api_fanout", time.Since(start), logger.Fields{
		"instruments": len(r.assets),
	})

	records := make([]models.FundingRecord, 0, len(results))
	for _, rec := range results {
		if rec != nil {
			records = append(records, *rec)
		}
	}

	logger.RecordSourceRead(models.ExchangeOkx, len(records), int(totalSize))
	logger.LogDataFlowEntry(log, "okx_api", "aggregator", len(records), "funding_records")
	return records, nil
}

// fetchInstrument retrieves the current funding rate for one swap instrument.
// A nil record means the instrument is not listed and must be dropped.
func (r *Okx_Funding_Reader) fetchInstrument(ctx context.Context, asset string) (*models.FundingRecord, int) {
	instID := fmt.Sprintf("%s-%s-SWAP", asset, r.config.Assets.Quote)
	url := fmt.Sprintf("%s?instId=%s", r.config.Source.Okx.FundingRateURL, instID)

	log := r.log.WithComponent("okx_reader").WithFields(logger.Fields{"inst_id": instID})
	now := time.Now().UTC()

	var resp models.OkxFundingResp
	size, err := r.client.GetJSON(ctx, url, &resp)
	if err != nil {
		// The instrument was requested but the source never answered
		// usefully; keep it with a zero rate instead of losing it.
		log.WithError(err).Warn("funding rate call failed, degrading instrument")
		return &models.FundingRecord{
			Exchange:      models.ExchangeOkx,
			Symbol:        asset,
			FundingRate:   0,
			NextFundingAt: now.Add(models.FundingInterval),
			MarkPrice:     0,
			ObservedAt:    now,
		}, size
	}

	if resp.Code != "0" || len(resp.Data) == 0 {
		// OKX answered but does not list this instrument.
		log.WithFields(logger.Fields{"code": resp.Code, "msg": resp.Msg}).Debug("instrument not available, dropping")
		return nil, size
	}

	entry := resp.Data[0]
	rate, err := strconv.ParseFloat(entry.FundingRate, 64)
	if err != nil {
		log.Warn("unparseable funding rate, degrading instrument")
		rate = 0
	}

	next := now.Add(models.FundingInterval)
	if ms, err := strconv.ParseInt(entry.FundingTime, 10, 64); err == nil && ms > 0 {
		next = time.UnixMilli(ms).UTC()
	}

	return &models.FundingRecord{
		Exchange:      models.ExchangeOkx,
		Symbol:        asset,
		FundingRate:   rate,
		NextFundingAt: next,
		MarkPrice:     0,
		ObservedAt:    now,
	}, size
}
