package kucoin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"fundingflow/config"
	"fundingflow/internal/fetch"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
	"fundingflow/models"
)

// Kucoin_Funding_Reader fetches funding state from KuCoin futures. KuCoin
// needs two steps: an active-contracts discovery call, then one current
// funding-rate call per retained contract.
type Kucoin_Funding_Reader struct {
	config    *config.Config
	client    *fetch.Client
	log       *logger.Log
	supported symbols.Set
}

// Kucoin_Funding_NewReader creates a new funding reader for KuCoin futures.
func Kucoin_Funding_NewReader(cfg *config.Config, client *fetch.Client) *Kucoin_Funding_Reader {
	log := logger.GetLogger()

	log.WithComponent("kucoin_reader").WithFields(logger.Fields{
		"contracts_url": cfg.Source.Kucoin.ContractsURL,
		"funding_url":   cfg.Source.Kucoin.FundingRateURL,
	}).Info("kucoin funding reader initialized")

	return &Kucoin_Funding_Reader{
		config:    cfg,
		client:    client,
		log:       log,
		supported: symbols.NewSet(cfg.Assets.Supported),
	}
}

// Name returns the exchange identifier this reader contributes records under.
func (r *Kucoin_Funding_Reader) Name() string { return models.ExchangeKucoin }

// Fetch discovers active contracts and fans out one funding-rate call per
// retained contract. Every discovered contract appears exactly once in the
// output: a failed follow-up call degrades that contract to a zero rate
// instead of dropping it. KuCoin does not expose the next settlement time on
// this endpoint, so it is approximated as one funding interval from now.
func (r *Kucoin_Funding_Reader) Fetch(ctx context.Context) ([]models.FundingRecord, error) {
	log := r.log.WithComponent("kucoin_reader").WithFields(logger.Fields{"operation": "fetch_funding"})

	start := time.Now()
	var contractsResp models.KucoinContractsResp
	discoverySize, err := r.client.GetJSON(ctx, r.config.Source.Kucoin.ContractsURL, &contractsResp)
	if err != nil {
		log.WithError(err).Warn("failed to fetch active contracts")
		return nil, fmt.Errorf("kucoin contracts: %w", err)
	}
	if contractsResp.Code != "200000" {
		log.WithFields(logger.Fields{"code": contractsResp.Code}).Warn("contracts request rejected")
		return nil, fmt.Errorf("kucoin contracts: code %s", contractsResp.Code)
	}

	contracts := r.filterContracts(contractsResp.Data)
	log.WithFields(logger.Fields{"discovered": len(contractsResp.Data), "retained": len(contracts)}).Info("discovered contracts")

	records := make([]models.FundingRecord, len(contracts))
	totalSize := int64(discoverySize)

	var wg sync.WaitGroup
	var sizeMu sync.Mutex
	for i, contract := range contracts {
		wg.Add(1)
		go func(i int, contract models.KucoinContract) {
			defer wg.Done()
			rec, size := r.fetchContractFunding(ctx, contract)
			records[i] = rec
			sizeMu.Lock()
			totalSize += int64(size)
			sizeMu.Unlock()
		}(i, contract)
	}
	wg.Wait()
	logger.LogPerformanceEntry(log, "kucoin_reader", "api_fanout", time.Since(start), logger.Fields{
		"instruments": len(contracts),
	})

	logger.RecordSourceRead(models.ExchangeKucoin, len(records), int(totalSize))
	logger.LogDataFlowEntry(log, "kucoin_api", "aggregator", len(records), "funding_records")
	return records, nil
}

// filterContracts keeps open contracts quoted in the designated stablecoin
// whose base asset is allow-listed.
func (r *Kucoin_Funding_Reader) filterContracts(contracts []models.KucoinContract) []models.KucoinContract {
	kept := make([]models.KucoinContract, 0, len(contracts))
	for _, c := range contracts {
		if !strings.EqualFold(c.Status, "Open") {
			continue
		}
		if !strings.EqualFold(c.QuoteCurrency, r.config.Assets.Quote) {
			continue
		}
		base := symbols.Normalize(c.BaseCurrency)
		if !r.supported.Contains(base) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// fetchContractFunding retrieves the current funding rate for one contract,
// degrading to a zero rate when the follow-up call fails.
func (r *Kucoin_Funding_Reader) fetchContractFunding(ctx context.Context, contract models.KucoinContract) (models.FundingRecord, int) {
	url := fmt.Sprintf("%s/%s/current", r.config.Source.Kucoin.FundingRateURL, contract.Symbol)
	log := r.log.WithComponent("kucoin_reader").WithFields(logger.Fields{"symbol": contract.Symbol})

	now := time.Now().UTC()
	record := models.FundingRecord{
		Exchange:      models.ExchangeKucoin,
		Symbol:        symbols.Normalize(contract.BaseCurrency),
		FundingRate:   0,
		NextFundingAt: now.Add(models.FundingInterval),
		MarkPrice:     contract.MarkPrice,
		ObservedAt:    now,
	}

	var resp models.KucoinFundingResp
	size, err := r.client.GetJSON(ctx, url, &resp)
	if err != nil {
		log.WithError(err).Warn("funding rate call failed, degrading instrument")
		return record, size
	}
	if resp.Code != "200000" {
		log.WithFields(logger.Fields{"code": resp.Code}).Warn("funding rate request rejected, degrading instrument")
		return record, size
	}

	record.FundingRate = resp.Data.Value
	return record, size
}
