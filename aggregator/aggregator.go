package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fundingflow/logger"
	"fundingflow/models"
)

// Source is one exchange's funding reader. Fetch either returns the source's
// records or an error; it must never panic across this boundary.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.FundingRecord, error)
}

// Orchestrator fans out to every source concurrently and merges whatever
// comes back. A failing source costs its own records and nothing else.
type Orchestrator struct {
	sources []Source
	log     *logger.Log
}

// NewOrchestrator creates an Orchestrator over the given sources. Source
// order determines record order in the merged snapshot.
func NewOrchestrator(sources []Source) *Orchestrator {
	log := logger.GetLogger()

	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name())
	}
	log.WithComponent("aggregator").WithFields(logger.Fields{"sources": names}).Info("orchestrator initialized")

	return &Orchestrator{sources: sources, log: log}
}

// Run invokes every source concurrently, waits for all of them to settle and
// merges the results into a fresh snapshot. It never returns an error: a
// total failure is an empty snapshot with zero counts, which keeps the
// caller's contract uniform.
func (o *Orchestrator) Run(ctx context.Context) *models.AggregateSnapshot {
	runID := uuid.NewString()
	log := o.log.WithComponent("aggregator").WithFields(logger.Fields{"run_id": runID})
	log.WithFields(logger.Fields{"sources": len(o.sources)}).Info("starting aggregation run")

	start := time.Now()
	results := make([][]models.FundingRecord, len(o.sources))

	var wg sync.WaitGroup
	for i, source := range o.sources {
		wg.Add(1)
		go func(i int, source Source) {
			defer wg.Done()
			records, err := source.Fetch(ctx)
			if err != nil {
				log.WithError(err).WithFields(logger.Fields{"source": source.Name()}).Warn("source failed, contributing zero records")
				return
			}
			results[i] = records
		}(i, source)
	}
	wg.Wait()

	snapshot := o.merge(results)
	duration := time.Since(start)

	logger.IncrementAggregationRun()
	logger.LogPerformanceEntry(log, "aggregator", "aggregation_run", duration, logger.Fields{
		"records": len(snapshot.Records),
	})
	log.LogMetric("aggregator", "AggregationRecords", len(snapshot.Records), "gauge", logger.Fields{"run_id": runID})
	log.WithFields(logger.Fields{
		"records":     len(snapshot.Records),
		"counts":      snapshot.PerSourceCounts,
		"duration_ms": duration.Milliseconds(),
	}).Info("aggregation run completed")

	return snapshot
}

// merge folds per-source results into one snapshot, preserving source order
// and each source's own record order. Within a run at most one record
// survives per (exchange, symbol) pair; duplicates past the first are
// dropped.
func (o *Orchestrator) merge(results [][]models.FundingRecord) *models.AggregateSnapshot {
	counts := make(map[string]int, len(o.sources))
	merged := make([]models.FundingRecord, 0, totalLen(results))
	seen := make(map[string]struct{}, totalLen(results))

	for i, source := range o.sources {
		counts[source.Name()] = 0
		for _, rec := range results[i] {
			key := rec.Exchange + "/" + rec.Symbol
			if _, dup := seen[key]; dup {
				o.log.WithComponent("aggregator").WithFields(logger.Fields{
					"exchange": rec.Exchange,
					"symbol":   rec.Symbol,
				}).Warn("duplicate record dropped")
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, rec)
			counts[rec.Exchange]++
		}
	}

	return &models.AggregateSnapshot{
		Records:         merged,
		PerSourceCounts: counts,
		ProducedAt:      time.Now().UTC(),
	}
}

func totalLen(results [][]models.FundingRecord) int {
	n := 0
	for _, r := range results {
		n += len(r)
	}
	return n
}
