package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type sourceStat struct {
	records int64
	bytes   int64
}

var (
	errorsReader    int64
	errorsServing   int64
	warnsReader     int64
	warnsServing    int64
	aggregationRuns int64
	cacheHits       int64
	cacheMisses     int64
	liveTicks       int64
	sources         sync.Map // map[string]*sourceStat
)

func recordWarn(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&warnsReader, 1)
	} else {
		atomic.AddInt64(&warnsServing, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&errorsReader, 1)
	} else {
		atomic.AddInt64(&errorsServing, 1)
	}
}

// IncrementAggregationRun counts one completed aggregation run.
func IncrementAggregationRun() {
	atomic.AddInt64(&aggregationRuns, 1)
}

// IncrementCacheHit counts a request served from the snapshot cache.
func IncrementCacheHit() {
	atomic.AddInt64(&cacheHits, 1)
}

// IncrementCacheMiss counts a request that triggered or joined a refresh.
func IncrementCacheMiss() {
	atomic.AddInt64(&cacheMisses, 1)
}

// IncrementLiveTick counts one message consumed from a live funding stream.
func IncrementLiveTick() {
	atomic.AddInt64(&liveTicks, 1)
}

// RecordSourceRead accumulates per-exchange record and payload counters.
func RecordSourceRead(exchange string, records int, size int) {
	v, _ := sources.LoadOrStore(exchange, &sourceStat{})
	ss := v.(*sourceStat)
	atomic.AddInt64(&ss.records, int64(records))
	atomic.AddInt64(&ss.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of runtime and per-source statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	sourceData := map[string]map[string]int64{}
	sources.Range(func(k, v any) bool {
		name := k.(string)
		ss := v.(*sourceStat)
		sourceData[name] = map[string]int64{
			"records": atomic.LoadInt64(&ss.records),
			"bytes":   atomic.LoadInt64(&ss.bytes),
		}
		return true
	})

	fields := Fields{
		"errors_reader":    atomic.LoadInt64(&errorsReader),
		"errors_serving":   atomic.LoadInt64(&errorsServing),
		"warns_reader":     atomic.LoadInt64(&warnsReader),
		"warns_serving":    atomic.LoadInt64(&warnsServing),
		"aggregation_runs": atomic.LoadInt64(&aggregationRuns),
		"cache_hits":       atomic.LoadInt64(&cacheHits),
		"cache_misses":     atomic.LoadInt64(&cacheMisses),
		"live_ticks":       atomic.LoadInt64(&liveTicks),
		"goroutines":       runtime.NumGoroutine(),
		"heap_alloc_mb":    int64(mem.HeapAlloc) / 1024 / 1024,
		"sources":          sourceData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("AggregationRuns"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&aggregationRuns)))},
		{MetricName: aws.String("CacheHits"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&cacheHits)))},
		{MetricName: aws.String("CacheMisses"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&cacheMisses)))},
		{MetricName: aws.String("SourceErrors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsReader)))},
		{MetricName: aws.String("LiveTicks"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&liveTicks)))},
		{MetricName: aws.String("HeapAllocMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(mem.HeapAlloc) / 1024 / 1024)},
	}

	for name, stats := range sourceData {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("RecordsFetched"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Exchange"), Value: aws.String(name)}},
			Value:      aws.Float64(float64(stats["records"])),
		})
	}

	publishMetrics(ctx, data)
}
