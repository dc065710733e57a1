package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fundingflow/config"
	"fundingflow/models"
)

type stubCache struct {
	snapshot *models.AggregateSnapshot
	cached   bool
	ttl      time.Duration
	left     time.Duration
}

func (s *stubCache) Get(ctx context.Context) (*models.AggregateSnapshot, bool, time.Duration) {
	return s.snapshot, s.cached, s.left
}

func (s *stubCache) Entry() *models.CacheEntry {
	if s.snapshot == nil {
		return nil
	}
	return &models.CacheEntry{Snapshot: s.snapshot, StoredAt: s.snapshot.ProducedAt}
}

func (s *stubCache) TTL() time.Duration { return s.ttl }

type stubLive struct {
	ticks []models.FundingTick
}

func (s *stubLive) Ticks() []models.FundingTick { return s.ticks }

func serverConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Fundingflow.Name = "fundingflow"
	cfg.Fundingflow.Version = "1.0.0"
	cfg.Fetcher.Timeout = config.Duration(10 * time.Second)
	cfg.Assets.Supported = []string{"BTC", "ETH"}
	cfg.Source.Binance.Enabled = true
	cfg.Source.Bybit.Enabled = true
	cfg.Source.Okx.Enabled = true
	cfg.Source.Kucoin.Enabled = true
	return cfg
}

func sampleSnapshot() *models.AggregateSnapshot {
	produced := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	return &models.AggregateSnapshot{
		Records: []models.FundingRecord{
			{
				Exchange:      models.ExchangeBinance,
				Symbol:        "BTC",
				FundingRate:   0.0001,
				NextFundingAt: produced.Add(4 * time.Hour),
				MarkPrice:     64000.5,
				ObservedAt:    produced,
			},
			{
				Exchange:      models.ExchangeOkx,
				Symbol:        "ETH",
				FundingRate:   -0.00005,
				NextFundingAt: produced.Add(8 * time.Hour),
				MarkPrice:     0,
				ObservedAt:    produced,
			},
		},
		PerSourceCounts: map[string]int{
			models.ExchangeBinance: 1,
			models.ExchangeBybit:   0,
			models.ExchangeOkx:     1,
			models.ExchangeKucoin:  0,
		},
		ProducedAt: produced,
	}
}

func TestFundingRatesResponseShape(t *testing.T) {
	cache := &stubCache{snapshot: sampleSnapshot(), cached: true, ttl: 30 * time.Second, left: 20 * time.Second}
	srv := NewServer(serverConfig(), cache, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/funding-rates", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Success    bool `json:"success"`
		Cached     bool `json:"cached"`
		TotalPairs int  `json:"totalPairs"`
		NextUpdate int  `json:"nextUpdate"`
		Exchanges  map[string]int
		Data       []struct {
			Exchange    string  `json:"exchange"`
			Symbol      string  `json:"symbol"`
			FundingRate float64 `json:"fundingRate"`
			NextFunding string  `json:"nextFunding"`
			MarkPrice   float64 `json:"markPrice"`
			Timestamp   string  `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || !resp.Cached {
		t.Fatalf("expected success+cached, got %+v", resp)
	}
	if resp.TotalPairs != 2 || len(resp.Data) != 2 {
		t.Fatalf("expected 2 pairs, got totalPairs=%d len=%d", resp.TotalPairs, len(resp.Data))
	}
	if resp.NextUpdate != 20 {
		t.Fatalf("expected nextUpdate 20, got %d", resp.NextUpdate)
	}
	if resp.Data[0].Exchange != models.ExchangeBinance || resp.Data[0].Symbol != "BTC" {
		t.Fatalf("unexpected first record: %+v", resp.Data[0])
	}
	if resp.Data[0].NextFunding != "2026-08-26T16:00:00Z" {
		t.Fatalf("unexpected nextFunding: %s", resp.Data[0].NextFunding)
	}
	if resp.Exchanges[models.ExchangeBybit] != 0 {
		t.Fatalf("expected bybit count 0, got %d", resp.Exchanges[models.ExchangeBybit])
	}
}

func TestFundingRatesAllSourcesDown(t *testing.T) {
	empty := &models.AggregateSnapshot{
		Records: nil,
		PerSourceCounts: map[string]int{
			models.ExchangeBinance: 0,
			models.ExchangeBybit:   0,
			models.ExchangeOkx:     0,
			models.ExchangeKucoin:  0,
		},
		ProducedAt: time.Now().UTC(),
	}
	cache := &stubCache{snapshot: empty, ttl: 30 * time.Second, left: 30 * time.Second}
	srv := NewServer(serverConfig(), cache, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/funding-rates", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when all sources fail, got %d", rec.Code)
	}
	var resp struct {
		Success    bool              `json:"success"`
		Data       []json.RawMessage `json:"data"`
		TotalPairs int               `json:"totalPairs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success=true with empty data")
	}
	if resp.Data == nil || len(resp.Data) != 0 {
		t.Fatalf("expected empty non-null data array, got %v", resp.Data)
	}
	if resp.TotalPairs != 0 {
		t.Fatalf("expected totalPairs 0, got %d", resp.TotalPairs)
	}
}

func TestHomeAndStatus(t *testing.T) {
	cache := &stubCache{snapshot: sampleSnapshot(), ttl: 30 * time.Second, left: 30 * time.Second}
	srv := NewServer(serverConfig(), cache, nil)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for home, got %d", rec.Code)
	}
	var home map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &home); err != nil {
		t.Fatalf("failed to decode home: %v", err)
	}
	if home["status"] != "online" || home["service"] != "fundingflow" {
		t.Fatalf("unexpected home payload: %v", home)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for status, got %d", rec.Code)
	}
	var status struct {
		Status      string         `json:"status"`
		PerExchange map[string]int `json:"per_exchange"`
		Config      struct {
			CacheTTLSeconds int `json:"cache_ttl_seconds"`
		} `json:"config"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Status != "online" {
		t.Fatalf("expected online status, got %q", status.Status)
	}
	if status.PerExchange[models.ExchangeBinance] != 1 {
		t.Fatalf("expected binance count 1, got %d", status.PerExchange[models.ExchangeBinance])
	}
	if status.Config.CacheTTLSeconds != 30 {
		t.Fatalf("expected cache ttl 30, got %d", status.Config.CacheTTLSeconds)
	}
}

func TestUnknownPathReturns404(t *testing.T) {
	cache := &stubCache{snapshot: sampleSnapshot(), ttl: 30 * time.Second}
	srv := NewServer(serverConfig(), cache, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Fatalf("expected error payload, got %+v", resp)
	}
}

func TestLiveEndpoint(t *testing.T) {
	cache := &stubCache{snapshot: sampleSnapshot(), ttl: 30 * time.Second}

	srv := NewServer(serverConfig(), cache, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/live", nil))
	var disabled struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &disabled); err != nil {
		t.Fatalf("failed to decode live body: %v", err)
	}
	if disabled.Enabled {
		t.Fatalf("expected enabled=false without live source")
	}

	live := &stubLive{ticks: []models.FundingTick{{
		Exchange:    models.ExchangeBinance,
		Symbol:      "BTC",
		FundingRate: 0.0001,
		MarkPrice:   64000,
	}}}
	srv = NewServer(serverConfig(), cache, live)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/live", nil))
	var enabled struct {
		Enabled bool `json:"enabled"`
		Count   int  `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &enabled); err != nil {
		t.Fatalf("failed to decode live body: %v", err)
	}
	if !enabled.Enabled || enabled.Count != 1 {
		t.Fatalf("expected one live tick, got %+v", enabled)
	}
}

func TestCORSHeadersAndPreflight(t *testing.T) {
	cache := &stubCache{snapshot: sampleSnapshot(), ttl: 30 * time.Second}
	srv := NewServer(serverConfig(), cache, nil)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected permissive CORS origin header")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/funding-rates", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	cache := &stubCache{snapshot: sampleSnapshot(), ttl: 30 * time.Second}
	srv := NewServer(serverConfig(), cache, nil)

	panicking := srv.withRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler defect")
	}))

	rec := httptest.NewRecorder()
	panicking.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/funding-rates", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
	var resp struct {
		Success   bool   `json:"success"`
		Error     string `json:"error"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if resp.Success || resp.Error == "" || resp.Timestamp == "" {
		t.Fatalf("unexpected recovery payload: %+v", resp)
	}
}
