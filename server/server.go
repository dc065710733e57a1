// Package server exposes the aggregated funding data over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
)

// Cache is the snapshot surface the handlers read from.
type Cache interface {
	Get(ctx context.Context) (*models.AggregateSnapshot, bool, time.Duration)
	Entry() *models.CacheEntry
	TTL() time.Duration
}

// LiveSource supplies the latest streaming ticks for /api/live.
type LiveSource interface {
	Ticks() []models.FundingTick
}

// Server wires the HTTP routes to the snapshot cache and the live feed.
type Server struct {
	config    *config.Config
	log       *logger.Entry
	cache     Cache
	live      LiveSource
	exchanges []string
	startedAt time.Time
}

// NewServer creates a server. live may be nil when streaming is disabled.
func NewServer(cfg *config.Config, cache Cache, live LiveSource) *Server {
	return &Server{
		config:    cfg,
		log:       logger.GetLogger().WithComponent("server"),
		cache:     cache,
		live:      live,
		exchanges: enabledExchanges(cfg),
		startedAt: time.Now().UTC(),
	}
}

func enabledExchanges(cfg *config.Config) []string {
	var out []string
	if cfg.Source.Binance.Enabled {
		out = append(out, models.ExchangeBinance)
	}
	if cfg.Source.Bybit.Enabled {
		out = append(out, models.ExchangeBybit)
	}
	if cfg.Source.Okx.Enabled {
		out = append(out, models.ExchangeOkx)
	}
	if cfg.Source.Kucoin.Enabled {
		out = append(out, models.ExchangeKucoin)
	}
	return out
}

// Handler builds the route table wrapped in CORS and recovery middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/api/funding-rates", s.handleFundingRates)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/live", s.handleLive)
	mux.HandleFunc("/health", s.handleHealth)

	return s.withRecovery(withCORS(mux))
}

type fundingRateJSON struct {
	Exchange    string  `json:"exchange"`
	Symbol      string  `json:"symbol"`
	FundingRate float64 `json:"fundingRate"`
	NextFunding string  `json:"nextFunding"`
	MarkPrice   float64 `json:"markPrice"`
	Timestamp   string  `json:"timestamp"`
}

type fundingRatesResponse struct {
	Success      bool              `json:"success"`
	Data         []fundingRateJSON `json:"data"`
	Cached       bool              `json:"cached"`
	Timestamp    string            `json:"timestamp"`
	TotalPairs   int               `json:"totalPairs"`
	Exchanges    map[string]int    `json:"exchanges"`
	ResponseTime string            `json:"responseTime"`
	NextUpdate   int               `json:"nextUpdate"`
}

func (s *Server) handleFundingRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	started := time.Now()
	snapshot, cached, remaining := s.cache.Get(r.Context())

	data := make([]fundingRateJSON, 0, len(snapshot.Records))
	for _, rec := range snapshot.Records {
		data = append(data, fundingRateJSON{
			Exchange:    rec.Exchange,
			Symbol:      rec.Symbol,
			FundingRate: rec.FundingRate,
			NextFunding: rec.NextFundingAt.UTC().Format(time.RFC3339),
			MarkPrice:   rec.MarkPrice,
			Timestamp:   rec.ObservedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, fundingRatesResponse{
		Success:      true,
		Data:         data,
		Cached:       cached,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		TotalPairs:   len(data),
		Exchanges:    snapshot.PerSourceCounts,
		ResponseTime: fmt.Sprintf("%dms", time.Since(started).Milliseconds()),
		NextUpdate:   int(remaining.Round(time.Second).Seconds()),
	})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var lastUpdate interface{}
	var cachedPairs int
	if entry := s.cache.Entry(); entry != nil {
		lastUpdate = entry.StoredAt.UTC().Format(time.RFC3339)
		cachedPairs = len(entry.Snapshot.Records)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":              "online",
		"service":             s.config.Fundingflow.Name,
		"version":             s.config.Fundingflow.Version,
		"last_update":         lastUpdate,
		"cached_pairs":        cachedPairs,
		"supported_exchanges": s.exchanges,
		"endpoints": map[string]string{
			"/api/funding-rates": "GET - All funding rates",
			"/api/live":          "GET - Latest streamed funding ticks",
			"/api/status":        "GET - Service status",
			"/health":            "GET - Health check",
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var lastUpdate interface{}
	counts := map[string]int{}
	cachedPairs := 0
	if entry := s.cache.Entry(); entry != nil {
		lastUpdate = entry.StoredAt.UTC().Format(time.RFC3339)
		counts = entry.Snapshot.PerSourceCounts
		cachedPairs = len(entry.Snapshot.Records)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":              "online",
		"last_update":         lastUpdate,
		"cached_pairs":        cachedPairs,
		"per_exchange":        counts,
		"supported_exchanges": s.exchanges,
		"uptime_seconds":      int(time.Since(s.startedAt).Seconds()),
		"config": map[string]interface{}{
			"cache_ttl_seconds":       int(s.cache.TTL().Seconds()),
			"request_timeout_seconds": int(s.config.Fetcher.Timeout.Std().Seconds()),
			"supported_assets":        s.config.Assets.Supported,
		},
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.live == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"enabled": false,
			"data":    []models.FundingTick{},
		})
		return
	}

	ticks := s.live.Ticks()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"enabled": true,
		"data":    ticks,
		"count":   len(ticks),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success":   false,
		"error":     message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
