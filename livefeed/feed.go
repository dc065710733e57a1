package livefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fundingflow/config"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
	"fundingflow/models"
)

// Feed keeps the latest funding tick per allow-listed asset from Binance's
// mark price stream. It complements the REST snapshot: the cache stays the
// source of truth for the merged view, the feed only serves live Binance
// ticks.
type Feed struct {
	config    *config.Config
	log       *logger.Log
	supported symbols.Set

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool

	ticksMu sync.RWMutex
	ticks   map[string]models.FundingTick
}

// NewFeed creates a live feed for the configured stream URL.
func NewFeed(cfg *config.Config) *Feed {
	return &Feed{
		config:    cfg,
		log:       logger.GetLogger(),
		supported: symbols.NewSet(cfg.Assets.Supported),
		wg:        &sync.WaitGroup{},
		ticks:     make(map[string]models.FundingTick),
	}
}

// Start begins consuming the stream until the context is cancelled.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("live feed already running")
	}
	streamCfg := f.config.Source.Binance.Stream
	if !streamCfg.Enabled {
		f.mu.Unlock()
		return fmt.Errorf("binance mark price stream is disabled")
	}
	f.running = true
	f.ctx = ctx
	f.mu.Unlock()

	log := f.log.WithComponent("livefeed").WithFields(logger.Fields{"url": streamCfg.URL})
	log.Info("starting live funding feed")

	f.wg.Add(1)
	go f.stream(streamCfg.URL)

	return nil
}

// Stop waits for the stream worker to exit.
func (f *Feed) Stop() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()

	f.log.WithComponent("livefeed").Info("stopping live funding feed")
	f.wg.Wait()
	f.log.WithComponent("livefeed").Info("live funding feed stopped")
}

// Ticks returns the latest tick per asset, sorted by symbol so output is
// reproducible.
func (f *Feed) Ticks() []models.FundingTick {
	f.ticksMu.RLock()
	out := make([]models.FundingTick, 0, len(f.ticks))
	for _, tick := range f.ticks {
		out = append(out, tick)
	}
	f.ticksMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (f *Feed) stream(wsURL string) {
	defer f.wg.Done()
	log := f.log.WithComponent("livefeed").WithFields(logger.Fields{"worker": "mark_price_stream"})

	for {
		if f.ctx.Err() != nil {
			return
		}

		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.Dial(wsURL, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect websocket, retrying")
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-f.ctx.Done():
				return
			}
		}

		log.Info("websocket connected")

		for {
			if f.ctx.Err() != nil {
				conn.Close()
				return
			}
			_, msg, err := conn.ReadMessage()
			if err != nil {
				conn.Close()
				log.WithError(err).Warn("websocket read error, reconnecting")
				break
			}
			if n := f.apply(msg); n > 0 {
				logger.IncrementLiveTick()
				log.WithFields(logger.Fields{"ticks": n}).Debug("applied mark price update")
			}
		}

		time.Sleep(time.Second)
	}
}

// apply decodes one stream message and folds allow-listed updates into the
// tick table. The combined stream pushes arrays; a single-symbol
// subscription pushes one object. Returns the number of ticks applied.
func (f *Feed) apply(msg []byte) int {
	var events []models.BinanceMarkPriceEvent
	if err := json.Unmarshal(msg, &events); err != nil {
		var single models.BinanceMarkPriceEvent
		if err := json.Unmarshal(msg, &single); err != nil {
			f.log.WithComponent("livefeed").WithError(err).Warn("unparseable stream message")
			return 0
		}
		events = []models.BinanceMarkPriceEvent{single}
	}

	now := time.Now().UTC()
	applied := 0

	f.ticksMu.Lock()
	for _, ev := range events {
		if ev.EventType != "markPriceUpdate" {
			continue
		}
		base, ok := symbols.BaseAsset(models.ExchangeBinance, ev.Symbol, f.config.Assets.Quote)
		if !ok || !f.supported.Contains(base) {
			continue
		}
		rate, err := strconv.ParseFloat(ev.FundingRate, 64)
		if err != nil {
			continue
		}
		mark, _ := strconv.ParseFloat(ev.MarkPrice, 64)

		next := now.Add(models.FundingInterval)
		if ev.NextFundingTime > 0 {
			next = time.UnixMilli(ev.NextFundingTime).UTC()
		}

		f.ticks[base] = models.FundingTick{
			Exchange:      models.ExchangeBinance,
			Symbol:        base,
			FundingRate:   rate,
			MarkPrice:     mark,
			NextFundingAt: next,
			ReceivedAt:    now,
		}
		applied++
	}
	f.ticksMu.Unlock()

	return applied
}
