package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"fundingflow/config"
	"fundingflow/logger"
)

const userAgent = "fundingflow/1.0"

// maxBodyBytes caps response bodies so a misbehaving source cannot exhaust
// memory.
const maxBodyBytes = 8 << 20

// StatusError reports a completed HTTP exchange that carried a non-2xx
// status. It is distinct from transport errors so callers can tell "the
// source answered with an error" from "the source never answered".
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Client issues time-boxed outbound GETs on behalf of every reader so the
// timeout and rate-limit policy lives in one place.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewClient builds a Client from the fetcher configuration. The timeout set
// here bounds every call issued through GetJSON.
func NewClient(cfg *config.Config) *Client {
	pool := cfg.Fetcher.ConnectionPool
	transport := &http.Transport{
		MaxIdleConns:        pool.MaxIdleConns,
		MaxIdleConnsPerHost: pool.MaxIdleConns,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     pool.IdleConnTimeout.Std(),
		DisableCompression:  false,
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.Fetcher.Timeout.Std(),
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.Fetcher.RequestsPerSecond), cfg.Fetcher.BurstSize)

	log := logger.GetLogger()
	log.WithComponent("fetcher").WithFields(logger.Fields{
		"timeout":             cfg.Fetcher.Timeout.Std(),
		"requests_per_second": cfg.Fetcher.RequestsPerSecond,
		"max_conns_per_host":  pool.MaxConnsPerHost,
	}).Info("fetch client initialized")

	return &Client{
		http:    httpClient,
		limiter: limiter,
		log:     log,
	}
}

// GetJSON issues one GET against rawURL and decodes the JSON body into out.
// It returns the payload size in bytes. Transport failures and timeouts come
// back as wrapped errors; non-2xx responses come back as *StatusError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out interface{}) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to read response from %s: %w", rawURL, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return len(body), &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return len(body), fmt.Errorf("failed to decode response from %s: %w", rawURL, err)
	}

	return len(body), nil
}
