package collector

import (
	"context"
	"strings"

	"PillarVote/internal/config"
	"PillarVote/internal/model"
)

// Fetcher defines the interface for fetching daily price history.
// An empty result is not an error here; the collector treats it as fatal for the run.
type Fetcher interface {
	FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.OHLCV, error)
	Name() string
}

// NewFetcher picks the price source from config: "mock" serves synthetic bars, any other
// base_url is a vstrader endpoint, and an empty base_url uses Yahoo Finance.
func NewFetcher(cfg *config.Config) Fetcher {
	base := strings.TrimSpace(cfg.Fetch.BaseURL)
	switch {
	case strings.EqualFold(base, "mock"):
		return &MockFetcher{Price: 100}
	case base != "":
		return NewVsTraderFetcher(base, cfg.Fetch.APIKey, cfg.Fetch.Proxy)
	default:
		return NewYahooFetcher(cfg.Fetch.Proxy)
	}
}
