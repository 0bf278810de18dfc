package fundamentals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrUnavailable is returned when no usable ratio exists for a ticker.
var ErrUnavailable = errors.New("ratio unavailable")

// Ratio is a valuation figure and where it came from.
type Ratio struct {
	Value  float64
	Source string
}

// RatioProvider supplies the price/earnings ratio for a ticker.
// Implementations return ErrUnavailable when neither figure is usable.
type RatioProvider interface {
	PERatio(ctx context.Context, ticker string, allowForward bool) (Ratio, error)
	Name() string
}

// usable rejects missing, non-finite and non-positive values.
func usable(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// YahooRatioProvider reads trailing and forward P/E from Yahoo's quoteSummary endpoint.
type YahooRatioProvider struct {
	Client  *http.Client
	BaseURL string
}

// NewYahooRatioProvider creates a provider, optionally routed through an HTTP proxy.
func NewYahooRatioProvider(proxyURL string) *YahooRatioProvider {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooRatioProvider{
		Client:  &http.Client{Timeout: 20 * time.Second, Transport: transport},
		BaseURL: "https://query2.finance.yahoo.com",
	}
}

func (p *YahooRatioProvider) Name() string { return "yahoo" }

func (p *YahooRatioProvider) PERatio(ctx context.Context, ticker string, allowForward bool) (Ratio, error) {
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=summaryDetail,defaultKeyStatistics",
		strings.TrimRight(p.BaseURL, "/"), url.PathEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Ratio{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.Client.Do(req)
	if err != nil {
		return Ratio{}, fmt.Errorf("yahoo quoteSummary: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Ratio{}, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Ratio{}, fmt.Errorf("yahoo quoteSummary: status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return Ratio{}, fmt.Errorf("yahoo quoteSummary: invalid json")
	}

	res := gjson.GetBytes(body, "quoteSummary.result.0")
	if !res.Exists() {
		if desc := gjson.GetBytes(body, "quoteSummary.error.description"); desc.Exists() {
			return Ratio{}, fmt.Errorf("yahoo api error: %s: %w", desc.String(), ErrUnavailable)
		}
		return Ratio{}, ErrUnavailable
	}

	paths := []struct{ path, source string }{
		{"summaryDetail.trailingPE.raw", "summaryDetail.trailingPE"},
	}
	if allowForward {
		paths = append(paths,
			struct{ path, source string }{"summaryDetail.forwardPE.raw", "summaryDetail.forwardPE"},
			struct{ path, source string }{"defaultKeyStatistics.forwardPE.raw", "defaultKeyStatistics.forwardPE"},
		)
	}
	for _, c := range paths {
		v := res.Get(c.path)
		if v.Type == gjson.Number && usable(v.Float()) {
			return Ratio{Value: v.Float(), Source: c.source}, nil
		}
	}
	return Ratio{}, ErrUnavailable
}

// StaticRatioProvider serves fixed ratios, keyed by upper-case ticker. It backs
// offline runs and tests.
type StaticRatioProvider struct {
	Trailing map[string]float64
	Forward  map[string]float64
}

func (p *StaticRatioProvider) Name() string { return "static" }

func (p *StaticRatioProvider) PERatio(_ context.Context, ticker string, allowForward bool) (Ratio, error) {
	key := strings.ToUpper(ticker)
	if v, ok := p.Trailing[key]; ok && usable(v) {
		return Ratio{Value: v, Source: "static.trailing"}, nil
	}
	if allowForward {
		if v, ok := p.Forward[key]; ok && usable(v) {
			return Ratio{Value: v, Source: "static.forward"}, nil
		}
	}
	return Ratio{}, ErrUnavailable
}

// ChainProvider asks each provider in turn and returns the first usable ratio.
type ChainProvider []RatioProvider

func (c ChainProvider) Name() string {
	names := make([]string, len(c))
	for i, p := range c {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

func (c ChainProvider) PERatio(ctx context.Context, ticker string, allowForward bool) (Ratio, error) {
	var errs []error
	for _, p := range c {
		r, err := p.PERatio(ctx, ticker, allowForward)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	// a provider that failed outright is reported, not folded into a plain miss
	if len(errs) > 0 {
		return Ratio{}, errors.Join(errs...)
	}
	return Ratio{}, ErrUnavailable
}
