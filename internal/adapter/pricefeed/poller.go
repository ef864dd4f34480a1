// Package pricefeed adapts the vendor's streaming price feed and its
// request/response polling endpoint to the oracle's ports.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"exchange-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// Message is the wire shape shared by the stream and the polling endpoint.
type Message struct {
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// Sample converts a wire message to a domain sample with a source tag.
func (m Message) Sample(source domain.PriceSource) (domain.PriceSample, error) {
	price, err := decimal.NewFromString(m.Price)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("parse price %q for %s: %w", m.Price, m.Asset, err)
	}
	return domain.PriceSample{
		Asset:     m.Asset,
		Price:     price,
		Timestamp: time.UnixMilli(m.Timestamp),
		Source:    source,
	}, nil
}

// Poller implements ports.PriceFetcher against the vendor's HTTP endpoint.
type Poller struct {
	baseURL string
	client  *http.Client
}

// NewPoller creates a Poller. timeout bounds each request.
func NewPoller(baseURL string, timeout time.Duration) *Poller {
	return &Poller{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch requests current prices for the given assets.
func (p *Poller) Fetch(ctx context.Context, assets []string) ([]domain.PriceSample, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse poll url: %w", err)
	}
	q := u.Query()
	q.Set("assets", strings.Join(assets, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll prices: unexpected status %d", resp.StatusCode)
	}

	var messages []Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}

	samples := make([]domain.PriceSample, 0, len(messages))
	for _, m := range messages {
		sample, err := m.Sample(domain.PriceSourcePoll)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, nil
}
