// Package domain defines the core types shared across coinboard: coins from
// the market list, price charts, news items and the API health probe.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultCoin is charted when nothing else has been chosen.
const DefaultCoin = "bitcoin"

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Coin is a single row of the market snapshot.
type Coin struct {
	ID           string   `json:"id"`
	Symbol       string   `json:"symbol"`
	Name         string   `json:"name"`
	Image        string   `json:"image"`
	CurrentPrice float64  `json:"current_price"`
	MarketCap    float64  `json:"market_cap"`
	Change24h    *float64 `json:"price_change_percentage_24h"` // nil when the upstream has no value
}

// CoinIDs returns the identifiers of coins in order.
func CoinIDs(coins []Coin) []string {
	ids := make([]string, len(coins))
	for i := range coins {
		ids[i] = coins[i].ID
	}
	return ids
}

// ---------------------------------------------------------------------------
// Charts
// ---------------------------------------------------------------------------

// ChartRange is the number of days of history shown in the chart.
type ChartRange int

// Supported chart ranges.
const (
	Range1D  ChartRange = 1
	Range7D  ChartRange = 7
	Range30D ChartRange = 30
)

// DefaultRange is the chart range used before the user picks one.
const DefaultRange = Range7D

// Valid reports whether r is one of the supported ranges.
func (r ChartRange) Valid() bool {
	return r == Range1D || r == Range7D || r == Range30D
}

// String returns the compact label used in the UI, e.g. "7D".
func (r ChartRange) String() string {
	return fmt.Sprintf("%dD", int(r))
}

// ParseChartRange converts a day count into a ChartRange.
func ParseChartRange(days int) (ChartRange, error) {
	r := ChartRange(days)
	if !r.Valid() {
		return 0, fmt.Errorf("unsupported chart range %d (want 1, 7 or 30)", days)
	}
	return r, nil
}

// ChartPoint is a single price sample.
type ChartPoint struct {
	Time  time.Time
	Price float64
}

// UnmarshalJSON decodes the wire form [timestampMs, price].
func (p *ChartPoint) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("chart point: want [ts, price], got %d values", len(pair))
	}
	p.Time = time.UnixMilli(int64(pair[0])).UTC()
	p.Price = pair[1]
	return nil
}

// MarshalJSON encodes the point as [timestampMs, price].
func (p ChartPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{float64(p.Time.UnixMilli()), p.Price})
}

// Chart holds the price history of one coin.
type Chart struct {
	Prices []ChartPoint `json:"prices"`
}

// ---------------------------------------------------------------------------
// News
// ---------------------------------------------------------------------------

// NewsItem is a single headline from the aggregated feeds.
type NewsItem struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Published int64  `json:"published"` // unix seconds
	Source    string `json:"source"`
	Summary   string `json:"summary,omitempty"`
}

// PublishedAt returns Published as a time.Time.
func (n NewsItem) PublishedAt() time.Time {
	return time.Unix(n.Published, 0)
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// Ping is the response of the API health probe.
type Ping struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Message string `json:"message"`
}
