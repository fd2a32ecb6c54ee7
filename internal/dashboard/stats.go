package dashboard

import (
	"math"

	"coinboard/internal/domain"
)

// ChartStats summarizes a price history.
type ChartStats struct {
	Points  int
	High    float64
	Low     float64
	Open    float64 // first price
	Close   float64 // last price
	Change  float64 // (Close-Open)/Open
	MaxGain float64 // best buy-then-sell return over the range
	MaxLoss float64 // worst buy-then-sell drawdown over the range
}

// Stats computes ChartStats for points, which must be in time order.
func Stats(points []domain.ChartPoint) ChartStats {
	var s ChartStats
	if len(points) == 0 {
		return s
	}
	s.Low = math.MaxFloat64
	minPrice := math.MaxFloat64
	maxPrice := 0.0

	for j, p := range points {
		price := p.Price
		s.Points++
		if price > s.High {
			s.High = price
		}
		if price < s.Low {
			s.Low = price
		}
		if j == 0 {
			s.Open = price
		}
		s.Close = price

		// Max gain: buy at lowest seen so far, sell now.
		if price < minPrice {
			minPrice = price
		}
		if minPrice > 0 {
			if g := (price - minPrice) / minPrice; g > s.MaxGain {
				s.MaxGain = g
			}
		}
		// Max loss: buy at highest seen so far, sell now.
		if price > maxPrice {
			maxPrice = price
		}
		if price > 0 {
			if l := (maxPrice - price) / price; l > s.MaxLoss {
				s.MaxLoss = l
			}
		}
	}
	if s.Open > 0 {
		s.Change = (s.Close - s.Open) / s.Open
	}
	return s
}
