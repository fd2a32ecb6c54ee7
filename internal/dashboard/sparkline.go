package dashboard

import (
	"math"
	"strings"

	"coinboard/internal/domain"
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders points as a single line of block characters, width
// cells wide. Points are averaged into buckets when there are more points
// than cells.
func Sparkline(points []domain.ChartPoint, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}
	vals := resample(points, width)

	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	var b strings.Builder
	top := len(sparkBlocks) - 1
	for _, v := range vals {
		i := top / 2
		if hi > lo {
			i = int(math.Round((v - lo) / (hi - lo) * float64(top)))
		}
		b.WriteRune(sparkBlocks[max(0, min(i, top))])
	}
	return b.String()
}

func resample(points []domain.ChartPoint, width int) []float64 {
	if len(points) <= width {
		out := make([]float64, len(points))
		for i, p := range points {
			out[i] = p.Price
		}
		return out
	}
	out := make([]float64, width)
	for i := range width {
		start := i * len(points) / width
		end := (i + 1) * len(points) / width
		var sum float64
		for _, p := range points[start:end] {
			sum += p.Price
		}
		out[i] = sum / float64(end-start)
	}
	return out
}
