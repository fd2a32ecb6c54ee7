// Package dashboard holds the display helpers shared by the terminal
// dashboard and the CLI: number formatting, chart statistics and sparklines.
package dashboard

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatPrice formats a USD price. Sub-dollar prices keep enough digits to
// stay meaningful.
func FormatPrice(p float64) string {
	switch {
	case p == 0 || math.IsNaN(p):
		return "-"
	case p >= 1000:
		return "$" + humanize.CommafWithDigits(p, 2)
	case p >= 1:
		return fmt.Sprintf("$%.2f", p)
	case p >= 0.01:
		return fmt.Sprintf("$%.4f", p)
	default:
		return fmt.Sprintf("$%.8f", p)
	}
}

// FormatChange formats a 24h change percentage as "+X.XX%". A nil change is
// shown as "-".
func FormatChange(c *float64) string {
	if c == nil {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", *c)
}

// FormatGain formats a fractional gain as "+X.X%", or "" if zero.
// Drops decimal for values >= 100% to keep width compact.
func FormatGain(g float64) string {
	if g <= 0 {
		return ""
	}
	pct := g * 100
	if pct >= 100 {
		return fmt.Sprintf("+%.0f%%", pct)
	}
	return fmt.Sprintf("+%.1f%%", pct)
}

// FormatLoss formats a fractional loss as "-X.X%", or "" if zero.
func FormatLoss(l float64) string {
	if l <= 0 {
		return ""
	}
	pct := l * 100
	if pct >= 100 {
		return fmt.Sprintf("-%.0f%%", pct)
	}
	return fmt.Sprintf("-%.1f%%", pct)
}

// FormatMarketCap formats a dollar amount with T/B/M/K suffixes.
func FormatMarketCap(v float64) string {
	switch {
	case v >= 1e12:
		return fmt.Sprintf("$%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	case v > 0:
		return fmt.Sprintf("$%.0f", v)
	default:
		return "-"
	}
}

// FormatAge formats how long ago t was, e.g. "3 minutes ago".
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
