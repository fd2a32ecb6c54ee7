// Package news cleans and pages the news items shown under the chart.
package news

import (
	"cmp"
	"html"
	"regexp"
	"slices"
	"strings"

	"coinboard/internal/domain"
)

// SummaryLimit is the longest summary shown, in characters.
const SummaryLimit = 240

// PageSize is how many items one "more" step reveals.
const PageSize = 8

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes HTML tags, unescapes entities and normalizes whitespace.
func StripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// Excerpt shortens s to at most limit characters, cutting at the last space
// and appending an ellipsis.
func Excerpt(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	cut := string(r[:limit])
	if i := strings.LastIndex(cut, " "); i >= 0 {
		cut = cut[:i]
	}
	return cut + "…"
}

// Clean returns it with a plain-text title and an excerpted summary.
func Clean(it domain.NewsItem) domain.NewsItem {
	it.Title = StripHTML(it.Title)
	it.Summary = Excerpt(StripHTML(it.Summary), SummaryLimit)
	return it
}

// Prepare cleans items, drops those without a title or link and sorts the
// rest newest first.
func Prepare(items []domain.NewsItem) []domain.NewsItem {
	out := make([]domain.NewsItem, 0, len(items))
	for _, it := range items {
		it = Clean(it)
		if it.Title == "" || it.Link == "" {
			continue
		}
		out = append(out, it)
	}
	slices.SortStableFunc(out, func(a, b domain.NewsItem) int {
		return cmp.Compare(b.Published, a.Published)
	})
	return out
}

// FilterByCoins keeps items whose title mentions any of coins.
func FilterByCoins(items []domain.NewsItem, coins []string) []domain.NewsItem {
	var wanted []string
	for _, c := range coins {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			wanted = append(wanted, c)
		}
	}
	if len(wanted) == 0 {
		return items
	}
	var out []domain.NewsItem
	for _, it := range items {
		title := strings.ToLower(it.Title)
		if slices.ContainsFunc(wanted, func(w string) bool { return strings.Contains(title, w) }) {
			out = append(out, it)
		}
	}
	return out
}

// Page returns the first n items.
func Page(items []domain.NewsItem, n int) []domain.NewsItem {
	if n < 0 {
		n = 0
	}
	return items[:min(n, len(items))]
}

// HasMore reports whether items extend past the first n.
func HasMore(items []domain.NewsItem, n int) bool {
	return len(items) > n
}
