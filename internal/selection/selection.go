// Package selection derives the visible market rows and the effective
// selection from explicit inputs. Everything here is pure.
package selection

import "coinboard/internal/domain"

// Resolve returns the coin that should be shown as selected.
//
// The explicit selection wins when it is visible; otherwise the first pinned
// id that is visible; otherwise the first visible coin. With nothing visible
// the result is "".
func Resolve(explicit string, pinned []string, visible []domain.Coin) string {
	if len(visible) == 0 {
		return ""
	}
	in := make(map[string]struct{}, len(visible))
	for _, c := range visible {
		in[c.ID] = struct{}{}
	}
	if explicit != "" {
		if _, ok := in[explicit]; ok {
			return explicit
		}
	}
	for _, id := range pinned {
		if _, ok := in[id]; ok {
			return id
		}
	}
	return visible[0].ID
}

// Visible filters markets down to the watched coins when onlyWatched is set.
// Market order is preserved.
func Visible(markets []domain.Coin, onlyWatched bool, watched []string) []domain.Coin {
	if !onlyWatched {
		return markets
	}
	set := make(map[string]struct{}, len(watched))
	for _, id := range watched {
		set[id] = struct{}{}
	}
	out := make([]domain.Coin, 0, len(watched))
	for _, c := range markets {
		if _, ok := set[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Index returns the position of id in coins, or -1.
func Index(coins []domain.Coin, id string) int {
	for i, c := range coins {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Step moves from the effective selection by delta rows, clamped to the
// visible range. It returns "" when nothing is visible.
func Step(visible []domain.Coin, current string, delta int) string {
	if len(visible) == 0 {
		return ""
	}
	i := Index(visible, current)
	if i < 0 {
		i = 0
	} else {
		i += delta
	}
	i = max(0, min(i, len(visible)-1))
	return visible[i].ID
}
