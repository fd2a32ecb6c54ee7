package selection

import (
	"math/rand"
	"slices"
	"testing"

	"coinboard/internal/domain"
)

func coins(ids ...string) []domain.Coin {
	out := make([]domain.Coin, len(ids))
	for i, id := range ids {
		out[i] = domain.Coin{ID: id}
	}
	return out
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		pinned   []string
		visible  []string
		want     string
	}{
		{"nothing visible", "bitcoin", []string{"bitcoin"}, nil, ""},
		{"explicit visible", "ethereum", []string{"solana"}, []string{"bitcoin", "ethereum", "solana"}, "ethereum"},
		{"first visible pin in pin order", "bitcoin", []string{"solana", "ethereum"}, []string{"ethereum", "solana"}, "solana"},
		{"pins not visible", "bitcoin", []string{"cardano"}, []string{"ethereum", "solana"}, "ethereum"},
		{"no explicit", "", nil, []string{"dogecoin"}, "dogecoin"},
		{"unknown explicit", "nope", nil, []string{"bitcoin"}, "bitcoin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.explicit, tt.pinned, coins(tt.visible...))
			if got != tt.want {
				t.Errorf("Resolve(%q, %v, %v) = %q, want %q", tt.explicit, tt.pinned, tt.visible, got, tt.want)
			}
		})
	}
}

// TestResolveProperties checks the resolver against random inputs.
func TestResolveProperties(t *testing.T) {
	universe := []string{"bitcoin", "ethereum", "solana", "dogecoin", "cardano", "ripple"}
	rng := rand.New(rand.NewSource(1))
	pick := func() []string {
		var out []string
		for _, id := range rng.Perm(len(universe))[:rng.Intn(len(universe)+1)] {
			out = append(out, universe[id])
		}
		return out
	}

	for i := 0; i < 500; i++ {
		visible := pick()
		pinned := pick()
		explicit := ""
		if rng.Intn(4) > 0 {
			explicit = universe[rng.Intn(len(universe))]
		}
		got := Resolve(explicit, pinned, coins(visible...))

		switch {
		case len(visible) == 0:
			if got != "" {
				t.Fatalf("empty visible: got %q", got)
			}
		case slices.Contains(visible, explicit):
			if got != explicit {
				t.Fatalf("explicit %q visible in %v: got %q", explicit, visible, got)
			}
		default:
			want := visible[0]
			for _, p := range pinned {
				if slices.Contains(visible, p) {
					want = p
					break
				}
			}
			if got != want {
				t.Fatalf("Resolve(%q, %v, %v) = %q, want %q", explicit, pinned, visible, got, want)
			}
		}
		if got != "" && !slices.Contains(visible, got) {
			t.Fatalf("result %q not visible in %v", got, visible)
		}
	}
}

func TestVisible(t *testing.T) {
	markets := coins("bitcoin", "ethereum", "solana", "dogecoin")

	if got := Visible(markets, false, []string{"solana"}); len(got) != 4 {
		t.Errorf("unfiltered len = %d, want 4", len(got))
	}

	got := Visible(markets, true, []string{"dogecoin", "bitcoin", "unknown"})
	ids := domain.CoinIDs(got)
	if !slices.Equal(ids, []string{"bitcoin", "dogecoin"}) {
		t.Errorf("filtered = %v, want market order [bitcoin dogecoin]", ids)
	}

	if got := Visible(markets, true, nil); len(got) != 0 {
		t.Errorf("empty watchlist should show nothing, got %v", domain.CoinIDs(got))
	}
}

func TestStep(t *testing.T) {
	v := coins("a", "b", "c")
	tests := []struct {
		cur   string
		delta int
		want  string
	}{
		{"a", 1, "b"},
		{"c", 1, "c"},
		{"a", -1, "a"},
		{"b", -1, "a"},
		{"zz", 1, "a"},
	}
	for _, tt := range tests {
		if got := Step(v, tt.cur, tt.delta); got != tt.want {
			t.Errorf("Step(%q, %d) = %q, want %q", tt.cur, tt.delta, got, tt.want)
		}
	}
	if got := Step(nil, "a", 1); got != "" {
		t.Errorf("Step(nil) = %q", got)
	}
}
