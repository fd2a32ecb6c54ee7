package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"coinboard/internal/domain"
)

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "cache", "markets.parquet"))
	ctx := context.Background()

	change := 2.5
	coins := []domain.Coin{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: 64000, MarketCap: 1.2e12, Change24h: &change},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", CurrentPrice: 3100, MarketCap: 3.7e11},
	}
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := s.Save(ctx, coins, at); err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Coins) != 2 {
		t.Fatalf("got %d coins, want 2", len(snap.Coins))
	}
	if snap.Coins[0].ID != "bitcoin" || snap.Coins[1].ID != "ethereum" {
		t.Errorf("order = %v", domain.CoinIDs(snap.Coins))
	}
	if c := snap.Coins[0].Change24h; c == nil || *c != 2.5 {
		t.Errorf("bitcoin change = %v", c)
	}
	if snap.Coins[1].Change24h != nil {
		t.Errorf("ethereum change should be nil, got %v", *snap.Coins[1].Change24h)
	}
	if !snap.SavedAt.Equal(at) {
		t.Errorf("SavedAt = %v, want %v", snap.SavedAt, at)
	}
}

func TestLoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "none.parquet"))
	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !snap.Empty() {
		t.Errorf("expected empty snapshot, got %d coins", len(snap.Coins))
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.parquet")
	os.WriteFile(path, []byte("not parquet"), 0o644)
	if _, err := NewStore(path).Load(context.Background()); err == nil {
		t.Error("expected error for corrupt file")
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "m.parquet"))
	ctx := context.Background()
	s.Save(ctx, []domain.Coin{{ID: "a"}, {ID: "b"}}, time.Now())
	s.Save(ctx, []domain.Coin{{ID: "c"}}, time.Now())

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ids := domain.CoinIDs(snap.Coins); len(ids) != 1 || ids[0] != "c" {
		t.Errorf("coins = %v, want [c]", ids)
	}
}

func TestConcurrentSave(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "m.parquet"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 1; w <= 4; w++ {
		coins := make([]domain.Coin, 50*w)
		for i := range coins {
			coins[i] = domain.Coin{ID: fmt.Sprintf("coin-%d-%d", w, i), CurrentPrice: float64(i)}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if err := s.Save(ctx, coins, time.Now()); err != nil {
					t.Errorf("Save: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load after concurrent saves: %v", err)
	}
	if n := len(snap.Coins); n%50 != 0 || n < 50 || n > 200 {
		t.Errorf("got %d coins, want one writer's full list", n)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}
