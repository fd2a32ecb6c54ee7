// Package snapshot caches the last market list in a Parquet file so the
// dashboard has rows to show before the first refresh completes.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/parquet-go/parquet-go"

	"coinboard/internal/domain"
)

// MarketRecord is the Parquet schema for one market row.
type MarketRecord struct {
	Rank      int32    `parquet:"rank"`
	ID        string   `parquet:"id"`
	Symbol    string   `parquet:"symbol"`
	Name      string   `parquet:"name"`
	Image     string   `parquet:"image"`
	Price     float64  `parquet:"current_price"`
	MarketCap float64  `parquet:"market_cap"`
	Change24h *float64 `parquet:"change_24h,optional"`
	SavedAt   int64    `parquet:"saved_at,timestamp(millisecond)"` // Unix ms
}

// Snapshot is a market list and when it was fetched.
type Snapshot struct {
	Coins   []domain.Coin
	SavedAt time.Time
}

// Empty reports whether the snapshot has no rows.
func (s Snapshot) Empty() bool { return len(s.Coins) == 0 }

// Store reads and writes the snapshot file.
type Store struct {
	path string
}

// NewStore returns a Store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file path.
func (s *Store) Path() string { return s.path }

// Save replaces the snapshot with coins, in order.
func (s *Store) Save(_ context.Context, coins []domain.Coin, at time.Time) error {
	records := make([]MarketRecord, len(coins))
	for i, c := range coins {
		records[i] = MarketRecord{
			Rank:      int32(i),
			ID:        c.ID,
			Symbol:    c.Symbol,
			Name:      c.Name,
			Image:     c.Image,
			Price:     c.CurrentPrice,
			MarketCap: c.MarketCap,
			Change24h: c.Change24h,
			SavedAt:   at.UnixMilli(),
		}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return err
	}
	if err := parquet.Write(tmp, records); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Load reads the snapshot. A missing file yields an empty snapshot.
func (s *Store) Load(_ context.Context) (Snapshot, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, nil
	}
	rows, err := parquet.ReadFile[MarketRecord](s.path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot %s: %w", s.path, err)
	}

	slices.SortStableFunc(rows, func(a, b MarketRecord) int { return int(a.Rank - b.Rank) })

	snap := Snapshot{Coins: make([]domain.Coin, len(rows))}
	for i, r := range rows {
		snap.Coins[i] = domain.Coin{
			ID:           r.ID,
			Symbol:       r.Symbol,
			Name:         r.Name,
			Image:        r.Image,
			CurrentPrice: r.Price,
			MarketCap:    r.MarketCap,
			Change24h:    r.Change24h,
		}
		if r.SavedAt > 0 {
			snap.SavedAt = time.UnixMilli(r.SavedAt)
		}
	}
	return snap, nil
}
