package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"coinboard/internal/apitest"
	"coinboard/internal/config"
	"coinboard/internal/domain"
	"coinboard/internal/util"
	"coinboard/internal/watchlist"
)

func newTestApp(t *testing.T, token string) (*app, *apitest.Server) {
	t.Helper()
	srv := apitest.New()
	srv.AddUser("tok", "alice")
	change := 2.5
	srv.SetCoins(
		domain.Coin{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: 65000, MarketCap: 1.2e12, Change24h: &change},
		domain.Coin{ID: "ethereum", Symbol: "eth", Name: "Ethereum", CurrentPrice: 3000, MarketCap: 3.6e11},
	)
	srv.SetChart("bitcoin", domain.Chart{Prices: []domain.ChartPoint{
		{Time: time.UnixMilli(1_700_000_000_000), Price: 100},
		{Time: time.UnixMilli(1_700_000_060_000), Price: 120},
		{Time: time.UnixMilli(1_700_000_120_000), Price: 90},
	}})
	srv.SetNews(
		domain.NewsItem{Title: "Bitcoin breaks out", Link: "https://example.com/1", Published: 2000, Source: "Wire"},
		domain.NewsItem{Title: "Ethereum upgrade ships", Link: "https://example.com/2", Published: 1000},
	)
	ts := apitest.Start(t, srv)

	cfg := config.Default()
	cfg.API.BaseURL = ts.URL
	cfg.API.Retries = 1
	cfg.Auth.Token = token
	cfg.Prefs.Backend = config.BackendMemory
	cfg.Snapshot.Path = filepath.Join(t.TempDir(), "markets.parquet")

	a, err := newApp(context.Background(), cfg, util.Discard())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, srv
}

func runCmd(t *testing.T, a *app, name string, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := commands[name](context.Background(), a, args, &buf)
	return buf.String(), err
}

func TestPing(t *testing.T) {
	a, _ := newTestApp(t, "")
	out, err := runCmd(t, a, "ping")
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !strings.Contains(out, "ok") {
		t.Errorf("ping output = %q", out)
	}
}

func TestMarketsSavesSnapshot(t *testing.T) {
	a, srv := newTestApp(t, "")
	out, err := runCmd(t, a, "markets")
	if err != nil {
		t.Fatalf("markets: %v", err)
	}
	for _, want := range []string{"BTC", "Bitcoin", "+2.50%", "$1.20T", "ETH"} {
		if !strings.Contains(out, want) {
			t.Errorf("markets output missing %q:\n%s", want, out)
		}
	}

	out, err = runCmd(t, a, "snapshot")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !strings.Contains(out, "2 coins") {
		t.Errorf("snapshot output = %q", out)
	}

	// With the API down the snapshot is shown instead.
	srv.Fail(apitest.RouteMarkets, http.StatusBadGateway)
	out, err = runCmd(t, a, "markets")
	if err != nil {
		t.Fatalf("offline markets: %v", err)
	}
	if !strings.Contains(out, "offline") || !strings.Contains(out, "BTC") {
		t.Errorf("offline markets output = %q", out)
	}
}

func TestMarketsWatchedOnly(t *testing.T) {
	a, srv := newTestApp(t, "tok")
	srv.SetWatchlist("alice", "ethereum")

	out, err := runCmd(t, a, "markets", "-watched")
	if err != nil {
		t.Fatalf("markets: %v", err)
	}
	if strings.Contains(out, "BTC") || !strings.Contains(out, "ETH") {
		t.Errorf("watched markets output = %q", out)
	}
}

func TestChart(t *testing.T) {
	a, _ := newTestApp(t, "")
	out, err := runCmd(t, a, "chart", "-days", "7", "-width", "3", "bitcoin")
	if err != nil {
		t.Fatalf("chart: %v", err)
	}
	for _, want := range []string{"bitcoin  7D  3 points", "high $120.00", "best +20.0%", "worst -25.0%"} {
		if !strings.Contains(out, want) {
			t.Errorf("chart output missing %q:\n%s", want, out)
		}
	}

	if _, err := runCmd(t, a, "chart", "-days", "5", "bitcoin"); err == nil {
		t.Error("expected an error for an unsupported range")
	}
}

func TestNewsFiltersByCoin(t *testing.T) {
	a, _ := newTestApp(t, "")
	out, err := runCmd(t, a, "news", "ethereum")
	if err != nil {
		t.Fatalf("news: %v", err)
	}
	if strings.Contains(out, "Bitcoin breaks out") || !strings.Contains(out, "Ethereum upgrade ships") {
		t.Errorf("news output = %q", out)
	}

	out, err = runCmd(t, a, "news", "-n", "1")
	if err != nil {
		t.Fatalf("news: %v", err)
	}
	if !strings.Contains(out, "Bitcoin breaks out") || !strings.Contains(out, "(1 more)") {
		t.Errorf("paged news output = %q", out)
	}
}

func TestWatchlistCommands(t *testing.T) {
	a, srv := newTestApp(t, "tok")

	if _, err := runCmd(t, a, "watchlist", "add", "bitcoin"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := runCmd(t, a, "watchlist", "add", "ethereum"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err := runCmd(t, a, "watchlist", "pin", "ethereum")
	if err != nil {
		t.Fatalf("pin: %v", err)
	}
	if !strings.Contains(out, "^ ethereum") {
		t.Errorf("pin output = %q", out)
	}
	if got := srv.WatchlistOf("alice"); len(got) != 2 {
		t.Errorf("server watchlist = %v", got)
	}

	out, err = runCmd(t, a, "watchlist", "rm", "ethereum")
	if err != nil {
		t.Fatalf("rm: %v", err)
	}
	if strings.Contains(out, "ethereum") {
		t.Errorf("rm output still lists ethereum: %q", out)
	}

	out, err = runCmd(t, a, "watchlist", "clear")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !strings.Contains(out, "empty") {
		t.Errorf("clear output = %q", out)
	}
	if got := srv.WatchlistOf("alice"); len(got) != 0 {
		t.Errorf("server watchlist after clear = %v", got)
	}

	out, err = runCmd(t, a, "prefs")
	if err != nil {
		t.Fatalf("prefs: %v", err)
	}
	if !strings.Contains(out, watchlist.KeyWatchlist) {
		t.Errorf("prefs output = %q", out)
	}
}

func TestWatchlistSignedOut(t *testing.T) {
	a, _ := newTestApp(t, "")
	if _, err := runCmd(t, a, "watchlist", "add", "bitcoin"); !errors.Is(err, watchlist.ErrLoginRequired) {
		t.Errorf("add signed out: err = %v, want ErrLoginRequired", err)
	}
	if _, err := runCmd(t, a, "watchlist", "sync"); !errors.Is(err, watchlist.ErrLoginRequired) {
		t.Errorf("sync signed out: err = %v, want ErrLoginRequired", err)
	}
	if _, err := runCmd(t, a, "watchlist", "frobnicate"); err == nil {
		t.Error("expected an error for an unknown subcommand")
	}
}
