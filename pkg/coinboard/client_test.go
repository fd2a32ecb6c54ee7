package coinboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coinboard/internal/apitest"
	"coinboard/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func newTestClient(t *testing.T) (*Client, *apitest.Server) {
	t.Helper()
	srv := apitest.New()
	ts := apitest.Start(t, srv)
	return NewClient(ts.URL, WithRetries(3, 0)), srv
}

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8000/"
	c := NewClient(baseURL)

	if c == nil {
		t.Fatal("expected non-nil client")
	}

	if c.baseURL != "http://localhost:8000" {
		t.Errorf("expected trailing slash trimmed, got %q", c.baseURL)
	}

	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}

	c = NewClient(baseURL, WithTimeout(3*time.Second))
	if c.httpClient.Timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", c.httpClient.Timeout)
	}
}

func TestPing(t *testing.T) {
	c, _ := newTestClient(t)
	p, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !p.OK || p.Message != "pong" {
		t.Errorf("Ping = %+v", p)
	}
}

func TestMarkets(t *testing.T) {
	c, srv := newTestClient(t)
	srv.SetCoins(
		domain.Coin{ID: "bitcoin", Symbol: "btc", CurrentPrice: 65000, Change24h: ptr(1.5)},
		domain.Coin{ID: "ethereum", Symbol: "eth", CurrentPrice: 3000},
		domain.Coin{ID: "solana", Symbol: "sol", CurrentPrice: 150},
	)
	ctx := context.Background()

	all, err := c.Markets(ctx, nil)
	if err != nil {
		t.Fatalf("Markets: %v", err)
	}
	if got := domain.CoinIDs(all); strings.Join(got, ",") != "bitcoin,ethereum,solana" {
		t.Errorf("Markets ids = %v", got)
	}
	if all[0].Change24h == nil || *all[0].Change24h != 1.5 {
		t.Errorf("bitcoin change = %v", all[0].Change24h)
	}
	if all[1].Change24h != nil {
		t.Errorf("ethereum change should be nil")
	}

	some, err := c.Markets(ctx, []string{"solana", "bitcoin"})
	if err != nil {
		t.Fatalf("Markets(ids): %v", err)
	}
	if len(some) != 2 {
		t.Errorf("Markets(ids) returned %d coins, want 2", len(some))
	}
}

func TestChart(t *testing.T) {
	c, srv := newTestClient(t)
	srv.SetChart("bitcoin", domain.Chart{Prices: []domain.ChartPoint{
		{Time: time.UnixMilli(1000).UTC(), Price: 1},
		{Time: time.UnixMilli(2000).UTC(), Price: 2},
	}})

	chart, err := c.Chart(context.Background(), "bitcoin", domain.Range30D)
	if err != nil {
		t.Fatalf("Chart: %v", err)
	}
	if len(chart.Prices) != 2 || chart.Prices[1].Price != 2 {
		t.Errorf("Chart = %+v", chart)
	}

	if _, err := c.Chart(context.Background(), "bitcoin", domain.ChartRange(14)); err == nil {
		t.Error("expected error for unsupported range")
	}

	_, err = c.Chart(context.Background(), "nope", domain.Range7D)
	if !IsNotFound(err) {
		t.Errorf("Chart(nope) error = %v, want 404", err)
	}
}

func TestNewsFilter(t *testing.T) {
	c, srv := newTestClient(t)
	srv.SetNews(
		domain.NewsItem{Title: "Bitcoin rallies", Link: "a", Published: 2, Source: "CoinDesk"},
		domain.NewsItem{Title: "Ethereum upgrade", Link: "b", Published: 1, Source: "Decrypt"},
	)

	items, err := c.News(context.Background(), []string{"ethereum"})
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if len(items) != 1 || items[0].Link != "b" {
		t.Errorf("News(ethereum) = %+v", items)
	}
}

func TestAPIErrorTruncatesBody(t *testing.T) {
	long := strings.Repeat("x", 1000)
	srv := http.NewServeMux()
	srv.HandleFunc("GET /api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(long))
	})
	hs := httptest.NewServer(srv)
	defer hs.Close()

	c := NewClient(hs.URL)
	_, err := c.Ping(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", apiErr.Status)
	}
	if len(apiErr.Body) > maxErrorBody+len("…") {
		t.Errorf("Body length = %d, want <= %d", len(apiErr.Body), maxErrorBody+len("…"))
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Fail(apitest.RouteMarkets, http.StatusServiceUnavailable)

	_, err := c.Markets(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := srv.Calls(apitest.RouteMarkets); got != 3 {
		t.Errorf("markets called %d times, want 3 attempts", got)
	}

	srv.Fail(apitest.RouteMarkets, http.StatusBadRequest)
	before := srv.Calls(apitest.RouteMarkets)
	if _, err := c.Markets(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	if got := srv.Calls(apitest.RouteMarkets) - before; got != 1 {
		t.Errorf("400 retried: %d calls, want 1", got)
	}
}

func TestWatchlistRoundTrip(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddUser("tok", "user-1")
	srv.SetWatchlist("user-1", "bitcoin")
	ctx := context.Background()

	ids, err := c.Watchlist(ctx, "tok")
	if err != nil {
		t.Fatalf("Watchlist: %v", err)
	}
	if len(ids) != 1 || ids[0] != "bitcoin" {
		t.Errorf("Watchlist = %v", ids)
	}

	if err := c.AddWatch(ctx, "tok", "ethereum"); err != nil {
		t.Fatalf("AddWatch: %v", err)
	}
	if got := srv.WatchlistOf("user-1"); strings.Join(got, ",") != "ethereum,bitcoin" {
		t.Errorf("after add = %v", got)
	}

	if err := c.RemoveWatch(ctx, "tok", "bitcoin"); err != nil {
		t.Fatalf("RemoveWatch: %v", err)
	}
	if got := srv.WatchlistOf("user-1"); strings.Join(got, ",") != "ethereum" {
		t.Errorf("after remove = %v", got)
	}
	if srv.Calls(apitest.RouteRemoveWatch) != 0 {
		t.Error("query-form delete used although path form works")
	}
}

func TestRemoveWatchFallsBackToQueryForm(t *testing.T) {
	c, srv := newTestClient(t)
	srv.PathDelete = false
	srv.AddUser("tok", "user-1")
	srv.SetWatchlist("user-1", "bitcoin", "solana")

	if err := c.RemoveWatch(context.Background(), "tok", "solana"); err != nil {
		t.Fatalf("RemoveWatch: %v", err)
	}
	if got := srv.WatchlistOf("user-1"); strings.Join(got, ",") != "bitcoin" {
		t.Errorf("after remove = %v", got)
	}
	if srv.Calls(apitest.RouteRemoveWatchPath) != 1 || srv.Calls(apitest.RouteRemoveWatch) != 1 {
		t.Errorf("calls path=%d query=%d, want 1 and 1",
			srv.Calls(apitest.RouteRemoveWatchPath), srv.Calls(apitest.RouteRemoveWatch))
	}
}

func TestWatchlistUnauthorized(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Watchlist(context.Background(), "bogus")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("error = %v, want 401", err)
	}
}
