// Package apitest provides an in-memory implementation of the coinboard HTTP
// API for tests: market list, charts, news, and per-token watch-lists.
package apitest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"

	"coinboard/internal/domain"
)

// Route names accepted by Fail and Calls.
const (
	RoutePing            = "ping"
	RouteMarkets         = "markets"
	RouteChart           = "chart"
	RouteNews            = "news"
	RouteWatchlist       = "watchlist"
	RouteAddWatch        = "add-watch"
	RouteRemoveWatch     = "remove-watch"
	RouteRemoveWatchPath = "remove-watch-path"
)

// Server is a fake coinboard backend.
type Server struct {
	mu       sync.Mutex
	coins    []domain.Coin
	charts   map[string]domain.Chart
	news     []domain.NewsItem
	tokens   map[string]string   // bearer token -> subject
	lists    map[string][]string // subject -> ids, newest first
	failures map[string]int      // route -> forced status
	calls    map[string]int

	// PathDelete enables DELETE /api/me/watchlist/{id}. When false that
	// route answers 404 and only the ?cg_id= form works.
	PathDelete bool

	// ChartHook, when set, runs before a chart response is written.
	ChartHook func(id string)
}

// New creates an empty Server with the path-form delete enabled.
func New() *Server {
	return &Server{
		charts:     make(map[string]domain.Chart),
		tokens:     make(map[string]string),
		lists:      make(map[string][]string),
		failures:   make(map[string]int),
		calls:      make(map[string]int),
		PathDelete: true,
	}
}

// Start serves s on a local httptest.Server and registers cleanup.
func Start(tb interface{ Cleanup(func()) }, s *Server) *httptest.Server {
	ts := httptest.NewServer(s.Handler())
	tb.Cleanup(ts.Close)
	return ts
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// SetCoins replaces the market list.
func (s *Server) SetCoins(coins ...domain.Coin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coins = slices.Clone(coins)
}

// SetChart sets the price history returned for id.
func (s *Server) SetChart(id string, chart domain.Chart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.charts[id] = chart
}

// SetNews replaces the news list.
func (s *Server) SetNews(items ...domain.NewsItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.news = slices.Clone(items)
}

// AddUser accepts token as a bearer credential for subject.
func (s *Server) AddUser(token, subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = subject
}

// SetWatchlist replaces the stored watch-list of subject.
func (s *Server) SetWatchlist(subject string, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[subject] = slices.Clone(ids)
}

// WatchlistOf returns the stored watch-list of subject.
func (s *Server) WatchlistOf(subject string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lists[subject])
}

// Fail forces route to answer with status. A zero status clears it.
func (s *Server) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = status
}

// Calls returns how many requests route has received.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/ping", s.handlePing)
	mux.HandleFunc("GET /api/coins", s.handleMarkets)
	mux.HandleFunc("GET /api/coins/{id}/chart", s.handleChart)
	mux.HandleFunc("GET /api/news", s.handleNews)
	mux.HandleFunc("GET /api/me/watchlist", s.handleGetWatchlist)
	mux.HandleFunc("POST /api/me/watchlist", s.handleAddWatchlist)
	mux.HandleFunc("DELETE /api/me/watchlist", s.handleRemoveWatchlist)
	mux.HandleFunc("DELETE /api/me/watchlist/{id}", s.handleRemoveWatchlistPath)
}

// Handler returns an http.Handler serving the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}

// enter counts the call and reports a forced failure, if any.
func (s *Server) enter(w http.ResponseWriter, route string) bool {
	s.mu.Lock()
	s.calls[route]++
	status := s.failures[route]
	s.mu.Unlock()
	if status != 0 {
		writeError(w, status, route+" failed")
		return false
	}
	return true
}

// subject resolves the bearer token or writes 401.
func (s *Server) subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	sub, known := s.tokens[token]
	s.mu.Unlock()
	if !ok || !known {
		writeError(w, http.StatusUnauthorized, "Invalid/expired token")
		return "", false
	}
	return sub, true
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if !s.enter(w, RoutePing) {
		return
	}
	writeJSON(w, domain.Ping{OK: true, Service: "api", Message: "pong"})
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	if !s.enter(w, RouteMarkets) {
		return
	}
	ids := splitCSV(r.URL.Query().Get("ids"))
	s.mu.Lock()
	out := make([]domain.Coin, 0, len(s.coins))
	for _, c := range s.coins {
		if len(ids) == 0 || slices.Contains(ids, c.ID) {
			out = append(out, c)
		}
	}
	s.mu.Unlock()
	writeJSON(w, out)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if !s.enter(w, RouteChart) {
		return
	}
	id := r.PathValue("id")
	switch r.URL.Query().Get("days") {
	case "1", "7", "30":
	default:
		writeError(w, http.StatusUnprocessableEntity, "days must be 1, 7 or 30")
		return
	}
	if s.ChartHook != nil {
		s.ChartHook(id)
	}
	s.mu.Lock()
	chart, ok := s.charts[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "coin not found")
		return
	}
	writeJSON(w, chart)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	if !s.enter(w, RouteNews) {
		return
	}
	wanted := splitCSV(strings.ToLower(r.URL.Query().Get("coins")))
	s.mu.Lock()
	out := make([]domain.NewsItem, 0, len(s.news))
	for _, it := range s.news {
		title := strings.ToLower(it.Title)
		if len(wanted) == 0 || slices.ContainsFunc(wanted, func(w string) bool { return strings.Contains(title, w) }) {
			out = append(out, it)
		}
	}
	s.mu.Unlock()
	writeJSON(w, out)
}

func (s *Server) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	if !s.enter(w, RouteWatchlist) {
		return
	}
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	ids := s.WatchlistOf(sub)
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, ids)
}

func (s *Server) handleAddWatchlist(w http.ResponseWriter, r *http.Request) {
	if !s.enter(w, RouteAddWatch) {
		return
	}
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	var body struct {
		CgID string `json:"cg_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.CgID == "" {
		writeError(w, http.StatusUnprocessableEntity, "cg_id required")
		return
	}
	s.mu.Lock()
	if !slices.Contains(s.lists[sub], body.CgID) {
		s.lists[sub] = append([]string{body.CgID}, s.lists[sub]...)
	}
	s.mu.Unlock()
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleRemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	if !s.enter(w, RouteRemoveWatch) {
		return
	}
	s.remove(w, r, r.URL.Query().Get("cg_id"))
}

func (s *Server) handleRemoveWatchlistPath(w http.ResponseWriter, r *http.Request) {
	if !s.enter(w, RouteRemoveWatchPath) {
		return
	}
	if !s.PathDelete {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	s.remove(w, r, r.PathValue("id"))
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request, id string) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	if id == "" {
		writeError(w, http.StatusUnprocessableEntity, "cg_id required")
		return
	}
	s.mu.Lock()
	s.lists[sub] = slices.DeleteFunc(s.lists[sub], func(x string) bool { return x == id })
	s.mu.Unlock()
	writeJSON(w, map[string]bool{"ok": true})
}
