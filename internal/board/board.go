// Package board composes the dashboard view: which coins are visible, which
// one is selected, and the ping, markets, chart, news and watch-list panels.
//
// A Board is owned by a single event loop. Operations mutate view state
// directly and return Jobs for the network work they need; the loop runs
// each Job elsewhere and feeds its Result back through Apply.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"coinboard/internal/auth"
	"coinboard/internal/domain"
	"coinboard/internal/news"
	"coinboard/internal/prefs"
	"coinboard/internal/selection"
	"coinboard/internal/snapshot"
	"coinboard/internal/watchlist"
)

// API is the part of the coinboard HTTP API the board reads from.
type API interface {
	Ping(ctx context.Context) (domain.Ping, error)
	Markets(ctx context.Context, ids []string) ([]domain.Coin, error)
	Chart(ctx context.Context, id string, r domain.ChartRange) (domain.Chart, error)
	News(ctx context.Context, coins []string) ([]domain.NewsItem, error)
}

// Config holds the board's tunables.
type Config struct {
	DefaultCoin    string
	DefaultRange   domain.ChartRange
	NewsPageSize   int
	MarketsStale   time.Duration
	ChartStale     time.Duration
	NewsStale      time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		DefaultCoin:    domain.DefaultCoin,
		DefaultRange:   domain.DefaultRange,
		NewsPageSize:   news.PageSize,
		MarketsStale:   time.Minute,
		ChartStale:     time.Minute,
		NewsStale:      15 * time.Minute,
		RequestTimeout: 15 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.DefaultCoin == "" {
		c.DefaultCoin = d.DefaultCoin
	}
	if !c.DefaultRange.Valid() {
		c.DefaultRange = d.DefaultRange
	}
	if c.NewsPageSize <= 0 {
		c.NewsPageSize = d.NewsPageSize
	}
	if c.MarketsStale <= 0 {
		c.MarketsStale = d.MarketsStale
	}
	if c.ChartStale <= 0 {
		c.ChartStale = d.ChartStale
	}
	if c.NewsStale <= 0 {
		c.NewsStale = d.NewsStale
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
}

// Deps are the collaborators a Board needs. Snapshot may be nil.
type Deps struct {
	API        API
	Reconciler *watchlist.Reconciler
	Auth       auth.Provider
	Snapshot   *snapshot.Store
	Log        *slog.Logger
	Now        func() time.Time
}

type chartKey struct {
	id   string
	days domain.ChartRange
}

func (k chartKey) String() string { return fmt.Sprintf("chart:%s:%d", k.id, int(k.days)) }

const (
	marketsKey = "markets"
	newsKey    = "news:all"
)

// Board is the dashboard's view state.
type Board struct {
	api   API
	rec   *watchlist.Reconciler
	lists *watchlist.Lists
	auth  auth.Provider
	snap  *snapshot.Store
	log   *slog.Logger
	now   func() time.Time
	cfg   Config

	explicit    string
	onlyWatched bool
	days        domain.ChartRange
	newsLimit   int
	notice      string

	ping    Panel[domain.Ping]
	markets Panel[[]domain.Coin]
	chart   Panel[domain.Chart]
	news    Panel[[]domain.NewsItem]
	sync    Panel[[]string]

	chartKey    chartKey
	newsKey     string
	cancelChart context.CancelFunc
	cache       *cache
}

// New creates a Board. The explicit selection starts at the default coin.
func New(cfg Config, deps Deps) *Board {
	cfg.applyDefaults()
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Board{
		api:       deps.API,
		rec:       deps.Reconciler,
		lists:     deps.Reconciler.Lists(),
		auth:      deps.Auth,
		snap:      deps.Snapshot,
		log:       log,
		now:       now,
		cfg:       cfg,
		explicit:  cfg.DefaultCoin,
		days:      cfg.DefaultRange,
		newsLimit: cfg.NewsPageSize,
		cache:     newCache(),
	}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Visible returns the market rows currently shown.
func (b *Board) Visible() []domain.Coin {
	return selection.Visible(b.markets.Data, b.onlyWatched, b.lists.Watchlist())
}

// EffectiveSelection returns the coin being charted, or "".
func (b *Board) EffectiveSelection() string {
	return selection.Resolve(b.explicit, b.lists.Pinned(), b.Visible())
}

// Selected returns the explicit selection, or "" for none.
func (b *Board) Selected() string { return b.explicit }

// Pinned returns the pinned coins that are still watched.
func (b *Board) Pinned() []string { return b.lists.Pinned() }

// Watched returns the local watch-list.
func (b *Board) Watched() []string { return b.lists.Watchlist() }

// IsWatched reports whether id is starred.
func (b *Board) IsWatched(id string) bool { return b.lists.IsWatched(id) }

// IsPinned reports whether id is pinned.
func (b *Board) IsPinned(id string) bool { return b.lists.IsPinned(id) }

// OnlyWatched reports whether the watch-list view is active.
func (b *Board) OnlyWatched() bool { return b.onlyWatched }

// Days returns the chart range.
func (b *Board) Days() domain.ChartRange { return b.days }

// Authenticated reports whether a user is signed in.
func (b *Board) Authenticated() bool { return b.auth.Authenticated() }

// User returns the signed-in user's label.
func (b *Board) User() string { return b.auth.User() }

// Notice returns the latest transient status message.
func (b *Board) Notice() string { return b.notice }

// PingPanel returns the ping panel.
func (b *Board) PingPanel() Panel[domain.Ping] { return b.ping }

// MarketsPanel returns the markets panel.
func (b *Board) MarketsPanel() Panel[[]domain.Coin] { return b.markets }

// ChartPanel returns the chart panel.
func (b *Board) ChartPanel() Panel[domain.Chart] { return b.chart }

// ChartCoin returns the coin the chart panel holds or is loading.
func (b *Board) ChartCoin() string { return b.chartKey.id }

// NewsPanel returns the news panel with all fetched items.
func (b *Board) NewsPanel() Panel[[]domain.NewsItem] { return b.news }

// SyncPanel returns the watch-list reconciliation panel.
func (b *Board) SyncPanel() Panel[[]string] { return b.sync }

// NewsEnabled reports whether the news section is shown.
func (b *Board) NewsEnabled() bool { return !b.onlyWatched }

// NewsItems returns the news items on the current page.
func (b *Board) NewsItems() []domain.NewsItem { return news.Page(b.news.Data, b.newsLimit) }

// HasMoreNews reports whether MoreNews would reveal more items.
func (b *Board) HasMoreNews() bool { return news.HasMore(b.news.Data, b.newsLimit) }

// CanLessNews reports whether LessNews would hide items.
func (b *Board) CanLessNews() bool { return b.newsLimit > b.cfg.NewsPageSize }

// CanClear reports whether the clear-watch-list action is offered.
func (b *Board) CanClear() bool {
	return b.onlyWatched && (len(b.lists.Watchlist()) > 0 || len(b.lists.Pinned()) > 0)
}

// MarketsMessage returns the text shown in place of market rows, or "".
func (b *Board) MarketsMessage() string {
	switch {
	case b.markets.Loading && len(b.markets.Data) == 0:
		return "Loading markets…"
	case b.markets.Err != nil && len(b.markets.Data) == 0:
		return b.markets.Err.Error()
	case len(b.Visible()) > 0:
		return ""
	case b.onlyWatched:
		return "Your watchlist is empty. Star some coins with the ★ button."
	default:
		return "No markets to show."
	}
}

// ChartMessage returns the text shown in place of the chart, or "".
func (b *Board) ChartMessage() string {
	switch {
	case b.EffectiveSelection() == "":
		if b.onlyWatched {
			return "Add a coin to your watchlist to see its chart here."
		}
		return "Select a coin to load the chart."
	case b.chart.Loading && len(b.chart.Data.Prices) == 0:
		return "Loading chart…"
	case b.chart.Err != nil:
		return b.chart.Err.Error()
	case len(b.chart.Data.Prices) == 0:
		return "No price data."
	default:
		return ""
	}
}

// NewsMessage returns the text shown in place of news items, or "".
func (b *Board) NewsMessage() string {
	switch {
	case b.news.Loading && len(b.news.Data) == 0:
		return "Loading news…"
	case b.news.Err != nil:
		return b.news.Err.Error()
	case b.news.loaded && len(b.news.Data) == 0:
		return "No news."
	default:
		return ""
	}
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Init returns the jobs that populate a fresh board.
func (b *Board) Init() []Job {
	var jobs []Job
	if b.snap != nil {
		jobs = append(jobs, b.loadSnapshot())
	}
	jobs = appendJob(jobs, b.RefreshMarkets(false))
	jobs = appendJob(jobs, b.CheckPing())
	jobs = appendJob(jobs, b.SyncWatchlist())
	return jobs
}

// RefreshMarkets reloads the market list. Without force a fresh cached
// list is reused.
func (b *Board) RefreshMarkets(force bool) Job {
	now := b.now()
	if !force {
		if b.markets.Loading {
			return nil
		}
		if v, at, ok := b.cache.get(marketsKey, b.cfg.MarketsStale, now); ok {
			b.markets.finish(v.([]domain.Coin), nil, at)
			return nil
		}
	}
	gen := b.markets.begin()
	api, snap, log, timeout := b.api, b.snap, b.log, b.cfg.RequestTimeout
	return func() Result {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		coins, err := api.Markets(ctx, nil)
		if err == nil && snap != nil {
			if serr := snap.Save(ctx, coins, time.Now()); serr != nil {
				log.Warn("saving market snapshot", "error", serr)
			}
		}
		return marketsResult{gen: gen, coins: coins, err: err}
	}
}

// LoadChart loads the chart for the effective selection and range. Without
// force it does nothing when that chart is loading, fresh or failed. A new
// request cancels the one in flight.
func (b *Board) LoadChart(force bool) Job {
	id := b.EffectiveSelection()
	if id == "" {
		b.stopChart()
		b.chart.reset()
		b.chartKey = chartKey{}
		return nil
	}
	key := chartKey{id: id, days: b.days}
	now := b.now()
	if !force && key == b.chartKey &&
		(b.chart.Loading || b.chart.Err != nil || b.chart.Fresh(now, b.cfg.ChartStale)) {
		return nil
	}
	if key != b.chartKey {
		b.chart.reset()
		b.chartKey = key
		if !force {
			if v, at, ok := b.cache.get(key.String(), b.cfg.ChartStale, now); ok {
				b.stopChart()
				b.chart.finish(v.(domain.Chart), nil, at)
				return nil
			}
		}
	}

	b.stopChart()
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.RequestTimeout)
	b.cancelChart = cancel
	gen := b.chart.begin()
	api := b.api
	return func() Result {
		defer cancel()
		chart, err := api.Chart(ctx, key.id, key.days)
		return chartResult{gen: gen, key: key, chart: chart, err: err}
	}
}

// LoadNews loads the news list. News is only shown in the home view.
func (b *Board) LoadNews(force bool) Job {
	if b.onlyWatched {
		return nil
	}
	now := b.now()
	if !force && b.newsKey == newsKey &&
		(b.news.Loading || b.news.Err != nil || b.news.Fresh(now, b.cfg.NewsStale)) {
		return nil
	}
	if !force {
		if v, at, ok := b.cache.get(newsKey, b.cfg.NewsStale, now); ok {
			b.newsKey = newsKey
			b.news.finish(v.([]domain.NewsItem), nil, at)
			return nil
		}
	}
	b.newsKey = newsKey
	gen := b.news.begin()
	api, timeout := b.api, b.cfg.RequestTimeout
	return func() Result {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		items, err := api.News(ctx, nil)
		return newsResult{gen: gen, key: newsKey, items: news.Prepare(items), err: err}
	}
}

// CheckPing pings the API.
func (b *Board) CheckPing() Job {
	if b.ping.Loading {
		return nil
	}
	gen := b.ping.begin()
	api, timeout := b.api, b.cfg.RequestTimeout
	return func() Result {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		p, err := api.Ping(ctx)
		return pingResult{gen: gen, ping: p, err: err}
	}
}

// SyncWatchlist pulls the server watch-list into the local one. Signed out
// it does nothing.
func (b *Board) SyncWatchlist() Job {
	if !b.auth.Authenticated() {
		return nil
	}
	gen, epoch := b.sync.begin(), b.rec.Epoch()
	return b.watchJob(gen, opSync, "", func(ctx context.Context) (bool, error) {
		return b.rec.SyncAt(ctx, epoch)
	})
}

// Select makes id the explicit selection.
func (b *Board) Select(id string) []Job {
	b.explicit = id
	return b.derive()
}

// MoveSelection selects the visible row delta rows away from the effective
// selection.
func (b *Board) MoveSelection(delta int) []Job {
	id := selection.Step(b.Visible(), b.EffectiveSelection(), delta)
	if id == "" {
		return nil
	}
	return b.Select(id)
}

// SetDays changes the chart range. Invalid ranges are ignored.
func (b *Board) SetDays(r domain.ChartRange) []Job {
	if !r.Valid() {
		return nil
	}
	b.days = r
	return b.derive()
}

// ShowHome leaves the watch-list view. The explicit selection goes back to
// the default coin.
func (b *Board) ShowHome() []Job {
	if b.onlyWatched {
		b.onlyWatched = false
		b.explicit = b.cfg.DefaultCoin
	}
	return b.derive()
}

// ShowWatchlist enters the watch-list view. Signed out it starts a login
// instead and stays on the home view.
func (b *Board) ShowWatchlist() []Job {
	if !b.auth.Authenticated() {
		b.notice = "Sign in to see your watchlist."
		return []Job{b.Login()}
	}
	b.onlyWatched = true
	return b.derive()
}

// ToggleWatch stars or unstars id on the server. Signed out it starts a
// login and changes nothing.
func (b *Board) ToggleWatch(id string) []Job {
	if id == "" {
		return nil
	}
	if !b.auth.Authenticated() {
		b.notice = "Sign in to star coins."
		return []Job{b.Login()}
	}
	gen, epoch := b.sync.begin(), b.rec.Epoch()
	return []Job{b.watchJob(gen, opToggle, id, func(ctx context.Context) (bool, error) {
		return b.rec.ToggleWatchAt(ctx, epoch, id)
	})}
}

// TogglePin pins or unpins id. Pinning a coin that is not starred needs a
// signed-in user and stars it on the server too.
func (b *Board) TogglePin(id string) []Job {
	if id == "" {
		return nil
	}
	if b.lists.IsWatched(id) {
		b.lists.TogglePin(id)
		return b.derive()
	}
	if !b.auth.Authenticated() {
		b.notice = "Sign in to pin coins."
		return []Job{b.Login()}
	}
	gen, epoch := b.sync.begin(), b.rec.Epoch()
	return []Job{b.watchJob(gen, opPin, id, func(ctx context.Context) (bool, error) {
		return b.rec.TogglePinAt(ctx, epoch, id)
	})}
}

// ClearWatchlist empties the local lists at once and, when signed in,
// removes every coin from the server list.
func (b *Board) ClearWatchlist() []Job {
	ids := b.lists.Watchlist()
	b.lists.Clear()
	if b.onlyWatched {
		b.explicit = b.cfg.DefaultCoin
	}
	jobs := b.derive()
	if b.auth.Authenticated() && len(ids) > 0 {
		gen, epoch := b.sync.begin(), b.rec.Epoch()
		jobs = append(jobs, b.watchJob(gen, opClear, "", func(ctx context.Context) (bool, error) {
			return true, b.rec.RemoveAllAt(ctx, epoch, ids)
		}))
	}
	return jobs
}

// Login signs in through the identity provider.
func (b *Board) Login() Job {
	provider, timeout := b.auth, b.cfg.RequestTimeout
	return func() Result {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return authResult{err: provider.Login(ctx)}
	}
}

// Logout signs out, then clears the local lists, the chart cache, the
// explicit selection and the watch-list view. Watch-list jobs dispatched
// earlier make no further local change.
func (b *Board) Logout() []Job {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.RequestTimeout)
	if err := b.auth.Logout(ctx); err != nil {
		b.log.Warn("signing out", "error", err)
	}
	cancel()

	b.rec.Logout()
	b.cache.clear()
	b.explicit = ""
	b.onlyWatched = false
	b.sync.reset()
	b.notice = ""
	return b.derive()
}

// MoreNews reveals another page of news.
func (b *Board) MoreNews() {
	if b.HasMoreNews() {
		b.newsLimit += b.cfg.NewsPageSize
	}
}

// LessNews collapses news back to one page.
func (b *Board) LessNews() {
	b.newsLimit = b.cfg.NewsPageSize
}

// HandlePrefsEvent recomputes the view after a preference changed, locally
// or in another instance.
func (b *Board) HandlePrefsEvent(e prefs.Event) []Job {
	if e.Key != watchlist.KeyWatchlist && e.Key != watchlist.KeyPinned {
		return nil
	}
	if e.External {
		b.log.Debug("preference changed elsewhere", "key", e.Key)
	}
	return b.derive()
}

// Apply records the outcome of a Job and returns any follow-up jobs.
func (b *Board) Apply(r Result) []Job {
	now := b.now()
	switch r := r.(type) {
	case pingResult:
		if !b.ping.current(r.gen) {
			return nil
		}
		b.ping.finish(r.ping, r.err, now)

	case snapshotResult:
		if r.err != nil {
			b.log.Warn("loading market snapshot", "error", r.err)
			return nil
		}
		if b.markets.loaded || r.snap.Empty() {
			return nil
		}
		b.markets.Data = r.snap.Coins
		b.markets.Stale = true
		b.markets.UpdatedAt = r.snap.SavedAt
		return b.derive()

	case marketsResult:
		if !b.markets.current(r.gen) {
			return nil
		}
		if r.err != nil {
			b.log.Warn("refreshing markets", "error", r.err)
		} else {
			b.cache.put(marketsKey, r.coins, now)
		}
		b.markets.finish(r.coins, r.err, now)
		return b.derive()

	case chartResult:
		if !b.chart.current(r.gen) || r.key != b.chartKey {
			b.log.Debug("discarding superseded chart", "coin", r.key.id, "days", int(r.key.days))
			return nil
		}
		b.cancelChart = nil
		if r.err == nil {
			b.cache.put(r.key.String(), r.chart, now)
		}
		b.chart.finish(r.chart, r.err, now)

	case newsResult:
		if !b.news.current(r.gen) || r.key != b.newsKey {
			return nil
		}
		if r.err == nil {
			b.cache.put(r.key, r.items, now)
		}
		b.news.finish(r.items, r.err, now)

	case watchResult:
		if !b.sync.current(r.gen) {
			return b.derive()
		}
		if errors.Is(r.err, watchlist.ErrLoginRequired) {
			b.sync.finish(nil, nil, now)
			b.notice = "Sign in to change your watchlist."
			return append([]Job{b.Login()}, b.derive()...)
		}
		if r.err != nil {
			b.log.Warn("watchlist operation failed", "op", r.op, "coin", r.id, "error", r.err)
		}
		b.sync.finish(b.lists.Watchlist(), r.err, now)
		return b.derive()

	case authResult:
		return b.applyAuth(r)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (b *Board) applyAuth(r authResult) []Job {
	if r.err != nil {
		b.notice = fmt.Sprintf("Login failed: %v", r.err)
		return nil
	}
	b.notice = ""
	b.log.Info("signed in", "user", b.auth.User())
	return appendJob(b.derive(), b.SyncWatchlist())
}

// derive brings the chart and news panels in line with the current view.
func (b *Board) derive() []Job {
	if b.onlyWatched && !b.auth.Authenticated() {
		b.onlyWatched = false
	}
	var jobs []Job
	jobs = appendJob(jobs, b.LoadChart(false))
	jobs = appendJob(jobs, b.LoadNews(false))
	return jobs
}

func (b *Board) stopChart() {
	if b.cancelChart != nil {
		b.cancelChart()
		b.cancelChart = nil
	}
}

func (b *Board) loadSnapshot() Job {
	snap := b.snap
	return func() Result {
		s, err := snap.Load(context.Background())
		return snapshotResult{snap: s, err: err}
	}
}

func (b *Board) watchJob(gen uint64, op watchOp, id string, fn func(context.Context) (bool, error)) Job {
	timeout := b.cfg.RequestTimeout
	return func() Result {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		changed, err := fn(ctx)
		return watchResult{gen: gen, op: op, id: id, changed: changed, err: err}
	}
}

func appendJob(jobs []Job, j Job) []Job {
	if j == nil {
		return jobs
	}
	return append(jobs, j)
}
