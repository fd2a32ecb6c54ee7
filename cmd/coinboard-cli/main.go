package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"coinboard/internal/auth"
	"coinboard/internal/config"
	"coinboard/internal/dashboard"
	"coinboard/internal/domain"
	"coinboard/internal/news"
	"coinboard/internal/prefs"
	"coinboard/internal/selection"
	"coinboard/internal/snapshot"
	"coinboard/internal/util"
	"coinboard/internal/watchlist"
	"coinboard/pkg/coinboard"
)

const version = "0.1.0"

// app holds the dependencies shared by the subcommands.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	client *coinboard.Client
	auth   *auth.StaticProvider
	store  *prefs.Store
	rec    *watchlist.Reconciler
	snap   *snapshot.Store
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	backend, err := prefs.Open(ctx, cfg.Prefs)
	if err != nil {
		return nil, fmt.Errorf("opening preferences: %w", err)
	}
	store := prefs.NewStore(ctx, backend, log)
	client := coinboard.NewClient(cfg.API.BaseURL,
		coinboard.WithTimeout(cfg.API.Timeout),
		coinboard.WithRateLimit(cfg.API.RateLimitPerMin),
		coinboard.WithRetries(cfg.API.Retries, 500*time.Millisecond),
	)
	provider := auth.NewStaticProvider(cfg.Auth.Token, cfg.Auth.User, cfg.Auth.Token != "")
	return &app{
		cfg:    cfg,
		log:    log,
		client: client,
		auth:   provider,
		store:  store,
		rec:    watchlist.NewReconciler(watchlist.NewLists(store), client, provider, log),
		snap:   snapshot.NewStore(cfg.Snapshot.Path),
	}, nil
}

func (a *app) Close() error { return a.store.Close() }

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: coinboard-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version                 Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  ping                    Check the API\n")
		fmt.Fprintf(os.Stderr, "  markets [-watched]      List markets\n")
		fmt.Fprintf(os.Stderr, "  chart [-days N] <coin>  Show a price chart\n")
		fmt.Fprintf(os.Stderr, "  news [-n N] [coin...]   Show headlines\n")
		fmt.Fprintf(os.Stderr, "  watchlist [list|sync|add|rm|pin|clear] [coin]\n")
		fmt.Fprintf(os.Stderr, "                          Manage the watchlist\n")
		fmt.Fprintf(os.Stderr, "  prefs                   Dump stored preferences\n")
		fmt.Fprintf(os.Stderr, "  snapshot                Show the cached market snapshot\n")
		fmt.Fprintf(os.Stderr, "\nThe config file is read from $COINBOARD_CONFIG or %s.\n\n", defaultConfigPath())
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "version" {
		fmt.Printf("coinboard-cli %s\n", version)
		return
	}
	run, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(1)
	}

	cfgPath := defaultConfigPath()
	if p := os.Getenv("COINBOARD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	err = run(ctx, a, args, os.Stdout)
	a.Close()
	if err != nil {
		if isUsage(err) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	return filepath.Join(config.DefaultDir(), "coinboard.yaml")
}

type command func(ctx context.Context, a *app, args []string, w io.Writer) error

var commands = map[string]command{
	"ping":      cmdPing,
	"markets":   cmdMarkets,
	"chart":     cmdChart,
	"news":      cmdNews,
	"watchlist": cmdWatchlist,
	"prefs":     cmdPrefs,
	"snapshot":  cmdSnapshot,
}

func cmdPing(ctx context.Context, a *app, _ []string, w io.Writer) error {
	p, err := a.client.Ping(ctx)
	if err != nil {
		return err
	}
	status := "down"
	if p.OK {
		status = "ok"
	}
	fmt.Fprintf(w, "%s  %s  %s\n", a.client.BaseURL(), status, p.Message)
	return nil
}

func cmdMarkets(ctx context.Context, a *app, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("markets", flag.ContinueOnError)
	watched := fs.Bool("watched", false, "only show watched coins")
	if err := fs.Parse(args); err != nil {
		return err
	}

	coins, err := a.client.Markets(ctx, nil)
	if err != nil {
		a.log.Warn("fetching markets, falling back to snapshot", "error", err)
		snap, serr := a.snap.Load(ctx)
		if serr != nil || snap.Empty() {
			return err
		}
		fmt.Fprintf(w, "(offline, snapshot from %s)\n", dashboard.FormatAge(snap.SavedAt, time.Now()))
		coins = snap.Coins
	} else if serr := a.snap.Save(ctx, coins, time.Now()); serr != nil {
		a.log.Warn("saving market snapshot", "error", serr)
	}

	lists := a.rec.Lists()
	if *watched {
		if a.auth.Authenticated() {
			if _, err := a.rec.Sync(ctx); err != nil {
				a.log.Warn("syncing watchlist", "error", err)
			}
		}
		coins = selection.Visible(coins, true, lists.Watchlist())
	}
	if len(coins) == 0 {
		if *watched {
			fmt.Fprintln(w, "Your watchlist is empty.")
		} else {
			fmt.Fprintln(w, "No markets to show.")
		}
		return nil
	}

	fmt.Fprintf(w, "%-2s %-4s %-6s %-20s %14s %9s %10s\n", "", "#", "SYMBOL", "NAME", "PRICE", "24H", "MKT CAP")
	for i, c := range coins {
		mark := "  "
		switch {
		case lists.IsPinned(c.ID):
			mark = "★^"
		case lists.IsWatched(c.ID):
			mark = "★ "
		}
		fmt.Fprintf(w, "%s %-4d %-6s %-20s %14s %9s %10s\n",
			mark, i+1, strings.ToUpper(c.Symbol), c.Name,
			dashboard.FormatPrice(c.CurrentPrice),
			dashboard.FormatChange(c.Change24h),
			dashboard.FormatMarketCap(c.MarketCap))
	}
	return nil
}

func cmdChart(ctx context.Context, a *app, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("chart", flag.ContinueOnError)
	days := fs.Int("days", a.cfg.UI.DefaultDays, "range in days (1, 7 or 30)")
	width := fs.Int("width", 60, "sparkline width")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id := a.cfg.UI.DefaultCoin
	if fs.NArg() > 0 {
		id = fs.Arg(0)
	}
	r, err := domain.ParseChartRange(*days)
	if err != nil {
		return err
	}

	chart, err := a.client.Chart(ctx, id, r)
	if err != nil {
		return err
	}
	if len(chart.Prices) == 0 {
		fmt.Fprintln(w, "No price data.")
		return nil
	}
	s := dashboard.Stats(chart.Prices)
	fmt.Fprintf(w, "%s  %s  %d points\n", id, r, s.Points)
	fmt.Fprintln(w, dashboard.Sparkline(chart.Prices, *width))
	fmt.Fprintf(w, "open %s  close %s  high %s  low %s  change %+.2f%%\n",
		dashboard.FormatPrice(s.Open), dashboard.FormatPrice(s.Close),
		dashboard.FormatPrice(s.High), dashboard.FormatPrice(s.Low), s.Change*100)
	if g := dashboard.FormatGain(s.MaxGain); g != "" {
		fmt.Fprintf(w, "best %s", g)
		if l := dashboard.FormatLoss(s.MaxLoss); l != "" {
			fmt.Fprintf(w, "  worst %s", l)
		}
		fmt.Fprintln(w)
	} else if l := dashboard.FormatLoss(s.MaxLoss); l != "" {
		fmt.Fprintf(w, "worst %s\n", l)
	}
	return nil
}

func cmdNews(ctx context.Context, a *app, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("news", flag.ContinueOnError)
	n := fs.Int("n", a.cfg.UI.NewsPageSize, "number of headlines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	coins := fs.Args()

	items, err := a.client.News(ctx, coins)
	if err != nil {
		return err
	}
	items = news.FilterByCoins(news.Prepare(items), coins)
	if len(items) == 0 {
		fmt.Fprintln(w, "No news.")
		return nil
	}
	now := time.Now()
	for _, it := range news.Page(items, *n) {
		fmt.Fprintln(w, it.Title)
		meta := dashboard.FormatAge(it.PublishedAt(), now)
		if it.Source != "" {
			meta = it.Source + " · " + meta
		}
		fmt.Fprintf(w, "  %s\n  %s\n", meta, it.Link)
		if it.Summary != "" {
			fmt.Fprintf(w, "  %s\n", it.Summary)
		}
	}
	if news.HasMore(items, *n) {
		fmt.Fprintf(w, "(%d more)\n", len(items)-*n)
	}
	return nil
}

func cmdWatchlist(ctx context.Context, a *app, args []string, w io.Writer) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	lists := a.rec.Lists()

	needID := func() (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("%s needs a coin id", sub)
		}
		return args[0], nil
	}
	sync := func() error {
		if !a.auth.Authenticated() {
			return nil
		}
		_, err := a.rec.Sync(ctx)
		return err
	}

	switch sub {
	case "list":
		if err := sync(); err != nil {
			a.log.Warn("syncing watchlist", "error", err)
		}
	case "sync":
		if !a.auth.Authenticated() {
			return watchlist.ErrLoginRequired
		}
		changed, err := a.rec.Sync(ctx)
		if err != nil {
			return err
		}
		if !changed {
			fmt.Fprintln(w, "already up to date")
		}
	case "add", "rm":
		id, err := needID()
		if err != nil {
			return err
		}
		if err := sync(); err != nil {
			return err
		}
		if lists.IsWatched(id) == (sub == "add") {
			break
		}
		if _, err := a.rec.ToggleWatch(ctx, id); err != nil {
			return err
		}
	case "pin":
		id, err := needID()
		if err != nil {
			return err
		}
		if err := sync(); err != nil {
			return err
		}
		if _, err := a.rec.TogglePin(ctx, id); err != nil {
			return err
		}
	case "clear":
		if err := a.rec.Clear(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown watchlist command %q", sub)
	}

	ids := lists.Watchlist()
	if len(ids) == 0 {
		fmt.Fprintln(w, "Your watchlist is empty.")
		return nil
	}
	for _, id := range ids {
		mark := " "
		if lists.IsPinned(id) {
			mark = "^"
		}
		fmt.Fprintf(w, "%s %s\n", mark, id)
	}
	return nil
}

func cmdPrefs(_ context.Context, a *app, _ []string, w io.Writer) error {
	snap := a.store.Snapshot()
	if len(snap) == 0 {
		fmt.Fprintf(w, "no preferences stored (%s backend)\n", a.cfg.Prefs.Backend)
		return nil
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s = %s\n", k, snap[k])
	}
	return nil
}

func cmdSnapshot(ctx context.Context, a *app, _ []string, w io.Writer) error {
	snap, err := a.snap.Load(ctx)
	if err != nil {
		return err
	}
	if snap.Empty() {
		fmt.Fprintf(w, "no snapshot at %s\n", a.snap.Path())
		return nil
	}
	fmt.Fprintf(w, "%s: %d coins, saved %s\n", a.snap.Path(), len(snap.Coins), dashboard.FormatAge(snap.SavedAt, time.Now()))
	return nil
}

// isUsage reports whether err came from flag parsing, which already printed
// its own message.
func isUsage(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
