package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"coinboard/internal/auth"
	"coinboard/internal/board"
	"coinboard/internal/config"
	"coinboard/internal/domain"
	"coinboard/internal/prefs"
	"coinboard/internal/snapshot"
	"coinboard/internal/util"
	"coinboard/internal/watchlist"
	"coinboard/pkg/coinboard"
)

// retryDelay is the first backoff between API retries.
const retryDelay = 500 * time.Millisecond

func main() {
	cfgPath := filepath.Join(config.DefaultDir(), "coinboard.yaml")
	if p := os.Getenv("COINBOARD_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logPath := filepath.Join(os.TempDir(), fmt.Sprintf("coinboard-%s.log", time.Now().Format("2006-01-02")))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, logFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := prefs.Open(ctx, cfg.Prefs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening preferences: %v\n", err)
		os.Exit(1)
	}
	store := prefs.NewStore(ctx, backend, logger.With("component", "prefs"))
	defer store.Close()
	logger.Info("preferences loaded", "backend", cfg.Prefs.Backend, "keys", len(store.Snapshot()))

	go func() {
		if err := store.Run(ctx); err != nil {
			logger.Error("watching preferences", "error", err)
		}
	}()
	subID, events := store.Subscribe(64)
	defer store.Unsubscribe(subID)

	client := coinboard.NewClient(cfg.API.BaseURL,
		coinboard.WithTimeout(cfg.API.Timeout),
		coinboard.WithRateLimit(cfg.API.RateLimitPerMin),
		coinboard.WithRetries(cfg.API.Retries, retryDelay),
	)
	provider := auth.NewStaticProvider(cfg.Auth.Token, cfg.Auth.User, cfg.Auth.Token != "")
	rec := watchlist.NewReconciler(watchlist.NewLists(store), client, provider, logger.With("component", "watchlist"))

	b := board.New(board.Config{
		DefaultCoin:    cfg.UI.DefaultCoin,
		DefaultRange:   domain.ChartRange(cfg.UI.DefaultDays),
		NewsPageSize:   cfg.UI.NewsPageSize,
		MarketsStale:   cfg.Refresh.MarketsStale,
		ChartStale:     cfg.Refresh.ChartStale,
		NewsStale:      cfg.Refresh.NewsStale,
		RequestTimeout: util.RetryBudget(cfg.API.Retries, cfg.API.Timeout, retryDelay),
	}, board.Deps{
		API:        client,
		Reconciler: rec,
		Auth:       provider,
		Snapshot:   snapshot.NewStore(cfg.Snapshot.Path),
		Log:        logger.With("component", "board"),
	})
	logger.Info("starting", "api", client.BaseURL(), "signed_in", provider.Authenticated())

	p := tea.NewProgram(
		initialModel(b, events, cfg.Refresh.Markets, cancel, logger),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
