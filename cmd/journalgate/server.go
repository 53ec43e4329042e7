package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tinytelemetry/journalgate/internal/duckdb"
	"github.com/tinytelemetry/journalgate/internal/elastic"
	"github.com/tinytelemetry/journalgate/internal/gateway"
	"github.com/tinytelemetry/journalgate/internal/httpserver"
	"github.com/tinytelemetry/journalgate/internal/metrics"
	"github.com/tinytelemetry/journalgate/internal/model"
	"golang.org/x/sync/errgroup"
)

// runServer opens the store, runs the startup gate and serves the HTTP API
// until SIGINT/SIGTERM.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger(cfg.LogFile)
	defer cleanupLogger()
	configureGinMode(cfg.Development())

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize %s store: %w", cfg.Store, err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	apiServer := httpserver.NewServer(httpserver.Config{
		Addr:          cfg.APIAddr,
		Index:         cfg.Index,
		Development:   cfg.Development(),
		MaxBodyBytes:  cfg.MaxBodyBytes,
		MaxSearchSize: cfg.MaxSearchSize,
	}, store, m, reg)
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	defer apiServer.Stop()

	// The store gate runs after the listener is up, as requests may
	// arrive before the index is ready.
	startCtx, startCancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	storeUp := gateway.Prepare(startCtx, store, cfg.Index, model.AppLogsSchema)
	startCancel()
	if storeUp {
		m.StoreUp.Set(1)
	} else {
		m.StoreUp.Set(0)
	}

	printStartupBanner(cfg, storeUp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-sigCh:
			fmt.Println("\nShutting down gracefully...")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}
	return nil
}

func openStore(cfg appConfig) (model.IndexStore, error) {
	switch cfg.Store {
	case backendElastic:
		return elastic.NewStore(elastic.Config{
			Addresses:    cfg.ElasticAddresses,
			Username:     cfg.ElasticUsername,
			Password:     cfg.ElasticPassword,
			QueryTimeout: cfg.QueryTimeout,
		})
	default:
		return duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	}
}

// configureGinMode keeps gin's debug route dump and warnings out of
// production output.
func configureGinMode(development bool) {
	if development {
		gin.SetMode(gin.DebugMode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}

func configureRuntimeLogger(path string) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stderr)

	if path == "" {
		return func() {}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("server: cannot create log directory, logging to stderr: %v", err)
		return func() {}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("server: cannot open log file, logging to stderr: %v", err)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig, storeUp bool) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	down := red.Render("●")
	dot := dim.Render("●")

	separator := dim.Render("    ─────────────────────────────────")

	lines := []string{
		"",
		cyan.Bold(true).Render("    journalgate"),
		"    " + dim.Render("v"+version),
		"",
		separator,
		"",
		bold.Render("    Gateway"),
		"",
		fmt.Sprintf("    %s  Ingest         %s", check, cyan.Render("POST "+cfg.APIAddr+"/api/logs/storage")),
		fmt.Sprintf("    %s  Search         %s", check, cyan.Render("GET  "+cfg.APIAddr+"/api/logs/search")),
		fmt.Sprintf("    %s  Metrics        %s", check, cyan.Render("GET  "+cfg.APIAddr+"/metrics")),
		"",
		bold.Render("    Storage"),
		"",
	}

	storeStatus := check
	storeNote := "reachable"
	if !storeUp {
		storeStatus = down
		storeNote = "unreachable, writes will be dropped"
	}
	location := shortenPath(cfg.DBPath)
	if cfg.Store == backendElastic {
		location = strings.Join(cfg.ElasticAddresses, ",")
	}
	lines = append(lines,
		fmt.Sprintf("    %s  %-14s %s", storeStatus, cfg.Store, dim.Render(location)),
		fmt.Sprintf("    %s  Index          %s", storeStatus, dim.Render(cfg.Index+" ("+storeNote+")")),
		"",
		bold.Render("    Runtime"),
		"",
		fmt.Sprintf("    %s  Mode           %s", check, dim.Render(cfg.Mode)),
	)

	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines,
		"",
		separator,
		"",
		"    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"),
		"",
	)

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
