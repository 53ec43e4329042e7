package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tinytelemetry/journalgate/internal/agent"
)

// Build variables - set by ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
)

type agentConfig struct {
	ServerURL   string        `mapstructure:"server-url"`
	Identifiers []string      `mapstructure:"identifiers"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Journalctl  string        `mapstructure:"journalctl"`
	MetricsAddr string        `mapstructure:"metrics-addr"`
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "journalgate-agent",
		Short:         "Follows the systemd journal and ships auth events to journalgate.",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgentConfig(v, cmd)
			if err != nil {
				return err
			}
			return runAgent(cmd.Context(), cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("server-url", agent.DefaultServerURL, "gateway ingest endpoint")
	flags.StringSlice("identifiers", agent.DefaultIdentifiers, "SYSLOG_IDENTIFIER values to forward")
	flags.Int("concurrency", agent.DefaultConcurrency, "maximum in-flight POSTs")
	flags.Duration("timeout", agent.DefaultSendTimeout, "per-request timeout")
	flags.String("journalctl", "journalctl", "journalctl binary")
	flags.String("metrics-addr", "", "address to serve /metrics on (disabled when empty)")

	return cmd
}

func loadAgentConfig(v *viper.Viper, cmd *cobra.Command) (agentConfig, error) {
	var cfg agentConfig

	v.SetEnvPrefix("JOURNALGATE_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
		return cfg, err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if cfg.ServerURL == "" {
		return cfg, errors.New("server-url must be set")
	}
	if cfg.Concurrency <= 0 {
		return cfg, fmt.Errorf("invalid concurrency: %d", cfg.Concurrency)
	}
	return cfg, nil
}

func runAgent(ctx context.Context, cfg agentConfig) error {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("agent: metrics server error: %v", err)
			}
		}()
		defer srv.Close()
	}

	src, err := agent.StartJournal(ctx, cfg.Journalctl, agent.DefaultMaxLineSize)
	if err != nil {
		return err
	}

	a := agent.New(
		agent.Config{Concurrency: cfg.Concurrency},
		src,
		agent.NewProcessor(cfg.Identifiers, agent.NewSystemResolver()),
		agent.NewShipper(cfg.ServerURL, cfg.Timeout),
		reg,
	)

	log.Printf("agent: forwarding %s to %s", strings.Join(cfg.Identifiers, ","), cfg.ServerURL)
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Printf("agent: stopped")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
