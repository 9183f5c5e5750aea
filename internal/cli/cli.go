// Package cli wires configuration, the store and the HTTP server into the
// stockroom commands:
//
//	stockroom serve    run the API, event stream and print queue
//	stockroom agent    run a printer agent against a server
//	stockroom stream   print live events, reconnecting on failure
//	stockroom migrate  create the schema and exit
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/example/stockroom/api-go/internal/agent"
	"github.com/example/stockroom/api-go/internal/allocator"
	"github.com/example/stockroom/api-go/internal/blob"
	"github.com/example/stockroom/api-go/internal/config"
	"github.com/example/stockroom/api-go/internal/events"
	"github.com/example/stockroom/api-go/internal/httpapi"
	"github.com/example/stockroom/api-go/internal/metrics"
	"github.com/example/stockroom/api-go/internal/model"
	"github.com/example/stockroom/api-go/internal/obs"
	"github.com/example/stockroom/api-go/internal/printqueue"
	"github.com/example/stockroom/api-go/internal/sseclient"
	"github.com/example/stockroom/api-go/internal/store"
)

var configFile string

func BuildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:           "stockroom",
		Short:         "Realtime stock events and label print dispatch",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadDotEnv()
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file")

	root.AddCommand(buildServeCommand())
	root.AddCommand(buildAgentCommand())
	root.AddCommand(buildStreamCommand())
	root.AddCommand(buildMigrateCommand())
	return root
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, err
	}
	obs.InitLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func buildServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func openStore(ctx context.Context, cfg config.Config) (*store.DB, error) {
	if cfg.Store.Driver == store.DriverSQLite && cfg.Store.DataDir != "" {
		if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir data dir: %w", err)
		}
	}
	db, err := store.Open(ctx, store.Options{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	log := obs.Logger
	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("store close failed", "error", err)
		}
	}()

	var mc *metrics.Collector
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mc = metrics.NewCollector(reg)
	}

	channel := events.NewSQLChannel(db, cfg.Events.Topic, cfg.Events.Retention, cfg.Events.MaxEntries)
	channel.Logger = log
	go channel.RunJanitor(ctx, cfg.Events.Retention)

	publisher := events.NewPublisher(channel, cfg.Events.MaxEventBytes)
	publisher.Metrics = mc
	publisher.Logger = log

	alloc := allocator.New(db, map[model.SequentialField]int64{
		model.FieldBarcode: cfg.Allocator.BarcodeFloor,
		model.FieldPhotoID: cfg.Allocator.PhotoIDFloor,
		model.FieldSKU:     cfg.Allocator.SKUFloor,
	})
	alloc.Metrics = mc
	alloc.Logger = log

	queue := printqueue.New(db, cfg.Print.MaxCopies)
	queue.Metrics = mc
	queue.Logger = log

	streams, endStreams := context.WithCancel(context.Background())
	defer endStreams()

	api := httpapi.Server{
		Products:     db,
		Allocator:    alloc,
		Publisher:    publisher,
		Channel:      channel,
		PrintQueue:   queue,
		Metrics:      mc,
		PollInterval: cfg.Events.PollInterval,
		Logger:       log,
		Streams:      streams,
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.RegisterOnShutdown(endStreams)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("API listening", "addr", ln.Addr().String(), "driver", db.Driver())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func buildAgentCommand() *cobra.Command {
	var (
		server   string
		spoolDir string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Claim print jobs and spool labels for a printer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if server != "" {
				cfg.Agent.ServerURL = server
			}
			if spoolDir != "" {
				cfg.Agent.SpoolDir = spoolDir
			}
			if interval > 0 {
				cfg.Agent.PollInterval = interval
			}
			enc, err := agent.CodePage(cfg.Agent.CodePage)
			if err != nil {
				return err
			}
			a := agent.New(cfg.Agent.ServerURL, blob.LocalFS{Root: cfg.Agent.SpoolDir}, cfg.Agent.PollInterval, cfg.Agent.ClaimsPerSecond)
			a.Encoding = enc
			a.Logger = obs.Logger

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "server base URL")
	cmd.Flags().StringVar(&spoolDir, "spool-dir", "", "directory receiving rendered labels")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval when the queue is empty")
	return cmd
}

func buildStreamCommand() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Print live stock events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if url != "" {
				cfg.Stream.URL = url
			}
			client := sseclient.New(cfg.Stream.URL)
			client.Backoff = cfg.Stream.ReconnectBackoff
			client.Logger = obs.Logger

			out := json.NewEncoder(cmd.OutOrStdout())
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return client.Run(ctx, func(ev events.Event) {
				_ = out.Encode(ev)
			})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "event stream URL")
	return cmd
}

func buildMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the store schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			obs.Logger.Info("schema ready", "driver", db.Driver())
			return db.Close()
		},
	}
}

func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
