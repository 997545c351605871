package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/eve-marketwatch/pkg/auth"
	"github.com/Sternrassler/eve-marketwatch/pkg/client"
	"github.com/Sternrassler/eve-marketwatch/pkg/config"
	"github.com/Sternrassler/eve-marketwatch/pkg/logging"
	"github.com/Sternrassler/eve-marketwatch/pkg/metrics"
	"github.com/Sternrassler/eve-marketwatch/pkg/ratelimit"
	"github.com/Sternrassler/eve-marketwatch/pkg/search"
	"github.com/Sternrassler/eve-marketwatch/pkg/store"
	"github.com/Sternrassler/eve-marketwatch/pkg/watcher"
	"github.com/Sternrassler/eve-marketwatch/pkg/worker"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newWatchCmd() *cobra.Command {
	var configPath, envFile string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the market watcher",
		Long: `Run the market watcher until interrupted.

Settings come from the optional YAML file given with --config and from
MARKETWATCH_* environment variables, which may also be placed in a .env file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), configPath, envFile)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before the configuration")
	return cmd
}

func runWatch(parent context.Context, configPath, envFile string) error {
	if parent == nil {
		parent = context.Background()
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	_, logFile := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: os.Stderr,
		File: logging.FileConfig{
			Dir:        cfg.Logging.Dir,
			MaxSize:    cfg.Logging.MaxSize,
			MaxBackups: cfg.Logging.MaxBackups,
			Shell:      cfg.Logging.Shell,
		},
	})
	defer logFile.Close()
	logger := logging.NewLogger("main")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := newRedisClient(cfg.Redis)
	defer rdb.Close()

	st := store.New(rdb)
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Str("addr", rdb.Options().Addr).Int("db", cfg.Redis.DB).Msg("Connected to Redis")

	clientCfg := client.Config{
		BaseURL:       cfg.ESI.BaseURL,
		UserAgent:     cfg.ESI.UserAgent,
		Timeout:       cfg.ESI.Timeout,
		RateLimit:     cfg.ESI.RateLimit,
		Burst:         cfg.ESI.Burst,
		RetryAttempts: cfg.ESI.RetryAttempts,
		RetryBackoff:  cfg.ESI.RetryBackoff,
		Gate:          ratelimit.NewGate(rdb, logging.NewLogger("ratelimit")),
	}

	var refresher watcher.TokenRefresher
	authCfg := auth.Config{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		RefreshToken: cfg.Auth.RefreshToken,
		TokenURL:     cfg.Auth.TokenURL,
	}
	if authCfg.Enabled() {
		provider := auth.NewProvider(authCfg, logging.NewLogger("auth"))
		clientCfg.Tokens = provider
		refresher = provider
	} else {
		logger.Info().Msg("No SSO credentials, structures will be skipped")
	}

	esi, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create esi client: %w", err)
	}

	pool, err := worker.New(worker.Config{Size: cfg.Pool.Size, Client: esi, Store: st})
	if err != nil {
		return err
	}

	var index *search.Index
	if cfg.Features.Index {
		index = search.New(logging.NewLogger("search"))
		defer index.Close()
	}

	staticTime, groupTime := cfg.Schedule()
	w, err := watcher.New(watcher.Config{
		Pool:       pool,
		Store:      st,
		Auth:       refresher,
		Index:      index,
		Interval:   cfg.Fetch.Interval,
		Poll:       cfg.Fetch.Poll,
		StaticTime: staticTime,
		GroupTime:  groupTime,
		Features:   cfg.WatcherFeatures(),
	})
	if err != nil {
		return err
	}

	pool.Start(ctx)
	defer pool.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Run(gctx); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr)
		g.Go(func() error {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info().Msg("Shutting down")
	return err
}

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	}
	if cfg.Socket != "" {
		opts.Network = "unix"
		opts.Addr = cfg.Socket
	}
	return redis.NewClient(opts)
}
