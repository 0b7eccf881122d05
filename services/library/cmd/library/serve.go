package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Mirko-ez/biblioteca-backend/internal/metrics"
	"github.com/Mirko-ez/biblioteca-backend/internal/ratelimit"
	"github.com/Mirko-ez/biblioteca-backend/internal/util"
	"github.com/Mirko-ez/biblioteca-backend/pkg/storage"
	"github.com/Mirko-ez/biblioteca-backend/pkg/store"
	"github.com/Mirko-ez/biblioteca-backend/pkg/tokens"
	"github.com/Mirko-ez/biblioteca-backend/services/library/internal/app"
	"github.com/Mirko-ez/biblioteca-backend/services/library/internal/config"
	"github.com/Mirko-ez/biblioteca-backend/services/library/internal/security"
	"github.com/Mirko-ez/biblioteca-backend/services/library/internal/server"
)

const rateWindow = time.Minute

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.FileConfig, logger *slog.Logger) error {
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("close store", "err", err)
		}
	}()
	if gs, ok := st.(*store.GormStore); ok && cfg.AutoMigrate {
		if err := gs.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database schema up to date", "driver", cfg.DatabaseDriver)
	}
	if cfg.DatabaseDriver == config.DriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
	}

	access, err := newAccessTokens(cfg)
	if err != nil {
		return fmt.Errorf("init access tokens: %w", err)
	}
	sessions := tokens.NewService(access, st, config.Duration(cfg.RefreshTokenTTL))

	var (
		limiters server.Limiters
		alerter  *security.Alerter
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		if limiters, err = newLimiters(rdb, cfg); err != nil {
			return err
		}
		if alerter, err = security.NewAlerter(rdb, security.DefaultPrefix); err != nil {
			return fmt.Errorf("init alerter: %w", err)
		}
	} else {
		logger.Warn("redis not configured; rate limiting and security alerts disabled")
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		mc, err := storage.NewMinioStore(ctx, storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.MinioRegion,
		})
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
		objects = mc
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return err
	}

	appCore, err := app.New(app.Config{
		Store:          st,
		Tokens:         sessions,
		Objects:        objects,
		TextPageSize:   cfg.TextPageSize,
		ListPageSize:   cfg.ListPageSize,
		PasswordCost:   cfg.BcryptCost,
		DownloadURLTTL: config.Duration(cfg.DownloadURLTTL),
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Limiters:       limiters,
		Alerter:        alerter,
		Metrics:        metrics.New(),
		TrustedProxies: trusted,
		BasePath:       cfg.BasePath,
		CORSOrigins:    cfg.CORSOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("library server listening", "addr", addr, "base_path", cfg.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.ShutdownTimeout))
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newLimiters(rdb *redis.Client, cfg config.FileConfig) (server.Limiters, error) {
	var out server.Limiters
	routes := []struct {
		name  string
		limit int
		dst   **ratelimit.FixedWindowLimiter
	}{
		{"register", cfg.RegisterRateLimitPerMinute, &out.Register},
		{"login", cfg.LoginRateLimitPerMinute, &out.Login},
		{"google", cfg.GoogleRateLimitPerMinute, &out.Google},
		{"refresh", cfg.RefreshRateLimitPerMinute, &out.Refresh},
	}
	for _, rt := range routes {
		// Zero disables the limiter for that route.
		if rt.limit == 0 {
			continue
		}
		l, err := ratelimit.NewFixedWindowLimiter(rdb, ratelimit.DefaultPrefix+":"+rt.name, rt.limit, rateWindow)
		if err != nil {
			return out, fmt.Errorf("init %s rate limiter: %w", rt.name, err)
		}
		*rt.dst = l
	}
	return out, nil
}
