package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Mirko-ez/biblioteca-backend/internal/util"
	"github.com/Mirko-ez/biblioteca-backend/pkg/store"
	"github.com/Mirko-ez/biblioteca-backend/pkg/tokens"
	"github.com/Mirko-ez/biblioteca-backend/services/library/internal/config"
)

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "library",
		Short:         "Biblioteca backend: accounts, sessions and book catalogue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $LIBRARY_CONFIG or config.yaml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newPurgeTokensCmd())
	return cmd
}

// loadConfig resolves and loads the config, then installs the default logger.
func loadConfig() (config.FileConfig, *slog.Logger, error) {
	cfg, err := config.Load(config.ResolvePath(configFile))
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, util.InitLogger(cfg.LogLevel, cfg.LogFormat), nil
}

// openStore returns the configured store and a close func.
func openStore(cfg config.FileConfig) (store.Store, func() error, error) {
	if cfg.DatabaseDriver == config.DriverMemory {
		return store.NewMemoryStore(), func() error { return nil }, nil
	}
	db, err := store.NewGormStore(store.GormOptions{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: config.Duration(cfg.DBConnMaxLifetime),
		SlowThreshold:   config.Duration(cfg.DBSlowThreshold),
	})
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

func newAccessTokens(cfg config.FileConfig) (*tokens.AccessTokens, error) {
	opts := tokens.Options{
		TTL:      config.Duration(cfg.AccessTokenTTL),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   config.Duration(cfg.JWTLeeway),
	}
	if cfg.JWTPrivateKeyPath != "" {
		return tokens.NewRS256FromPEM(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTKeyID, cfg.JWTVerifyPublicKeys, opts)
	}
	return tokens.NewHS256([]byte(cfg.JWTSecret), opts)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseDriver == config.DriverMemory {
				return errors.New("migrate requires a postgres or mysql database")
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer closeStore()
			if err := st.(*store.GormStore).Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations completed", "driver", cfg.DatabaseDriver)
			return nil
		},
	}
}

func newPurgeTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-tokens",
		Short: "Delete expired refresh tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer closeStore()
			access, err := newAccessTokens(cfg)
			if err != nil {
				return fmt.Errorf("init access tokens: %w", err)
			}
			svc := tokens.NewService(access, st, config.Duration(cfg.RefreshTokenTTL))
			n, err := svc.PurgeExpired(cmd.Context())
			if err != nil {
				return fmt.Errorf("purge refresh tokens: %w", err)
			}
			logger.Info("expired refresh tokens purged", "deleted", n)
			return nil
		},
	}
}
