package main

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Mirko-ez/biblioteca-backend/services/library/internal/config"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "migrate", "purge-tokens"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("subcommand %q not registered: %v", name, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Fatalf("missing --config flag")
	}
}

func TestNewLimitersSkipsDisabledRoutes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.FileConfig{
		RegisterRateLimitPerMinute: 5,
		LoginRateLimitPerMinute:    10,
		RefreshRateLimitPerMinute:  20,
	}
	limiters, err := newLimiters(rdb, cfg)
	if err != nil {
		t.Fatalf("new limiters: %v", err)
	}
	if limiters.Register == nil || limiters.Login == nil || limiters.Refresh == nil {
		t.Fatalf("expected configured limiters: %+v", limiters)
	}
	if limiters.Google != nil {
		t.Fatalf("zero limit should disable the google limiter")
	}
}
