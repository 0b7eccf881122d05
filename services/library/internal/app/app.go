package app

import (
	"errors"
	"time"

	"github.com/Mirko-ez/biblioteca-backend/pkg/auth"
	"github.com/Mirko-ez/biblioteca-backend/pkg/storage"
	"github.com/Mirko-ez/biblioteca-backend/pkg/store"
	"github.com/Mirko-ez/biblioteca-backend/pkg/tokens"
)

const (
	DefaultTextPageSize = 1800
	DefaultListPageSize = 20

	defaultDownloadURLTTL = 15 * time.Minute
)

// Config holds runtime dependencies for the application core.
type Config struct {
	Store   store.Store
	Tokens  *tokens.Service
	Objects storage.ObjectStore

	TextPageSize   int
	ListPageSize   int
	PasswordCost   int
	DownloadURLTTL time.Duration
	Now            func() time.Time
}

// App holds the account, session and catalogue use cases.
type App struct {
	store   store.Store
	tokens  *tokens.Service
	objects storage.ObjectStore

	textPageSize   int
	listPageSize   int
	passwordCost   int
	downloadURLTTL time.Duration
	now            func() time.Time
}

// New validates cfg and applies defaults.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token service is required")
	}
	if cfg.TextPageSize <= 0 {
		cfg.TextPageSize = DefaultTextPageSize
	}
	if cfg.ListPageSize <= 0 {
		cfg.ListPageSize = DefaultListPageSize
	}
	if cfg.PasswordCost <= 0 {
		cfg.PasswordCost = auth.DefaultPasswordCost
	}
	if cfg.DownloadURLTTL <= 0 {
		cfg.DownloadURLTTL = defaultDownloadURLTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &App{
		store:          cfg.Store,
		tokens:         cfg.Tokens,
		objects:        cfg.Objects,
		textPageSize:   cfg.TextPageSize,
		listPageSize:   cfg.ListPageSize,
		passwordCost:   cfg.PasswordCost,
		downloadURLTTL: cfg.DownloadURLTTL,
		now:            cfg.Now,
	}, nil
}

// Tokens exposes the token service to the transport layer.
func (a *App) Tokens() *tokens.Service {
	return a.tokens
}

// UploadsEnabled reports whether an object store is configured.
func (a *App) UploadsEnabled() bool {
	return a.objects != nil
}
