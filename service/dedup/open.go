package dedup

import (
	"context"
	"fmt"
	"log/slog"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend     string // file, postgres or redis
	Path        string
	DatabaseURL string
	RedisURL    string
	RedisPrefix string
	Address     string // watched address, scopes postgres rows and redis keys
}

// Open constructs the Store named by opts.Backend.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	switch opts.Backend {
	case "", "file":
		return NewFileStore(opts.Path, logger), nil
	case "postgres":
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres backend requires a database url")
		}
		return NewPostgresStore(ctx, opts.DatabaseURL, opts.Address, logger)
	case "redis":
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis backend requires a redis url")
		}
		return NewRedisStoreFromURL(ctx, opts.RedisURL, opts.RedisPrefix, opts.Address, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
