// Package store provides the key/value persistence behind player snapshots.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audiolink/internal/infra/config"
)

// ErrNotFound is returned by Get for missing or expired keys.
var ErrNotFound = errors.New("key not found")

// Store is a key/value store with optional per-key expiry.
// A zero ttl means the entry never expires.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
	Close() error
}

type FileConfig struct {
	Dir string `mapstructure:"dir" default:"data/snapshots" validate:"required"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path" default:"data/audiolink.db" validate:"required"`
}

// New creates the store selected by cfg.Type.
func New(cfg config.StoreConfig) (Store, error) {
	zlog.Info().Msgf("store: opening: type=%s", cfg.Type)
	switch cfg.Type {
	case "", "memory":
		return NewMemory(), nil

	case "file":
		var fc FileConfig
		if err := decodeSettings(cfg.Settings, &fc); err != nil {
			return nil, errors.Wrap(err, "file store")
		}
		return NewFile(fc.Dir)

	case "sqlite":
		var sc SQLiteConfig
		if err := decodeSettings(cfg.Settings, &sc); err != nil {
			return nil, errors.Wrap(err, "sqlite store")
		}
		return NewSQLite(sc.Path)

	default:
		return nil, errors.Newf("unsupported store type: %s", cfg.Type)
	}
}

func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}
