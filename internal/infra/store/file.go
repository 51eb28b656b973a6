package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const fileExt = ".json"

// fileEnvelope is the on-disk form of one entry.
type fileEnvelope struct {
	Key       string     `json:"key"`
	Value     []byte     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// File stores one JSON envelope per key in a directory. Writes go through a
// temporary file and a rename so readers never see partial entries.
type File struct {
	dir string
	mu  sync.RWMutex
	now func() time.Time
}

// NewFile creates the directory if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create store directory %s", dir)
	}
	return &File{dir: dir, now: time.Now}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileExt)
}

func (f *File) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	env := fileEnvelope{Key: key, Value: value}
	if exp := expiry(f.now(), ttl); !exp.IsZero() {
		env.ExpiresAt = &exp
	}
	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "failed to encode entry")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write entry")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close entry")
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return errors.Wrap(err, "failed to commit entry")
	}
	return nil
}

// read loads the envelope of key. Expired envelopes are removed.
func (f *File) read(path string) (*fileEnvelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to read entry")
	}
	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrapf(err, "corrupt entry %s", filepath.Base(path))
	}
	if env.ExpiresAt != nil && expired(*env.ExpiresAt, f.now()) {
		_ = os.Remove(path)
		return nil, ErrNotFound
	}
	return &env, nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	env, err := f.read(f.path(key))
	if err != nil {
		return nil, err
	}
	return env.Value, nil
}

func (f *File) Has(ctx context.Context, key string) (bool, error) {
	_, err := f.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "failed to delete entry")
	}
	return nil
}

// Keys returns the live keys in lexical order. Unreadable entries are skipped.
func (f *File) Keys(_ context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list store directory")
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		env, err := f.read(filepath.Join(f.dir, e.Name()))
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				zlog.Warn().Msgf("store: skipping entry: file=%s err=%v", e.Name(), err)
			}
			continue
		}
		keys = append(keys, env.Key)
	}
	slices.Sort(keys)
	return keys, nil
}

func (f *File) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return errors.Wrap(err, "failed to list store directory")
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrap(err, "failed to delete entry")
		}
	}
	return nil
}

func (f *File) Close() error { return nil }
