// Package persistence provides the key/value durability layer for credential records.
//
// A Provider stores opaque byte values (JSON documents in practice) under string keys.
// Save is idempotent and last-write-wins. Load of a key that was never saved returns an
// error matching ErrNotFound for every backend; callers treat that as "no prior record"
// rather than as a failure.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/grizzpector/config"
)

var (
	// ErrNotFound is returned by Load when no value exists for the key.
	ErrNotFound = errors.New("persistence: key not found")
	// ErrPersistence wraps backend failures (I/O, connection, encoding).
	ErrPersistence = errors.New("persistence: backend failure")
	// ErrInvalidKey is returned for empty keys or keys that would escape the storage root.
	ErrInvalidKey = errors.New("persistence: invalid key")
	// ErrNotConnected is returned by connection-backed providers used outside Connect/Close.
	ErrNotConnected = errors.New("persistence: not connected")
)

// Provider is the capability set every backend implements.
type Provider interface {
	Save(ctx context.Context, key string, value []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// Connector is implemented by providers that hold a connection. Connect must be called
// before use and Close once the provider is no longer needed.
type Connector interface {
	Connect(ctx context.Context) error
	Close() error
}

// Pinger is implemented by providers that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New builds the provider selected by cfg.PersistenceProvider, wrapped with metrics and tracing.
func New(cfg *config.Config) (Provider, error) {
	switch cfg.PersistenceProvider {
	case config.PersistenceLocalFS, "":
		return Instrument(config.PersistenceLocalFS, NewFileProvider(cfg.AuthDir())), nil
	case config.PersistenceRedis:
		return Instrument(config.PersistenceRedis, NewRedisProvider(RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			UseTLS:    cfg.RedisUseTLS,
			KeyPrefix: cfg.RedisKeyPrefix,
		})), nil
	default:
		return nil, fmt.Errorf("unknown persistence provider %q", cfg.PersistenceProvider)
	}
}

// SaveJSON encodes v as JSON and saves it under key.
func SaveJSON[T any](ctx context.Context, p Provider, key string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrPersistence, key, err)
	}
	return p.Save(ctx, key, b)
}

// LoadJSON loads key and decodes it into a T. ErrNotFound passes through unchanged.
func LoadJSON[T any](ctx context.Context, p Provider, key string) (T, error) {
	var v T
	b, err := p.Load(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("%w: decode %s: %v", ErrPersistence, key, err)
	}
	return v, nil
}

// Connect connects p if it implements Connector and returns the matching close func.
func Connect(ctx context.Context, p Provider) (func() error, error) {
	c, ok := p.(Connector)
	if !ok {
		return func() error { return nil }, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c.Close, nil
}
