package persistence

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisProvider.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	UseTLS    bool
	KeyPrefix string
}

// RedisProvider stores values in Redis under KeyPrefix+key. The connection is opened by
// Connect and released by Close; Save and Load outside that window return ErrNotConnected.
type RedisProvider struct {
	opts RedisOptions

	mu     sync.RWMutex
	client *redis.Client
}

// NewRedisProvider returns an unconnected provider; call Connect before use.
func NewRedisProvider(opts RedisOptions) *RedisProvider {
	return &RedisProvider{opts: opts}
}

// Connect opens the client and pings the server. It is a no-op when already connected.
func (r *RedisProvider) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return nil
	}
	opt := &redis.Options{
		Addr:     r.opts.Addr,
		Password: r.opts.Password,
		DB:       r.opts.DB,
	}
	if r.opts.UseTLS {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("%w: connect redis %s: %v", ErrPersistence, r.opts.Addr, err)
	}
	r.client = client
	slog.Info("connected to redis", slog.String("addr", r.opts.Addr), slog.Int("db", r.opts.DB), slog.String("component", "persistence"))
	return nil
}

// Close releases the client. Later calls fail with ErrNotConnected until Connect.
func (r *RedisProvider) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *RedisProvider) conn() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, ErrNotConnected
	}
	return r.client, nil
}

// Save stores value under the prefixed key with no expiry.
func (r *RedisProvider) Save(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	c, err := r.conn()
	if err != nil {
		return err
	}
	if err := c.Set(ctx, r.opts.KeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrPersistence, key, err)
	}
	return nil
}

// Load returns the value for key, or an error matching ErrNotFound.
func (r *RedisProvider) Load(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	c, err := r.conn()
	if err != nil {
		return nil, err
	}
	b, err := c.Get(ctx, r.opts.KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrPersistence, key, err)
	}
	return b, nil
}

// Ping checks the connection for health probes.
func (r *RedisProvider) Ping(ctx context.Context) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	return c.Ping(ctx).Err()
}
