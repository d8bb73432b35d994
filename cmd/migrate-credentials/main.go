// Package main provides a CLI tool to copy credential records from the local filesystem
// provider into Redis, for deployments moving from PERSISTENCE_PROVIDER=localfs to redis.
//
// Usage:
//
//	migrate-credentials [--dry-run] [--overwrite] [--user DISCORD_USER_ID]
//
// Flags:
//
//	--dry-run:   Show what would be copied without writing to Redis
//	--overwrite: Replace records that already exist in Redis (default: skip them)
//	--user:      Copy only the records belonging to one Discord user id
//
// Environment Variables:
//
//	DATA_DIR, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_USE_TLS, REDIS_KEY_PREFIX
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/grizzpector/config"
	"github.com/onnwee/grizzpector/persistence"
	"github.com/onnwee/grizzpector/session"
)

// keyLister is satisfied by persistence.FileProvider.
type keyLister interface {
	persistence.Provider
	Keys(ctx context.Context) ([]string, error)
}

type options struct {
	DryRun    bool
	Overwrite bool
	User      string
}

type summary struct {
	Total, Copied, Skipped, Errors int
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be copied without making changes")
	overwrite := flag.Bool("overwrite", false, "Replace records that already exist in Redis")
	user := flag.String("user", "", "Copy records for one Discord user id only (default: all users)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	_ = godotenv.Load()

	// Only storage settings matter here; Discord credentials are not required.
	cfg, err := config.LoadStorage()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	src := persistence.NewFileProvider(cfg.AuthDir())
	dst := persistence.NewRedisProvider(persistence.RedisOptions{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		UseTLS:    cfg.RedisUseTLS,
		KeyPrefix: cfg.RedisKeyPrefix,
	})
	if err := dst.Connect(ctx); err != nil {
		slog.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = dst.Close() }()
	slog.Info("migrating credential records",
		slog.String("source", src.Root()),
		slog.String("redis_addr", cfg.RedisAddr),
		slog.String("key_prefix", cfg.RedisKeyPrefix))

	sum, err := migrate(ctx, src, dst, options{DryRun: *dryRun, Overwrite: *overwrite, User: *user})
	if err != nil {
		slog.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("migration completed successfully",
		slog.Int("total", sum.Total),
		slog.Int("copied", sum.Copied),
		slog.Int("skipped", sum.Skipped))
}

// migrate copies every record from src to dst. Existing records in dst are kept unless
// opts.Overwrite is set. Per-record failures are counted and reported as one error at the end.
func migrate(ctx context.Context, src keyLister, dst persistence.Provider, opts options) (summary, error) {
	var sum summary
	keys, err := src.Keys(ctx)
	if err != nil {
		return sum, fmt.Errorf("list records: %w", err)
	}
	if opts.User != "" {
		keys = filterUser(keys, opts.User)
	}
	if len(keys) == 0 {
		slog.Info("no credential records found to migrate")
		return sum, nil
	}
	sum.Total = len(keys)
	slog.Info("found credential records to migrate", slog.Int("count", len(keys)), slog.Bool("dry_run", opts.DryRun))

	for i, key := range keys {
		logger := slog.With(slog.String("key", key), slog.Int("index", i+1), slog.Int("total", len(keys)))

		if !opts.Overwrite {
			_, err := dst.Load(ctx, key)
			switch {
			case err == nil:
				logger.Info("record already present, skipping")
				sum.Skipped++
				continue
			case !errors.Is(err, persistence.ErrNotFound):
				logger.Error("failed to check destination", slog.Any("error", err))
				sum.Errors++
				continue
			}
		}

		if opts.DryRun {
			logger.Info("would copy record (dry-run)")
			sum.Copied++
			continue
		}

		value, err := src.Load(ctx, key)
		if err == nil {
			err = dst.Save(ctx, key, value)
		}
		if err != nil {
			logger.Error("failed to copy record", slog.Any("error", err))
			sum.Errors++
			continue
		}
		logger.Info("copied record")
		sum.Copied++
	}

	slog.Info("migration summary",
		slog.Int("total", sum.Total),
		slog.Int("copied", sum.Copied),
		slog.Int("skipped", sum.Skipped),
		slog.Int("errors", sum.Errors),
		slog.Bool("dry_run", opts.DryRun))

	if sum.Errors > 0 {
		return sum, fmt.Errorf("migration completed with %d errors", sum.Errors)
	}
	return sum, nil
}

// filterUser keeps the outer and inner records of one user. Keys are "<username>-<id>"
// and "<username>-<id>-<service>".
func filterUser(keys []string, userID string) []string {
	outer := "-" + userID
	inner := outer + "-" + session.InnerService
	var out []string
	for _, k := range keys {
		if strings.HasSuffix(k, outer) || strings.HasSuffix(k, inner) {
			out = append(out, k)
		}
	}
	return out
}
