package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/data-for-change/anyway-sub000/internal/resilience"
)

// dbPool validates cfg for mode and connects to PostGIS, retrying while
// the database comes up.
func dbPool(ctx context.Context, mode string) (*pgxpool.Pool, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 5
	retry.InitialBackoff = time.Second
	retry.ShouldRetry = func(error) bool { return true }
	retry.OnRetry = resilience.RetryLogger("db", "connect")

	pool, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, eris.Wrap(err, "db: create connection pool")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, eris.Wrap(err, "db: ping database")
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("connected to database")
	return pool, nil
}
