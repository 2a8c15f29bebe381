package location

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // sqlite driver
)

// Cache persists geocoding results in a local SQLite file.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	address      TEXT NOT NULL,
	result       TEXT NOT NULL,
	cached_at    INTEGER NOT NULL
);
`

// OpenCache opens (creating if needed) the cache at path. A ttl of zero
// keeps entries forever.
func OpenCache(ctx context.Context, path string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "location: open geocode cache")
	}
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		cacheSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "location: init geocode cache")
		}
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Close closes the cache file.
func (c *Cache) Close() error {
	return c.db.Close()
}

// cacheKey returns the SHA-256 hex of the normalized address.
func cacheKey(address string) string {
	h := sha256.Sum256([]byte(strings.ToLower(Normalize(address))))
	return fmt.Sprintf("%x", h)
}

// Get returns the cached result for address, if fresh.
func (c *Cache) Get(ctx context.Context, address string) (*GeocodeResult, bool, error) {
	var raw string
	var cachedAt int64
	err := c.db.QueryRowContext(ctx,
		"SELECT result, cached_at FROM geocode_cache WHERE address_hash = ?", cacheKey(address),
	).Scan(&raw, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "location: read geocode cache")
	}
	if c.ttl > 0 && time.Since(time.Unix(0, cachedAt)) > c.ttl {
		return nil, false, nil
	}

	var r GeocodeResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, false, eris.Wrap(err, "location: decode cached geocode")
	}
	zap.L().Debug("geocode cache hit", zap.String("address", address), zap.Bool("matched", r.Matched))
	return &r, true, nil
}

// Put stores r for address, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, address string, r *GeocodeResult) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "location: encode geocode")
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (address_hash, address, result, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (address_hash) DO UPDATE SET
			result = excluded.result,
			cached_at = excluded.cached_at`,
		cacheKey(address), address, string(raw), time.Now().UnixNano(),
	)
	if err != nil {
		return eris.Wrap(err, "location: write geocode cache")
	}
	return nil
}
