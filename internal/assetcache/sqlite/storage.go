// Package sqlite persists asset cache generations in SQLite so cached
// media survives restarts of the web service.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/portfolio.studio/internal/assetcache"
	"github.com/louisbranch/portfolio.studio/internal/assetcache/sqlite/migrations"
	"github.com/louisbranch/portfolio.studio/internal/platform/storage/sqlitemigrate"
)

// Storage implements assetcache.Storage over one SQLite database.
type Storage struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite cache database and applies embedded migrations.
func Open(ctx context.Context, path string) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if path != ":memory:" {
		path = filepath.Clean(path)
	}
	sqlDB, err := sqlitemigrate.Open(ctx, path, migrations.FS, "")
	if err != nil {
		return nil, fmt.Errorf("open asset cache: %w", err)
	}
	return &Storage{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Storage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Open returns the generation called name, creating it when absent.
func (s *Storage) Open(ctx context.Context, name string) (assetcache.Store, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("generation name is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO cache_generations (name, created_at) VALUES (?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, toMillis(s.now()),
	); err != nil {
		return nil, fmt.Errorf("open generation %s: %w", name, err)
	}
	return &generation{storage: s, name: name}, nil
}

// Names returns every generation name in sorted order.
func (s *Storage) Names(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM cache_generations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list generations: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	return names, nil
}

// Delete drops a generation and its entries. Missing generations are ignored.
func (s *Storage) Delete(ctx context.Context, name string) (err error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete generation %s: %w", name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE generation = ?`, name); err != nil {
		return fmt.Errorf("delete generation %s entries: %w", name, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM cache_generations WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete generation %s: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("delete generation %s: %w", name, err)
	}
	return nil
}

type generation struct {
	storage *Storage
	name    string
}

func (g *generation) Name() string { return g.name }

func (g *generation) Match(ctx context.Context, key string) (assetcache.Entry, bool, error) {
	row := g.storage.sqlDB.QueryRowContext(ctx,
		`SELECT status, header_json, body, stored_at
		   FROM cache_entries
		  WHERE generation = ? AND request_key = ?`,
		g.name, key,
	)
	var (
		entry      = assetcache.Entry{Key: key, Generation: g.name}
		headerJSON string
		storedAt   int64
	)
	if err := row.Scan(&entry.Status, &headerJSON, &entry.Body, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return assetcache.Entry{}, false, nil
		}
		return assetcache.Entry{}, false, fmt.Errorf("match %s: %w", key, err)
	}
	entry.Header = http.Header{}
	if err := json.Unmarshal([]byte(headerJSON), &entry.Header); err != nil {
		return assetcache.Entry{}, false, fmt.Errorf("decode header for %s: %w", key, err)
	}
	entry.StoredAt = fromMillis(storedAt)
	return entry, true, nil
}

// Put upserts entry; concurrent fills of the same key keep the last write.
func (g *generation) Put(ctx context.Context, entry assetcache.Entry) error {
	header := entry.Header
	if header == nil {
		header = http.Header{}
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header for %s: %w", entry.Key, err)
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = g.storage.now()
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}
	if _, err := g.storage.sqlDB.ExecContext(ctx,
		`INSERT INTO cache_entries (generation, request_key, status, header_json, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(generation, request_key) DO UPDATE SET
		   status = excluded.status,
		   header_json = excluded.header_json,
		   body = excluded.body,
		   stored_at = excluded.stored_at`,
		g.name, entry.Key, entry.Status, string(headerJSON), body, toMillis(storedAt),
	); err != nil {
		return fmt.Errorf("put %s: %w", entry.Key, err)
	}
	return nil
}
