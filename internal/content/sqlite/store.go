// Package sqlite provides a SQLite-backed content store used when the
// studio runs without a hosted backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/louisbranch/portfolio.studio/internal/content"
	"github.com/louisbranch/portfolio.studio/internal/content/sqlite/migrations"
	apperrors "github.com/louisbranch/portfolio.studio/internal/platform/errors"
	"github.com/louisbranch/portfolio.studio/internal/platform/storage/sqlitemigrate"
)

const itemColumns = `id, collection, title, name, body, image_url, thumbnail_url,
		        before_url, after_url, position, created_at, updated_at`

// Store persists portfolio items in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
	newID func() string
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite content store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if path != ":memory:" {
		path = filepath.Clean(path)
	}
	sqlDB, err := sqlitemigrate.Open(ctx, path, migrations.FS, "")
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}
	return &Store{
		sqlDB: sqlDB,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// List returns one page of a collection ordered by position then id.
// Page tokens are "<position>:<id>" keys of the last returned row.
func (s *Store) List(ctx context.Context, collection content.Collection, pageSize int, pageToken string) (content.Page, error) {
	if err := s.ready(ctx); err != nil {
		return content.Page{}, err
	}
	if pageSize <= 0 {
		return content.Page{}, fmt.Errorf("page size must be greater than zero")
	}

	var (
		rows *sql.Rows
		err  error
	)
	pageToken = strings.TrimSpace(pageToken)
	if pageToken == "" {
		rows, err = s.sqlDB.QueryContext(ctx,
			`SELECT `+itemColumns+`
			   FROM portfolio_items
			  WHERE collection = ?
			  ORDER BY position ASC, id ASC
			  LIMIT ?`,
			string(collection), pageSize+1,
		)
	} else {
		position, id, perr := parsePageToken(pageToken)
		if perr != nil {
			return content.Page{}, perr
		}
		rows, err = s.sqlDB.QueryContext(ctx,
			`SELECT `+itemColumns+`
			   FROM portfolio_items
			  WHERE collection = ?
			    AND (position, id) > (?, ?)
			  ORDER BY position ASC, id ASC
			  LIMIT ?`,
			string(collection), position, id, pageSize+1,
		)
	}
	if err != nil {
		return content.Page{}, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	page := content.Page{Items: make([]content.Item, 0, pageSize)}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return content.Page{}, fmt.Errorf("list %s: %w", collection, err)
		}
		page.Items = append(page.Items, item)
	}
	if err := rows.Err(); err != nil {
		return content.Page{}, fmt.Errorf("list %s: %w", collection, err)
	}
	if len(page.Items) > pageSize {
		last := page.Items[pageSize-1]
		page.NextPageToken = strconv.Itoa(last.Position) + ":" + last.ID
		page.Items = page.Items[:pageSize]
	}
	return page, nil
}

// Get returns one item.
func (s *Store) Get(ctx context.Context, collection content.Collection, id string) (content.Item, error) {
	if err := s.ready(ctx); err != nil {
		return content.Item{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return content.Item{}, content.ErrNotFound
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+itemColumns+`
		   FROM portfolio_items
		  WHERE collection = ? AND id = ?`,
		string(collection), id,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Item{}, content.ErrNotFound
	}
	if err != nil {
		return content.Item{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return item, nil
}

// Create inserts item, assigning an id and timestamps when absent.
func (s *Store) Create(ctx context.Context, item content.Item) (content.Item, error) {
	if err := s.ready(ctx); err != nil {
		return content.Item{}, err
	}
	item = item.Normalize()
	if err := item.Validate(); err != nil {
		return content.Item{}, err
	}
	if item.ID == "" {
		item.ID = s.newID()
	}
	now := s.now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = item.CreatedAt

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO portfolio_items (`+itemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.Collection), item.Title, item.Name, item.Body,
		item.ImageURL, item.ThumbnailURL, item.BeforeURL, item.AfterURL,
		item.Position, toMillis(item.CreatedAt), toMillis(item.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return content.Item{}, content.ErrAlreadyExists
		}
		return content.Item{}, fmt.Errorf("create %s: %w", item.Collection, err)
	}
	return item, nil
}

// Update replaces the mutable fields of an existing item.
func (s *Store) Update(ctx context.Context, item content.Item) (content.Item, error) {
	if err := s.ready(ctx); err != nil {
		return content.Item{}, err
	}
	item = item.Normalize()
	if item.ID == "" {
		return content.Item{}, content.ErrNotFound
	}
	if err := item.Validate(); err != nil {
		return content.Item{}, err
	}
	existing, err := s.Get(ctx, item.Collection, item.ID)
	if err != nil {
		return content.Item{}, err
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = s.now().UTC()

	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE portfolio_items
		    SET title = ?, name = ?, body = ?, image_url = ?, thumbnail_url = ?,
		        before_url = ?, after_url = ?, position = ?, updated_at = ?
		  WHERE collection = ? AND id = ?`,
		item.Title, item.Name, item.Body, item.ImageURL, item.ThumbnailURL,
		item.BeforeURL, item.AfterURL, item.Position, toMillis(item.UpdatedAt),
		string(item.Collection), item.ID,
	)
	if err != nil {
		return content.Item{}, fmt.Errorf("update %s/%s: %w", item.Collection, item.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return content.Item{}, content.ErrNotFound
	}
	return item, nil
}

// Delete removes one item.
func (s *Store) Delete(ctx context.Context, collection content.Collection, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM portfolio_items WHERE collection = ? AND id = ?`,
		string(collection), strings.TrimSpace(id),
	)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return content.ErrNotFound
	}
	return nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (content.Item, error) {
	var (
		item       content.Item
		collection string
		createdAt  int64
		updatedAt  int64
	)
	if err := row.Scan(
		&item.ID, &collection, &item.Title, &item.Name, &item.Body,
		&item.ImageURL, &item.ThumbnailURL, &item.BeforeURL, &item.AfterURL,
		&item.Position, &createdAt, &updatedAt,
	); err != nil {
		return content.Item{}, err
	}
	item.Collection = content.Collection(collection)
	item.CreatedAt = fromMillis(createdAt)
	item.UpdatedAt = fromMillis(updatedAt)
	return item, nil
}

func parsePageToken(token string) (int, string, error) {
	rawPosition, id, ok := strings.Cut(token, ":")
	if !ok || id == "" {
		return 0, "", apperrors.E(apperrors.KindInvalidInput, fmt.Sprintf("invalid page token %q", token))
	}
	position, err := strconv.Atoi(rawPosition)
	if err != nil {
		return 0, "", apperrors.Wrap(apperrors.KindInvalidInput, fmt.Sprintf("invalid page token %q", token), err)
	}
	return position, id, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ content.Store = (*Store)(nil)
