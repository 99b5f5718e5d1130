// Package content defines the studio's portfolio domain: the collections
// shown on the landing page, their validation rules and the storage
// contract shared by the hosted backend client and the local SQLite store.
package content

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/louisbranch/portfolio.studio/internal/platform/errors"
)

var (
	// ErrNotFound indicates a requested item is missing.
	ErrNotFound = apperrors.E(apperrors.KindNotFound, "content item not found")
	// ErrAlreadyExists indicates an item with the same id already exists.
	ErrAlreadyExists = apperrors.E(apperrors.KindConflict, "content item already exists")
)

// Collection names one portfolio collection.
type Collection string

const (
	CollectionClients      Collection = "clients"
	CollectionCarousels    Collection = "carousels"
	CollectionCopywriting  Collection = "copywriting"
	CollectionPhotoEditing Collection = "photo_editing"
)

// Collections lists every collection in landing-page order.
func Collections() []Collection {
	return []Collection{CollectionClients, CollectionCarousels, CollectionCopywriting, CollectionPhotoEditing}
}

// ParseCollection validates a collection name from a URL path segment.
func ParseCollection(raw string) (Collection, error) {
	c := Collection(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case CollectionClients, CollectionCarousels, CollectionCopywriting, CollectionPhotoEditing:
		return c, nil
	}
	return "", apperrors.E(apperrors.KindNotFound, fmt.Sprintf("unknown collection %q", raw))
}

// Item is one portfolio record. Which fields apply depends on Collection.
type Item struct {
	ID           string     `json:"id,omitempty"`
	Collection   Collection `json:"-"`
	Title        string     `json:"title,omitempty"`
	Name         string     `json:"name,omitempty"`
	Body         string     `json:"body,omitempty"`
	ImageURL     string     `json:"image_url,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	BeforeURL    string     `json:"before_url,omitempty"`
	AfterURL     string     `json:"after_url,omitempty"`
	Position     int        `json:"position"`
	CreatedAt    time.Time  `json:"created_at,omitzero"`
	UpdatedAt    time.Time  `json:"updated_at,omitzero"`
}

// Normalize trims free-text fields.
func (i Item) Normalize() Item {
	i.ID = strings.TrimSpace(i.ID)
	i.Title = strings.TrimSpace(i.Title)
	i.Name = strings.TrimSpace(i.Name)
	i.Body = strings.TrimSpace(i.Body)
	i.ImageURL = strings.TrimSpace(i.ImageURL)
	i.ThumbnailURL = strings.TrimSpace(i.ThumbnailURL)
	i.BeforeURL = strings.TrimSpace(i.BeforeURL)
	i.AfterURL = strings.TrimSpace(i.AfterURL)
	return i
}

// Validate checks the fields required by the item's collection.
func (i Item) Validate() error {
	var missing []string
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	switch i.Collection {
	case CollectionClients:
		require("name", i.Name)
		require("image_url", i.ImageURL)
	case CollectionCarousels:
		require("title", i.Title)
		require("image_url", i.ImageURL)
	case CollectionCopywriting:
		require("title", i.Title)
		require("body", i.Body)
	case CollectionPhotoEditing:
		require("before_url", i.BeforeURL)
		require("after_url", i.AfterURL)
	default:
		return apperrors.E(apperrors.KindInvalidInput, "collection is required")
	}
	if len(missing) > 0 {
		return apperrors.E(apperrors.KindInvalidInput, strings.Join(missing, ", ")+" required")
	}
	if i.Position < 0 {
		return apperrors.E(apperrors.KindInvalidInput, "position must not be negative")
	}
	for _, raw := range i.ImageURLs() {
		if !validAssetURL(raw) {
			return apperrors.E(apperrors.KindInvalidInput, fmt.Sprintf("invalid asset url %q", raw))
		}
	}
	return nil
}

// ImageURLs returns the item's non-empty image-bearing fields.
func (i Item) ImageURLs() []string {
	var out []string
	for _, raw := range []string{i.ImageURL, i.ThumbnailURL, i.BeforeURL, i.AfterURL} {
		if raw = strings.TrimSpace(raw); raw != "" {
			out = append(out, raw)
		}
	}
	return out
}

func validAssetURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.IsAbs() {
		return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	}
	return strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//")
}

// Page is one page of items.
type Page struct {
	Items         []Item
	NextPageToken string
}

// Store persists portfolio items.
type Store interface {
	List(ctx context.Context, collection Collection, pageSize int, pageToken string) (Page, error)
	Get(ctx context.Context, collection Collection, id string) (Item, error)
	Create(ctx context.Context, item Item) (Item, error)
	Update(ctx context.Context, item Item) (Item, error)
	Delete(ctx context.Context, collection Collection, id string) error
}
