// Package assetcache is the studio's versioned asset cache. Eligible image
// and video GET requests are answered from the current generation store
// when present and filled from the network otherwise. Generations are named
// "<Prefix><version>" and stale ones are purged only when a new version
// activates.
package assetcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/louisbranch/portfolio.studio/internal/platform/errors"
)

// Prefix names every generation store this package owns.
const Prefix = "studio-assets-"

// ErrNoActiveGeneration is returned when a store is needed before Activate.
var ErrNoActiveGeneration = apperrors.E(apperrors.KindUnavailable, "asset cache has no active generation")

// Entry is one cached response.
type Entry struct {
	Key        string
	Status     int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
	Generation string
}

// Response rebuilds an http.Response for req from the entry.
func (e Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// GenerationName returns the store name for version.
func GenerationName(version string) string {
	return Prefix + version
}

// Owned reports whether name follows this package's naming scheme.
func Owned(name string) bool {
	return strings.HasPrefix(name, Prefix) && len(name) > len(Prefix)
}

// Key is the exact lookup key for req: method and full URL, query included.
// No normalization is applied so optimized-image variants never collide.
func Key(req *http.Request) string {
	return req.Method + " " + req.URL.String()
}

// Store is one named generation.
type Store interface {
	Name() string
	// Match returns the entry stored under key. ok is false on a miss.
	Match(ctx context.Context, key string) (entry Entry, ok bool, err error)
	// Put stores entry, replacing any entry under the same key.
	Put(ctx context.Context, entry Entry) error
}

// Storage holds the named generation stores.
type Storage interface {
	// Open returns the store called name, creating it when absent.
	Open(ctx context.Context, name string) (Store, error)
	Names(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}
