package preload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/louisbranch/portfolio.studio/internal/content"
)

// DefaultListingPath is the portfolio graphics endpoint served by the site.
const DefaultListingPath = "/api/portfolio-graphics"

// Listing provides the remote portfolio graphics listing.
type Listing interface {
	Graphics(ctx context.Context) (content.Graphics, error)
}

// HTTPListing reads the listing from a JSON endpoint.
type HTTPListing struct {
	client *http.Client
	url    string
}

// NewHTTPListing returns a listing reader for url.
func NewHTTPListing(client *http.Client, url string) *HTTPListing {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPListing{client: client, url: url}
}

// Graphics fetches and decodes the listing. Any non-200 status is an error.
func (l *HTTPListing) Graphics(ctx context.Context) (content.Graphics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return content.Graphics{}, fmt.Errorf("build listing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := l.client.Do(req)
	if err != nil {
		return content.Graphics{}, fmt.Errorf("listing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return content.Graphics{}, fmt.Errorf("listing returned %s", resp.Status)
	}
	var g content.Graphics
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		return content.Graphics{}, fmt.Errorf("decode listing: %w", err)
	}
	return g.Normalized(), nil
}

// ListingFunc adapts a function to Listing.
type ListingFunc func(ctx context.Context) (content.Graphics, error)

// Graphics calls f.
func (f ListingFunc) Graphics(ctx context.Context) (content.Graphics, error) {
	return f(ctx)
}
