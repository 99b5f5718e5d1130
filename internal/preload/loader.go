package preload

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"

	_ "golang.org/x/image/webp"
)

// Group is the discovery source of an asset.
type Group int

const (
	GroupCritical Group = iota
	GroupDocument
	GroupRemote
)

func (g Group) String() string {
	switch g {
	case GroupCritical:
		return "critical"
	case GroupDocument:
		return "document"
	case GroupRemote:
		return "remote"
	}
	return "unknown"
}

// Request is one asset to load.
type Request struct {
	URL   string
	Group Group
}

// Result describes a loaded asset. Width and Height are the decoded
// natural dimensions and stay zero when the loader did not decode.
type Result struct {
	Width  int
	Height int
}

// Loader performs one asset load.
type Loader interface {
	Load(ctx context.Context, req Request) (Result, error)
}

const imageAccept = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"

// HTTPLoader loads assets over an http.Client, usually one whose transport
// is the asset cache.
type HTTPLoader struct {
	client *http.Client
	origin *url.URL
}

// NewHTTPLoader returns a loader that treats origin as same-origin.
func NewHTTPLoader(client *http.Client, origin *url.URL) *HTTPLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLoader{client: client, origin: origin}
}

// Load fetches req.URL. Document and critical assets are requested the way
// an image element would; remote assets use a cache-preferring fetch when
// same-origin and an image-element request otherwise. Document images are
// decoded far enough to read their dimensions.
func (l *HTTPLoader) Load(ctx context.Context, req Request) (Result, error) {
	target, err := url.Parse(req.URL)
	if err != nil {
		return Result{}, fmt.Errorf("parse asset url: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("build asset request: %w", err)
	}
	sameOrigin := l.sameOrigin(target)
	if req.Group == GroupRemote && sameOrigin {
		httpReq.Header.Set("Cache-Control", "max-stale")
		httpReq.Header.Set("Sec-Fetch-Mode", "cors")
		httpReq.Header.Set("Sec-Fetch-Site", "same-origin")
	} else {
		httpReq.Header.Set("Accept", imageAccept)
		httpReq.Header.Set("Sec-Fetch-Dest", "image")
		httpReq.Header.Set("Sec-Fetch-Mode", "no-cors")
		if sameOrigin {
			httpReq.Header.Set("Sec-Fetch-Site", "same-origin")
		} else {
			httpReq.Header.Set("Sec-Fetch-Site", "cross-site")
		}
	}

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("asset %s returned %s", target.Redacted(), resp.Status)
	}
	if req.Group != GroupDocument {
		return Result{}, nil
	}
	cfg, _, err := image.DecodeConfig(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("decode asset %s: %w", target.Redacted(), err)
	}
	return Result{Width: cfg.Width, Height: cfg.Height}, nil
}

func (l *HTTPLoader) sameOrigin(u *url.URL) bool {
	if l.origin == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, l.origin.Scheme) && strings.EqualFold(u.Host, l.origin.Host)
}
