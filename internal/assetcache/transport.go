package assetcache

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/platform/logging"
	"github.com/louisbranch/portfolio.studio/internal/platform/otel"
)

// DefaultMaxEntryBytes bounds stored responses. Larger ones pass through
// uncached.
const DefaultMaxEntryBytes = 64 << 20

// Destination classifies req the way a browser labels a fetch: the
// Sec-Fetch-Dest header when present, otherwise the type implied by the
// URL path extension ("image", "video", ...). It returns "" when unknown.
func Destination(req *http.Request) string {
	if dest := strings.TrimSpace(req.Header.Get("Sec-Fetch-Dest")); dest != "" {
		return strings.ToLower(dest)
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(req.URL.Path), "."))
	if ext == "" {
		return ""
	}
	if kind := filetype.GetType(ext); kind != filetype.Unknown {
		return kind.MIME.Type
	}
	if mediaType, _, err := mime.ParseMediaType(mime.TypeByExtension("." + ext)); err == nil {
		major, _, _ := strings.Cut(mediaType, "/")
		return major
	}
	return ""
}

// Eligible reports whether req is intercepted: a GET for an image or video.
func Eligible(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	switch Destination(req) {
	case "image", "video":
		return true
	}
	return false
}

// TransportConfig configures a Transport.
type TransportConfig struct {
	// Base performs network round trips. Defaults to http.DefaultTransport.
	Base   http.RoundTripper
	Worker *Worker
	// Origin decides cross-origin requests that carry no Sec-Fetch-Site.
	Origin        *url.URL
	MaxEntryBytes int64
	Logger        *zap.Logger
}

// Transport is a cache-first http.RoundTripper over a Worker's current
// generation. Ineligible requests and requests made before activation go
// straight to Base.
type Transport struct {
	base     http.RoundTripper
	worker   *Worker
	origin   *url.URL
	maxEntry int64
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewTransport returns a Transport for cfg.
func NewTransport(cfg TransportConfig) *Transport {
	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}
	maxEntry := cfg.MaxEntryBytes
	if maxEntry <= 0 {
		maxEntry = DefaultMaxEntryBytes
	}
	return &Transport{
		base:     base,
		worker:   cfg.Worker,
		origin:   cfg.Origin,
		maxEntry: maxEntry,
		logger:   logging.OrNop(cfg.Logger).Named("assetcache"),
		tracer:   otel.Tracer("assetcache"),
		now:      time.Now,
	}
}

// Client returns an http.Client that goes through t.
func (t *Transport) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: t, Timeout: timeout}
}

// RoundTrip serves eligible requests from the current generation, filling
// it on a miss. A network failure falls back to one more lookup and is
// otherwise returned unchanged. Range requests bypass the cache.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var store Store
	if t.worker != nil {
		store = t.worker.Current()
	}
	if store == nil || !Eligible(req) || req.Header.Get("Range") != "" {
		return t.base.RoundTrip(req)
	}

	ctx, span := t.tracer.Start(req.Context(), "assetcache.round_trip", trace.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.full", req.URL.Redacted()),
		attribute.String("assetcache.generation", store.Name()),
	))
	defer span.End()

	key := Key(req)
	if entry, ok := t.match(ctx, store, key); ok {
		span.SetAttributes(attribute.String("assetcache.result", "hit"))
		return entry.Response(req), nil
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		if entry, ok := t.match(ctx, store, key); ok {
			span.SetAttributes(attribute.String("assetcache.result", "fallback"))
			return entry.Response(req), nil
		}
		span.SetAttributes(attribute.String("assetcache.result", "error"))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if !t.storable(req, resp) {
		span.SetAttributes(attribute.String("assetcache.result", "miss"))
		return resp, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxEntry+1))
	if err != nil {
		_ = resp.Body.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if int64(len(body)) > t.maxEntry {
		span.SetAttributes(attribute.String("assetcache.result", "oversized"))
		resp.Body = prefixedBody{Reader: io.MultiReader(bytes.NewReader(body), resp.Body), Closer: resp.Body}
		return resp, nil
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	if resp.Header.Get("Content-Type") == "" {
		if kind, err := filetype.Match(body); err == nil && kind != filetype.Unknown {
			resp.Header.Set("Content-Type", kind.MIME.Value)
		}
	}

	entry := Entry{
		Key:      key,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: t.now().UTC(),
	}
	if err := store.Put(ctx, entry); err != nil {
		t.logger.Warn("store entry", zap.String("key", key), zap.Error(err))
	}
	span.SetAttributes(
		attribute.String("assetcache.result", "stored"),
		attribute.Int("assetcache.bytes", len(body)),
	)
	return resp, nil
}

func (t *Transport) match(ctx context.Context, store Store, key string) (Entry, bool) {
	entry, ok, err := store.Match(ctx, key)
	if err != nil {
		t.logger.Warn("match entry", zap.String("key", key), zap.Error(err))
		return Entry{}, false
	}
	return entry, ok
}

// prefixedBody replays bytes already read ahead of the unread network body.
type prefixedBody struct {
	io.Reader
	io.Closer
}

// storable reports whether resp should be kept: a full success status, or an
// opaque cross-origin no-cors response whatever its status. Partial content
// is never kept.
func (t *Transport) storable(req *http.Request, resp *http.Response) bool {
	if resp.ContentLength > t.maxEntry || resp.StatusCode == http.StatusPartialContent {
		return false
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return true
	}
	return t.opaque(req)
}

func (t *Transport) opaque(req *http.Request) bool {
	if !strings.EqualFold(req.Header.Get("Sec-Fetch-Mode"), "no-cors") {
		return false
	}
	if site := strings.ToLower(strings.TrimSpace(req.Header.Get("Sec-Fetch-Site"))); site != "" {
		return site != "same-origin"
	}
	if t.origin == nil {
		return false
	}
	return !strings.EqualFold(req.URL.Scheme, t.origin.Scheme) || !strings.EqualFold(req.URL.Host, t.origin.Host)
}
