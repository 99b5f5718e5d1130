package assetcache

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// countingNetwork answers every request with body and counts calls.
type countingNetwork struct {
	calls  atomic.Int32
	status int
	body   string
	header http.Header
}

func (n *countingNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	n.calls.Add(1)
	status := n.status
	if status == 0 {
		status = http.StatusOK
	}
	header := n.header.Clone()
	if header == nil {
		header = http.Header{"Content-Type": {"image/png"}}
	}
	body := n.body
	if body == "" {
		body = "bytes for " + req.URL.RequestURI()
	}
	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

func activeWorker(t *testing.T) *Worker {
	t.Helper()
	w, err := NewWorker(NewMemoryStorage(), "test", nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if _, err := w.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return w
}

func get(t *testing.T, rt http.RoundTripper, rawURL string, header http.Header) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, rawURL, nil)
	req.RequestURI = ""
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func TestTransportServesHitsWithoutNetwork(t *testing.T) {
	t.Parallel()

	network := &countingNetwork{}
	tr := NewTransport(TransportConfig{Base: network, Worker: activeWorker(t)})

	_, first := get(t, tr, "https://site.test/media/a.png", nil)
	_, second := get(t, tr, "https://site.test/media/a.png", nil)
	if first != second {
		t.Fatalf("cached body = %q, want %q", second, first)
	}
	if got := network.calls.Load(); got != 1 {
		t.Fatalf("network calls = %d, want 1", got)
	}
}

func TestTransportQueryVariantsDoNotCollide(t *testing.T) {
	t.Parallel()

	network := &countingNetwork{}
	tr := NewTransport(TransportConfig{Base: network, Worker: activeWorker(t)})

	get(t, tr, "https://site.test/img.png?w=320", nil)
	_, body := get(t, tr, "https://site.test/img.png?w=640", nil)
	if body != "bytes for /img.png?w=640" {
		t.Fatalf("body = %q, want the 640 variant", body)
	}
	if got := network.calls.Load(); got != 2 {
		t.Fatalf("network calls = %d, want 2", got)
	}
}

func TestTransportPassesThroughIneligible(t *testing.T) {
	t.Parallel()

	network := &countingNetwork{}
	tr := NewTransport(TransportConfig{Base: network, Worker: activeWorker(t)})

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "https://site.test/media/a.png", strings.NewReader("x"))
		req.RequestURI = ""
		req.Header.Set("Sec-Fetch-Dest", "image")
		resp, err := tr.RoundTrip(req)
		if err != nil {
			t.Fatalf("RoundTrip: %v", err)
		}
		_ = resp.Body.Close()
	}
	get(t, tr, "https://site.test/api/portfolio-graphics", nil)
	get(t, tr, "https://site.test/api/portfolio-graphics", nil)
	if got := network.calls.Load(); got != 4 {
		t.Fatalf("network calls = %d, want 4", got)
	}
}

func TestTransportPassesThroughBeforeActivation(t *testing.T) {
	t.Parallel()

	w, err := NewWorker(NewMemoryStorage(), "v1", nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	network := &countingNetwork{}
	tr := NewTransport(TransportConfig{Base: network, Worker: w})
	get(t, tr, "https://site.test/a.png", nil)
	get(t, tr, "https://site.test/a.png", nil)
	if got := network.calls.Load(); got != 2 {
		t.Fatalf("network calls = %d, want 2", got)
	}
}

func TestTransportPropagatesNetworkError(t *testing.T) {
	t.Parallel()

	netErr := errors.New("connection refused")
	tr := NewTransport(TransportConfig{
		Base:   roundTripFunc(func(*http.Request) (*http.Response, error) { return nil, netErr }),
		Worker: activeWorker(t),
	})
	req := httptest.NewRequest(http.MethodGet, "https://site.test/a.png", nil)
	req.RequestURI = ""
	resp, err := tr.RoundTrip(req)
	if err != netErr {
		t.Fatalf("err = %v, want the network error unchanged", err)
	}
	if resp != nil {
		t.Fatalf("resp = %+v, want nil", resp)
	}
}

func TestTransportFallsBackWhenConcurrentFillWins(t *testing.T) {
	t.Parallel()

	w := activeWorker(t)
	tr := NewTransport(TransportConfig{
		Base: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			// Another handler filled the key while this fetch was failing.
			_ = w.Current().Put(req.Context(), Entry{Key: Key(req), Status: http.StatusOK, Body: []byte("from peer")})
			return nil, errors.New("network down")
		}),
		Worker: w,
	})
	_, body := get(t, tr, "https://site.test/a.png", nil)
	if body != "from peer" {
		t.Fatalf("body = %q, want the peer's entry", body)
	}
}

func TestTransportStoresOpaqueResponses(t *testing.T) {
	t.Parallel()

	network := &countingNetwork{status: http.StatusNotFound}
	tr := NewTransport(TransportConfig{Base: network, Worker: activeWorker(t)})
	opaque := http.Header{
		"Sec-Fetch-Dest": {"image"},
		"Sec-Fetch-Mode": {"no-cors"},
		"Sec-Fetch-Site": {"cross-site"},
	}
	get(t, tr, "https://cdn.test/logo.png", opaque)
	resp, _ := get(t, tr, "https://cdn.test/logo.png", opaque)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want cached 404", resp.StatusCode)
	}
	if got := network.calls.Load(); got != 1 {
		t.Fatalf("network calls = %d, want 1", got)
	}
}

func TestTransportOpaqueFromOrigin(t *testing.T) {
	t.Parallel()

	network := &countingNetwork{status: http.StatusForbidden}
	origin, _ := url.Parse("https://site.test")
	tr := NewTransport(TransportConfig{Base: network, Worker: activeWorker(t), Origin: origin})
	noCors := http.Header{"Sec-Fetch-Mode": {"no-cors"}}

	get(t, tr, "https://site.test/a.png", noCors)
	get(t, tr, "https://site.test/a.png", noCors)
	if got := network.calls.Load(); got != 2 {
		t.Fatalf("same-origin failures cached: network calls = %d, want 2", got)
	}
	get(t, tr, "https://cdn.test/a.png", noCors)
	get(t, tr, "https://cdn.test/a.png", noCors)
	if got := network.calls.Load(); got != 3 {
		t.Fatalf("network calls = %d, want 3", got)
	}
}

func TestTransportDoesNotStoreFailures(t *testing.T) {
	t.Parallel()

	network := &countingNetwork{status: http.StatusInternalServerError}
	tr := NewTransport(TransportConfig{Base: network, Worker: activeWorker(t)})
	get(t, tr, "https://site.test/a.png", nil)
	get(t, tr, "https://site.test/a.png", nil)
	if got := network.calls.Load(); got != 2 {
		t.Fatalf("network calls = %d, want 2", got)
	}
}

func TestTransportSkipsOversizedEntries(t *testing.T) {
	t.Parallel()

	network := &countingNetwork{body: "0123456789"}
	tr := NewTransport(TransportConfig{Base: network, Worker: activeWorker(t), MaxEntryBytes: 4})
	get(t, tr, "https://site.test/big.mp4", nil)
	_, body := get(t, tr, "https://site.test/big.mp4", nil)
	if body != "0123456789" {
		t.Fatalf("body = %q", body)
	}
	if got := network.calls.Load(); got != 2 {
		t.Fatalf("network calls = %d, want 2", got)
	}
}

func TestTransportBypassesRangeRequests(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	tr := NewTransport(TransportConfig{
		Base: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			status, body := http.StatusOK, "0123456789"
			if req.Header.Get("Range") != "" {
				status, body = http.StatusPartialContent, "0123"
			}
			return &http.Response{
				StatusCode:    status,
				Header:        http.Header{"Content-Type": {"video/mp4"}},
				Body:          io.NopCloser(strings.NewReader(body)),
				ContentLength: int64(len(body)),
				Request:       req,
			}, nil
		}),
		Worker: activeWorker(t),
	})

	resp, body := get(t, tr, "https://site.test/media/clip.mp4", http.Header{"Range": {"bytes=0-3"}})
	if resp.StatusCode != http.StatusPartialContent || body != "0123" {
		t.Fatalf("range GET = %d %q, want 206 \"0123\"", resp.StatusCode, body)
	}
	resp, body = get(t, tr, "https://site.test/media/clip.mp4", nil)
	if resp.StatusCode != http.StatusOK || body != "0123456789" {
		t.Fatalf("full GET after range GET = %d %q, want 200 with the full body", resp.StatusCode, body)
	}
	get(t, tr, "https://site.test/media/clip.mp4", http.Header{"Range": {"bytes=0-3"}})
	if got := calls.Load(); got != 3 {
		t.Fatalf("network calls = %d, want 3", got)
	}
}

func TestTransportNeverStoresPartialContent(t *testing.T) {
	t.Parallel()

	network := &countingNetwork{status: http.StatusPartialContent, body: "0123"}
	tr := NewTransport(TransportConfig{Base: network, Worker: activeWorker(t)})
	get(t, tr, "https://site.test/media/clip.mp4", nil)
	get(t, tr, "https://site.test/media/clip.mp4", nil)
	if got := network.calls.Load(); got != 2 {
		t.Fatalf("network calls = %d, want 2", got)
	}
}

func TestTransportSkipsOversizedStreamedBodies(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("v", 1024)
	var calls atomic.Int32
	tr := NewTransport(TransportConfig{
		Base: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			return &http.Response{
				StatusCode:    http.StatusOK,
				Header:        http.Header{"Content-Type": {"video/mp4"}},
				Body:          io.NopCloser(strings.NewReader(payload)),
				ContentLength: -1,
				Request:       req,
			}, nil
		}),
		Worker:        activeWorker(t),
		MaxEntryBytes: 16,
	})

	_, body := get(t, tr, "https://site.test/media/stream.mp4", nil)
	if body != payload {
		t.Fatalf("body length = %d, want %d intact bytes", len(body), len(payload))
	}
	get(t, tr, "https://site.test/media/stream.mp4", nil)
	if got := calls.Load(); got != 2 {
		t.Fatalf("network calls = %d, want 2", got)
	}
	req := httptest.NewRequest(http.MethodGet, "https://site.test/media/stream.mp4", nil)
	if _, ok, _ := tr.worker.Current().Match(context.Background(), Key(req)); ok {
		t.Fatalf("oversized streamed body was stored")
	}
}

func TestTransportSniffsMissingContentType(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	network := &countingNetwork{body: buf.String(), header: http.Header{}}
	tr := NewTransport(TransportConfig{Base: network, Worker: activeWorker(t)})

	resp, _ := get(t, tr, "https://site.test/a.png", nil)
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Fatalf("Content-Type = %q, want image/png", got)
	}
	resp, _ = get(t, tr, "https://site.test/a.png", nil)
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Fatalf("cached Content-Type = %q, want image/png", got)
	}
}

func TestTransportConcurrentFillsThenHit(t *testing.T) {
	t.Parallel()

	network := &countingNetwork{}
	tr := NewTransport(TransportConfig{Base: network, Worker: activeWorker(t)})

	var wg sync.WaitGroup
	for range 2 {
		wg.Go(func() {
			req := httptest.NewRequest(http.MethodGet, "https://site.test/same.png", nil)
			req.RequestURI = ""
			resp, err := tr.RoundTrip(req)
			if err != nil {
				t.Errorf("RoundTrip: %v", err)
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		})
	}
	wg.Wait()
	filled := network.calls.Load()
	if filled < 1 || filled > 2 {
		t.Fatalf("network calls = %d, want 1 or 2", filled)
	}
	get(t, tr, "https://site.test/same.png", nil)
	if got := network.calls.Load(); got != filled {
		t.Fatalf("third request hit the network: calls = %d, want %d", got, filled)
	}
}

type failingStore struct{ Store }

func (failingStore) Put(context.Context, Entry) error { return errors.New("disk full") }

type failingStorage struct{ *MemoryStorage }

func (s failingStorage) Open(ctx context.Context, name string) (Store, error) {
	store, err := s.MemoryStorage.Open(ctx, name)
	return failingStore{store}, err
}

func TestTransportLogsStoreFailures(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	w, err := NewWorker(failingStorage{NewMemoryStorage()}, "v1", nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if _, err := w.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	tr := NewTransport(TransportConfig{Base: &countingNetwork{body: "ok"}, Worker: w, Logger: zap.New(core)})

	_, body := get(t, tr, "https://site.test/a.png", nil)
	if body != "ok" {
		t.Fatalf("body = %q, want the network body despite the store failure", body)
	}
	entries := logs.FilterMessage("store entry").All()
	if len(entries) != 1 {
		t.Fatalf("store failure logs = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["key"]; got != "GET https://site.test/a.png" {
		t.Fatalf("logged key = %v", got)
	}
}
