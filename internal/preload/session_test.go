package preload

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/louisbranch/portfolio.studio/internal/content"
)

const landingHTML = `<!doctype html><html><body>
<img src="/static/img/hero.png">
<img src="/img/a.png">
<img src="/img/b.png">
</body></html>`

type loaderFunc func(ctx context.Context, req Request) (Result, error)

func (f loaderFunc) Load(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// instantLoader succeeds immediately and counts calls per URL.
type instantLoader struct {
	mu    sync.Mutex
	calls map[string]int
}

func (l *instantLoader) Load(_ context.Context, req Request) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.calls == nil {
		l.calls = map[string]int{}
	}
	l.calls[req.Group.String()+" "+req.URL]++
	return Result{Width: 10, Height: 10}, nil
}

type recordingPresenter struct {
	mu     sync.Mutex
	calls  []string
	frames []Progress
}

func (p *recordingPresenter) LockScroll()   { p.call("lock") }
func (p *recordingPresenter) UnlockScroll() { p.call("unlock") }
func (p *recordingPresenter) Dismiss()      { p.call("dismiss") }

func (p *recordingPresenter) Render(progress Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, progress)
}

func (p *recordingPresenter) call(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
}

func (p *recordingPresenter) snapshot() ([]string, []Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...), append([]Progress(nil), p.frames...)
}

// check asserts the lifecycle every completed session must show.
func (p *recordingPresenter) check(t *testing.T) Progress {
	t.Helper()
	calls, frames := p.snapshot()
	want := []string{"lock", "unlock", "dismiss"}
	if len(calls) != len(want) {
		t.Fatalf("presenter calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("presenter calls = %v, want %v", calls, want)
		}
	}
	if len(frames) == 0 {
		t.Fatal("no frames rendered")
	}
	for i := 1; i < len(frames); i++ {
		if frames[i].Percent < frames[i-1].Percent {
			t.Fatalf("percent decreased from %d to %d", frames[i-1].Percent, frames[i].Percent)
		}
	}
	last := frames[len(frames)-1]
	if last.Percent != 100 || last.Phase != PhaseFinalizing {
		t.Fatalf("last frame = %+v, want 100%% finalizing", last)
	}
	if last.Label != "Ready" {
		t.Fatalf("last label = %q, want Ready", last.Label)
	}
	return last
}

func landingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(landingHTML))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fastOptions() Options {
	return Options{
		PollInterval: 2 * time.Millisecond,
		AssetTimeout: time.Second,
		HardCeiling:  5 * time.Second,
		ExitDelay:    5 * time.Millisecond,
	}
}

func listingOf(g content.Graphics) Listing {
	return ListingFunc(func(context.Context) (content.Graphics, error) {
		return g, nil
	})
}

func newTestSession(t *testing.T, srv *httptest.Server, cfg Config) *Session {
	t.Helper()
	cfg.Origin = srv.URL
	cfg.Client = srv.Client()
	cfg.Logger = zaptest.NewLogger(t)
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Wait)
	return s
}

func TestSessionIgnoresOtherRoutes(t *testing.T) {
	t.Parallel()

	srv := landingServer(t)
	presenter := &recordingPresenter{}
	s := newTestSession(t, srv, Config{Presenter: presenter, Loader: &instantLoader{}, Listing: listingOf(content.Graphics{})})

	if err := s.Run(context.Background(), "/about"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls, frames := presenter.snapshot(); len(calls) != 0 || len(frames) != 0 {
		t.Fatalf("presenter touched on non-landing route: %v %v", calls, frames)
	}
	if got := s.Phase(); got != PhaseLoading {
		t.Fatalf("phase = %v, want %v", got, PhaseLoading)
	}
}

func TestSessionLoadsEveryGroup(t *testing.T) {
	t.Parallel()

	srv := landingServer(t)
	presenter := &recordingPresenter{}
	loader := &instantLoader{}
	g := content.Graphics{
		Clients: []content.Item{
			{ImageURL: "/media/c1.png"},
			{ImageURL: "/media/c2.png"},
			{ImageURL: "/media/c3.png"},
		},
		Carousels: []content.Item{
			{ImageURL: "/media/k1.png"},
			{ImageURL: "/media/k2.png"},
		},
	}
	s := newTestSession(t, srv, Config{Presenter: presenter, Loader: loader, Listing: listingOf(g), Options: fastOptions()})

	if err := s.Run(context.Background(), LandingRoute); err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := presenter.check(t)
	if last.Total != 3+3+5 {
		t.Fatalf("total = %d, want 11", last.Total)
	}
	if got := s.Phase(); got != PhaseDone {
		t.Fatalf("phase = %v, want %v", got, PhaseDone)
	}

	s.Wait()
	loader.mu.Lock()
	defer loader.mu.Unlock()
	for key, n := range loader.calls {
		if n != 1 {
			t.Fatalf("%s loaded %d times, want 1", key, n)
		}
	}
	if n := loader.calls["critical "+srv.URL+"/static/img/hero.png"]; n != 1 {
		t.Fatalf("critical hero loaded %d times, want 1", n)
	}
}

func TestSessionCompletesWithoutListing(t *testing.T) {
	t.Parallel()

	srv := landingServer(t)
	presenter := &recordingPresenter{}
	listing := ListingFunc(func(context.Context) (content.Graphics, error) {
		return content.Graphics{}, errors.New("backend down")
	})
	s := newTestSession(t, srv, Config{Presenter: presenter, Loader: &instantLoader{}, Listing: listing, Options: fastOptions()})

	if err := s.Run(context.Background(), LandingRoute); err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := presenter.check(t)
	if last.Total != 6 || last.Loaded != 6 {
		t.Fatalf("last frame = %+v, want 6/6", last)
	}
}

func TestSessionWithNothingToLoad(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>empty</body></html>"))
	}))
	t.Cleanup(srv.Close)

	presenter := &recordingPresenter{}
	opts := fastOptions()
	opts.Critical = []string{}
	s := newTestSession(t, srv, Config{Presenter: presenter, Loader: &instantLoader{}, Listing: listingOf(content.Graphics{}), Options: opts})

	if err := s.Run(context.Background(), LandingRoute); err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := presenter.check(t)
	if last.Total != 0 || last.Target != 100 {
		t.Fatalf("last frame = %+v, want empty set at target 100", last)
	}
}

func TestSessionSoftTimeoutCountsAsLoaded(t *testing.T) {
	t.Parallel()

	srv := landingServer(t)
	presenter := &recordingPresenter{}
	hang := srv.URL + "/static/img/portrait.png"
	loader := loaderFunc(func(ctx context.Context, req Request) (Result, error) {
		if req.URL == hang {
			<-ctx.Done()
			return Result{}, ctx.Err()
		}
		return Result{Width: 1, Height: 1}, nil
	})
	opts := fastOptions()
	opts.AssetTimeout = 20 * time.Millisecond
	s := newTestSession(t, srv, Config{Presenter: presenter, Loader: loader, Listing: listingOf(content.Graphics{}), Options: opts})

	if err := s.Run(context.Background(), LandingRoute); err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := presenter.check(t)
	if last.Loaded != last.Total {
		t.Fatalf("last frame = %+v, want every asset counted", last)
	}
}

func TestSessionHardCeiling(t *testing.T) {
	t.Parallel()

	srv := landingServer(t)
	presenter := &recordingPresenter{}
	loader := loaderFunc(func(ctx context.Context, req Request) (Result, error) {
		if req.Group == GroupCritical {
			<-ctx.Done()
			return Result{}, ctx.Err()
		}
		return Result{Width: 1, Height: 1}, nil
	})
	opts := fastOptions()
	opts.AssetTimeout = time.Minute
	opts.HardCeiling = 60 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	s := newTestSession(t, srv, Config{Presenter: presenter, Loader: loader, Listing: listingOf(content.Graphics{}), Options: opts})
	t.Cleanup(cancel)

	start := time.Now()
	if err := s.Run(ctx, LandingRoute); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Run took %v, want about the hard ceiling", elapsed)
	}
	last := presenter.check(t)
	if last.Loaded >= last.Total {
		t.Fatalf("last frame = %+v, want hanging assets still outstanding", last)
	}
	cancel()
}

func TestSessionZeroSizeDocumentImagesDoNotCount(t *testing.T) {
	t.Parallel()

	srv := landingServer(t)
	presenter := &recordingPresenter{}
	loader := loaderFunc(func(_ context.Context, req Request) (Result, error) {
		if req.Group == GroupDocument {
			return Result{}, nil
		}
		return Result{Width: 1, Height: 1}, nil
	})
	opts := fastOptions()
	opts.HardCeiling = 150 * time.Millisecond
	s := newTestSession(t, srv, Config{Presenter: presenter, Loader: loader, Listing: listingOf(content.Graphics{}), Options: opts})

	if err := s.Run(context.Background(), LandingRoute); err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := presenter.check(t)
	if last.Loaded != 3 || last.Total != 6 {
		t.Fatalf("last frame = %+v, want 3/6", last)
	}
}

func TestSessionCancel(t *testing.T) {
	t.Parallel()

	srv := landingServer(t)
	presenter := &recordingPresenter{}
	loader := loaderFunc(func(ctx context.Context, req Request) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	})
	opts := fastOptions()
	opts.AssetTimeout = time.Minute
	opts.HardCeiling = time.Minute
	s := newTestSession(t, srv, Config{Presenter: presenter, Loader: loader, Listing: listingOf(content.Graphics{}), Options: opts})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	if err := s.Run(ctx, LandingRoute); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	presenter.check(t)
	if got := s.Phase(); got != PhaseDone {
		t.Fatalf("phase = %v, want %v", got, PhaseDone)
	}
	if err := s.Run(context.Background(), LandingRoute); err == nil {
		t.Fatal("second Run succeeded, want error")
	}
}

func TestNewRejectsRelativeOrigin(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Origin: "/relative"}); err == nil {
		t.Fatal("expected error for relative origin")
	}
}

func TestLabelsLocalized(t *testing.T) {
	t.Parallel()

	phrases, ready := Labels(nil, "pt-BR,pt;q=0.9")
	if len(phrases) != 5 {
		t.Fatalf("phrases = %d, want 5", len(phrases))
	}
	if ready != "Pronto" {
		t.Fatalf("ready = %q, want Pronto", ready)
	}
	phrases, ready = Labels(nil, "")
	if phrases[0] != "Warming up the canvas" || ready != "Ready" {
		t.Fatalf("default labels = %v %q", phrases, ready)
	}
}
