// Package preload drives the landing page asset preloader: it discovers
// the page's images, loads them with bounded concurrency and reports a
// monotonic progress value until the page is ready to be revealed.
package preload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/portfolio.studio/internal/platform/logging"
	"github.com/louisbranch/portfolio.studio/internal/platform/otel"
	"github.com/louisbranch/portfolio.studio/internal/platform/timeouts"
)

// LandingRoute is the only route a session activates on.
const LandingRoute = "/"

const labelPhrases = 5

func phraseKey(i int) string {
	return "preload.phase." + strconv.Itoa(i)
}

// Options tunes a session. Zero values take defaults.
type Options struct {
	// Concurrency is the number of remote sweep workers.
	Concurrency int
	// DocumentConcurrency bounds parallel document and critical loads.
	DocumentConcurrency int
	PollInterval        time.Duration
	// AssetTimeout is the soft per-asset budget.
	AssetTimeout time.Duration
	// HardCeiling forces completion this long after activation.
	HardCeiling time.Duration
	// ExitDelay separates the ready frame from Dismiss.
	ExitDelay   time.Duration
	Critical    []string
	ListingPath string
	// Phrases holds the five progress labels, lowest bucket first.
	Phrases    []string
	ReadyLabel string
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.DocumentConcurrency <= 0 {
		o.DocumentConcurrency = 6
	}
	if o.PollInterval <= 0 {
		o.PollInterval = timeouts.PreloadPoll
	}
	if o.AssetTimeout <= 0 {
		o.AssetTimeout = timeouts.PreloadAssetSoft
	}
	if o.HardCeiling <= 0 {
		o.HardCeiling = timeouts.PreloadHardCeiling
	}
	if o.ExitDelay <= 0 {
		o.ExitDelay = timeouts.PreloadExitDelay
	}
	if o.Critical == nil {
		o.Critical = DefaultCriticalAssets
	}
	if o.ListingPath == "" {
		o.ListingPath = DefaultListingPath
	}
	if len(o.Phrases) != labelPhrases || o.ReadyLabel == "" {
		phrases, ready := Labels(nil, "")
		if len(o.Phrases) != labelPhrases {
			o.Phrases = phrases
		}
		if o.ReadyLabel == "" {
			o.ReadyLabel = ready
		}
	}
	return o
}

// Config wires a session to the site it preloads.
type Config struct {
	// Origin is the site root, e.g. "http://localhost:8086".
	Origin string
	// Client fetches the document, the listing and, by default, the assets.
	Client    *http.Client
	Loader    Loader
	Listing   Listing
	Presenter Presenter
	Logger    *zap.Logger
	Options   Options
}

type eventKind int

const (
	eventDocumentFound eventKind = iota
	eventRemoteFound
	eventSettled
)

type event struct {
	kind   eventKind
	group  Group
	count  int
	loaded bool
}

// tally holds the counters. Only the aggregator goroutine touches it.
type tally struct {
	critical        int
	criticalSettled int
	documentKnown   bool
	document        int
	documentSettled int
	documentLoaded  int
	remote          int
	remoteSettled   int
}

func (t *tally) apply(ev event) {
	switch ev.kind {
	case eventDocumentFound:
		t.documentKnown = true
		t.document = ev.count
	case eventRemoteFound:
		t.remote = ev.count
	case eventSettled:
		switch ev.group {
		case GroupCritical:
			t.criticalSettled++
		case GroupDocument:
			t.documentSettled++
			if ev.loaded {
				t.documentLoaded++
			}
		case GroupRemote:
			t.remoteSettled++
		}
	}
}

func (t *tally) total() int {
	return t.critical + t.document + t.remote
}

func (t *tally) loaded() int {
	return t.criticalSettled + t.documentLoaded + t.remoteSettled
}

// documentComplete mirrors the window load event: every document image
// and critical asset has either loaded or failed.
func (t *tally) documentComplete() bool {
	return t.documentKnown && t.documentSettled >= t.document && t.criticalSettled >= t.critical
}

// Session is one preloader activation. Counters and the displayed value
// belong to the session, so concurrent sessions never share state.
type Session struct {
	opts      Options
	origin    *url.URL
	client    *http.Client
	loader    Loader
	listing   Listing
	presenter Presenter
	logger    *zap.Logger
	tracer    trace.Tracer

	started atomic.Bool
	phase   phaseLatch
	events  chan event
	done    chan struct{}
	wg      sync.WaitGroup

	tally     tally
	displayed int
	last      Progress
}

// New builds a session for cfg.
func New(cfg Config) (*Session, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" || origin.Host == "" {
		return nil, fmt.Errorf("origin must be an absolute http(s) url: %q", cfg.Origin)
	}
	origin.Path, origin.RawQuery, origin.Fragment = "/", "", ""

	opts := cfg.Options.withDefaults()
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	s := &Session{
		opts:      opts,
		origin:    origin,
		client:    client,
		loader:    cfg.Loader,
		listing:   cfg.Listing,
		presenter: cfg.Presenter,
		logger:    logging.OrNop(cfg.Logger).Named("preload"),
		tracer:    otel.Tracer("preload"),
		events:    make(chan event, 64),
		done:      make(chan struct{}),
	}
	if s.loader == nil {
		s.loader = NewHTTPLoader(client, origin)
	}
	if s.listing == nil {
		listingURL := origin.ResolveReference(&url.URL{Path: opts.ListingPath})
		s.listing = NewHTTPListing(client, listingURL.String())
	}
	if s.presenter == nil {
		s.presenter = NopPresenter{}
	}
	return s, nil
}

// Phase reports the session phase. It is safe to call concurrently.
func (s *Session) Phase() Phase {
	return s.phase.load()
}

// Wait blocks until loads still in flight after completion have returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Run activates the preloader for route and blocks until the overlay is
// dismissed. Routes other than the landing route are a no-op. A canceled
// ctx completes the session immediately and returns ctx.Err().
func (s *Session) Run(ctx context.Context, route string) error {
	if route != LandingRoute {
		return nil
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("preload session already started")
	}

	ctx, span := s.tracer.Start(ctx, "preload.session",
		trace.WithAttributes(attribute.String("preload.origin", s.origin.String())))
	defer span.End()

	critical := CriticalAssets(s.opts.Critical, s.origin)
	s.tally.critical = len(critical)
	s.presenter.LockScroll()

	s.wg.Go(func() { s.loadAll(ctx, critical, GroupCritical) })
	s.wg.Go(func() { s.discoverDocument(ctx, route) })
	s.wg.Go(func() { s.discoverRemote(ctx) })

	err := s.aggregate(ctx)
	span.SetAttributes(
		attribute.Int("preload.loaded", s.tally.loaded()),
		attribute.Int("preload.total", s.tally.total()),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Session) aggregate(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	ceiling := time.NewTimer(s.opts.HardCeiling)
	defer ceiling.Stop()
	var exit <-chan time.Time

	for {
		select {
		case ev := <-s.events:
			s.tally.apply(ev)
			continue
		case <-ticker.C:
			s.step(false)
		case <-ceiling.C:
			s.logger.Info("hard ceiling reached",
				zap.Int("loaded", s.tally.loaded()),
				zap.Int("total", s.tally.total()))
			s.step(true)
		case <-exit:
			s.dismiss()
			return nil
		case <-ctx.Done():
			s.finalize()
			s.dismiss()
			return ctx.Err()
		}
		if exit == nil && s.phase.load() == PhaseFinalizing {
			exitTimer := time.NewTimer(s.opts.ExitDelay)
			defer exitTimer.Stop()
			exit = exitTimer.C
		}
	}
}

// step recomputes one frame. force is the hard ceiling.
func (s *Session) step(force bool) {
	if s.phase.load() != PhaseLoading {
		return
	}
	target := TargetPercent(s.tally.loaded(), s.tally.total())
	s.displayed = NextPercent(s.displayed, target)
	if force || s.displayed >= 100 || (s.tally.documentComplete() && s.displayed > 90) {
		s.finalize()
		return
	}
	s.render(Progress{
		Percent: s.displayed,
		Target:  target,
		Loaded:  s.tally.loaded(),
		Total:   s.tally.total(),
		Label:   s.opts.Phrases[LabelIndex(target, labelPhrases)],
		Phase:   PhaseLoading,
	})
}

// finalize locks in 100% and releases scrolling. Only the first caller
// gets past the latch.
func (s *Session) finalize() {
	if !s.phase.advance(PhaseLoading, PhaseFinalizing) {
		return
	}
	s.displayed = 100
	s.render(Progress{
		Percent: 100,
		Target:  TargetPercent(s.tally.loaded(), s.tally.total()),
		Loaded:  s.tally.loaded(),
		Total:   s.tally.total(),
		Label:   s.opts.ReadyLabel,
		Phase:   PhaseFinalizing,
	})
	s.presenter.UnlockScroll()
}

func (s *Session) dismiss() {
	if !s.phase.advance(PhaseFinalizing, PhaseDone) {
		return
	}
	close(s.done)
	s.presenter.Dismiss()
	s.logger.Debug("session done",
		zap.Int("loaded", s.tally.loaded()),
		zap.Int("total", s.tally.total()))
}

func (s *Session) render(p Progress) {
	if p == s.last {
		return
	}
	s.last = p
	s.presenter.Render(p)
}

// send delivers ev unless the session is already done.
func (s *Session) send(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) discoverDocument(ctx context.Context, route string) {
	images, err := s.documentImages(ctx, route)
	if err != nil {
		s.logger.Debug("document discovery failed", zap.Error(err))
	}
	s.send(event{kind: eventDocumentFound, count: len(images)})
	s.loadAll(ctx, images, GroupDocument)
}

func (s *Session) documentImages(ctx context.Context, route string) ([]string, error) {
	pageURL := s.origin.ResolveReference(&url.URL{Path: route})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Sec-Fetch-Dest", "document")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("document returned %s", resp.Status)
	}
	return DocumentImages(resp.Body, pageURL)
}

func (s *Session) discoverRemote(ctx context.Context) {
	listCtx, cancel := context.WithTimeout(ctx, s.opts.HardCeiling)
	g, err := s.listing.Graphics(listCtx)
	cancel()
	if err != nil {
		// The page still completes from document and critical assets.
		s.logger.Info("portfolio listing unavailable", zap.Error(err))
		s.send(event{kind: eventRemoteFound, count: 0})
		return
	}
	urls := RemoteAssets(g, s.origin)
	s.send(event{kind: eventRemoteFound, count: len(urls)})
	s.sweep(ctx, urls)
}

// sweep drains urls with a fixed pool of pull-based workers.
func (s *Session) sweep(ctx context.Context, urls []string) {
	queue := make(chan string, len(urls))
	for _, u := range urls {
		queue <- u
	}
	close(queue)

	var g errgroup.Group
	for range s.opts.Concurrency {
		g.Go(func() error {
			for u := range queue {
				if s.finished() {
					return nil
				}
				s.load(ctx, Request{URL: u, Group: GroupRemote})
			}
			return nil
		})
	}
	_ = g.Wait()
}

// loadAll loads urls the way the browser loads page images: all at once,
// bounded only by DocumentConcurrency.
func (s *Session) loadAll(ctx context.Context, urls []string, group Group) {
	var g errgroup.Group
	g.SetLimit(s.opts.DocumentConcurrency)
	for _, u := range urls {
		if s.finished() {
			break
		}
		g.Go(func() error {
			s.load(ctx, Request{URL: u, Group: group})
			return nil
		})
	}
	_ = g.Wait()
}

// load performs one asset load and reports it exactly once. Failures and
// soft timeouts still settle the asset; document images only count as
// loaded when they decoded to nonzero dimensions.
func (s *Session) load(ctx context.Context, req Request) {
	ctx, span := s.tracer.Start(ctx, "preload.asset", trace.WithAttributes(
		attribute.String("asset.url", req.URL),
		attribute.String("asset.group", req.Group.String()),
	))
	defer span.End()

	loadCtx, cancel := context.WithTimeout(ctx, s.opts.AssetTimeout)
	result, err := s.loader.Load(loadCtx, req)
	timedOut := errors.Is(loadCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	switch {
	case timedOut:
		span.SetAttributes(attribute.String("asset.outcome", "timeout"))
		s.logger.Debug("asset soft timeout", zap.String("url", req.URL), zap.Stringer("group", req.Group))
	case err != nil:
		span.SetAttributes(attribute.String("asset.outcome", "error"))
		s.logger.Debug("asset failed", zap.String("url", req.URL), zap.Stringer("group", req.Group), zap.Error(err))
	default:
		span.SetAttributes(attribute.String("asset.outcome", "loaded"))
	}
	loaded := err == nil && result.Width > 0 && result.Height > 0
	if req.Group != GroupDocument {
		loaded = true
	}
	s.send(event{kind: eventSettled, group: req.Group, loaded: loaded})
}
