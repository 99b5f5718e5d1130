package preload

import (
	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/platform/i18n/catalog"
	"github.com/louisbranch/portfolio.studio/internal/platform/logging"
)

// Presenter is the page side of a session. All calls come from the
// session's aggregator goroutine, in order: LockScroll, Render frames,
// UnlockScroll, Dismiss.
type Presenter interface {
	LockScroll()
	Render(Progress)
	UnlockScroll()
	Dismiss()
}

// NopPresenter ignores every call.
type NopPresenter struct{}

func (NopPresenter) LockScroll()     {}
func (NopPresenter) Render(Progress) {}
func (NopPresenter) UnlockScroll()   {}
func (NopPresenter) Dismiss()        {}

// LogPresenter writes progress frames to a zap logger. It is used when no
// terminal is attached, such as warm-on-start runs inside the server.
type LogPresenter struct {
	logger *zap.Logger
}

// NewLogPresenter returns a presenter that logs to logger.
func NewLogPresenter(logger *zap.Logger) *LogPresenter {
	return &LogPresenter{logger: logging.OrNop(logger).Named("preload")}
}

func (p *LogPresenter) LockScroll() {
	p.logger.Debug("scroll locked")
}

func (p *LogPresenter) Render(progress Progress) {
	p.logger.Debug("progress",
		zap.Int("percent", progress.Percent),
		zap.Int("target", progress.Target),
		zap.Int("loaded", progress.Loaded),
		zap.Int("total", progress.Total),
		zap.String("label", progress.Label),
		zap.Stringer("phase", progress.Phase),
	)
}

func (p *LogPresenter) UnlockScroll() {
	p.logger.Debug("scroll unlocked")
}

func (p *LogPresenter) Dismiss() {
	p.logger.Info("preload complete")
}

// Labels returns the five progress phrases and the ready phrase for locale.
func Labels(bundle *catalog.Bundle, locale string) ([]string, string) {
	if bundle == nil {
		bundle = catalog.Default()
	}
	locale = bundle.Match(locale)
	phrases := make([]string, labelPhrases)
	for i := range phrases {
		phrases[i], _ = bundle.Message(locale, phraseKey(i))
	}
	ready, _ := bundle.Message(locale, "preload.ready")
	return phrases, ready
}
