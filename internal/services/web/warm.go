package web

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/preload"
	"github.com/louisbranch/portfolio.studio/internal/services/web/routepath"
)

// warmCache runs one preload session against the server itself so the
// first visitor finds proxied media already cached.
func (s *Server) warmCache(ctx context.Context, origin string) {
	logger := s.logger.Named("warm")
	originURL, err := url.Parse(origin)
	if err != nil {
		logger.Warn("parse warm origin", zap.String("origin", origin), zap.Error(err))
		return
	}
	session, err := preload.New(preload.Config{
		Origin:    origin,
		Client:    cacheClient(s.cfg.Cache, originURL, logger),
		Presenter: preload.NewLogPresenter(logger),
		Logger:    logger,
	})
	if err != nil {
		logger.Warn("start warm session", zap.Error(err))
		return
	}
	defer session.Wait()
	if err := session.Run(ctx, routepath.Root); err != nil {
		logger.Info("warm session stopped", zap.Error(err))
	}
}
