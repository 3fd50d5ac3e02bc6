package triage

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const defaultRefreshSpec = "@every 5m"

// Refresher periodically picks up a retrained artifact from disk.
type Refresher struct {
	provider *Provider
	logger   zerolog.Logger
	cron     *cron.Cron
	cancel   context.CancelFunc
}

func NewRefresher(provider *Provider, logger zerolog.Logger) *Refresher {
	return &Refresher{
		provider: provider,
		logger:   logger.With().Str("component", "artifact-refresher").Logger(),
	}
}

// Start schedules refreshes on spec. An invalid spec falls back to every five
// minutes.
func (r *Refresher) Start(ctx context.Context, spec string) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	c := cron.New()
	if _, err := c.AddFunc(spec, func() { r.RunOnce(runCtx) }); err != nil {
		r.logger.Warn().Err(err).Str("spec", spec).Msg("invalid refresh spec; falling back to " + defaultRefreshSpec)
		c = cron.New()
		_, _ = c.AddFunc(defaultRefreshSpec, func() { r.RunOnce(runCtx) })
	}
	c.Start()
	r.cron = c
}

// RunOnce checks the artifact directory and reloads on a version change.
func (r *Refresher) RunOnce(ctx context.Context) {
	changed, err := r.provider.RefreshIfChanged(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("artifact refresh failed")
		return
	}
	if changed {
		r.logger.Info().Str("version", r.provider.Current().Version).Msg("artifact refreshed")
	}
}

// Stop cancels in-flight runs and waits for them to finish.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}
