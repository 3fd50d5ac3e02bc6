package triage

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/medtriage/triage/internal/platform/apperror"
)

// ArtifactSource hands the engine the artifact to classify with.
type ArtifactSource interface {
	// Acquire returns the loaded artifact, attempting one reload when none is
	// loaded. It fails with a ServiceUnavailable error.
	Acquire(ctx context.Context) (*Artifact, error)
}

// Provider owns the process-wide artifact. Readers never lock: the artifact
// is swapped as a whole through an atomic pointer and loaded artifacts are
// never mutated.
type Provider struct {
	dir     string
	current atomic.Pointer[Artifact]
	group   singleflight.Group
	load    func(dir string) (*Artifact, error)
	logger  zerolog.Logger
}

func NewProvider(dir string, logger zerolog.Logger) *Provider {
	return &Provider{
		dir:    dir,
		load:   LoadArtifact,
		logger: logger.With().Str("component", "artifact").Logger(),
	}
}

// Dir is the artifact directory the provider loads from.
func (p *Provider) Dir() string { return p.dir }

// Current returns the loaded artifact or nil.
func (p *Provider) Current() *Artifact { return p.current.Load() }

// Set installs a, replacing whatever was loaded.
func (p *Provider) Set(a *Artifact) { p.current.Store(a) }

// LoadAtStartup performs the initial load. A failure is logged as a warning
// so the rest of the service stays usable; diagnoses answer 503 until a later
// reload succeeds.
func (p *Provider) LoadAtStartup(ctx context.Context) {
	a, err := p.Reload(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Str("dir", p.dir).Msg("classifier artifact not loaded; diagnoses unavailable")
		return
	}
	p.logger.Info().Str("version", a.Version).Int("labels", len(a.Classifier.Labels())).Msg("classifier artifact loaded")
}

// Reload loads the artifact from disk and swaps it in. Concurrent calls share
// one load. On failure the previous artifact stays in place.
func (p *Provider) Reload(_ context.Context) (*Artifact, error) {
	v, err, _ := p.group.Do("reload", func() (interface{}, error) {
		a, err := p.load(p.dir)
		if err != nil {
			return nil, err
		}
		prev := p.current.Swap(a)
		if prev == nil || prev.Version != a.Version {
			p.logger.Info().Str("version", a.Version).Msg("classifier artifact swapped")
		}
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

// RefreshIfChanged reloads only when the manifest on disk names a different
// version than the loaded one.
func (p *Provider) RefreshIfChanged(ctx context.Context) (bool, error) {
	m, err := ReadManifest(p.dir)
	if err != nil {
		return false, err
	}
	if cur := p.Current(); cur != nil && cur.Version == m.Version {
		return false, nil
	}
	if _, err := p.Reload(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Acquire(ctx context.Context) (*Artifact, error) {
	if a := p.Current(); a != nil {
		return a, nil
	}
	a, err := p.Reload(ctx)
	if err != nil {
		if !errors.Is(err, ErrArtifactMissing) {
			p.logger.Warn().Err(err).Msg("lazy artifact reload failed")
		}
		return nil, apperror.Unavailable("classifier not available")
	}
	return a, nil
}
