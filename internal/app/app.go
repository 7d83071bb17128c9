// Package app wires the service's components together from settings: the
// metadata store, blob store, host adapters, ingestion engine and rate
// limiter share one construction path across all commands.
package app

import (
	"log/slog"
	"time"

	"github.com/sweepies/imgur-sans-bullshit/internal/blobstore"
	"github.com/sweepies/imgur-sans-bullshit/internal/conf"
	"github.com/sweepies/imgur-sans-bullshit/internal/datastore"
	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
	"github.com/sweepies/imgur-sans-bullshit/internal/hosts"
	"github.com/sweepies/imgur-sans-bullshit/internal/httpclient"
	"github.com/sweepies/imgur-sans-bullshit/internal/ingest"
	"github.com/sweepies/imgur-sans-bullshit/internal/logging"
	"github.com/sweepies/imgur-sans-bullshit/internal/observability"
	"github.com/sweepies/imgur-sans-bullshit/internal/ratelimit"
)

// App bundles the constructed components.
type App struct {
	Settings *conf.Settings
	Store    datastore.Interface
	Blobs    blobstore.Interface
	Registry *hosts.Registry
	Ingest   *ingest.Service
	Limiter  *ratelimit.Limiter
	Metrics  *observability.Metrics

	logger *slog.Logger
}

// New builds the full component graph and opens the stores.
func New(settings *conf.Settings) (*App, error) {
	store := datastore.New(settings)
	if store == nil {
		return nil, errors.Newf("no database backend enabled in configuration").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := store.Open(); err != nil {
		return nil, err
	}

	blobs, err := blobstore.New(settings)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		_ = store.Close()
		_ = blobs.Close()
		return nil, err
	}

	registry, err := buildRegistry(settings)
	if err != nil {
		_ = store.Close()
		_ = blobs.Close()
		return nil, err
	}

	return &App{
		Settings: settings,
		Store:    store,
		Blobs:    blobs,
		Registry: registry,
		Ingest:   ingest.New(registry, store, blobs, metrics.Ingest),
		Limiter:  ratelimit.New(store, metrics.RateLimit),
		Metrics:  metrics,
		logger:   logging.ForService("app"),
	}, nil
}

// Close releases the storage collaborators.
func (a *App) Close() error {
	return errors.Join(a.Blobs.Close(), a.Store.Close())
}

// buildRegistry registers the host adapters. Imgur goes first: it is the
// default adapter and its bare ids stay unprefixed for legacy URLs.
func buildRegistry(settings *conf.Settings) (*hosts.Registry, error) {
	client := httpclient.New(nil)

	registry := hosts.NewRegistry(hosts.RateLimitConfig{
		Window:      settings.Hosts.RateLimit.Window,
		MaxRequests: settings.Hosts.RateLimit.MaxRequests,
	})

	imgur := hosts.NewImgurAdapter(hosts.ImgurOptions{
		ClientID:   settings.Hosts.Imgur.ClientID,
		StaleAfter: settings.Hosts.Imgur.StaleAfter,
		RateLimit:  rateLimitOverride(settings.Hosts.Imgur.RateLimit),
		Client:     client,
	})
	if err := registry.Register(imgur); err != nil {
		return nil, err
	}

	postimages := hosts.NewPostimagesAdapter(hosts.PostimagesOptions{
		StaleAfter: settings.Hosts.Postimages.StaleAfter,
		RateLimit:  rateLimitOverride(settings.Hosts.Postimages.RateLimit),
		Client:     client,
	})
	if err := registry.Register(postimages); err != nil {
		return nil, err
	}

	return registry, nil
}

// rateLimitOverride converts a per-host config override, dropping unusable
// values so a half-filled override never zeroes out the budget.
func rateLimitOverride(s *conf.RateLimitSettings) *hosts.RateLimitConfig {
	if s == nil || s.Window <= 0 || s.MaxRequests <= 0 {
		return nil
	}
	return &hosts.RateLimitConfig{Window: s.Window, MaxRequests: s.MaxRequests}
}

// StaleCutoff derives the sweep cutoff from the default adapter's
// staleness window when the caller gave no explicit age.
func (a *App) StaleCutoff(age time.Duration) time.Time {
	if age <= 0 {
		if def := a.Registry.Default(); def != nil {
			age = def.Config().StaleAfter
		} else {
			age = time.Hour
		}
	}
	return time.Now().Add(-age)
}
