// Package store holds the result stores and the read path the lookup API uses.
package store

import (
	"context"
	"errors"
	"log/slog"

	"upagg/internal/aggregation/models"
	"upagg/pkg/platform/circuit"
	"upagg/pkg/platform/sentinel"
)

// Finder returns one stored row.
type Finder interface {
	FindResult(ctx context.Context, id models.EntityID) (*models.Result, error)
}

// Filler accepts rows to write back into a cache.
type Filler interface {
	PutResults(ctx context.Context, results []models.Result) error
}

// CachedFinder is a Finder and Filler, like the redis cache.
type CachedFinder interface {
	Finder
	Filler
}

// ReadThrough serves lookups from the cache when it can and falls back to
// the primary store. Repeated cache failures open a breaker so lookups go
// straight to the primary until a probe succeeds.
type ReadThrough struct {
	cache   CachedFinder
	primary Finder
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// NewReadThrough returns primary unchanged when there is no cache.
func NewReadThrough(cache CachedFinder, primary Finder, logger *slog.Logger, opts ...circuit.Option) Finder {
	if cache == nil {
		return primary
	}
	if primary == nil {
		return cache
	}
	return &ReadThrough{
		cache:   cache,
		primary: primary,
		breaker: circuit.New("result-cache", opts...),
		logger:  logger,
	}
}

func (r *ReadThrough) FindResult(ctx context.Context, id models.EntityID) (*models.Result, error) {
	useCache := r.breaker.Allow()
	if useCache {
		res, err := r.cache.FindResult(ctx, id)
		switch {
		case err == nil:
			r.success(ctx)
			return res, nil
		case errors.Is(err, sentinel.ErrNotFound):
			r.success(ctx)
		default:
			useCache = r.failure(ctx, id, err)
		}
	}

	res, err := r.primary.FindResult(ctx, id)
	if err != nil {
		return nil, err
	}
	if useCache {
		if err := r.cache.PutResults(ctx, []models.Result{*res}); err != nil {
			r.failure(ctx, id, err)
		}
	}
	return res, nil
}

func (r *ReadThrough) success(ctx context.Context) {
	if _, change := r.breaker.RecordSuccess(); change.Closed && r.logger != nil {
		r.logger.InfoContext(ctx, "result cache recovered")
	}
}

// failure records a cache error and reports whether the cache is still usable.
func (r *ReadThrough) failure(ctx context.Context, id models.EntityID, err error) bool {
	r.warn(ctx, "result cache call failed", id, err)
	fallback, change := r.breaker.RecordFailure()
	if change.Opened && r.logger != nil {
		r.logger.WarnContext(ctx, "result cache circuit opened")
	}
	return !fallback
}

func (r *ReadThrough) warn(ctx context.Context, msg string, id models.EntityID, err error) {
	if r.logger == nil {
		return
	}
	r.logger.WarnContext(ctx, msg, "entity_id", id, "error", err)
}
