package enrichment

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hyperjump/parmesan/internal/models"
)

// CachedSource looks definitions up in storage before asking its source.
type CachedSource struct {
	source       Source
	store        DefinitionStore
	cacheResults bool
	cacheTotal   *prometheus.CounterVec
	logger       *zap.Logger
	now          func() time.Time
}

// CachedSourceOption configures a CachedSource.
type CachedSourceOption func(*CachedSource)

// WithCacheResults sets whether fetched definitions are stored for later lookups.
func WithCacheResults(cache bool) CachedSourceOption {
	return func(c *CachedSource) { c.cacheResults = cache }
}

// WithCacheCounter sets the counter vec (labels "source", "result") for hits and misses.
func WithCacheCounter(cv *prometheus.CounterVec) CachedSourceOption {
	return func(c *CachedSource) { c.cacheTotal = cv }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) CachedSourceOption {
	return func(c *CachedSource) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCachedSource wraps source with a storage-backed cache.
func NewCachedSource(source Source, store DefinitionStore, opts ...CachedSourceOption) *CachedSource {
	c := &CachedSource{
		source:       source,
		store:        store,
		cacheResults: true,
		logger:       zap.NewNop(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the wrapped source's name.
func (c *CachedSource) Name() string {
	return c.source.Name()
}

// Lookup returns cached definitions of term, or fetches them. It never fails: any error
// is logged and yields an empty result.
func (c *CachedSource) Lookup(ctx context.Context, term string) []*models.Definition {
	name := c.source.Name()
	log := c.logger.With(zap.String("source", name), zap.String("term", term))

	if _, err := c.store.EnsureSource(ctx, name, c.source.HomePage()); err != nil {
		log.Warn("Failed to register definition source", zap.Error(err))
	}

	cached, err := c.store.FindDefinitions(ctx, term, name)
	if err != nil {
		log.Warn("Failed to read cached definitions", zap.Error(err))
	}
	if len(cached) > 0 {
		c.incCache(name, "hit")
		log.Debug("Using cached definitions", zap.Int("count", len(cached)))
		return cached
	}
	c.incCache(name, "miss")

	res, err := c.source.Fetch(ctx, term)
	if err != nil {
		log.Warn("Definition source failed", zap.Error(err))
		return nil
	}
	if res == nil {
		return nil
	}

	for _, t := range res.Terms {
		if _, err := c.store.SaveTerm(ctx, t); err != nil {
			log.Warn("Failed to save term", zap.String("label", t), zap.Error(err))
		}
	}
	accessed := c.now()
	for _, def := range res.Definitions {
		if def.Accessed.IsZero() {
			def.Accessed = accessed
		}
		if !c.cacheResults {
			continue
		}
		if err := c.store.SaveDefinition(ctx, def); err != nil {
			log.Warn("Failed to cache definition", zap.Error(err))
		}
	}
	return res.Definitions
}

func (c *CachedSource) incCache(source, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(source, result).Inc()
	}
}
