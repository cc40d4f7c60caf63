package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/parmesan/internal/config"
	"github.com/hyperjump/parmesan/internal/enrichment"
	"github.com/hyperjump/parmesan/internal/indexer"
	"github.com/hyperjump/parmesan/internal/keyword"
	"github.com/hyperjump/parmesan/internal/metrics"
	"github.com/hyperjump/parmesan/internal/ranking"
	"github.com/hyperjump/parmesan/internal/search"
	"github.com/hyperjump/parmesan/internal/storage"
)

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Lemmas   keyword.LemmaIndex
	Enricher *enrichment.Enricher
	Engine   *search.Engine
	Indexer  *indexer.Indexer
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Lemmas != nil {
		_ = c.Lemmas.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	lemmas, err := keyword.NewBleveIndex(cfg.Storage.LemmaIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize lemma index: %w", err)
	}

	ranker, err := ranking.NewRanker(store, rankingOptions(cfg))
	if err != nil {
		_ = store.Close()
		_ = lemmas.Close()
		return nil, fmt.Errorf("failed to initialize ranker: %w", err)
	}

	enricher := buildEnricher(cfg, store, logger)
	engine := search.NewEngine(store, ranker,
		search.WithEnricher(enricher),
		search.WithSpellChecker(keyword.NewSpellChecker(lemmas, keyword.WithTranspositions()), cfg.Search.Suggestions),
		search.WithLogger(logger),
	)
	idx := indexer.NewIndexer(store, lemmas, indexer.WithLogger(logger))

	return &Components{
		Storage:  store,
		Lemmas:   lemmas,
		Enricher: enricher,
		Engine:   engine,
		Indexer:  idx,
	}, nil
}

func rankingOptions(cfg *config.Config) *ranking.Options {
	return &ranking.Options{
		Template:             cfg.Search.RegexTemplate,
		ResultsPerCollection: cfg.Search.ResultsPerCollection,
		SentencesPerDocument: cfg.Search.SentencesPerDocument,
		TitleBonus:           cfg.Search.TitleBonus,
	}
}

// buildEnricher wires the enabled definition sources behind the definition cache.
func buildEnricher(cfg *config.Config, store enrichment.DefinitionStore, logger *zap.Logger) *enrichment.Enricher {
	ec := cfg.Enrichment
	client := &http.Client{Timeout: ec.Timeout}
	var sources []*enrichment.CachedSource

	if config.BoolOr(ec.Wikidata.Enabled, true) {
		wd := enrichment.NewWikidataSource(
			enrichment.WithWikidataEndpoint(ec.Wikidata.Endpoint),
			enrichment.WithWikidataUserAgent(ec.Wikidata.UserAgent),
			enrichment.WithWikidataClient(client),
			enrichment.WithRetryPolicy(ec.Wikidata.MaxRetries, ec.Wikidata.MaxRetryAfter),
			enrichment.WithWikidataLogger(logger),
		)
		sources = append(sources, enrichment.NewCachedSource(wd, store,
			enrichment.WithCacheResults(config.BoolOr(ec.Wikidata.CacheResults, false)),
			enrichment.WithCacheCounter(metrics.DefinitionCacheTotal),
			enrichment.WithLogger(logger),
		))
	}
	if config.BoolOr(ec.NLab.Enabled, true) {
		nl := enrichment.NewNLabSource(
			enrichment.WithNLabBaseURL(ec.NLab.BaseURL),
			enrichment.WithNLabUserAgent(ec.Wikidata.UserAgent),
			enrichment.WithNLabClient(client),
			enrichment.WithNLabLogger(logger),
		)
		sources = append(sources, enrichment.NewCachedSource(nl, store,
			enrichment.WithCacheResults(config.BoolOr(ec.NLab.CacheResults, true)),
			enrichment.WithCacheCounter(metrics.DefinitionCacheTotal),
			enrichment.WithLogger(logger),
		))
	}
	return enrichment.NewEnricher(ec.PerSourceLimit, sources...)
}

// rebuildLemmasIfEmpty repopulates the lemma index from storage when it was deleted or never built.
func rebuildLemmasIfEmpty(ctx context.Context, c *Components, logger *zap.Logger) {
	n, err := c.Lemmas.DocCount()
	if err != nil || n > 0 {
		return
	}
	stats, err := c.Storage.Stats(ctx)
	if err != nil || stats.Documents == 0 {
		return
	}
	count, err := c.Indexer.Reindex(ctx)
	if err != nil {
		logger.Warn("lemma index rebuild failed", zap.Error(err))
		return
	}
	logger.Info("lemma index rebuilt", zap.Int("documents", count))
}
