package config

import (
	"time"

	"github.com/hyperjump/parmesan/internal/ranking"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/parmesan/data/db/corpus.db"
	}
	if cfg.Storage.LemmaIndexPath == "" {
		cfg.Storage.LemmaIndexPath = "/usr/local/var/parmesan/data/indices/lemmas"
	}
	if cfg.Search.RegexTemplate == "" {
		cfg.Search.RegexTemplate = ranking.DefaultTemplate
	}
	if cfg.Search.ResultsPerCollection == 0 {
		cfg.Search.ResultsPerCollection = 10
	}
	if cfg.Search.SentencesPerDocument == 0 {
		cfg.Search.SentencesPerDocument = 10
	}
	if cfg.Search.TitleBonus == 0 {
		cfg.Search.TitleBonus = 10
	}
	if cfg.Search.Suggestions == 0 {
		cfg.Search.Suggestions = 3
	}
	if cfg.Enrichment.PerSourceLimit == 0 {
		cfg.Enrichment.PerSourceLimit = 5
	}
	if cfg.Enrichment.Timeout == 0 {
		cfg.Enrichment.Timeout = 15 * time.Second
	}
	w := &cfg.Enrichment.Wikidata
	if w.Enabled == nil {
		w.Enabled = boolPtr(true)
	}
	if w.Endpoint == "" {
		w.Endpoint = "https://query.wikidata.org/sparql"
	}
	if w.UserAgent == "" {
		w.UserAgent = "parmesan/0.2"
	}
	// Wikidata labels are persisted as terms; definitions are refetched each time.
	if w.CacheResults == nil {
		w.CacheResults = boolPtr(false)
	}
	if w.MaxRetries == 0 {
		w.MaxRetries = 5
	}
	if w.MaxRetryAfter == 0 {
		w.MaxRetryAfter = 60 * time.Second
	}
	n := &cfg.Enrichment.NLab
	if n.Enabled == nil {
		n.Enabled = boolPtr(true)
	}
	if n.BaseURL == "" {
		n.BaseURL = "http://ncatlab.org/nlab/show"
	}
	if n.CacheResults == nil {
		n.CacheResults = boolPtr(true)
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".conllu"}
	}
	if cfg.Watch.DefaultCollection == "" {
		cfg.Watch.DefaultCollection = "default"
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		cfg.Watch.Recursive = boolPtr(true)
	}
}

func boolPtr(b bool) *bool { return &b }
