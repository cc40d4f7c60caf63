package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/parmesan/internal/metrics"
	"github.com/hyperjump/parmesan/internal/models"
)

const (
	DefaultWikidataEndpoint = "https://query.wikidata.org/sparql"
	DefaultUserAgent        = "parmesan/0.2"
	DefaultMaxRetries       = 5
	DefaultMaxRetryAfter    = 60 * time.Second

	wikidataHomePage = "https://www.wikidata.org"
	maxResponseBytes = 10 << 20
)

// Items that are Wikimedia categories, disambiguation pages, names, and similar are excluded.
const sparqlTemplate = `SELECT distinct ?item ?itemLabel ?itemDescription WHERE {
    {?item rdfs:label "%[1]s"@en.} UNION
    {?item skos:altLabel "%[1]s"@en.}
    MINUS { ?item wdt:P31 wd:Q4167836 }
    MINUS { ?item wdt:P279 wd:Q4167836 }
    MINUS { ?item wdt:P279 wd:Q4406616 }
    MINUS { ?item wdt:P279 wd:Q223557 }
    MINUS { ?item wdt:P279 wd:Q82794 }
    MINUS { ?item wdt:P279 wd:Q63539947 }
    MINUS { ?item wdt:P279 wd:Q2221906 }
    MINUS { ?item wdt:P279 wd:Q3769299 }
    MINUS { ?item wdt:P279 wd:Q186408 }
    MINUS { ?item wdt:P279 wd:Q186081 }
    MINUS { ?item wdt:P279 wd:Q8142 }
    SERVICE wikibase:label {
        bd:serviceParam wikibase:language "en" .
    }
}`

var sparqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\b", `\b`,
	"\f", `\f`,
)

// BuildSPARQL returns the label lookup query for term. The term is escaped as a
// SPARQL string literal.
func BuildSPARQL(term string) string {
	return fmt.Sprintf(sparqlTemplate, sparqlEscaper.Replace(term))
}

// WikidataSource looks terms up through the Wikidata SPARQL endpoint.
type WikidataSource struct {
	endpoint      string
	userAgent     string
	client        *http.Client
	maxRetries    int
	maxRetryAfter time.Duration
	sleep         func(context.Context, time.Duration) error
	logger        *zap.Logger
}

// WikidataOption configures a WikidataSource.
type WikidataOption func(*WikidataSource)

func WithWikidataEndpoint(endpoint string) WikidataOption {
	return func(w *WikidataSource) { w.endpoint = endpoint }
}

func WithWikidataUserAgent(ua string) WikidataOption {
	return func(w *WikidataSource) { w.userAgent = ua }
}

func WithWikidataClient(client *http.Client) WikidataOption {
	return func(w *WikidataSource) { w.client = client }
}

// WithRetryPolicy bounds rate limit handling. A negative maxRetries disables retries.
func WithRetryPolicy(maxRetries int, maxRetryAfter time.Duration) WikidataOption {
	return func(w *WikidataSource) {
		w.maxRetries = maxRetries
		w.maxRetryAfter = maxRetryAfter
	}
}

// WithSleep replaces the wait used between rate limited attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) WikidataOption {
	return func(w *WikidataSource) { w.sleep = sleep }
}

func WithWikidataLogger(logger *zap.Logger) WikidataOption {
	return func(w *WikidataSource) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWikidataSource creates a Wikidata source with the public endpoint by default.
func NewWikidataSource(opts ...WikidataOption) *WikidataSource {
	w := &WikidataSource{
		endpoint:      DefaultWikidataEndpoint,
		userAgent:     DefaultUserAgent,
		client:        &http.Client{Timeout: 30 * time.Second},
		maxRetries:    DefaultMaxRetries,
		maxRetryAfter: DefaultMaxRetryAfter,
		sleep:         sleepContext,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.maxRetries < 0 {
		w.maxRetries = 0
	}
	return w
}

func (w *WikidataSource) Name() string     { return models.SourceWikidata }
func (w *WikidataSource) HomePage() string { return wikidataHomePage }

type sparqlValue struct {
	Value string `json:"value"`
}

type sparqlResponse struct {
	Results struct {
		Bindings []struct {
			Item            sparqlValue  `json:"item"`
			ItemLabel       sparqlValue  `json:"itemLabel"`
			ItemDescription *sparqlValue `json:"itemDescription"`
		} `json:"bindings"`
	} `json:"results"`
}

// Fetch runs the label query for term. Rate limited responses are retried after the
// server's Retry-After delay, up to the configured number of retries.
func (w *WikidataSource) Fetch(ctx context.Context, term string) (*FetchResult, error) {
	body := url.Values{
		"query":  {BuildSPARQL(term)},
		"format": {"json"},
	}.Encode()

	for attempt := 0; ; attempt++ {
		resp, err := w.post(ctx, body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := parseRetryAfter(resp.Header.Get("Retry-After"), w.maxRetryAfter)
			drain(resp)
			if attempt >= w.maxRetries {
				return nil, fmt.Errorf("wikidata: %w after %d retries", ErrRateLimited, attempt)
			}
			metrics.SourceRetriesTotal.WithLabelValues(w.Name()).Inc()
			w.logger.Info("Wikidata rate limited, retrying",
				zap.Duration("retry_after", wait),
				zap.Int("attempt", attempt+1))
			if err := w.sleep(ctx, wait); err != nil {
				return nil, fmt.Errorf("wikidata: waiting to retry: %w", err)
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			drain(resp)
			return nil, fmt.Errorf("wikidata: unexpected status code %d", resp.StatusCode)
		}

		var parsed sparqlResponse
		err = json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("wikidata: failed to decode response: %w", err)
		}
		return w.toResult(parsed), nil
	}
}

func (w *WikidataSource) post(ctx context.Context, body string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("wikidata: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")
	req.Header.Set("User-Agent", w.userAgent)

	start := time.Now()
	resp, err := w.client.Do(req)
	metrics.SourceRequestDuration.WithLabelValues(w.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceRequestsTotal.WithLabelValues(w.Name(), "error").Inc()
		return nil, fmt.Errorf("wikidata: request failed: %w", err)
	}
	metrics.SourceRequestsTotal.WithLabelValues(w.Name(), strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

func (w *WikidataSource) toResult(parsed sparqlResponse) *FetchResult {
	res := &FetchResult{}
	for _, b := range parsed.Results.Bindings {
		label := b.ItemLabel.Value
		desc := ""
		if b.ItemDescription != nil {
			desc = b.ItemDescription.Value
		}
		res.Terms = append(res.Terms, label)
		res.Definitions = append(res.Definitions, &models.Definition{
			Term:       label,
			SourceName: label,
			Definition: desc,
			Source:     models.SourceWikidata,
			SourceURL:  b.Item.Value,
		})
	}
	return res
}

// parseRetryAfter reads a Retry-After value in whole seconds. Missing or invalid values
// wait one second; positive limits clamp the result.
func parseRetryAfter(v string, limit time.Duration) time.Duration {
	wait := time.Second
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		wait = time.Duration(secs) * time.Second
	}
	if limit > 0 && wait > limit {
		wait = limit
	}
	return wait
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
