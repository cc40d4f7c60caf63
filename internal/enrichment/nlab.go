package enrichment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/hyperjump/parmesan/internal/metrics"
	"github.com/hyperjump/parmesan/internal/models"
)

const (
	DefaultNLabBaseURL = "http://ncatlab.org/nlab/show"

	nlabHomePage = "https://ncatlab.org"
)

// ErrNoRevision is returned when an nLab page has no paragraph inside its revision element.
var ErrNoRevision = errors.New("no revision paragraph")

var revisionParagraph = cascadia.MustCompile("#revision p")

// NLabSource reads the opening paragraph of an nLab page.
type NLabSource struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    *zap.Logger
}

// NLabOption configures an NLabSource.
type NLabOption func(*NLabSource)

func WithNLabBaseURL(base string) NLabOption {
	return func(n *NLabSource) { n.baseURL = base }
}

func WithNLabUserAgent(ua string) NLabOption {
	return func(n *NLabSource) { n.userAgent = ua }
}

func WithNLabClient(client *http.Client) NLabOption {
	return func(n *NLabSource) { n.client = client }
}

func WithNLabLogger(logger *zap.Logger) NLabOption {
	return func(n *NLabSource) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNLabSource creates an nLab source.
func NewNLabSource(opts ...NLabOption) *NLabSource {
	n := &NLabSource{
		baseURL:   DefaultNLabBaseURL,
		userAgent: DefaultUserAgent,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *NLabSource) Name() string     { return models.SourceNLab }
func (n *NLabSource) HomePage() string { return nlabHomePage }

// PageURL returns the page address for term.
func (n *NLabSource) PageURL(term string) string {
	return strings.TrimRight(n.baseURL, "/") + "/" + url.QueryEscape(term)
}

// Fetch downloads the page for term. A non-200 answer is an empty result, not an error.
func (n *NLabSource) Fetch(ctx context.Context, term string) (*FetchResult, error) {
	pageURL := n.PageURL(term)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("nlab: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)

	start := time.Now()
	resp, err := n.client.Do(req)
	metrics.SourceRequestDuration.WithLabelValues(n.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceRequestsTotal.WithLabelValues(n.Name(), "error").Inc()
		return nil, fmt.Errorf("nlab: request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.SourceRequestsTotal.WithLabelValues(n.Name(), strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		n.logger.Debug("nLab page not available",
			zap.String("url", pageURL),
			zap.Int("status", resp.StatusCode))
		return &FetchResult{}, nil
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("nlab: failed to parse page: %w", err)
	}
	p := revisionParagraph.MatchFirst(doc)
	if p == nil {
		return nil, fmt.Errorf("nlab: %s: %w", pageURL, ErrNoRevision)
	}

	return &FetchResult{
		Terms: []string{term},
		Definitions: []*models.Definition{{
			Term:       term,
			SourceName: term,
			Definition: strings.TrimSpace(textContent(p)),
			Source:     models.SourceNLab,
			SourceURL:  pageURL,
		}},
	}, nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
