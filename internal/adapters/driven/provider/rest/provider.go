// Package rest provides a content provider client for generic REST change
// feeds. The feed exposes two endpoints: GET {base}/changes for the paginated
// change list and GET {base}/documents/{id} for document content.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.Provider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultPageSize = 100
)

// Config holds configuration for the REST provider client.
type Config struct {
	// BaseURL is the feed's base URL (required).
	BaseURL string

	// Token is a static bearer token. Ignored when OAuth is set.
	Token string

	// OAuth enables the client-credentials flow instead of a static token.
	OAuth *OAuthConfig

	// PageSize is the number of changes requested per page (default: 100).
	PageSize int

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration

	// RequestsPerSecond and Burst tune client-side rate limiting.
	RequestsPerSecond float64
	Burst             int
}

// OAuthConfig holds client-credentials settings.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Provider fetches changes and documents from a REST change feed.
type Provider struct {
	client   *http.Client
	baseURL  string
	pageSize int
	limiter  *rateLimiter
	logger   *zap.Logger
}

// changeEntry is the feed's wire format for one change.
type changeEntry struct {
	DocumentID string    `json:"document_id"`
	Op         string    `json:"op"`
	Timestamp  time.Time `json:"timestamp"`
}

// changesResponse is the /changes response format.
type changesResponse struct {
	Changes       []changeEntry `json:"changes"`
	NextPageToken string        `json:"next_page_token"`
}

// documentResponse is the /documents/{id} response format.
type documentResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Space        string    `json:"space"`
	Body         string    `json:"body"`
	Link         string    `json:"link"`
	LastModified time.Time `json:"last_modified"`
	Scopes       []string  `json:"scopes"`
}

// NewProvider creates a REST provider client.
func NewProvider(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest: base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &http.Client{Timeout: cfg.Timeout}
	switch {
	case cfg.OAuth != nil:
		cc := &clientcredentials.Config{
			TokenURL:     cfg.OAuth.TokenURL,
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Scopes:       cfg.OAuth.Scopes,
		}
		client = cc.Client(context.Background())
		client.Timeout = cfg.Timeout
	case cfg.Token != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		client = oauth2.NewClient(context.Background(), ts)
		client.Timeout = cfg.Timeout
	}

	return &Provider{
		client:   client,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: cfg.PageSize,
		limiter:  newRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:   logger,
	}, nil
}

// ListChanges fetches one page of the change feed.
func (p *Provider) ListChanges(ctx context.Context, since time.Time, pageToken string) (*driven.ChangePage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(p.pageSize))
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}

	var resp changesResponse
	if err := p.getJSON(ctx, "/changes", q, &resp); err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}

	changes := make([]domain.Change, 0, len(resp.Changes))
	for _, c := range resp.Changes {
		changes = append(changes, domain.Change{
			DocumentID: c.DocumentID,
			Op:         domain.ChangeOp(c.Op),
			Timestamp:  c.Timestamp,
		})
	}

	// Pages are re-sorted so changes always arrive in ascending
	// timestamp order, whatever the server sent.
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Timestamp.Before(changes[j].Timestamp)
	})

	return &driven.ChangePage{
		Changes:       changes,
		NextPageToken: resp.NextPageToken,
	}, nil
}

// GetDocument fetches one document by id.
func (p *Provider) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: document id is empty", domain.ErrInvalidInput)
	}

	var resp documentResponse
	if err := p.getJSON(ctx, "/documents/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}

	docID := resp.ID
	if docID == "" {
		docID = id
	}

	return &domain.Document{
		ID:           docID,
		Title:        resp.Title,
		Space:        resp.Space,
		Body:         resp.Body,
		Link:         resp.Link,
		LastModified: resp.LastModified,
		Scopes:       resp.Scopes,
	}, nil
}

// Ping validates the feed is reachable and the credentials work by
// requesting a single-entry page.
func (p *Provider) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("limit", "1")

	var resp changesResponse
	if err := p.getJSON(ctx, "/changes", q, &resp); err != nil {
		return fmt.Errorf("rest: ping failed: %w", err)
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// getJSON performs a rate-limited GET and decodes the JSON response into out.
func (p *Provider) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := p.limiter.wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	u := p.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send request: %w", domain.ErrTransientDependency, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", domain.ErrTransientDependency, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			secs := retryAfterSeconds(resp.Header)
			p.limiter.recordRetryAfter(secs)
			p.logger.Warn("provider rate limited",
				zap.Int("retry_after_seconds", secs))
		}
		return statusError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError classifies a non-200 response so callers can tell
// retryable failures from permanent ones.
func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: provider status %d: %s", domain.ErrRateLimited, status, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: provider status %d: %s", domain.ErrNotFound, status, msg)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: provider status %d: %s", domain.ErrTransientDependency, status, msg)
	default:
		return fmt.Errorf("provider status %d: %s", status, msg)
	}
}

// retryAfterSeconds parses a Retry-After header given either as delay
// seconds or as an HTTP date. Zero means the header was absent or
// unusable.
func retryAfterSeconds(h http.Header) int {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return secs
	}
	if at, err := http.ParseTime(v); err == nil {
		return int(time.Until(at).Seconds())
	}
	return 0
}
