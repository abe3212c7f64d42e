package lexical

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the default search-service endpoint.
	DefaultBaseURL = "http://localhost:8003"

	// DefaultTimeout bounds each call to the search service.
	DefaultTimeout = 5 * time.Second
)

// Client talks to the search-service's /search and /index routes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option is a functional option for configuring Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL for the search service.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger used for index write-through failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new search-service client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// searchRequest is the request body for /search.
type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// searchResponse is the response body for /search.
type searchResponse struct {
	Hits  []Hit `json:"hits"`
	Total int   `json:"total"`
}

// Search returns ranked keyword hits for a query. Transport and decode
// failures wrap ErrUnavailable so callers can fall back to vector search.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	body, err := json.Marshal(searchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: search service status %d: %s", ErrUnavailable, resp.StatusCode, string(respBody))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding search response: %v", ErrUnavailable, err)
	}

	return result.Hits, nil
}

// indexResponse is the response body for /index.
type indexResponse struct {
	Index  string `json:"index"`
	ID     string `json:"id"`
	Result string `json:"result"`
}

// Index writes one chunk through to the keyword index. The outcome is
// reported explicitly; a down index never aborts ingestion.
func (c *Client) Index(ctx context.Context, chunk IndexChunk) IndexResult {
	if strings.TrimSpace(chunk.Text) == "" {
		// Nothing worth indexing.
		return IndexResult{OK: true}
	}
	if chunk.Tags == nil {
		chunk.Tags = []string{}
	}

	body, err := json.Marshal(chunk)
	if err != nil {
		return IndexResult{Reason: fmt.Sprintf("marshaling index request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/index", bytes.NewReader(body))
	if err != nil {
		return IndexResult{Reason: fmt.Sprintf("creating index request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("lexical index write failed",
			"document_id", chunk.DocumentID,
			"chunk_id", chunk.ChunkID,
			"error", err,
		)
		return IndexResult{Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		reason := fmt.Sprintf("search service status %d: %s", resp.StatusCode, string(respBody))
		c.logger.Warn("lexical index write failed",
			"document_id", chunk.DocumentID,
			"chunk_id", chunk.ChunkID,
			"reason", reason,
		)
		return IndexResult{Reason: reason}
	}

	var result indexResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return IndexResult{Reason: fmt.Sprintf("decoding index response: %v", err)}
	}

	return IndexResult{OK: true}
}

// Ensure Client implements both faces of the index.
var (
	_ Searcher = (*Client)(nil)
	_ Indexer  = (*Client)(nil)
)
