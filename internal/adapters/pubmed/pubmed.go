// Package pubmed is a client for the NCBI E-utilities publication search.
package pubmed

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

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/okian/leadrank/internal/adapters/ratelimit"
)

// DefaultBaseURL is the public E-utilities endpoint.
const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

const maxBodyBytes = 1 << 20

var (
	// ErrStatus is returned for unexpected HTTP status codes.
	ErrStatus = errors.New("pubmed: unexpected status")
	// ErrMalformedResponse is returned when a search response cannot be parsed.
	ErrMalformedResponse = errors.New("pubmed: malformed response")
)

// Config configures the client. Tool and Email identify the caller to NCBI;
// APIKey raises the quota from 3 to 10 requests per second.
type Config struct {
	BaseURL    string
	Tool       string
	Email      string
	APIKey     string
	HTTPClient *http.Client
}

// Client implements enrichment.Bibliography.
type Client struct {
	cfg Config
}

// NewClient builds a Client, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Tool == "" {
		cfg.Tool = "leadrank"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg}
}

// Search returns up to limit PubMed IDs authored by author, newest first.
func (c *Client) Search(ctx context.Context, author string, limit int) ([]string, error) {
	q := c.params()
	q.Set("db", "pubmed")
	q.Set("term", author+"[Author]")
	q.Set("retmax", strconv.Itoa(limit))
	q.Set("sort", "pub date")
	q.Set("retmode", "json")

	body, err := c.get(ctx, "esearch.fcgi", q)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: esearch body is not JSON", ErrMalformedResponse)
	}
	res := gjson.ParseBytes(body)
	if msg := res.Get("error"); msg.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, msg.String())
	}
	list := res.Get("esearchresult.idlist")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: esearchresult.idlist missing", ErrMalformedResponse)
	}
	ids := make([]string, 0, len(list.Array()))
	for _, id := range list.Array() {
		if s := strings.TrimSpace(id.String()); s != "" {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// FetchAbstract returns the plain-text abstract record for one PubMed ID.
func (c *Client) FetchAbstract(ctx context.Context, id string) (string, error) {
	q := c.params()
	q.Set("db", "pubmed")
	q.Set("id", id)
	q.Set("rettype", "abstract")
	q.Set("retmode", "text")

	body, err := c.get(ctx, "efetch.fcgi", q)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *Client) params() url.Values {
	q := url.Values{}
	q.Set("tool", c.cfg.Tool)
	if c.cfg.Email != "" {
		q.Set("email", c.cfg.Email)
	}
	if c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	return q
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/"+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ratelimit.Transient(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, ratelimit.Transient(err)
	}
	if resp.StatusCode == http.StatusOK {
		return body, nil
	}
	statusErr := fmt.Errorf("%w: %s %d", ErrStatus, path, resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return nil, errors.Join(statusErr, backoff.RetryAfter(secs))
		}
		return nil, ratelimit.Transient(statusErr)
	case retryable(resp.StatusCode):
		return nil, ratelimit.Transient(statusErr)
	default:
		return nil, statusErr
	}
}

func retryable(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}
