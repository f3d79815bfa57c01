package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

const (
	ownerHeader     = "X-Owner-ID"
	maxResponseBody = 32 << 20
)

// Submission outcomes.
const (
	outcomeAccepted  = "accepted"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// Client talks to the service's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c *Client) do(ctx context.Context, method, path, owner string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set(ownerHeader, owner)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// Ready checks GET /readyz.
func (c *Client) Ready(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/readyz", "", nil)
	if err != nil {
		return fmt.Errorf("connect to service: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("service not ready: status %d", status)
	}
	return nil
}

// SubmitImport posts one import and classifies the answer.
func (c *Client) SubmitImport(ctx context.Context, imp Import) string {
	status, body, err := c.do(ctx, http.MethodPost, "/imports", imp.Owner, imp)
	if err != nil {
		return outcomeFailed
	}

	var ack AckResponse
	_ = json.Unmarshal(body, &ack)
	switch status {
	case http.StatusAccepted:
		return outcomeAccepted
	case http.StatusOK:
		if ack.Duplicate {
			return outcomeDuplicate
		}
		return outcomeAccepted
	case http.StatusTooManyRequests:
		return outcomeRejected
	default:
		return outcomeFailed
	}
}

// Ranks reads GET /owners/{owner}/ranks.
func (c *Client) Ranks(ctx context.Context, owner string) (Ranking, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/owners/"+url.PathEscape(owner)+"/ranks", "", nil)
	if err != nil {
		return Ranking{}, err
	}
	if status != http.StatusOK {
		return Ranking{}, fmt.Errorf("ranks for %s: status %d: %s", owner, status, gjson.GetBytes(body, "message").String())
	}
	if !gjson.ValidBytes(body) {
		return Ranking{}, fmt.Errorf("ranks for %s: invalid JSON", owner)
	}

	res := gjson.ParseBytes(body)
	r := Ranking{Owner: owner, Status: res.Get("status").String()}
	raw := res.Get("ranks")
	if raw.Exists() && raw.IsArray() {
		if err := json.Unmarshal([]byte(raw.Raw), &r.Entries); err != nil {
			return Ranking{}, fmt.Errorf("decode ranks for %s: %w", owner, err)
		}
	}
	return r, nil
}

// LeadCount reads totalLeads from GET /stats.
func (c *Client) LeadCount(ctx context.Context) (int64, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/stats", "", nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("stats: status %d", status)
	}
	return gjson.GetBytes(body, "totalLeads").Int(), nil
}
