package datafetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Caller invokes one provider entry point. Implemented by Client; tests use fakes.
type Caller interface {
	Call(ctx context.Context, entryPoint string, params url.Values) (*Table, error)
}

// Client talks to an AKTools gateway, which exposes every akshare function as
// GET /api/public/{function} returning the data frame as a JSON array of records.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Call(ctx context.Context, entryPoint string, params url.Values) (*Table, error) {
	endpoint := c.baseURL + "/api/public/" + url.PathEscape(entryPoint)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", entryPoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s returned %d: %s", entryPoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	table, err := DecodeTable(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", entryPoint, err)
	}
	return table, nil
}
