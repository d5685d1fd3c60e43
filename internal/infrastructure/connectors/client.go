package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseSize limits the response body size to prevent memory exhaustion
const maxResponseSize = 10 * 1024 * 1024 // 10MB max response

// defaultRequestTimeout bounds every outbound API call
const defaultRequestTimeout = 30 * time.Second

// restClient is a thin JSON HTTP client shared by the connector
// implementations. Auth material is carried as static headers set by the
// owning connector.
type restClient struct {
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
}

func newRESTClient(baseURL string, timeout time.Duration) *restClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &restClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		headers:    make(map[string]string),
	}
}

// setHeader sets a static header sent with every request
func (c *restClient) setHeader(key, value string) {
	c.headers[key] = value
}

// postJSON sends a JSON body and returns the status code and response body.
// Transport failures return an error; HTTP error statuses do not.
func (c *restClient) postJSON(ctx context.Context, path string, body any) (int, []byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("connectors: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("connectors: failed to create request: %w", err)
	}
	return c.do(req)
}

// getJSON issues a GET and returns the status code and response body
func (c *restClient) getJSON(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("connectors: failed to create request: %w", err)
	}
	return c.do(req)
}

func (c *restClient) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("connectors: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("connectors: failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
