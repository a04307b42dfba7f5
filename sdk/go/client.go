// Package storageclient is a Go client for the storage server's chunked upload and range
// download API.
package storageclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Validation patterns
var (
	ownerPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	uploadIDPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)
)

const (
	defaultOwnerHeader = "X-Owner-ID"
	defaultTimeout     = 5 * time.Minute
	defaultMaxRetries  = 3
)

// Client is the storage server API client. It is safe for concurrent use.
type Client struct {
	baseURL     string
	owner       string
	ownerHeader string
	maxRetries  int
	httpClient  *http.Client

	configMu    sync.Mutex
	configCache *PublicConfig
}

// NewClient creates a new client with the given configuration.
//
// Example:
//
//	client, err := storageclient.NewClient(storageclient.ClientConfig{
//	    BaseURL: "https://files.example.com",
//	    Owner:   "alice",
//	})
func NewClient(cfg ClientConfig) (*Client, error) {
	// Validate base URL
	if cfg.BaseURL == "" {
		return nil, &ValidationError{Field: "BaseURL", Message: "is required"}
	}

	parsedURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, &ValidationError{Field: "BaseURL", Message: "must be a valid URL"}
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, &ValidationError{Field: "BaseURL", Message: "must use http or https protocol"}
	}
	if parsedURL.Host == "" {
		return nil, &ValidationError{Field: "BaseURL", Message: "must include a host"}
	}

	if !ownerPattern.MatchString(cfg.Owner) {
		return nil, &ValidationError{Field: "Owner", Message: "must be 1-64 letters, digits, '-' or '_'"}
	}

	ownerHeader := cfg.OwnerHeader
	if ownerHeader == "" {
		ownerHeader = defaultOwnerHeader
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		owner:       cfg.Owner,
		ownerHeader: ownerHeader,
		maxRetries:  maxRetries,
		httpClient:  httpClient,
	}, nil
}

// String returns a string representation of the client.
func (c *Client) String() string {
	return fmt.Sprintf("StorageClient(baseURL=%q, owner=%q)", c.baseURL, c.owner)
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// validateUploadID validates an upload ID format (lower-case UUID).
func validateUploadID(id string) error {
	if id == "" || !uploadIDPattern.MatchString(id) {
		return &ValidationError{
			Field:   "uploadID",
			Message: "must be a valid UUID",
		}
	}
	return nil
}

// validateFilename validates a file name.
func validateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "filename", Message: "cannot be empty"}
	}
	if len(name) > 255 {
		return &ValidationError{Field: "filename", Message: "cannot exceed 255 characters"}
	}
	if strings.ContainsAny(name, "/\\") {
		return &ValidationError{Field: "filename", Message: "cannot contain path separators"}
	}
	return nil
}

// validateID validates a folder or file id used as a path segment.
func validateID(field, id string) error {
	if id == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	if strings.ContainsAny(id, "/?#") {
		return &ValidationError{Field: field, Message: "contains invalid characters"}
	}
	return nil
}

// request makes an HTTP request to the API.
func (c *Client) request(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set(c.ownerHeader, c.owner)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	return resp, nil
}

// handleResponse checks for errors and decodes JSON response.
func handleResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

// decodeError builds an APIError from an error response. The body is not closed.
func decodeError(resp *http.Response) error {
	var errResp apiErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&errResp); err != nil {
		errResp.Error = resp.Status
	}
	return newAPIError(resp.StatusCode, errResp.Code, errResp.Error)
}

// GetConfig retrieves the server's public configuration.
// The result is cached after the first successful call.
func (c *Client) GetConfig(ctx context.Context) (*PublicConfig, error) {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	if c.configCache != nil {
		return c.configCache, nil
	}

	resp, err := c.request(ctx, http.MethodGet, "/api/config", nil, nil)
	if err != nil {
		return nil, err
	}

	var apiResp apiConfigResponse
	if err := handleResponse(resp, &apiResp); err != nil {
		return nil, err
	}
	if apiResp.MaxChunkSize <= 0 || apiResp.MaxTotalChunks <= 0 {
		return nil, fmt.Errorf("server returned invalid upload limits: %+v", apiResp)
	}

	c.configCache = &PublicConfig{
		MaxChunkSize:   apiResp.MaxChunkSize,
		MaxTotalChunks: apiResp.MaxTotalChunks,
	}

	return c.configCache, nil
}
