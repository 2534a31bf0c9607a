package cli

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"flowwatch/models"

	json "github.com/goccy/go-json"
)

// Client is the HTTP client for talking to the flowwatch server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ErrorPage is one page of the error listing.
type ErrorPage struct {
	Errors []models.ErrorRecord `json:"errors"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// Analytics is the dashboard summary as served by /api/analytics.
type Analytics struct {
	models.ErrorAnalytics
	ErrorTrend models.TrendChange `json:"errorTrend"`
}

// Workflow is the subset of an n8n workflow the CLI prints.
type Workflow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// IngestReply is the webhook response.
type IngestReply struct {
	Success       bool   `json:"success"`
	Received      int    `json:"received"`
	Processed     int    `json:"processed"`
	Rejected      int    `json:"rejected"`
	PersistFailed int    `json:"persistFailed"`
	Message       string `json:"message"`
	Warning       string `json:"warning"`
}

// NewClient creates a new HTTP client. Session cookies from Login are kept
// for the lifetime of the client.
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

// BaseURL is the server the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest executes an HTTP request. body may be nil, raw []byte, or any
// value to be JSON encoded.
func (c *Client) doRequest(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		bodyReader = bytes.NewReader(b)
	default:
		jsonData, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// apiError is the {success:false, error, message} envelope.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleResponse decodes a 2xx body into result, or turns the error envelope
// into an error.
func (c *Client) handleResponse(resp *http.Response, result interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var env apiError
		if json.Unmarshal(bodyBytes, &env) == nil && env.Error != "" {
			if env.Message != "" {
				return fmt.Errorf("HTTP %d: %s (%s)", resp.StatusCode, env.Error, env.Message)
			}
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, env.Error)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) call(method, path string, body, result interface{}) error {
	resp, err := c.doRequest(method, path, body)
	if err != nil {
		return err
	}
	return c.handleResponse(resp, result)
}

// HealthCheck pings the health endpoint
func (c *Client) HealthCheck() error {
	resp, err := c.doRequest(http.MethodGet, "/api/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

// Login starts an operator session.
func (c *Client) Login(email, password string) error {
	return c.call(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, nil)
}

// ListErrors fetches a page of errors filtered by query.
func (c *Client) ListErrors(query url.Values) (*ErrorPage, error) {
	path := "/api/errors"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var page ErrorPage
	if err := c.call(http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SetResolved marks an error fixed or open again.
func (c *Client) SetResolved(id string, resolved bool) error {
	return c.call(http.MethodPatch, "/api/errors", map[string]interface{}{"id": id, "resolved": resolved}, nil)
}

// DeleteError removes one error.
func (c *Client) DeleteError(id string) error {
	return c.call(http.MethodDelete, "/api/errors/"+url.PathEscape(id), nil, nil)
}

// Analytics fetches the dashboard summary.
func (c *Client) Analytics() (*Analytics, error) {
	var a Analytics
	if err := c.call(http.MethodGet, "/api/analytics", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Workflows lists n8n workflows through the server.
func (c *Client) Workflows() ([]Workflow, error) {
	var out struct {
		Workflows []Workflow `json:"workflows"`
	}
	if err := c.call(http.MethodGet, "/api/workflows", nil, &out); err != nil {
		return nil, err
	}
	return out.Workflows, nil
}

// Ingest posts a raw webhook body.
func (c *Client) Ingest(body []byte) (*IngestReply, error) {
	var reply IngestReply
	if err := c.call(http.MethodPost, "/api/webhook/errors", body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Diagnostics lists recent server-side failures.
func (c *Client) Diagnostics() ([]models.Diagnostic, error) {
	var out []models.Diagnostic
	if err := c.call(http.MethodGet, "/api/diagnostics", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
