package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"
)

const (
	n8nPageSize = 250
	n8nMaxPages = 100
)

// Workflow is an n8n workflow definition.
type Workflow struct {
	ID          flexString      `json:"id"`
	Name        string          `json:"name"`
	Active      bool            `json:"active"`
	Nodes       json.RawMessage `json:"nodes,omitempty"`
	Connections json.RawMessage `json:"connections,omitempty"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	StaticData  json.RawMessage `json:"staticData,omitempty"`
	Tags        []WorkflowTag   `json:"tags,omitempty"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	UpdatedAt   string          `json:"updatedAt,omitempty"`
}

// WorkflowTag is a label attached to a workflow.
type WorkflowTag struct {
	ID   flexString `json:"id"`
	Name string     `json:"name"`
}

// N8NConfigStatus describes the n8n configuration without leaking the key.
type N8NConfigStatus struct {
	HasAPIKey     bool   `json:"hasApiKey"`
	BaseURL       string `json:"baseUrl"`
	APIKeyPreview string `json:"apiKeyPreview"`
}

// N8NClient reads workflows from the n8n public API.
type N8NClient struct {
	baseURL   string
	apiKey    string
	transport *Transport
	log       hclog.Logger
}

// NewN8NClient builds a client. An empty baseURL or apiKey leaves it unconfigured.
func NewN8NClient(baseURL, apiKey string, transport *Transport, log hclog.Logger) *N8NClient {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &N8NClient{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:    strings.TrimSpace(apiKey),
		transport: transport,
		log:       log,
	}
}

// Configured reports whether both base URL and API key are set.
func (c *N8NClient) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// Status returns the configuration probe shown to operators.
func (c *N8NClient) Status() N8NConfigStatus {
	preview := "NOT SET"
	if c.apiKey != "" {
		key := c.apiKey
		if len(key) > 10 {
			key = key[:10]
		}
		preview = key + "..."
	}
	return N8NConfigStatus{
		HasAPIKey:     c.apiKey != "",
		BaseURL:       c.baseURL,
		APIKeyPreview: preview,
	}
}

// WorkflowsURL is the listing endpoint.
func (c *N8NClient) WorkflowsURL() string {
	return c.baseURL + "/api/v1/workflows"
}

// ListWorkflows fetches every workflow, following cursors. An unconfigured
// client returns an empty list.
func (c *N8NClient) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	if !c.Configured() {
		c.log.Warn("n8n api not configured, returning empty workflow list")
		return []Workflow{}, nil
	}

	client := c.transport.Client(ctx)
	all := []Workflow{}
	cursor := ""

	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(n8nPageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		body, err := doGet(ctx, client, "n8n", c.WorkflowsURL()+"?"+q.Encode(), c.authorize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch workflows: %w", err)
		}

		workflows, next, err := decodeWorkflowPage(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode workflows: %w", err)
		}
		all = append(all, workflows...)
		c.log.Debug("fetched workflow page", "page", page, "count", len(workflows), "next_cursor", next != "")

		if next == "" {
			break
		}
		if page >= n8nMaxPages {
			c.log.Warn("reached maximum workflow page count, stopping pagination", "pages", page)
			break
		}
		cursor = next
	}

	c.log.Info("fetched workflows", "total", len(all))
	return all, nil
}

// GetWorkflow fetches one workflow. ok is false when the client is
// unconfigured or n8n does not know the id.
func (c *N8NClient) GetWorkflow(ctx context.Context, id string) (*Workflow, bool, error) {
	if !c.Configured() {
		return nil, false, nil
	}

	body, err := doGet(ctx, c.transport.Client(ctx), "n8n", c.WorkflowsURL()+"/"+url.PathEscape(id), c.authorize)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	var envelope struct {
		Data     *Workflow `json:"data"`
		Workflow *Workflow `json:"workflow"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Data != nil && envelope.Data.ID != "" {
			return envelope.Data, true, nil
		}
		if envelope.Workflow != nil && envelope.Workflow.ID != "" {
			return envelope.Workflow, true, nil
		}
	}

	var wf Workflow
	if err := json.Unmarshal(body, &wf); err != nil {
		return nil, false, fmt.Errorf("failed to decode workflow: %w", err)
	}
	if wf.ID == "" {
		return nil, false, nil
	}
	return &wf, true, nil
}

func (c *N8NClient) authorize(req *http.Request) {
	req.Header.Set("X-N8N-API-KEY", c.apiKey)
}

// decodeWorkflowPage accepts a bare array, {data, nextCursor},
// {workflows, nextCursor} or {workflow}.
func decodeWorkflowPage(body []byte) ([]Workflow, string, error) {
	items, envelope, err := decodeList(body, "data", "workflows")
	if err != nil {
		return nil, "", err
	}

	if items == nil && envelope != nil {
		if raw, ok := envelope["workflow"]; ok {
			var wf Workflow
			if err := json.Unmarshal(raw, &wf); err != nil {
				return nil, "", err
			}
			return []Workflow{wf}, "", nil
		}
	}

	workflows := make([]Workflow, 0, len(items))
	for _, raw := range items {
		var wf Workflow
		if err := json.Unmarshal(raw, &wf); err != nil {
			return nil, "", err
		}
		workflows = append(workflows, wf)
	}

	var next string
	if envelope != nil {
		for _, key := range []string{"nextCursor", "cursor"} {
			var s string
			if raw, ok := envelope[key]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
				next = s
				break
			}
		}
	}
	return workflows, next, nil
}
