package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"
)

// DefaultCloseBaseURL is the Close CRM REST API root.
const DefaultCloseBaseURL = "https://api.close.com/api/v1"

// CustomField is a Close lead or opportunity custom field.
type CustomField struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Type                  string          `json:"type"`
	AcceptsMultipleValues bool            `json:"accepts_multiple_values,omitempty"`
	EditableBy            []string        `json:"editable_by,omitempty"`
	Required              bool            `json:"required,omitempty"`
	Choices               json.RawMessage `json:"choices,omitempty"`
	ConvertingToType      string          `json:"converting_to_type,omitempty"`
}

// User is a Close organization member.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Name      string `json:"name,omitempty"`
	Image     string `json:"image,omitempty"`
	RoleID    string `json:"role_id,omitempty"`
	RoleName  string `json:"role_name,omitempty"`
}

// DisplayName prefers the full name, then first and last name, then email.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if full := strings.TrimSpace(u.FirstName + " " + u.LastName); full != "" {
		return full
	}
	return u.Email
}

// Status is a Close lead or opportunity status.
type Status struct {
	ID             string `json:"id"`
	Label          string `json:"label"`
	Type           string `json:"type,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// CloseClient reads reference data from the Close CRM API.
type CloseClient struct {
	baseURL   string
	apiKey    string
	transport *Transport
	log       hclog.Logger
}

// NewCloseClient builds a client. An empty baseURL uses DefaultCloseBaseURL.
func NewCloseClient(baseURL, apiKey string, transport *Transport, log hclog.Logger) *CloseClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultCloseBaseURL
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &CloseClient{
		baseURL:   baseURL,
		apiKey:    strings.TrimSpace(apiKey),
		transport: transport,
		log:       log,
	}
}

// Configured reports whether an API key is set.
func (c *CloseClient) Configured() bool {
	return c.apiKey != ""
}

// LeadCustomFields lists lead custom fields.
func (c *CloseClient) LeadCustomFields(ctx context.Context) ([]CustomField, error) {
	var out []CustomField
	if err := c.fetch(ctx, "custom_field/lead/", "custom fields", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OpportunityCustomFields lists opportunity custom fields.
func (c *CloseClient) OpportunityCustomFields(ctx context.Context) ([]CustomField, error) {
	var out []CustomField
	if err := c.fetch(ctx, "custom_field/opportunity/", "opportunity custom fields", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Users lists organization users.
func (c *CloseClient) Users(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.fetch(ctx, "user/", "users", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LeadStatuses lists lead statuses.
func (c *CloseClient) LeadStatuses(ctx context.Context) ([]Status, error) {
	var out []Status
	if err := c.fetch(ctx, "status/lead/", "lead statuses", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OpportunityStatuses lists opportunity statuses.
func (c *CloseClient) OpportunityStatuses(ctx context.Context) ([]Status, error) {
	var out []Status
	if err := c.fetch(ctx, "status/opportunity/", "opportunity statuses", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// fetch decodes the list at path into out, a pointer to a slice.
func (c *CloseClient) fetch(ctx context.Context, path, what string, out interface{}) error {
	if !c.Configured() {
		return fmt.Errorf("%w: Close API key is not configured", ErrNotConfigured)
	}

	body, err := doGet(ctx, c.transport.Client(ctx), "close", c.baseURL+"/"+path, func(req *http.Request) {
		req.SetBasicAuth(c.apiKey, "")
	})
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", what, err)
	}

	items, _, err := decodeList(body, "data", "results")
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", what, err)
	}
	if items == nil {
		items = []json.RawMessage{}
	}

	// Re-encode the extracted array so out keeps its concrete type.
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", what, err)
	}
	c.log.Debug("fetched close reference data", "kind", what, "count", len(items))
	return nil
}
