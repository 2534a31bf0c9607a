package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrorType classifies what went wrong in a workflow node.
type ErrorType string

const (
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeRuntime    ErrorType = "runtime"
	ErrorTypeOther      ErrorType = "other"
)

// ErrorTypes lists every error type in display order.
var ErrorTypes = []ErrorType{ErrorTypeTimeout, ErrorTypeConnection, ErrorTypeValidation, ErrorTypeRuntime, ErrorTypeOther}

// ParseErrorType reports whether s is one of the known error types.
func ParseErrorType(s string) (ErrorType, bool) {
	for _, t := range ErrorTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// NormalizeErrorType maps unknown values to ErrorTypeOther.
func NormalizeErrorType(s string) ErrorType {
	if t, ok := ParseErrorType(strings.ToLower(strings.TrimSpace(s))); ok {
		return t
	}
	return ErrorTypeOther
}

// Severity is the operator-facing urgency of an error.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every severity from most to least urgent.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity reports whether s is one of the known severities.
func ParseSeverity(s string) (Severity, bool) {
	for _, sev := range Severities {
		if string(sev) == s {
			return sev, true
		}
	}
	return "", false
}

// NormalizeSeverity maps unknown values to SeverityMedium.
func NormalizeSeverity(s string) Severity {
	if sev, ok := ParseSeverity(strings.ToLower(strings.TrimSpace(s))); ok {
		return sev
	}
	return SeverityMedium
}

// JSONBlob holds an arbitrary JSON document stored as TEXT.
type JSONBlob []byte

// MarshalJSON emits the stored document verbatim.
func (b JSONBlob) MarshalJSON() ([]byte, error) {
	if len(b) == 0 {
		return []byte("null"), nil
	}
	return b, nil
}

// UnmarshalJSON keeps a copy of the raw document. A JSON null clears it.
func (b *JSONBlob) UnmarshalJSON(data []byte) error {
	if b == nil {
		return errors.New("models.JSONBlob: UnmarshalJSON on nil pointer")
	}
	if string(data) == "null" {
		*b = nil
		return nil
	}
	*b = append((*b)[:0], data...)
	return nil
}

// Value implements driver.Valuer.
func (b JSONBlob) Value() (driver.Value, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (b *JSONBlob) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*b = nil
	case string:
		*b = JSONBlob(v)
	case []byte:
		*b = append(JSONBlob(nil), v...)
	default:
		return fmt.Errorf("models.JSONBlob: cannot scan %T", value)
	}
	return nil
}

// NewJSONBlob encodes v, returning nil for nil input or encoding failures.
func NewJSONBlob(v interface{}) JSONBlob {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" || string(data) == "{}" {
		return nil
	}
	return data
}

// ErrorRecord is one failed workflow execution step.
type ErrorRecord struct {
	ID           string     `gorm:"primaryKey;size:128" json:"id"`
	WorkflowID   string     `gorm:"size:128;index" json:"workflowId"`
	WorkflowName string     `gorm:"size:255;index" json:"workflowName"`
	NodeName     string     `gorm:"size:255" json:"nodeName"`
	ErrorMessage string     `gorm:"type:text" json:"errorMessage"`
	ErrorType    ErrorType  `gorm:"size:20;index" json:"errorType"`
	Severity     Severity   `gorm:"size:20;index" json:"severity"`
	ErrorLevel   string     `gorm:"size:32" json:"errorLevel,omitempty"` // as sent by the platform
	NodeType     string     `gorm:"size:255" json:"nodeType,omitempty"`
	Timestamp    time.Time  `gorm:"not null;index" json:"timestamp"`
	ExecutionID  string     `gorm:"size:128;index" json:"executionId"`
	ExecutionURL string     `gorm:"type:text" json:"executionUrl,omitempty"`
	RetryCount   int        `json:"retryCount"`
	StackTrace   string     `gorm:"type:text" json:"stackTrace,omitempty"`
	InputData    JSONBlob   `gorm:"type:text" json:"inputData,omitempty"`
	OutputData   JSONBlob   `gorm:"type:text" json:"outputData,omitempty"`
	Resolved     bool       `gorm:"index" json:"resolved"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt    time.Time  `json:"-"`
	UpdatedAt    time.Time  `json:"-"`
}

// TableName keeps the table name used by existing deployments.
func (ErrorRecord) TableName() string {
	return "workflow_errors"
}

// BeforeCreate GORM hook - assign an ID and coerce enumerations
func (r *ErrorRecord) BeforeCreate(tx *gorm.DB) error {
	if strings.TrimSpace(r.ID) == "" {
		r.ID = uuid.NewString()
	}
	r.ErrorType = NormalizeErrorType(string(r.ErrorType))
	r.Severity = NormalizeSeverity(string(r.Severity))
	if r.RetryCount < 0 {
		r.RetryCount = 0
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	// Stored as text; a single zone keeps ORDER BY chronological.
	r.Timestamp = r.Timestamp.UTC()
	return nil
}

// AfterFind GORM hook - tolerate rows written with unknown enum values
func (r *ErrorRecord) AfterFind(tx *gorm.DB) error {
	r.ErrorType = NormalizeErrorType(string(r.ErrorType))
	r.Severity = NormalizeSeverity(string(r.Severity))
	return nil
}

// ErrorPatch is a partial update. Nil fields are left untouched.
type ErrorPatch struct {
	WorkflowID   *string    `json:"workflowId"`
	WorkflowName *string    `json:"workflowName"`
	NodeName     *string    `json:"nodeName"`
	ErrorMessage *string    `json:"errorMessage"`
	ErrorType    *string    `json:"errorType"`
	Severity     *string    `json:"severity"`
	ErrorLevel   *string    `json:"errorLevel"`
	NodeType     *string    `json:"nodeType"`
	Timestamp    *time.Time `json:"timestamp"`
	ExecutionID  *string    `json:"executionId"`
	ExecutionURL *string    `json:"executionUrl"`
	RetryCount   *int       `json:"retryCount"`
	StackTrace   *string    `json:"stackTrace"`
	InputData    *JSONBlob  `json:"inputData"`
	OutputData   *JSONBlob  `json:"outputData"`
	Resolved     *bool      `json:"resolved"`
}

// Columns returns the column assignments for the patch.
// Toggling the resolved flag also stamps or clears resolved_at.
func (p ErrorPatch) Columns(now time.Time) map[string]interface{} {
	cols := make(map[string]interface{})
	setString := func(col string, v *string) {
		if v != nil {
			cols[col] = *v
		}
	}

	setString("workflow_id", p.WorkflowID)
	setString("workflow_name", p.WorkflowName)
	setString("node_name", p.NodeName)
	setString("error_message", p.ErrorMessage)
	setString("error_level", p.ErrorLevel)
	setString("node_type", p.NodeType)
	setString("execution_id", p.ExecutionID)
	setString("execution_url", p.ExecutionURL)
	setString("stack_trace", p.StackTrace)

	if p.ErrorType != nil {
		cols["error_type"] = NormalizeErrorType(*p.ErrorType)
	}
	if p.Severity != nil {
		cols["severity"] = NormalizeSeverity(*p.Severity)
	}
	if p.Timestamp != nil && !p.Timestamp.IsZero() && p.Timestamp.Year() >= 1 {
		cols["timestamp"] = p.Timestamp.UTC()
	}
	if p.InputData != nil {
		cols["input_data"] = *p.InputData
	}
	if p.OutputData != nil {
		cols["output_data"] = *p.OutputData
	}
	if p.RetryCount != nil && *p.RetryCount >= 0 {
		cols["retry_count"] = *p.RetryCount
	}
	if p.Resolved != nil {
		cols["resolved"] = *p.Resolved
		if *p.Resolved {
			cols["resolved_at"] = now
		} else {
			cols["resolved_at"] = nil
		}
	}
	return cols
}

// IsEmpty reports whether the patch changes nothing.
func (p ErrorPatch) IsEmpty() bool {
	return len(p.Columns(time.Time{})) == 0
}
