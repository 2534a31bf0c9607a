package core

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"flowwatch/models"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

var (
	ErrInvalidBody  = errors.New("invalid request body")
	ErrUnknownShape = errors.New("payload matches no known error format")
)

// PayloadKind is the shape of one inbound error item.
type PayloadKind int

const (
	KindUnknown PayloadKind = iota
	// KindForeign is the native n8n error-workflow payload.
	KindForeign
	// KindCanonical is flowwatch's own ErrorRecord JSON shape.
	KindCanonical
)

func (k PayloadKind) String() string {
	switch k {
	case KindForeign:
		return "foreign"
	case KindCanonical:
		return "canonical"
	default:
		return "unknown"
	}
}

// Batch is the outcome of normalizing one webhook body.
type Batch struct {
	Received int
	Accepted []models.ErrorRecord
	Rejected []json.RawMessage
}

// Normalize splits a webhook body (one object or an array of them) into
// accepted records and rejected raw items. Only a body that is not valid
// JSON fails as a whole.
func Normalize(body []byte, now time.Time) (*Batch, error) {
	items, err := splitItems(body)
	if err != nil {
		return nil, err
	}

	batch := &Batch{Received: len(items)}
	for _, item := range items {
		rec, err := NormalizeItem(item, now)
		if err != nil {
			batch.Rejected = append(batch.Rejected, item)
			continue
		}
		batch.Accepted = append(batch.Accepted, rec)
	}
	return batch, nil
}

func splitItems(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidBody)
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}
		return items, nil
	}

	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidBody)
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

// NormalizeItem converts a single raw item into an ErrorRecord.
func NormalizeItem(item json.RawMessage, now time.Time) (models.ErrorRecord, error) {
	fields, ok := decodeObject(item)
	if !ok {
		return models.ErrorRecord{}, ErrUnknownShape
	}

	switch ClassifyPayload(fields) {
	case KindForeign:
		return TransformForeign(item, now)
	case KindCanonical:
		return FromCanonical(item, now)
	default:
		return models.ErrorRecord{}, ErrUnknownShape
	}
}

// ClassifyPayload inspects the top-level keys of an item.
func ClassifyPayload(fields map[string]json.RawMessage) PayloadKind {
	if (isObject(fields["workflow"]) && isObject(fields["execution"])) || isObject(fields["error_summary"]) {
		return KindForeign
	}

	for _, key := range []string{"workflowId", "workflowName", "nodeName", "errorMessage"} {
		if !isString(fields[key]) {
			return KindUnknown
		}
	}
	if raw, ok := present(fields, "errorType"); ok {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return KindUnknown
		}
		if _, ok := models.ParseErrorType(s); !ok {
			return KindUnknown
		}
	}
	if raw, ok := present(fields, "severity"); ok {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return KindUnknown
		}
		if _, ok := models.ParseSeverity(s); !ok {
			return KindUnknown
		}
	}
	return KindCanonical
}

// foreign payload, as posted by an n8n error workflow

type foreignPayload struct {
	Timestamp    json.RawMessage   `json:"timestamp"`
	Workflow     *foreignWorkflow  `json:"workflow"`
	Execution    *foreignExecution `json:"execution"`
	ErrorSummary *foreignSummary   `json:"error_summary"`
}

type foreignWorkflow struct {
	ID   looseString `json:"id"`
	Name looseString `json:"name"`
}

type foreignExecution struct {
	ID               looseString   `json:"id"`
	URL              looseString   `json:"url"`
	Error            *foreignError `json:"error"`
	LastNodeExecuted looseString   `json:"lastNodeExecuted"`
	Mode             looseString   `json:"mode"`
}

type foreignError struct {
	Level       looseString  `json:"level"`
	Description looseString  `json:"description"`
	Message     looseString  `json:"message"`
	Stack       looseString  `json:"stack"`
	Node        *foreignNode `json:"node"`
}

type foreignNode struct {
	Name       looseString     `json:"name"`
	Type       looseString     `json:"type"`
	ID         looseString     `json:"id"`
	Parameters json.RawMessage `json:"parameters"`
}

type foreignSummary struct {
	WorkflowName    looseString     `json:"workflow_name"`
	WorkflowID      looseString     `json:"workflow_id"`
	ExecutionID     looseString     `json:"execution_id"`
	ErrorOccurredAt json.RawMessage `json:"error_occurred_at"`
}

// TransformForeign maps an n8n error payload onto an ErrorRecord.
func TransformForeign(item json.RawMessage, now time.Time) (rec models.ErrorRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transform foreign payload: %v", r)
		}
	}()

	var p foreignPayload
	if err := json.Unmarshal(item, &p); err != nil {
		return models.ErrorRecord{}, fmt.Errorf("decode foreign payload: %w", err)
	}
	if (p.Workflow == nil || p.Execution == nil) && p.ErrorSummary == nil {
		return models.ErrorRecord{}, ErrUnknownShape
	}

	wf := p.Workflow
	if wf == nil {
		wf = &foreignWorkflow{}
	}
	exec := p.Execution
	if exec == nil {
		exec = &foreignExecution{}
	}
	summary := p.ErrorSummary
	if summary == nil {
		summary = &foreignSummary{}
	}
	ferr := exec.Error
	if ferr == nil {
		ferr = &foreignError{}
	}
	node := ferr.Node
	if node == nil {
		node = &foreignNode{}
	}

	executionID := firstNonEmpty(string(exec.ID), string(summary.ExecutionID), fmt.Sprintf("exec-%d", now.UnixMilli()))
	message := firstNonEmpty(string(ferr.Message), string(ferr.Description), "Unknown error occurred")

	timestamp, ok := ParseTimestamp(p.Timestamp)
	if !ok {
		if timestamp, ok = ParseTimestamp(summary.ErrorOccurredAt); !ok {
			timestamp = now
		}
	}

	output := map[string]string{}
	for k, v := range map[string]looseString{
		"executionUrl": exec.URL,
		"mode":         exec.Mode,
		"nodeType":     node.Type,
		"nodeId":       node.ID,
	} {
		if v != "" {
			output[k] = string(v)
		}
	}

	var input models.JSONBlob
	if len(node.Parameters) > 0 && string(node.Parameters) != "null" {
		input = models.JSONBlob(node.Parameters)
	}

	return models.ErrorRecord{
		ID:           fmt.Sprintf("error-%s-%d-%s", executionID, now.UnixMilli(), uuid.NewString()[:8]),
		WorkflowID:   firstNonEmpty(string(wf.ID), string(summary.WorkflowID), "unknown"),
		WorkflowName: firstNonEmpty(string(wf.Name), string(summary.WorkflowName), "Unknown Workflow"),
		NodeName:     firstNonEmpty(string(node.Name), string(exec.LastNodeExecuted), "Unknown Node"),
		ErrorMessage: message,
		ErrorType:    ClassifyErrorType(message),
		Severity:     MapLevelToSeverity(string(ferr.Level)),
		ErrorLevel:   firstNonEmpty(string(ferr.Level), "warning"),
		NodeType:     string(node.Type),
		Timestamp:    timestamp,
		ExecutionID:  executionID,
		ExecutionURL: string(exec.URL),
		RetryCount:   0,
		StackTrace:   string(ferr.Stack),
		InputData:    input,
		OutputData:   models.NewJSONBlob(output),
	}, nil
}

// canonical payload

type canonicalPayload struct {
	ID           looseString     `json:"id"`
	WorkflowID   string          `json:"workflowId"`
	WorkflowName string          `json:"workflowName"`
	NodeName     string          `json:"nodeName"`
	ErrorMessage string          `json:"errorMessage"`
	ErrorType    *string         `json:"errorType"`
	Severity     *string         `json:"severity"`
	ErrorLevel   looseString     `json:"errorLevel"`
	NodeType     looseString     `json:"nodeType"`
	Timestamp    json.RawMessage `json:"timestamp"`
	ExecutionID  looseString     `json:"executionId"`
	ExecutionURL looseString     `json:"executionUrl"`
	RetryCount   json.RawMessage `json:"retryCount"`
	StackTrace   looseString     `json:"stackTrace"`
	InputData    json.RawMessage `json:"inputData"`
	OutputData   json.RawMessage `json:"outputData"`
	Resolved     json.RawMessage `json:"resolved"`
}

// FromCanonical copies a canonical payload, filling defaults. A missing
// errorType is inferred from the message; a missing severity is medium.
func FromCanonical(item json.RawMessage, now time.Time) (models.ErrorRecord, error) {
	var p canonicalPayload
	if err := json.Unmarshal(item, &p); err != nil {
		return models.ErrorRecord{}, fmt.Errorf("decode canonical payload: %w", err)
	}

	errorType := ClassifyErrorType(p.ErrorMessage)
	if p.ErrorType != nil {
		errorType = models.NormalizeErrorType(*p.ErrorType)
	}
	severity := models.SeverityMedium
	if p.Severity != nil {
		severity = models.NormalizeSeverity(*p.Severity)
	}

	timestamp, ok := ParseTimestamp(p.Timestamp)
	if !ok {
		timestamp = now
	}

	rec := models.ErrorRecord{
		ID:           strings.TrimSpace(string(p.ID)),
		WorkflowID:   p.WorkflowID,
		WorkflowName: p.WorkflowName,
		NodeName:     p.NodeName,
		ErrorMessage: p.ErrorMessage,
		ErrorType:    errorType,
		Severity:     severity,
		ErrorLevel:   string(p.ErrorLevel),
		NodeType:     string(p.NodeType),
		Timestamp:    timestamp,
		ExecutionID:  firstNonEmpty(string(p.ExecutionID), fmt.Sprintf("exec-%d", now.UnixMilli())),
		ExecutionURL: string(p.ExecutionURL),
		RetryCount:   parseRetryCount(p.RetryCount),
		StackTrace:   string(p.StackTrace),
		Resolved:     bytes.Equal(bytes.TrimSpace(p.Resolved), []byte("true")),
	}
	if len(p.InputData) > 0 && string(p.InputData) != "null" {
		rec.InputData = models.JSONBlob(p.InputData)
	}
	if len(p.OutputData) > 0 && string(p.OutputData) != "null" {
		rec.OutputData = models.JSONBlob(p.OutputData)
	}
	if rec.Resolved {
		resolvedAt := now
		rec.ResolvedAt = &resolvedAt
	}
	return rec, nil
}

// MapLevelToSeverity maps a free-text n8n error level onto a severity.
func MapLevelToSeverity(level string) models.Severity {
	l := strings.ToLower(level)
	switch {
	case l == "":
		return models.SeverityMedium
	case strings.Contains(l, "error"), strings.Contains(l, "critical"):
		return models.SeverityCritical
	case strings.Contains(l, "warning"), strings.Contains(l, "high"):
		return models.SeverityHigh
	case strings.Contains(l, "info"), strings.Contains(l, "low"):
		return models.SeverityLow
	default:
		return models.SeverityMedium
	}
}

// ClassifyErrorType infers the error type from the message text.
// Earlier rules win: timeout, connection, validation, runtime.
func ClassifyErrorType(message string) models.ErrorType {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "timeout"), strings.Contains(m, "timed out"):
		return models.ErrorTypeTimeout
	case strings.Contains(m, "connection"), strings.Contains(m, "connect"), strings.Contains(m, "network"):
		return models.ErrorTypeConnection
	case strings.Contains(m, "validation"), strings.Contains(m, "invalid"), strings.Contains(m, "permission"):
		return models.ErrorTypeValidation
	case strings.Contains(m, "runtime"), strings.Contains(m, "execution"):
		return models.ErrorTypeRuntime
	default:
		return models.ErrorTypeOther
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// maxEpochMillis is 9999-12-31T23:59:59.999Z.
const maxEpochMillis = 253402300799999

// ParseTimestamp accepts an ISO-8601 style string or a unix epoch number
// (seconds or milliseconds). ok is false for absent or unparseable values
// and for instants outside years 1 to 9999, which the store cannot read back.
func ParseTimestamp(raw json.RawMessage) (time.Time, bool) {
	t, ok := parseTimestamp(raw)
	if !ok || t.Year() < 1 || t.Year() > 9999 {
		return time.Time{}, false
	}
	return t, true
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseTimeString(s)
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return epochToTime(n)
	}
	return time.Time{}, false
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func epochToTime(n float64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	if n < 1e11 {
		n *= 1000
	}
	if n > maxEpochMillis {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(n)), true
}

func parseRetryCount(raw json.RawMessage) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0
		}
		n = float64(parsed)
	}
	if n < 0 {
		return 0
	}
	return int(n)
}

// looseString decodes JSON strings, numbers and booleans as text; null is empty.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = ""
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
	case '{', '[':
		return fmt.Errorf("expected scalar, got %s", data[:1])
	default:
		*s = looseString(data)
	}
	return nil
}

func decodeObject(item json.RawMessage) (map[string]json.RawMessage, bool) {
	if !isObject(item) {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func isString(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '"'
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
