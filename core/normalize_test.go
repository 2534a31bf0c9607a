package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"flowwatch/models"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

const foreignItem = `{
	"workflow": {"id": "wf-42", "name": "CRM Sync", "active": true},
	"execution": {
		"id": "9001",
		"url": "https://n8n.example.com/execution/9001",
		"mode": "trigger",
		"lastNodeExecuted": "Fallback Node",
		"error": {
			"level": "ERROR",
			"message": "Request timed out while contacting API",
			"stack": "at fetch()",
			"node": {"name": "HTTP Request", "type": "n8n-nodes-base.httpRequest", "id": "n1", "parameters": {"url": "https://api.example.com"}}
		}
	}
}`

func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
		want PayloadKind
	}{
		{"workflow and execution", `{"workflow":{},"execution":{}}`, KindForeign},
		{"summary only", `{"error_summary":{"workflow_name":"x"}}`, KindForeign},
		{"workflow without execution", `{"workflow":{}}`, KindUnknown},
		{"canonical minimal", `{"workflowId":"w","workflowName":"n","nodeName":"x","errorMessage":"m"}`, KindCanonical},
		{"canonical valid enums", `{"workflowId":"w","workflowName":"n","nodeName":"x","errorMessage":"m","errorType":"runtime","severity":"low"}`, KindCanonical},
		{"canonical null enum", `{"workflowId":"w","workflowName":"n","nodeName":"x","errorMessage":"m","severity":null}`, KindCanonical},
		{"canonical bad enum", `{"workflowId":"w","workflowName":"n","nodeName":"x","errorMessage":"m","errorType":"disk"}`, KindUnknown},
		{"canonical bad severity", `{"workflowId":"w","workflowName":"n","nodeName":"x","errorMessage":"m","severity":"urgent"}`, KindUnknown},
		{"missing message", `{"workflowId":"w","workflowName":"n","nodeName":"x"}`, KindUnknown},
		{"numeric field", `{"workflowId":1,"workflowName":"n","nodeName":"x","errorMessage":"m"}`, KindUnknown},
		{"unrelated", `{"hello":"world"}`, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, ok := decodeObject(json.RawMessage(tt.body))
			require.True(t, ok)
			assert.Equal(t, tt.want, ClassifyPayload(fields))
		})
	}
}

func TestTransformForeign(t *testing.T) {
	rec, err := TransformForeign(json.RawMessage(foreignItem), testNow)
	require.NoError(t, err)

	assert.Equal(t, "wf-42", rec.WorkflowID)
	assert.Equal(t, "CRM Sync", rec.WorkflowName)
	assert.Equal(t, "HTTP Request", rec.NodeName)
	assert.Equal(t, "Request timed out while contacting API", rec.ErrorMessage)
	assert.Equal(t, models.ErrorTypeTimeout, rec.ErrorType)
	assert.Equal(t, models.SeverityCritical, rec.Severity)
	assert.Equal(t, "ERROR", rec.ErrorLevel)
	assert.Equal(t, "n8n-nodes-base.httpRequest", rec.NodeType)
	assert.Equal(t, "9001", rec.ExecutionID)
	assert.Equal(t, "https://n8n.example.com/execution/9001", rec.ExecutionURL)
	assert.Equal(t, 0, rec.RetryCount)
	assert.Equal(t, "at fetch()", rec.StackTrace)
	assert.Equal(t, testNow, rec.Timestamp)
	assert.False(t, rec.Resolved)
	assert.True(t, strings.HasPrefix(rec.ID, "error-9001-"))

	assert.JSONEq(t, `{"url":"https://api.example.com"}`, string(rec.InputData))
	assert.JSONEq(t, `{"executionUrl":"https://n8n.example.com/execution/9001","mode":"trigger","nodeType":"n8n-nodes-base.httpRequest","nodeId":"n1"}`, string(rec.OutputData))
}

func TestTransformForeign_SummaryFallbacks(t *testing.T) {
	item := `{"error_summary": {
		"workflow_name": "Nightly Export",
		"workflow_id": 17,
		"execution_id": "e-5",
		"error_occurred_at": "2026-03-01T08:30:00Z"
	}}`
	rec, err := TransformForeign(json.RawMessage(item), testNow)
	require.NoError(t, err)

	assert.Equal(t, "17", rec.WorkflowID)
	assert.Equal(t, "Nightly Export", rec.WorkflowName)
	assert.Equal(t, "Unknown Node", rec.NodeName)
	assert.Equal(t, "Unknown error occurred", rec.ErrorMessage)
	assert.Equal(t, models.ErrorTypeOther, rec.ErrorType)
	assert.Equal(t, models.SeverityMedium, rec.Severity)
	assert.Equal(t, "warning", rec.ErrorLevel)
	assert.Equal(t, "e-5", rec.ExecutionID)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC), rec.Timestamp.UTC())
	assert.Nil(t, rec.InputData)
	assert.Nil(t, rec.OutputData)
}

func TestTransformForeign_Defaults(t *testing.T) {
	item := `{"workflow": {}, "execution": {"lastNodeExecuted": "Set", "error": {"description": "connection refused"}}, "timestamp": "garbage"}`
	rec, err := TransformForeign(json.RawMessage(item), testNow)
	require.NoError(t, err)

	assert.Equal(t, "unknown", rec.WorkflowID)
	assert.Equal(t, "Unknown Workflow", rec.WorkflowName)
	assert.Equal(t, "Set", rec.NodeName)
	assert.Equal(t, "connection refused", rec.ErrorMessage)
	assert.Equal(t, models.ErrorTypeConnection, rec.ErrorType)
	assert.Equal(t, "exec-1773489600000", rec.ExecutionID)
	assert.Equal(t, testNow, rec.Timestamp)
}

func TestTransformForeign_TopLevelTimestampWins(t *testing.T) {
	item := `{"timestamp": 1767225600, "error_summary": {"error_occurred_at": "2026-03-01T08:30:00Z"}}`
	rec, err := TransformForeign(json.RawMessage(item), testNow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), rec.Timestamp.UTC())
}

func TestTransformForeign_IDsDoNotCollide(t *testing.T) {
	a, err := TransformForeign(json.RawMessage(foreignItem), testNow)
	require.NoError(t, err)
	b, err := TransformForeign(json.RawMessage(foreignItem), testNow)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Regexp(t, `^error-9001-1773489600000-[0-9a-f]{8}$`, a.ID)
}

func TestFromCanonical(t *testing.T) {
	item := `{"workflowId":"w1","workflowName":"Sync","nodeName":"HTTP Request","errorMessage":"Connection timeout after 30s"}`
	rec, err := FromCanonical(json.RawMessage(item), testNow)
	require.NoError(t, err)

	assert.Equal(t, "", rec.ID, "store assigns the id")
	assert.Equal(t, models.ErrorTypeTimeout, rec.ErrorType)
	assert.Equal(t, models.SeverityMedium, rec.Severity)
	assert.False(t, rec.Resolved)
	assert.Nil(t, rec.ResolvedAt)
	assert.Equal(t, 0, rec.RetryCount)
	assert.Equal(t, testNow, rec.Timestamp)
	assert.True(t, strings.HasPrefix(rec.ExecutionID, "exec-"))
}

func TestFromCanonical_OutOfRangeTimestampDefaultsToNow(t *testing.T) {
	for _, ts := range []string{`1e15`, `-5`, `"0000-01-01T00:00:00Z"`} {
		item := `{"workflowId":"w1","workflowName":"Sync","nodeName":"n","errorMessage":"x","timestamp":` + ts + `}`
		rec, err := FromCanonical(json.RawMessage(item), testNow)
		require.NoError(t, err, ts)
		assert.Equal(t, testNow, rec.Timestamp, ts)
	}
}

func TestFromCanonical_CopiesFields(t *testing.T) {
	item := `{
		"id": "rec-1",
		"workflowId": "w1",
		"workflowName": "Sync",
		"nodeName": "Code",
		"errorMessage": "boom",
		"errorType": "runtime",
		"severity": "high",
		"timestamp": "2026-02-02T10:00:00.123Z",
		"executionId": "ex-1",
		"retryCount": 3,
		"stackTrace": "trace",
		"inputData": {"a": [1, 2]},
		"resolved": true
	}`
	rec, err := FromCanonical(json.RawMessage(item), testNow)
	require.NoError(t, err)

	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, models.ErrorTypeRuntime, rec.ErrorType)
	assert.Equal(t, models.SeverityHigh, rec.Severity)
	assert.Equal(t, time.Date(2026, 2, 2, 10, 0, 0, 123000000, time.UTC), rec.Timestamp.UTC())
	assert.Equal(t, "ex-1", rec.ExecutionID)
	assert.Equal(t, 3, rec.RetryCount)
	assert.Equal(t, "trace", rec.StackTrace)
	assert.JSONEq(t, `{"a":[1,2]}`, string(rec.InputData))
	assert.True(t, rec.Resolved)
	require.NotNil(t, rec.ResolvedAt)
}

func TestFromCanonical_NegativeRetry(t *testing.T) {
	item := `{"workflowId":"w","workflowName":"n","nodeName":"x","errorMessage":"m","retryCount":-4}`
	rec, err := FromCanonical(json.RawMessage(item), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.RetryCount)
}

func TestMapLevelToSeverity(t *testing.T) {
	tests := map[string]models.Severity{
		"":              models.SeverityMedium,
		"error":         models.SeverityCritical,
		"Critical":      models.SeverityCritical,
		"fatal-error":   models.SeverityCritical,
		"warning":       models.SeverityHigh,
		"HIGH":          models.SeverityHigh,
		"info":          models.SeverityLow,
		"low":           models.SeverityLow,
		"debug":         models.SeverityMedium,
		"something odd": models.SeverityMedium,
	}
	for level, want := range tests {
		assert.Equal(t, want, MapLevelToSeverity(level), "level %q", level)
	}
}

func TestClassifyErrorType(t *testing.T) {
	tests := map[string]models.ErrorType{
		"Connection timeout after 30s":       models.ErrorTypeTimeout,
		"operation TIMED OUT":                models.ErrorTypeTimeout,
		"could not connect to host":          models.ErrorTypeConnection,
		"network unreachable":                models.ErrorTypeConnection,
		"invalid connection string":          models.ErrorTypeConnection,
		"Validation failed for field email":  models.ErrorTypeValidation,
		"permission denied":                  models.ErrorTypeValidation,
		"runtime panic in code node":         models.ErrorTypeRuntime,
		"execution halted":                   models.ErrorTypeRuntime,
		"something unexpected":               models.ErrorTypeOther,
		"":                                   models.ErrorTypeOther,
	}
	for msg, want := range tests {
		assert.Equal(t, want, ClassifyErrorType(msg), "message %q", msg)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{`"2026-01-02T03:04:05Z"`, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{`"2026-01-02"`, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{`"2026-01-02 03:04:05"`, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{`1767225600`, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{`1767225600000`, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{`"yesterday"`, time.Time{}, false},
		{`null`, time.Time{}, false},
		{``, time.Time{}, false},
		{`{}`, time.Time{}, false},
		{`253402300799`, time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC), true},
		{`1e15`, time.Time{}, false},
		{`1e300`, time.Time{}, false},
		{`"0000-06-01"`, time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseTimestamp(json.RawMessage(tt.raw))
		assert.Equal(t, tt.ok, ok, "raw %s", tt.raw)
		if tt.ok {
			assert.True(t, tt.want.Equal(got), "raw %s: got %v", tt.raw, got)
		}
	}
}

func TestNormalize_Batch(t *testing.T) {
	body := `[
		{"workflowId":"w1","workflowName":"A","nodeName":"x","errorMessage":"m"},
		{"nope": true},
		` + foreignItem + `,
		"just a string",
		{"workflowId":"w2","workflowName":"B","nodeName":"y","errorMessage":"m","severity":"urgent"}
	]`
	batch, err := Normalize([]byte(body), testNow)
	require.NoError(t, err)

	assert.Equal(t, 5, batch.Received)
	require.Len(t, batch.Accepted, 2)
	assert.Len(t, batch.Rejected, 3)
	assert.Equal(t, "w1", batch.Accepted[0].WorkflowID)
	assert.Equal(t, "wf-42", batch.Accepted[1].WorkflowID)
	assert.JSONEq(t, `{"nope": true}`, string(batch.Rejected[0]))
}

func TestNormalize_SingleObject(t *testing.T) {
	batch, err := Normalize([]byte(foreignItem), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Received)
	assert.Len(t, batch.Accepted, 1)
	assert.Empty(t, batch.Rejected)
}

func TestNormalize_EmptyArray(t *testing.T) {
	batch, err := Normalize([]byte(`[]`), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Received)
	assert.Empty(t, batch.Accepted)
}

func TestNormalize_InvalidBody(t *testing.T) {
	for _, body := range []string{"", "   ", "{not json", `[{"a":1},`} {
		_, err := Normalize([]byte(body), testNow)
		require.Error(t, err, "body %q", body)
		assert.True(t, errors.Is(err, ErrInvalidBody))
	}
}

func TestNormalizeItem_Unknown(t *testing.T) {
	_, err := NormalizeItem(json.RawMessage(`{"hello":"world"}`), testNow)
	assert.ErrorIs(t, err, ErrUnknownShape)

	_, err = NormalizeItem(json.RawMessage(`42`), testNow)
	assert.ErrorIs(t, err, ErrUnknownShape)
}
