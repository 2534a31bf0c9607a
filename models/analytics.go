package models

import "time"

// TrendPoint is the number of errors that occurred on one local day.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// TypeCount is the number of errors of one type.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// SeverityCount is the number of errors of one severity.
type SeverityCount struct {
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// WorkflowStats summarises errors for a single workflow.
type WorkflowStats struct {
	WorkflowName string    `json:"workflowName"`
	ErrorCount   int       `json:"errorCount"`
	LastError    time.Time `json:"lastError"`
	SuccessRate  float64   `json:"successRate"`
}

// ErrorAnalytics is the dashboard analytics summary.
type ErrorAnalytics struct {
	TotalErrors          int             `json:"totalErrors"`
	UnresolvedErrors     int             `json:"unresolvedErrors"`
	ErrorRate            float64         `json:"errorRate"` // errors per hour over the last 24h
	ErrorsLast24h        int             `json:"errorsLast24h"`
	ErrorsPrevious24h    int             `json:"errorsPrevious24h"`
	MostAffectedWorkflow string          `json:"mostAffectedWorkflow"`
	AvgResolutionTime    int64           `json:"avgResolutionTime"` // seconds
	Trends               []TrendPoint    `json:"trends"`
	ErrorsByType         []TypeCount     `json:"errorsByType"`
	ErrorsBySeverity     []SeverityCount `json:"errorsBySeverity"`
	TopWorkflows         []WorkflowStats `json:"topWorkflows"`
}

// TrendChange is a period-over-period percentage change.
// IsPositive is true when errors went down.
type TrendChange struct {
	Value      float64 `json:"value"`
	IsPositive bool    `json:"isPositive"`
}
