package models

import "time"

// Diagnostic is an internal failure kept in memory for operators
// (store outages, upstream API errors, rejected webhook calls).
type Diagnostic struct {
	ID        int       `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`   // ERROR, WARN
	Source    string    `json:"source"`  // component name
	Message   string    `json:"message"` // short summary
	Detail    string    `json:"detail"`  // underlying error text
	Stack     string    `json:"stack"`
	Context   string    `json:"context"` // JSON encoded
}
