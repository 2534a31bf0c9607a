package core

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"flowwatch/models"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"
)

// DefaultDiagnosticsCapacity is the ring size used when none is given.
const DefaultDiagnosticsCapacity = 100

// Diagnostics keeps the most recent internal failures in memory so
// operators can inspect them without shell access to the log file.
type Diagnostics struct {
	mu        sync.RWMutex
	entries   []*models.Diagnostic
	byID      map[int]*models.Diagnostic
	capacity  int
	idCounter int
	log       hclog.Logger
}

// NewDiagnostics builds a ring holding up to capacity entries. Every
// recorded entry is also written to log.
func NewDiagnostics(capacity int, log hclog.Logger) *Diagnostics {
	if capacity <= 0 {
		capacity = DefaultDiagnosticsCapacity
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Diagnostics{
		entries:  make([]*models.Diagnostic, 0, capacity),
		byID:     make(map[int]*models.Diagnostic),
		capacity: capacity,
		log:      log,
	}
}

// Record stores an entry, evicting the oldest when full.
func (d *Diagnostics) Record(level, source, message string, err error, contextData map[string]interface{}) {
	if d == nil {
		return
	}

	detail := ""
	if err != nil {
		detail = err.Error()
	}

	contextJSON := ""
	if len(contextData) > 0 {
		if data, mErr := json.Marshal(contextData); mErr == nil {
			contextJSON = string(data)
		}
	}

	args := []interface{}{"source", source}
	if err != nil {
		args = append(args, "error", err)
	}
	for k, v := range contextData {
		args = append(args, k, v)
	}
	if level == "WARN" {
		d.log.Warn(message, args...)
	} else {
		d.log.Error(message, args...)
	}

	stack := stackTrace(3)

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.entries) >= d.capacity {
		oldest := d.entries[0]
		delete(d.byID, oldest.ID)
		d.entries = d.entries[1:]
	}

	d.idCounter++
	entry := &models.Diagnostic{
		ID:        d.idCounter,
		Timestamp: time.Now(),
		Level:     level,
		Source:    source,
		Message:   message,
		Detail:    detail,
		Stack:     stack,
		Context:   contextJSON,
	}
	d.entries = append(d.entries, entry)
	d.byID[entry.ID] = entry
}

// Error records an ERROR entry.
func (d *Diagnostics) Error(source, message string, err error, contextData map[string]interface{}) {
	d.Record("ERROR", source, message, err, contextData)
}

// Warn records a WARN entry.
func (d *Diagnostics) Warn(source, message string, err error) {
	d.Record("WARN", source, message, err, nil)
}

// List returns entries newest first.
func (d *Diagnostics) List() []*models.Diagnostic {
	d.mu.RLock()
	defer d.mu.RUnlock()

	total := len(d.entries)
	out := make([]*models.Diagnostic, total)
	for i := 0; i < total; i++ {
		out[i] = d.entries[total-1-i]
	}
	return out
}

// Get returns a single entry or nil.
func (d *Diagnostics) Get(id int) *models.Diagnostic {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byID[id]
}

// Len reports the number of stored entries.
func (d *Diagnostics) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Clear removes all entries and restarts ids at 1.
func (d *Diagnostics) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make([]*models.Diagnostic, 0, d.capacity)
	d.byID = make(map[int]*models.Diagnostic)
	d.idCounter = 0
}

func stackTrace(skip int) string {
	const maxDepth = 10
	var stack string

	for i := skip; i < skip+maxDepth; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		funcName := "unknown"
		if fn := runtime.FuncForPC(pc); fn != nil {
			funcName = fn.Name()
		}
		stack += fmt.Sprintf("%s:%d %s\n", file, line, funcName)
	}
	return stack
}
