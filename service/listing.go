package service

import (
	"strings"
	"time"

	"flowwatch/models"
)

// TimeRanges are the accepted values of the listing "range" filter.
var TimeRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// ListQuery filters and pages a listing. Zero values mean "no filter".
type ListQuery struct {
	Limit     int // <= 0 returns everything after Offset
	Offset    int
	Fixed     *bool
	Search    string
	Severity  models.Severity
	ErrorType models.ErrorType
	Within    time.Duration
}

// Page is one page of a filtered listing.
type Page struct {
	Errors []models.ErrorRecord `json:"errors"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// Apply filters records (keeping their order) and slices out the page.
// Total counts the filtered records before paging.
func (q ListQuery) Apply(records []models.ErrorRecord, now time.Time) Page {
	filtered := make([]models.ErrorRecord, 0, len(records))
	search := strings.ToLower(strings.TrimSpace(q.Search))
	for _, rec := range records {
		if q.matches(rec, search, now) {
			filtered = append(filtered, rec)
		}
	}

	total := len(filtered)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}

	limit := q.Limit
	end := total
	if limit > 0 {
		if limit < end-offset {
			end = offset + limit
		}
	} else {
		limit = total
	}

	return Page{
		Errors: filtered[offset:end],
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
}

func (q ListQuery) matches(rec models.ErrorRecord, search string, now time.Time) bool {
	if q.Fixed != nil && rec.Resolved != *q.Fixed {
		return false
	}
	if q.Severity != "" && rec.Severity != q.Severity {
		return false
	}
	if q.ErrorType != "" && rec.ErrorType != q.ErrorType {
		return false
	}
	if q.Within > 0 && rec.Timestamp.Before(now.Add(-q.Within)) {
		return false
	}
	if search != "" {
		haystack := strings.ToLower(strings.Join([]string{
			rec.ID, rec.WorkflowID, rec.WorkflowName, rec.NodeName, rec.ErrorMessage, rec.ExecutionID,
		}, "\n"))
		if !strings.Contains(haystack, search) {
			return false
		}
	}
	return true
}
