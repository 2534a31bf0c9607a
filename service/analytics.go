package service

import (
	"math"
	"sort"
	"time"

	"flowwatch/models"
)

const (
	topWorkflowLimit = 5
	trendDays        = 7
)

// CalculateAnalytics summarises records as of now. Day buckets use
// now's location.
func CalculateAnalytics(records []models.ErrorRecord, now time.Time) models.ErrorAnalytics {
	last24h := now.Add(-24 * time.Hour)
	previous24h := now.Add(-48 * time.Hour)

	out := models.ErrorAnalytics{
		TotalErrors:          len(records),
		MostAffectedWorkflow: "N/A",
		Trends:               make([]models.TrendPoint, 0, trendDays),
		ErrorsByType:         []models.TypeCount{},
		ErrorsBySeverity:     make([]models.SeverityCount, 0, len(models.Severities)),
		TopWorkflows:         []models.WorkflowStats{},
	}

	type workflowAgg struct {
		name      string
		count     int
		lastError time.Time
		firstSeen int
	}
	workflows := map[string]*workflowAgg{}
	byType := map[models.ErrorType]int{}
	bySeverity := map[models.Severity]int{}

	var resolutionTotal time.Duration
	var resolutionCount int

	for i, rec := range records {
		if !rec.Resolved {
			out.UnresolvedErrors++
		} else if rec.ResolvedAt != nil && rec.ResolvedAt.After(rec.Timestamp) {
			resolutionTotal += rec.ResolvedAt.Sub(rec.Timestamp)
			resolutionCount++
		}

		if !rec.Timestamp.Before(last24h) {
			out.ErrorsLast24h++
		} else if !rec.Timestamp.Before(previous24h) {
			out.ErrorsPrevious24h++
		}

		errType := rec.ErrorType
		if errType == "" {
			errType = models.ErrorTypeOther
		}
		byType[errType]++
		bySeverity[models.NormalizeSeverity(string(rec.Severity))]++

		agg, ok := workflows[rec.WorkflowName]
		if !ok {
			agg = &workflowAgg{name: rec.WorkflowName, lastError: rec.Timestamp, firstSeen: i}
			workflows[rec.WorkflowName] = agg
		}
		agg.count++
		if rec.Timestamp.After(agg.lastError) {
			agg.lastError = rec.Timestamp
		}
	}

	out.ErrorRate = round1(float64(out.ErrorsLast24h) / 24)
	if resolutionCount > 0 {
		out.AvgResolutionTime = int64((resolutionTotal / time.Duration(resolutionCount)).Seconds())
	}

	// Ties keep first-seen order so results are deterministic.
	ranked := make([]*workflowAgg, 0, len(workflows))
	for _, agg := range workflows {
		ranked = append(ranked, agg)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].firstSeen < ranked[j].firstSeen
	})
	if len(ranked) > 0 {
		out.MostAffectedWorkflow = ranked[0].name
	}
	for i, agg := range ranked {
		if i == topWorkflowLimit {
			break
		}
		out.TopWorkflows = append(out.TopWorkflows, models.WorkflowStats{
			WorkflowName: agg.name,
			ErrorCount:   agg.count,
			LastError:    agg.lastError,
			SuccessRate:  estimateSuccessRate(agg.count),
		})
	}

	for _, t := range models.ErrorTypes {
		if n := byType[t]; n > 0 {
			out.ErrorsByType = append(out.ErrorsByType, models.TypeCount{Type: string(t), Count: n})
		}
	}
	sort.SliceStable(out.ErrorsByType, func(i, j int) bool {
		return out.ErrorsByType[i].Count > out.ErrorsByType[j].Count
	})

	for _, sev := range models.Severities {
		out.ErrorsBySeverity = append(out.ErrorsBySeverity, models.SeverityCount{Severity: string(sev), Count: bySeverity[sev]})
	}

	for i := trendDays - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
		end := start.AddDate(0, 0, 1)
		count := 0
		for _, rec := range records {
			if !rec.Timestamp.Before(start) && rec.Timestamp.Before(end) {
				count++
			}
		}
		out.Trends = append(out.Trends, models.TrendPoint{Timestamp: start, Count: count})
	}

	return out
}

// estimateSuccessRate is a heuristic: no execution totals are available,
// so each error costs two points, capped at thirty, with a floor of 60.
func estimateSuccessRate(errorCount int) float64 {
	penalty := math.Min(float64(errorCount*2), 30)
	return round1(math.Max(60, 95-penalty))
}

// TrendChange is the percentage change from previous to current.
func TrendChange(current, previous int) models.TrendChange {
	if previous == 0 {
		value := 0.0
		if current > 0 {
			value = 100
		}
		return models.TrendChange{Value: value, IsPositive: false}
	}
	change := float64(current-previous) / float64(previous) * 100
	return models.TrendChange{
		Value:      math.Abs(round1(change)),
		IsPositive: change < 0,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
