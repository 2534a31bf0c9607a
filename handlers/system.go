package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"flowwatch/core"
	"flowwatch/database"
	"flowwatch/service"
	"flowwatch/upstream"
	"flowwatch/version"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports liveness and database connectivity.
func (h *Handler) HealthCheck(c *gin.Context) {
	dbHealthy := database.Healthy(c.Request.Context(), h.db)

	health := gin.H{
		"status":           "healthy",
		"timestamp":        h.now().Unix(),
		"version":          version.Version,
		"uptime_seconds":   int64(time.Since(h.started).Seconds()),
		"db_healthy":       dbHealthy,
		"auth_enabled":     h.cfg.AuthEnabled(),
		"n8n_configured":   h.n8n.Configured(),
		"close_configured": h.crm.Configured(),
	}

	if !dbHealthy {
		health["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	c.JSON(http.StatusOK, health)
}

type metricsSnapshot struct {
	timestamp   int64
	cache       service.CacheStats
	ingest      service.IngestStats
	diagnostics int
	contention  database.ContentionStats
	storeUp     bool
	mem         runtime.MemStats
}

func (h *Handler) collectMetricsSnapshot(c *gin.Context) metricsSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return metricsSnapshot{
		timestamp:   h.now().Unix(),
		cache:       h.svc.Cache.Stats(),
		ingest:      h.svc.Ingest.Stats(),
		diagnostics: h.svc.Diag.Len(),
		storeUp:     database.Healthy(c.Request.Context(), h.db),
		contention:  database.ContentionOf(h.db),
		mem:         mem,
	}
}

// GetMetrics returns application metrics as JSON.
func (h *Handler) GetMetrics(c *gin.Context) {
	s := h.collectMetricsSnapshot(c)

	c.JSON(http.StatusOK, gin.H{
		"timestamp": s.timestamp,
		"cache":     s.cache,
		"ingest":    s.ingest,
		"diagnostics": gin.H{
			"total": s.diagnostics,
		},
		"store": gin.H{
			"up":                  s.storeUp,
			"busy_errors_total":   s.contention.BusyErrors,
			"locked_errors_total": s.contention.LockedErrors,
		},
		"system": gin.H{
			"goroutines":   runtime.NumGoroutine(),
			"memory_alloc": s.mem.Alloc,
			"memory_total": s.mem.TotalAlloc,
			"memory_sys":   s.mem.Sys,
			"gc_runs":      s.mem.NumGC,
		},
	})
}

func promLabelEscape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func writeMetric(buf *bytes.Buffer, name, kind, help string, value interface{}) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(buf, "%s %v\n", name, value)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetPrometheusMetrics writes metrics in the Prometheus text exposition format.
func (h *Handler) GetPrometheusMetrics(c *gin.Context) {
	s := h.collectMetricsSnapshot(c)

	var buf bytes.Buffer

	buf.WriteString("# HELP flowwatch_build_info Build information.\n")
	buf.WriteString("# TYPE flowwatch_build_info gauge\n")
	fmt.Fprintf(
		&buf,
		"flowwatch_build_info{version=\"%s\",commit=\"%s\",build_time=\"%s\"} 1\n",
		promLabelEscape(version.Version),
		promLabelEscape(version.CommitHash),
		promLabelEscape(version.BuildTime),
	)

	writeMetric(&buf, "flowwatch_store_up", "gauge", "Record store connectivity (1=up, 0=down).", boolGauge(s.storeUp))
	writeMetric(&buf, "flowwatch_store_busy_errors_total", "counter", "Record store queries that failed with SQLITE_BUSY.", s.contention.BusyErrors)
	writeMetric(&buf, "flowwatch_store_locked_errors_total", "counter", "Record store queries that failed with SQLITE_LOCKED.", s.contention.LockedErrors)

	writeMetric(&buf, "flowwatch_webhook_requests_total", "counter", "Webhook calls accepted for processing.", s.ingest.Requests)
	writeMetric(&buf, "flowwatch_webhook_items_received_total", "counter", "Error items received by the webhook.", s.ingest.Received)
	writeMetric(&buf, "flowwatch_webhook_items_processed_total", "counter", "Error items accepted by the normalizer.", s.ingest.Processed)
	writeMetric(&buf, "flowwatch_webhook_items_rejected_total", "counter", "Error items rejected by the normalizer.", s.ingest.Rejected)
	writeMetric(&buf, "flowwatch_webhook_persist_failed_total", "counter", "Accepted error items that failed to persist.", s.ingest.PersistFailed)

	writeMetric(&buf, "flowwatch_cache_hits_total", "counter", "Listing reads served from a fresh snapshot.", s.cache.Hits)
	writeMetric(&buf, "flowwatch_cache_refreshes_total", "counter", "Successful listing refreshes from the store.", s.cache.Refreshes)
	writeMetric(&buf, "flowwatch_cache_refresh_errors_total", "counter", "Failed listing refreshes.", s.cache.RefreshErrors)
	writeMetric(&buf, "flowwatch_cache_records", "gauge", "Records in the current listing snapshot.", s.cache.Size)
	writeMetric(&buf, "flowwatch_cache_age_seconds", "gauge", "Age of the current listing snapshot.", s.cache.AgeSeconds)

	writeMetric(&buf, "flowwatch_diagnostics", "gauge", "Internal failures kept in the diagnostics ring.", s.diagnostics)

	writeMetric(&buf, "flowwatch_go_goroutines", "gauge", "Number of goroutines.", runtime.NumGoroutine())
	writeMetric(&buf, "flowwatch_memory_alloc_bytes", "gauge", "Bytes of allocated heap objects.", s.mem.Alloc)
	writeMetric(&buf, "flowwatch_memory_sys_bytes", "gauge", "Bytes obtained from the OS.", s.mem.Sys)
	writeMetric(&buf, "flowwatch_gc_runs_total", "counter", "Number of completed GC cycles.", s.mem.NumGC)

	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// GetDiagnostics returns recent internal failures, newest first.
func (h *Handler) GetDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Diag.List())
}

// GetDiagnostic returns one diagnostics entry.
func (h *Handler) GetDiagnostic(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		err = core.NewBadRequestError("diagnostic id must be an integer")
		respondError(c, core.StatusCode(err, http.StatusBadRequest), err.Error(), "")
		return
	}
	entry := h.svc.Diag.Get(id)
	if entry == nil {
		respondError(c, http.StatusNotFound, "Diagnostic not found", "")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ClearDiagnostics wipes the diagnostics ring.
func (h *Handler) ClearDiagnostics(c *gin.Context) {
	h.svc.Diag.Clear()
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Diagnostics cleared"})
}

type proxyRequest struct {
	ProxyURL string `json:"proxy_url"`
}

// GetProxy reports the effective outbound proxy.
func (h *Handler) GetProxy(c *gin.Context) {
	c.JSON(http.StatusOK, h.transport.Status(c.Request.Context()))
}

// SetProxy persists a manual outbound proxy. An empty value clears it.
func (h *Handler) SetProxy(c *gin.Context) {
	var req proxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	value := strings.TrimSpace(req.ProxyURL)
	if value != "" {
		if err := upstream.ValidateProxyURL(value); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request", err.Error())
			return
		}
	}
	if err := h.transport.SetManualProxy(c.Request.Context(), value); err != nil {
		respondError(c, http.StatusInternalServerError, "Internal error", err.Error())
		return
	}
	c.JSON(http.StatusOK, h.transport.Status(c.Request.Context()))
}
