package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"flowwatch/core"

	"github.com/gin-gonic/gin"
)

const debugDumpLimit = 100

// RequireWebhookSource rejects webhook calls from addresses outside the
// configured allow list.
func (h *Handler) RequireWebhookSource() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.acl.AllowsAddr(c.ClientIP()) {
			h.svc.Diag.Warn("webhook", "webhook call rejected by source filter", fmt.Errorf("client %s not allowed", c.ClientIP()))
			respondError(c, http.StatusForbidden, "Forbidden", "")
			c.Abort()
			return
		}
		c.Next()
	}
}

// IngestErrors accepts one error object or an array of them, in n8n or
// canonical format.
func (h *Handler) IngestErrors(c *gin.Context) {
	if h.cfg.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(h.cfg.MaxBodyBytes))
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "Request body too large", err.Error())
			return
		}
		respondError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	res, err := h.svc.Ingest.Ingest(c.Request.Context(), body)
	if err != nil {
		respondError(c, core.StatusCode(err, http.StatusInternalServerError), "Invalid request body", err.Error())
		return
	}

	resp := gin.H{
		"success":   true,
		"received":  res.Received,
		"processed": res.Processed,
		"rejected":  res.Rejected,
		"message":   fmt.Sprintf("Successfully processed %d error(s)", res.Processed),
	}
	if res.Rejected > 0 {
		resp["rejectedErrors"] = res.RejectedErrors
		resp["warning"] = "Some errors were rejected due to validation failures"
	}
	if res.PersistFailed > 0 {
		resp["persistFailed"] = res.PersistFailed
	}
	c.JSON(http.StatusOK, resp)
}

// DumpErrors returns up to 100 records for debugging.
func (h *Handler) DumpErrors(c *gin.Context) {
	records, err := h.svc.Cache.List(c.Request.Context())
	if err != nil {
		h.log.Warn("debug dump served without snapshot", "error", err)
	}
	count := len(records)
	if len(records) > debugDumpLimit {
		records = records[:debugDumpLimit]
	}
	c.JSON(http.StatusOK, gin.H{"count": count, "errors": records})
}

// ClearErrors deletes every record.
func (h *Handler) ClearErrors(c *gin.Context) {
	if err := h.svc.ClearAll(c.Request.Context()); err != nil {
		h.svc.Diag.Error("webhook", "failed to clear error records", err, nil)
		respondError(c, http.StatusInternalServerError, "Failed to clear errors", err.Error())
		return
	}
	h.log.Warn("all error records cleared", "client", c.ClientIP())
	respondOK(c, http.StatusOK, "All errors cleared")
}
