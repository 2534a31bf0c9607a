package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"flowwatch/core"
	"flowwatch/models"
	"flowwatch/service"

	"github.com/gin-gonic/gin"
)

// ListErrors returns a filtered page of error records, newest first.
func (h *Handler) ListErrors(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		respondError(c, core.StatusCode(err, http.StatusBadRequest), "Invalid query parameter", err.Error())
		return
	}

	records, err := h.svc.Cache.List(c.Request.Context())
	if err != nil {
		// No snapshot yet; the page still renders, just empty.
		h.log.Warn("listing served empty", "error", err)
	}

	c.JSON(http.StatusOK, q.Apply(records, h.now()))
}

func parseListQuery(c *gin.Context) (service.ListQuery, error) {
	var q service.ListQuery

	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, core.NewBadRequestError("limit must be a non-negative integer")
		}
		q.Limit = n
	}
	if raw := strings.TrimSpace(c.Query("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, core.NewBadRequestError("offset must be a non-negative integer")
		}
		q.Offset = n
	}
	if raw := strings.TrimSpace(c.Query("fixed")); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return q, core.NewBadRequestError("fixed must be true or false")
		}
		q.Fixed = &b
	}
	if raw := strings.TrimSpace(c.Query("severity")); raw != "" {
		sev, ok := models.ParseSeverity(strings.ToLower(raw))
		if !ok {
			return q, core.NewBadRequestError("unknown severity")
		}
		q.Severity = sev
	}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		t, ok := models.ParseErrorType(strings.ToLower(raw))
		if !ok {
			return q, core.NewBadRequestError("unknown error type")
		}
		q.ErrorType = t
	}
	if raw := strings.TrimSpace(c.Query("range")); raw != "" {
		d, ok := service.TimeRanges[raw]
		if !ok {
			return q, core.NewBadRequestError("range must be one of 1h, 24h, 7d, 30d")
		}
		q.Within = d
	}
	q.Search = c.Query("q")
	return q, nil
}

type updateErrorRequest struct {
	ID string `json:"id"`
	models.ErrorPatch
}

// UpdateError applies a partial update, typically toggling resolved.
func (h *Handler) UpdateError(c *gin.Context) {
	var req updateErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		respondError(c, http.StatusBadRequest, "Error ID is required", "")
		return
	}

	if err := h.svc.Cache.Update(c.Request.Context(), req.ID, req.ErrorPatch); err != nil {
		if !errors.Is(err, service.ErrRecordNotFound) {
			h.svc.Diag.Error("errors", "failed to update error record", err, map[string]interface{}{"id": req.ID})
		}
		respondError(c, http.StatusNotFound, "Error not found", "")
		return
	}
	respondOK(c, http.StatusOK, "Error updated successfully")
}

// DeleteError removes one record.
func (h *Handler) DeleteError(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Cache.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "Error not found", "")
			return
		}
		h.svc.Diag.Error("errors", "failed to delete error record", err, map[string]interface{}{"id": id})
		respondError(c, http.StatusInternalServerError, "Failed to delete error", err.Error())
		return
	}
	respondOK(c, http.StatusOK, "Error deleted")
}

type analyticsResponse struct {
	models.ErrorAnalytics
	ErrorTrend models.TrendChange `json:"errorTrend"`
}

// GetAnalytics returns the dashboard summary.
func (h *Handler) GetAnalytics(c *gin.Context) {
	a, err := h.svc.Analytics(c.Request.Context(), h.now())
	if err != nil {
		h.log.Warn("analytics computed without snapshot", "error", err)
	}
	c.JSON(http.StatusOK, analyticsResponse{
		ErrorAnalytics: a,
		ErrorTrend:     service.TrendChange(a.ErrorsLast24h, a.ErrorsPrevious24h),
	})
}
