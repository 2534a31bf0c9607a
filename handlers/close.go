package handlers

import (
	"context"
	"errors"
	"net/http"

	"flowwatch/upstream"

	"github.com/gin-gonic/gin"
)

// CloseLeadCustomFields lists Close lead custom fields.
func (h *Handler) CloseLeadCustomFields(c *gin.Context) {
	closeList(c, h, "custom fields", h.crm.LeadCustomFields)
}

// CloseOpportunityCustomFields lists Close opportunity custom fields.
func (h *Handler) CloseOpportunityCustomFields(c *gin.Context) {
	closeList(c, h, "opportunity custom fields", h.crm.OpportunityCustomFields)
}

// CloseUsers lists Close users.
func (h *Handler) CloseUsers(c *gin.Context) {
	closeList(c, h, "users", h.crm.Users)
}

// CloseLeadStatuses lists Close lead statuses.
func (h *Handler) CloseLeadStatuses(c *gin.Context) {
	closeList(c, h, "lead statuses", h.crm.LeadStatuses)
}

// CloseOpportunityStatuses lists Close opportunity statuses.
func (h *Handler) CloseOpportunityStatuses(c *gin.Context) {
	closeList(c, h, "opportunity statuses", h.crm.OpportunityStatuses)
}

func closeList[T any](c *gin.Context, h *Handler, what string, fetch func(context.Context) ([]T, error)) {
	items, err := fetch(c.Request.Context())
	if err != nil {
		msg := err.Error()
		if errors.Is(err, upstream.ErrNotConfigured) {
			msg = "Close API key is not configured"
		} else {
			h.svc.Diag.Error("close", "failed to fetch "+what, err, nil)
		}
		respondError(c, http.StatusInternalServerError, msg, "")
		return
	}
	respondData(c, http.StatusOK, items)
}
