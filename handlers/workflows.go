package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListWorkflows returns every workflow known to n8n.
func (h *Handler) ListWorkflows(c *gin.Context) {
	workflows, err := h.n8n.ListWorkflows(c.Request.Context())
	if err != nil {
		h.svc.Diag.Error("n8n", "failed to fetch workflows", err, nil)
		respondError(c, http.StatusInternalServerError, "Failed to fetch workflows", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": workflows, "total": len(workflows)})
}

// GetWorkflow returns one n8n workflow.
func (h *Handler) GetWorkflow(c *gin.Context) {
	wf, ok, err := h.n8n.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.svc.Diag.Error("n8n", "failed to fetch workflow", err, map[string]interface{}{"id": c.Param("id")})
		respondError(c, http.StatusInternalServerError, "Failed to fetch workflow", err.Error())
		return
	}
	if !ok {
		respondError(c, http.StatusNotFound, "Workflow not found", "")
		return
	}
	c.JSON(http.StatusOK, wf)
}

// TestN8N reports how the n8n client is configured without calling it.
func (h *Handler) TestN8N(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"configured":   h.n8n.Status(),
		"testUrl":      h.n8n.WorkflowsURL(),
		"instructions": "Set N8N_BASE_URL and N8N_API_KEY in the environment or the config file",
	})
}
