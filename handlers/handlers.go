package handlers

import (
	"crypto/rand"
	"net/http"
	"time"

	"flowwatch/config"
	"flowwatch/core"
	"flowwatch/service"
	"flowwatch/upstream"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Config    *config.Config
	DB        *gorm.DB
	Services  *service.Services
	N8N       *upstream.N8NClient
	Close     *upstream.CloseClient
	Transport *upstream.Transport
	Logger    hclog.Logger

	// WebhookACL restricts who may post errors. Nil allows everyone.
	WebhookACL *core.SourceACL
}

// Handler serves the flowwatch HTTP API.
type Handler struct {
	cfg       *config.Config
	db        *gorm.DB
	svc       *service.Services
	n8n       *upstream.N8NClient
	crm       *upstream.CloseClient
	transport *upstream.Transport
	log       hclog.Logger
	acl       *core.SourceACL
	sessions  *sessionSigner
	now       func() time.Time
	started   time.Time
}

// New builds a Handler. A missing session secret is replaced by a random
// one, which invalidates sessions on restart.
func New(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}

	secret := []byte(d.Config.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			log.Error("failed to generate session secret", "error", err)
		}
	}
	maxAge := time.Duration(d.Config.SessionMaxAgeSecs) * time.Second
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	return &Handler{
		cfg:       d.Config,
		db:        d.DB,
		svc:       d.Services,
		n8n:       d.N8N,
		crm:       d.Close,
		transport: d.Transport,
		log:       log,
		acl:       d.WebhookACL,
		sessions:  &sessionSigner{key: secret, maxAge: maxAge},
		now:       time.Now,
		started:   time.Now(),
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/metrics", h.GetPrometheusMetrics)

	api := r.Group("/api")
	{
		// Public
		api.POST("/webhook/errors", h.RequireWebhookSource(), h.IngestErrors)
		api.POST("/auth/login", h.Login)
		api.POST("/auth/logout", h.Logout)
		api.GET("/health", h.HealthCheck)
		api.GET("/metrics", h.GetMetrics)

		protected := api.Group("")
		protected.Use(h.RequireSession())

		if h.cfg.DebugEndpoints {
			protected.GET("/webhook/errors", h.DumpErrors)
			protected.DELETE("/webhook/errors", h.ClearErrors)
		}

		// Error records
		protected.GET("/errors", h.ListErrors)
		protected.PATCH("/errors", h.UpdateError)
		protected.DELETE("/errors/:id", h.DeleteError)
		protected.GET("/analytics", h.GetAnalytics)

		// n8n
		protected.GET("/workflows", h.ListWorkflows)
		protected.GET("/workflows/:id", h.GetWorkflow)
		protected.GET("/test-n8n", h.TestN8N)

		// Close CRM
		protected.GET("/close/custom-fields", h.CloseLeadCustomFields)
		protected.GET("/close/opportunity-custom-fields", h.CloseOpportunityCustomFields)
		protected.GET("/close/users", h.CloseUsers)
		protected.GET("/close/lead-statuses", h.CloseLeadStatuses)
		protected.GET("/close/opportunity-statuses", h.CloseOpportunityStatuses)

		// Operations
		protected.GET("/diagnostics", h.GetDiagnostics)
		protected.GET("/diagnostics/:id", h.GetDiagnostic)
		protected.DELETE("/diagnostics", h.ClearDiagnostics)
		protected.GET("/settings/proxy", h.GetProxy)
		protected.PUT("/settings/proxy", h.SetProxy)
	}

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "Not found", "")
	})
}

// RequestLogger logs each request through hclog.
func RequestLogger(log hclog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("request", args...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("request", args...)
		default:
			log.Debug("request", args...)
		}
	}
}
