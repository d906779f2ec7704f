// Package handler is the HTTP surface of §6: the carrier webhook
// (inbound call control, HMAC-verified) and the tenant-scoped admin
// API (tenant/agent/callback CRUD, session and audit visibility,
// JWT-bearer authenticated). Route wiring follows the teacher's
// HandlerManager/SetupAllRoutes shape (internal/handler/routes.go).
package handler

import (
	"github.com/gorilla/mux"
	"github.com/xpload/voicecore-ai-sub002/internal/audit"
	"github.com/xpload/voicecore-ai-sub002/internal/callback"
	"github.com/xpload/voicecore-ai-sub002/internal/config"
	"github.com/xpload/voicecore-ai-sub002/internal/directory"
	"github.com/xpload/voicecore-ai-sub002/internal/media"
	"github.com/xpload/voicecore-ai-sub002/internal/repository"
	"github.com/xpload/voicecore-ai-sub002/internal/services/call"
	"github.com/xpload/voicecore-ai-sub002/pkg/logger"
)

// HandlerManager owns every HTTP handler and wires them onto a shared
// mux.Router, the one place route registration happens.
type HandlerManager struct {
	secrets   config.SecretsConfig
	rateLimit config.RateLimitConfig

	repos     repository.RepositoryManager
	calls     *call.Service
	bridge    *media.Bridge
	callbacks *callback.Service
	directory *directory.Service
	audit     *audit.Service
}

func NewHandlerManager(
	secrets config.SecretsConfig,
	rateLimit config.RateLimitConfig,
	repos repository.RepositoryManager,
	calls *call.Service,
	bridge *media.Bridge,
	callbacks *callback.Service,
	dir *directory.Service,
	auditSvc *audit.Service,
) *HandlerManager {
	return &HandlerManager{
		secrets:   secrets,
		rateLimit: rateLimit,
		repos:     repos,
		calls:     calls,
		bridge:    bridge,
		callbacks: callbacks,
		directory: dir,
		audit:     auditSvc,
	}
}

// SetupAllRoutes registers the carrier webhook surface and the admin
// API onto router, each under its own middleware chain.
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	router.Use(CORSMiddleware)

	hm.setupCarrierRoutes(router)
	hm.setupAdminRoutes(router)

	logger.Base().Info("all application routes registered")
}

func (hm *HandlerManager) setupCarrierRoutes(router *mux.Router) {
	carrierHandler := NewCarrierWebhookHandler(hm.calls, hm.bridge, hm.secrets.CarrierWebhookSecret)
	carrierHandler.SetupCarrierRoutes(router)
}

// setupAdminRoutes mounts every tenant-facing CRUD/visibility handler
// under /api/v1, each subject to logging, validation, rate limiting,
// and bearer-token authentication in that order.
func (hm *HandlerManager) setupAdminRoutes(router *mux.Router) {
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(LoggingMiddleware)
	apiRouter.Use(ValidationMiddleware)
	apiRouter.Use(RateLimitMiddleware(hm.rateLimit.RequestsPerSecond, hm.rateLimit.Burst))
	apiRouter.Use(JWTAuthMiddleware(hm.secrets.JWTSigningKey, hm.secrets.JWTIssuer))

	NewTenantHandler(hm.repos.Tenant()).SetupTenantRoutes(apiRouter)
	NewAgentHandler(hm.repos.Agent(), hm.directory).SetupAgentRoutes(apiRouter)
	NewCallbackHandler(hm.callbacks).SetupCallbackRoutes(apiRouter)
	NewSessionHandler(hm.calls).SetupSessionRoutes(apiRouter)
	NewAuditHandler(hm.audit).SetupAuditRoutes(apiRouter)

	logger.Base().Info("admin api routes registered")
}
