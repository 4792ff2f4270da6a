package handlers

import (
	"cauldronwatch/internal/logger"
	"cauldronwatch/internal/service"
	"cauldronwatch/internal/store"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires the HTTP layer to the services, the state store and logging.
type Handler struct {
	services *service.Service
	store    *store.Store
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, st *store.Store, log *logger.Logger) *Handler {
	return &Handler{services: services, store: st, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// Downstream WebSocket push (HTTP upgrade) on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		api.GET("/cauldrons", h.listCauldrons)
		api.GET("/cauldrons/:id", h.getCauldron)
		api.GET("/market", h.getMarket)
		api.GET("/alerts", h.listAlerts)
		api.GET("/drains", h.listDrains)
		api.POST("/refresh", h.refresh)

		history := api.Group("/history")
		{
			history.GET("", h.getHistory)
			history.GET("/live", h.getLiveHistory)
		}

		discrepancies := api.Group("/discrepancies")
		{
			discrepancies.GET("", h.getDiscrepancies)
			discrepancies.POST("/detect", h.detectDiscrepancies)
		}

		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
