// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"bnc-service/internal/config"
	"bnc-service/internal/handler"
	"bnc-service/internal/middleware"
	"bnc-service/internal/service"
	"bnc-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config        *config.Config
	logger        *zap.Logger
	pluginService   *service.PluginService
	exchangeService *service.ExchangeService
	eventBus        *handler.EventBus
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	pluginService *service.PluginService,
	exchangeService *service.ExchangeService,
	eventBus *handler.EventBus,
) *Router {
	return &Router{
		config:          config,
		logger:          logger,
		pluginService:   pluginService,
		exchangeService: exchangeService,
		eventBus:        eventBus,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	// Set Gin mode
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if r.config.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger, "/live", "/ready"))

	router.Use(middleware.CORSMiddleware(&r.config.Server))

	r.logger.Debug("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.pluginService, r.config, r.logger)
	pluginHandler := handler.NewPluginHandler(r.pluginService, r.logger)
	deviceHandler := handler.NewDeviceHandler(r.pluginService, r.logger)
	exchangeHandler := handler.NewExchangeHandler(r.exchangeService, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(&r.config.Discovery, nil, r.logger)
	wsHandler := handler.NewWebSocketHandler(r.eventBus, r.config.Server.AllowedOrigins, r.logger)

	r.addHealthRoutes(router, healthHandler)

	apiV1 := router.Group("/api/v1")
	r.addPluginRoutes(apiV1, pluginHandler)
	r.addDeviceRoutes(apiV1, deviceHandler, exchangeHandler)
	r.addDiscoveryRoutes(apiV1, discoveryHandler)

	r.addWebSocketRoutes(router, wsHandler)
	r.addDocumentationRoutes(router)

	r.logger.Debug("All routes configured successfully")
}

// addHealthRoutes sets up health check routes
func (r *Router) addHealthRoutes(router *gin.Engine, handler *handler.HealthHandler) {
	health := router.Group("")
	{
		health.GET("/health", handler.HealthCheck)
		health.GET("/ready", handler.ReadinessCheck)
		health.GET("/live", handler.LivenessCheck)
	}
}

// addPluginRoutes sets up the plugin host surface
func (r *Router) addPluginRoutes(api *gin.RouterGroup, handler *handler.PluginHandler) {
	plugins := api.Group("/plugins")
	{
		plugins.GET("", handler.ListPlugins)

		// Mover only
		move := plugins.Group("/move")
		{
			move.POST("/move-abs", handler.MoveAbs)
			move.POST("/move-rel", handler.MoveRel)
			move.POST("/home", handler.MoveHome)
			move.POST("/stop", handler.Stop)
			move.GET("/position", handler.GetPosition)
		}

		kind := plugins.Group("/:kind")
		{
			kind.POST("/init", handler.InitializePlugin)
			kind.GET("/settings", handler.GetSettings)
			kind.PUT("/parameters/:name", handler.SetParameter)
			kind.POST("/poll", handler.Poll)
			kind.DELETE("", handler.ClosePlugin)
		}
	}
}

// addDeviceRoutes sets up direct instrument routes
func (r *Router) addDeviceRoutes(api *gin.RouterGroup, handler *handler.DeviceHandler, journal *handler.ExchangeHandler) {
	device := api.Group("/device")
	{
		device.GET("/idn", handler.GetIDN)
		device.GET("/snapshot", handler.GetSnapshot)
		device.GET("/health", handler.GetDeviceHealth)
		device.GET("/attributes", handler.ListAttributes)
		device.GET("/attributes/:name", handler.GetAttribute)

		// Console journal
		device.GET("/exchanges", journal.ListExchanges)
		device.GET("/exchanges/stats", journal.GetExchangeStats)
		device.GET("/exchanges/:id", journal.GetExchange)
		device.DELETE("/exchanges", journal.ClearExchanges)
	}
}

// addDiscoveryRoutes sets up console scan routes
func (r *Router) addDiscoveryRoutes(api *gin.RouterGroup, handler *handler.DiscoveryHandler) {
	discovery := api.Group("/discovery")
	{
		discovery.GET("/scan", handler.ScanInstruments)
	}
}

// addWebSocketRoutes sets up WebSocket routes
func (r *Router) addWebSocketRoutes(router *gin.Engine, handler *handler.WebSocketHandler) {
	ws := router.Group("/ws")
	{
		ws.GET("/data", handler.HandleDataConnection)
		ws.GET("/stats", handler.GetConnectionStats)
	}
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
