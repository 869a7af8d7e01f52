// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/appvision-bridge/bridge/internal/gateway"
	"github.com/appvision-bridge/bridge/internal/lifecycle"
	"github.com/appvision-bridge/bridge/internal/ops"
	"github.com/appvision-bridge/bridge/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Gateway     *gateway.Client
	Store       storage.Store
	Invoker     *ops.Invoker
	Controller  *lifecycle.Controller
	DefaultPeer string
	Version     string
}

// Handlers holds all handler instances
type Handlers struct {
	Health  *HealthHandler
	Tools   *ToolsHandler
	Session *SessionHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Store, deps.Version),
		Tools:   NewToolsHandler(deps.Invoker),
		Session: NewSessionHandler(deps.Gateway, deps.Store, deps.Controller, deps.DefaultPeer),
	}
}

// RegisterRoutes registers the tool-invocation routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/health", handlers.Health.HandleHealth)

	toolsGroup := e.Group("/api/tools")
	toolsGroup.GET("", handlers.Tools.HandleListTools)
	toolsGroup.POST("/:name", handlers.Tools.HandleInvokeTool)

	sessionGroup := e.Group("/api/session")
	sessionGroup.GET("", handlers.Session.HandleGetSession)
	sessionGroup.POST("/login", handlers.Session.HandleLogin)
	sessionGroup.POST("/logout", handlers.Session.HandleLogout)
}

// RegisterFeedRoutes registers the notification feed routes used by the
// trigger daemon's HTTP surface.
func RegisterFeedRoutes(e *echo.Echo, feed *FeedHandler, hub *Hub) {
	e.GET("/api/notifications/last", feed.HandleLastFanOut)
	e.GET("/api/notifications/last/msgpack", feed.HandleLastFanOutMsgpack)
	e.GET("/api/ws/notifications", hub.HandleWebSocket)
}

// SetupMiddleware configures the shared error handling
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
