package v1

import (
	"github.com/gin-gonic/gin"

	"canvas-server/services/media-engine/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
}

func NewRoutes(provider *handlers.Provider) *Routes {
	return &Routes{handlers: provider}
}

// Register attaches all v1 routes under the /v1 prefix.
func (r *Routes) Register(router gin.IRouter) {
	group := router.Group("/v1")

	group.POST("/media", r.handlers.Media.Upload)
	group.GET("/media/:id", r.handlers.Media.Get)
	group.GET("/media/:id/:filename", r.handlers.Media.Serve)
	group.POST("/media/:id/replace", r.handlers.Media.Replace)
	group.POST("/media/:id/retry", r.handlers.Media.Retry)
	group.DELETE("/media/:id", r.handlers.Media.Delete)

	group.PUT("/usages", r.handlers.Media.SyncUsage)

	group.POST("/admin/gc", r.handlers.Media.RunGC)
}
