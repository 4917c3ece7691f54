package routers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/commonroom/commonroom/internal/handlers"
	"github.com/commonroom/commonroom/internal/middlewares"
	"github.com/commonroom/commonroom/internal/ws"
	"github.com/commonroom/commonroom/pkg/utils"
)

// SetupRoutes wires the HTTP and WebSocket surface.
func SetupRoutes(r *gin.Engine,
	authHandler *handlers.AuthHandler,
	groupHandler *handlers.GroupHandler,
	hub *ws.Hub,
	tokens *utils.TokenIssuer,
) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", middlewares.AuthMiddleware(tokens), authHandler.Logout)
			auth.GET("/me", middlewares.AuthMiddleware(tokens), authHandler.Me)
		}

		groups := api.Group("/groups")
		{
			// Browsing and detail are open; mutations require a token.
			groups.GET("", groupHandler.List)
			groups.GET("/mine", middlewares.AuthMiddleware(tokens), groupHandler.Mine)
			groups.POST("", middlewares.AuthMiddleware(tokens), groupHandler.Create)
			groups.GET("/:id", groupHandler.Detail)
			groups.POST("/:id/join", middlewares.AuthMiddleware(tokens), groupHandler.Join)
			groups.POST("/:id/leave", middlewares.AuthMiddleware(tokens), groupHandler.Leave)
			groups.POST("/:id/messages", middlewares.AuthMiddleware(tokens), groupHandler.SendMessage)
		}
	}

	// WebSocket handshakes carry the token as a query parameter.
	r.GET("/ws/groups/:id", middlewares.AuthMiddleware(tokens), func(c *gin.Context) {
		ws.ServeWs(hub, c.Param("id"), c)
	})
}
