package router

import (
	"net/http"

	"eco-agent-backend/controller"
	"eco-agent-backend/middleware"

	"github.com/gin-gonic/gin"
)

func Register() *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")
	api.Use(middleware.IdentityMiddleware())
	{
		api.POST("/chat", controller.AgentChat)
		api.GET("/chat/ws", controller.AgentChatWS)

		api.GET("/sessions", controller.GetSessions)
		api.GET("/session/:id/messages", controller.GetSessionMessages)
		api.PUT("/session/:id/title", controller.UpdateSessionTitle)
		api.DELETE("/session/:id", controller.DeleteSession)

		api.POST("/rag/query", controller.RAGQuery)
		api.GET("/sources/link", controller.GetSourceLink)

		api.GET("/images/:id", controller.GetImage)
		api.GET("/charts/:id", controller.GetChart)
		api.GET("/csv/:id", controller.GetCSV)
	}

	return r
}
