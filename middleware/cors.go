package middleware

import (
	"time"

	"eco-agent-backend/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func CORSMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", AnonymousIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", AnonymousIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	origins := config.Cfg.Server.CORSOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// 允许凭证时不能使用通配符
		cfg.AllowOriginFunc = func(origin string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}

	return cors.New(cfg)
}
