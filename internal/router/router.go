package router

import (
	"github.com/gin-gonic/gin"

	"github.com/almariscal/criptohacienda/internal/handler"
)

type Config struct {
	SessionHandler  *handler.SessionHandler
	AnalysisHandler *handler.AnalysisHandler
}

func NewRouter(cfg *Config) *gin.Engine {
	router := gin.Default()
	router.Use(corsMiddleware())

	api := router.Group("/v1/")
	registerSessionRoutes(api, cfg.SessionHandler)
	registerAnalysisRoutes(api, cfg.AnalysisHandler)

	return router
}

// corsMiddleware allows browser frontends on other origins to call the API.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
