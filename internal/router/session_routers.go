package router

import (
	"github.com/gin-gonic/gin"

	"github.com/almariscal/criptohacienda/internal/handler"
)

func registerSessionRoutes(router *gin.RouterGroup, sessionHandler *handler.SessionHandler) {
	sessions := router.Group("/sessions")
	{
		sessions.POST("/upload", sessionHandler.Upload)
		sessions.GET("/:id/operations", sessionHandler.GetOperations)
		sessions.GET("/:id/realized-gains", sessionHandler.GetRealizedGains)
		sessions.GET("/:id/holdings", sessionHandler.GetHoldings)
		sessions.GET("/:id/summaries", sessionHandler.GetSummaries)
		sessions.GET("/:id/snapshots", sessionHandler.GetSnapshots)
		sessions.GET("/:id/cash-movements", sessionHandler.GetCashMovements)
		sessions.GET("/:id/analysis", sessionHandler.GetAnalysis)
		sessions.DELETE("/:id", sessionHandler.Delete)
	}
}

func registerAnalysisRoutes(router *gin.RouterGroup, analysisHandler *handler.AnalysisHandler) {
	analysis := router.Group("/analysis")
	{
		analysis.POST("", analysisHandler.Start)
		analysis.GET("/:id", analysisHandler.GetJob)
		analysis.GET("/:id/ws", analysisHandler.StreamJob)
	}
}
