// Package handler exposes the processing pipeline and published sessions
// over HTTP.
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/almariscal/criptohacienda/internal/models"
	"github.com/almariscal/criptohacienda/internal/parser"
	"github.com/almariscal/criptohacienda/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

// Upload parses an uploaded statement synchronously and publishes a new
// session.
func (h *SessionHandler) Upload(c *gin.Context) {
	content, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID, data, err := h.sessionService.ProcessStatement(c.Request.Context(), content)
	if err != nil {
		var formatErr *parser.FormatError
		if errors.As(err, &formatErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": formatErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":     sessionID,
		"trades":         len(data.Trades),
		"realized_gains": len(data.RealizedGains),
		"missing_prices": data.MissingPrices,
	})
}

// GetOperations returns a session's trades.
func (h *SessionHandler) GetOperations(c *gin.Context) {
	data, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, data.Trades)
}

// GetRealizedGains returns a session's realized gain events.
func (h *SessionHandler) GetRealizedGains(c *gin.Context) {
	data, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, data.RealizedGains)
}

// GetHoldings returns the remaining FIFO lots per asset plus the session
// totals.
func (h *SessionHandler) GetHoldings(c *gin.Context) {
	data, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"holdings":           data.Holdings,
		"total_invested_eur": data.TotalInvestedEUR,
		"total_fees_eur":     data.TotalFeesEUR,
	})
}

// GetSummaries returns realized gains grouped by period (day, week, month
// or year; default month).
func (h *SessionHandler) GetSummaries(c *gin.Context) {
	data, ok := h.session(c)
	if !ok {
		return
	}
	period := c.DefaultQuery("period", "month")
	c.JSON(http.StatusOK, service.SummarizeGains(data.RealizedGains, period))
}

// GetSnapshots returns the portfolio valuation timeline.
func (h *SessionHandler) GetSnapshots(c *gin.Context) {
	data, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, data.PortfolioSnapshots)
}

// GetCashMovements returns a session's cash movements.
func (h *SessionHandler) GetCashMovements(c *gin.Context) {
	data, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, data.CashMovements)
}

// GetAnalysis returns the combined wallet analysis of a session. Sessions
// created through the synchronous upload have none.
func (h *SessionHandler) GetAnalysis(c *gin.Context) {
	if _, ok := h.session(c); !ok {
		return
	}
	result := h.sessionService.Analysis(c.Param("id"))
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session has no combined analysis"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Delete removes a session.
func (h *SessionHandler) Delete(c *gin.Context) {
	if !h.sessionService.DeleteSession(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *SessionHandler) session(c *gin.Context) (*models.SessionData, bool) {
	found := h.sessionService.Session(c.Param("id"))
	if found == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return found, true
}

// readUpload extracts the statement content from a multipart "file" field,
// falling back to the raw request body.
func readUpload(c *gin.Context) (string, error) {
	if file, err := c.FormFile("file"); err == nil {
		opened, err := file.Open()
		if err != nil {
			return "", err
		}
		defer opened.Close()
		content, err := io.ReadAll(opened)
		if err != nil {
			return "", err
		}
		return string(content), nil
	}

	content, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	if len(content) == 0 {
		return "", errors.New("empty statement upload")
	}
	return string(content), nil
}
