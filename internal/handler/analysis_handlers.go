package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/almariscal/criptohacienda/internal/models"
	"github.com/almariscal/criptohacienda/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Progress snapshots are advisory and carry no credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type AnalysisHandler struct {
	sessionService *service.SessionService
	logger         *logrus.Logger
}

func NewAnalysisHandler(sessionService *service.SessionService, logger *logrus.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		sessionService: sessionService,
		logger:         logger,
	}
}

// Start launches a combined statement + wallet analysis in the background.
func (h *AnalysisHandler) Start(c *gin.Context) {
	var req service.CombinedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.StatementContent == "" && len(req.EVMAddresses) == 0 && len(req.BTCAddresses) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no statement content or wallet addresses provided"})
		return
	}

	jobID := h.sessionService.StartCombinedAnalysis(req)
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// GetJob returns the current job state for polling.
func (h *AnalysisHandler) GetJob(c *gin.Context) {
	job := h.sessionService.Job(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// StreamJob upgrades to a WebSocket and pushes job snapshots until the job
// reaches a terminal state or the client disconnects.
func (h *AnalysisHandler) StreamJob(c *gin.Context) {
	job := h.sessionService.Job(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.sessionService.SubscribeJob(job.ID)
	defer cancel()

	// Send the current state first; the job may already be terminal.
	if err := conn.WriteJSON(job); err != nil {
		return
	}
	if isTerminal(job.Status) {
		return
	}

	// Drain client frames so close messages are seen.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snapshot := <-updates:
			if err := conn.WriteJSON(snapshot); err != nil {
				return
			}
			if isTerminal(snapshot.Status) {
				return
			}
		case <-clientGone:
			return
		}
	}
}

func isTerminal(status string) bool {
	return status == models.JobCompleted || status == models.JobError
}
