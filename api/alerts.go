package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/antedotee/mad-project-price-tracker/models"
)

// listAlerts returns a user's alerts, newest first. ?unread=true limits the
// list to unread ones.
func (s *Server) listAlerts(c *gin.Context) {
	unreadOnly := false
	if raw := c.Query("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unread must be a boolean"})
			return
		}
		unreadOnly = v
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	alerts, err := s.svc.Store.ListAlerts(ctx, c.Param("user_id"), unreadOnly)
	if err != nil {
		respondError(c, err, "failed to fetch alerts")
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, alerts)
}

// markAlertRead frees the alert's (search, product) pair for a new alert.
func (s *Server) markAlertRead(c *gin.Context) {
	ctx, cancel := s.storeCtx(c)
	defer cancel()
	alert, err := s.svc.Store.MarkAlertRead(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to mark alert read")
		return
	}
	c.JSON(http.StatusOK, alert)
}
