package controllers

import (
	"net/http"
	"strconv"
	"time"

	"conference-submission-api/config"
	"conference-submission-api/services"

	"github.com/gin-gonic/gin"
)

// GetUpdates serves the polling change feed. The caller passes its last
// server_time as ?since=<unix seconds>; omitting it returns everything up to
// the feed cap.
func GetUpdates(c *gin.Context) {
	since := time.Unix(0, 0)
	if raw := c.Query("since"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		since = time.Unix(secs, 0)
	}

	svc := services.NewChangeFeedService(config.DB)
	result, err := svc.Since(since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load updates"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"submissions": result.Submissions,
		"payments":    result.Payments,
		"server_time": result.ServerTime.Unix(),
	})
}
