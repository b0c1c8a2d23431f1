package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/services"
)

// SignalController serves execution signal rows from the bar database
type SignalController struct {
	barDB *services.BarDB
}

// NewSignalController creates a new signal controller
func NewSignalController(barDB *services.BarDB) *SignalController {
	return &SignalController{barDB: barDB}
}

// GetLatestSignals returns the most recent execution signals for a horizon
// GET /api/v1/signals
func (sc *SignalController) GetLatestSignals(c *gin.Context) {
	if sc.barDB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Bar database not available"})
		return
	}

	variant := c.DefaultQuery("variant", "shortdb")
	if variant != "shortdb" && variant != "longdb" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "variant must be shortdb or longdb"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	signals, err := sc.barDB.LatestSignals(variant, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch signals"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"variant": variant,
		"count":   len(signals),
		"data":    signals,
	})
}
