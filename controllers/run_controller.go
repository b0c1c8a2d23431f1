package controllers

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/services"
)

// TriggerFunc launches one batch run in the background and returns its run id
type TriggerFunc func(variant string, shards int) (string, error)

// RunController handles batch run inspection and triggering
type RunController struct {
	runs    *services.RunService
	trigger TriggerFunc
}

// NewRunController creates a new run controller
func NewRunController(db *gorm.DB, trigger TriggerFunc) *RunController {
	return &RunController{
		runs:    services.NewRunService(db),
		trigger: trigger,
	}
}

// GetRuns returns recent batch runs
// GET /api/v1/runs
func (rc *RunController) GetRuns(c *gin.Context) {
	variant := c.Query("variant")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	runs, err := rc.runs.ListRuns(variant, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs})
}

// GetRun returns one run with its shard results and summary
// GET /api/v1/runs/:run_id
func (rc *RunController) GetRun(c *gin.Context) {
	runID := c.Param("run_id")

	run, shards, summary, err := rc.runs.GetRun(runID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch run"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":     run,
		"shards":  shards,
		"summary": summary,
	})
}

// GetShardLog returns the tail of one shard's log file
// GET /api/v1/runs/:run_id/shards/:index/log
func (rc *RunController) GetShardLog(c *gin.Context) {
	runID := c.Param("run_id")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid shard index"})
		return
	}
	lines, _ := strconv.Atoi(c.DefaultQuery("lines", "100"))

	_, shards, _, err := rc.runs.GetRun(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	for _, shard := range shards {
		if shard.ShardIndex != index {
			continue
		}
		tail, err := tailFile(shard.LogPath, lines)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Log file unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run_id":      runID,
			"shard_index": index,
			"log_path":    shard.LogPath,
			"lines":       tail,
		})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Shard not found"})
}

// TriggerRun launches a batch run in the background
// POST /api/v1/runs
func (rc *RunController) TriggerRun(c *gin.Context) {
	var req struct {
		Variant string `json:"variant"`
		Shards  int    `json:"shards"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Variant == "" {
		req.Variant = "shortdb"
	}
	if req.Variant != "shortdb" && req.Variant != "longdb" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "variant must be shortdb or longdb"})
		return
	}

	runID, err := rc.trigger(req.Variant, req.Shards)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":  runID,
		"variant": req.Variant,
		"status":  "started",
	})
}

// tailFile returns the last n lines of a file
func tailFile(path string, n int) ([]string, error) {
	if n <= 0 {
		n = 100
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
