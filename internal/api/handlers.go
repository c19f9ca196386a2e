package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trial-progress-dashboard/internal/domain"
	"github.com/trial-progress-dashboard/internal/export"
	"github.com/trial-progress-dashboard/internal/ledger"
)

const maxRunsLimit = 500

// handleHealth reports liveness, whether a dashboard is available and, with
// a ledger database attached, the pool state.
func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
	}
	status := http.StatusOK

	if latest, err := s.dashboards.Latest(); err == nil {
		body["dashboard"] = gin.H{
			"ready":       true,
			"run_id":      latest.RunID,
			"as_of":       latest.Dashboard.AsOf,
			"computed_at": latest.ComputedAt,
			"from_cache":  latest.FromCache,
		}
	} else {
		body["dashboard"] = gin.H{"ready": false}
	}

	if s.database != nil {
		db := gin.H{"pool": s.database.Stats()}
		if err := s.database.Health(c.Request.Context()); err != nil {
			db["error"] = err.Error()
			body["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}
		body["database"] = db
	}

	c.JSON(status, body)
}

func (s *Server) handleDashboard(c *gin.Context) {
	latest, err := s.dashboards.Latest()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, latest)
}

func (s *Server) handleSection(c *gin.Context) {
	name := c.Param("section")
	data, err := s.dashboards.Section(name)
	if err != nil {
		respondError(c, err)
		return
	}
	latest, err := s.dashboards.Latest()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":  latest.RunID,
		"as_of":   latest.Dashboard.AsOf,
		"section": name,
		"data":    data,
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	snap, err := s.dashboards.Refresh(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":      snap.RunID,
		"as_of":       snap.Dashboard.AsOf,
		"digest":      snap.Digest,
		"from_cache":  snap.FromCache,
		"computed_at": snap.ComputedAt,
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit := ledger.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRunsLimit {
			respondError(c, domain.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", maxRunsLimit), raw))
			return
		}
		limit = n
	}

	runs, err := s.dashboards.Runs(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(runs), "runs": runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.dashboards.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleExport(c *gin.Context) {
	latest, err := s.dashboards.Latest()
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(latest.Dashboard, &buf); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(latest.Dashboard)))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}
