package api

import (
	"net/http"
	"strconv"

	"signal-core/internal/driver"

	"github.com/gin-gonic/gin"
)

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"version":        s.Meta.Version,
		"use_mock_feed":  s.Meta.UseMockFeed,
		"testnet":        s.Meta.Testnet,
		"runs":           len(s.Manager.List()),
		"events_dropped": s.Bus.Dropped(),
	})
}

func (s *Server) listRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.Manager.List()})
}

func (s *Server) getRun(c *gin.Context) {
	info, ok := s.Manager.Info(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "RUN_NOT_FOUND",
			"error": "no run with that id",
		})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) startRun(c *gin.Context) {
	var spec driver.RunSpec
	if err := c.BindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	if err := s.Manager.Start(c.Request.Context(), spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "RUN_REJECTED",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": spec.ID})
}

func (s *Server) stopRun(c *gin.Context) {
	if err := s.Manager.Stop(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "RUN_NOT_FOUND",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "state": "stopped"})
}

func (s *Server) cancelScheduled(c *gin.Context) {
	res, err := s.Manager.CancelScheduled(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "RUN_NOT_FOUND",
			"error": err.Error(),
		})
		return
	}
	if res == nil {
		c.JSON(http.StatusConflict, gin.H{
			"code":  "NOTHING_SCHEDULED",
			"error": "run has no scheduled signal to cancel",
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) suspendRun(c *gin.Context) {
	if err := s.Manager.Suspend(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "RUN_NOT_FOUND",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "suspended": true})
}

func (s *Server) resumeRun(c *gin.Context) {
	if err := s.Manager.Resume(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "RUN_NOT_FOUND",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "suspended": false})
}

func (s *Server) getTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	trades, err := s.DB.Queries().ListClosedTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.DB.Queries().Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}
