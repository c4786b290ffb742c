// Package api exposes the monitoring and control surface: run management,
// the trade journal, and a websocket event stream.
package api

import (
	"net/http"
	"time"

	"signal-core/internal/driver"
	"signal-core/internal/events"
	"signal-core/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the run manager and event bus.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Manager   *driver.Manager
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	UseMockFeed bool
	Testnet     bool
	Version     string
}

func NewServer(bus *events.Bus, database *db.Database, manager *driver.Manager, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Manager:   manager,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/health", s.health)
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/runs", s.listRuns)
		api.GET("/runs/:id", s.getRun)
		api.GET("/trades", s.getTrades)
		api.GET("/stats", s.getStats)

		api.POST("/auth/token", s.issueToken)

		// Control endpoints mutate run state and require auth.
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/runs", s.startRun)
			protected.DELETE("/runs/:id", s.stopRun)
			protected.POST("/runs/:id/cancel-scheduled", s.cancelScheduled)
			protected.POST("/runs/:id/suspend", s.suspendRun)
			protected.POST("/runs/:id/resume", s.resumeRun)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
