package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type workerStatus interface {
	InFlight() int64
	Draining() bool
}

type rosterStatus interface {
	Len() int
}

// newHealthRouter serves liveness on /healthz and readiness on /readyz.
// Readiness fails once draining starts so the orchestrator stops routing.
func newHealthRouter(workers workerStatus, roster rosterStatus) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/readyz", func(c *gin.Context) {
		body := gin.H{
			"in_flight":    workers.InFlight(),
			"roster_users": roster.Len(),
		}
		if workers.Draining() {
			body["status"] = "draining"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["status"] = "ready"
		c.JSON(http.StatusOK, body)
	})

	return r
}

func newHealthServer(addr string, workers workerStatus, roster rosterStatus) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           newHealthRouter(workers, roster),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
