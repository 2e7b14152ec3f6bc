package admin

import (
	"encoding/base64"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/danmuck/rsensor/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

type broadcastRequest struct {
	Name string `json:"name" binding:"required"`
}

type cameraRequest struct {
	Format string `json:"format"` // empty uses the robot's cameraformat
	Data   string `json:"data" binding:"required"` // base64
}

type sensorEntry struct {
	Name  string         `json:"name"`
	Kind  string         `json:"kind"`
	Value protocol.Value `json:"value"`
}

func (a *Admin) registerRoutes() {
	r := a.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(a.appeared).String(),
			"component": a.cfg.Name,
			"version":   version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		ready := a.backend.IsRunning()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":     ready,
			"uptime":    time.Since(a.appeared).String(),
			"component": a.cfg.Name,
			"version":   version,
		})
	})

	r.GET("/peers", func(c *gin.Context) {
		peers := a.backend.Peers()
		c.JSON(http.StatusOK, gin.H{"count": len(peers), "peers": peers})
	})

	r.GET("/sensors", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sensors": sensorEntries(a.backend.Sensors())})
	})

	r.POST("/sensors", func(c *gin.Context) {
		var values map[string]protocol.Value
		if err := c.ShouldBindJSON(&values); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(values) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no sensor values"})
			return
		}
		if err := a.backend.SensorUpdate(values); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "updated": len(values)})
	})

	r.POST("/broadcast", func(c *gin.Context) {
		var req broadcastRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := a.backend.SendBroadcast(strings.TrimSpace(req.Name)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/camera", func(c *gin.Context) {
		var req cameraRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		img, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "data is not base64"})
			return
		}
		if err := a.backend.Camera(req.Format, img); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, server.ErrInvalidFormat) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "bytes": len(img)})
	})

	r.GET("/ws", a.handleWatch)
}

func sensorEntries(values map[string]protocol.Value) []sensorEntry {
	out := make([]sensorEntry, 0, len(values))
	for name, v := range values {
		out = append(out, sensorEntry{Name: name, Kind: v.Kind().String(), Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
