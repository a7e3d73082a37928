// Package health exposes the read-only liveness and metrics probes.
package health

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/render"

	"rfq-realtime/core"
)

// Status is the slice of the gateway the probes report on.
type Status interface {
	SessionCount() int
	BusAvailable() bool
}

// HandleHealth reports process uptime and cache size. No side effects.
func HandleHealth(cache core.Cache, status Status, startedAt time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"uptime":    time.Since(startedAt).Seconds(),
			"cache": map[string]any{
				"size": cache.Size(),
			},
			"sessions": status.SessionCount(),
			"bus":      status.BusAvailable(),
		})
	}
}

// HandleMetrics reports resource usage. No side effects.
func HandleMetrics(startedAt time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		render.JSON(w, r, map[string]any{
			"memory": map[string]any{
				"alloc":      m.Alloc,
				"totalAlloc": m.TotalAlloc,
				"sys":        m.Sys,
				"numGC":      m.NumGC,
			},
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(startedAt).Seconds(),
		})
	}
}
