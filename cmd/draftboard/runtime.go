package main

import (
	"context"
	"runtime"
	"time"

	app "github.com/okian/draftboard/internal/app"
	"github.com/okian/draftboard/pkg/metrics"
)

const (
	systemMetricsInterval = 10 * time.Second
	cacheMetricsInterval  = 30 * time.Second
)

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startCacheMetricsUpdater keeps the per-pair cache status gauges current
// even when no request touches a pair.
func startCacheMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(cacheMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateCacheMetrics(ctx, svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

func updateCacheMetrics(ctx context.Context, svc *app.Service) {
	for _, st := range svc.Status(ctx) {
		metrics.UpdateCacheStatus(string(st.Group), string(st.Format), st.Status.Weight())
	}
}
