package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quizhall/server/internal/v1/analytics"
	"github.com/quizhall/server/internal/v1/logging"
	"github.com/quizhall/server/internal/v1/snapshot"
)

// Handler manages the liveness and readiness endpoints.
type Handler struct {
	snapshots *snapshot.Store
	mirror    *analytics.Mirror
}

// NewHandler creates a health check handler. mirror may be nil when Redis
// is disabled.
func NewHandler(snapshots *snapshot.Store, mirror *analytics.Mirror) *Handler {
	return &Handler{snapshots: snapshots, mirror: mirror}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles GET /health/live.
// Returns 200 if the process is alive (no dependency checks).
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready.
// Returns 200 only if the snapshot directory is writable and, when the
// analytics mirror is configured, Redis answers a ping. Returns 503
// otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	snapshotStatus := h.checkSnapshotDir()
	checks["snapshot_dir"] = snapshotStatus
	if snapshotStatus != "healthy" {
		allHealthy = false
	}

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkSnapshotDir() string {
	if h.snapshots == nil {
		return "healthy"
	}
	if err := h.snapshots.Writable(); err != nil {
		logging.Error(context.Background(), "Snapshot directory health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

func (h *Handler) checkRedis(ctx context.Context) string {
	// Single-instance mode without the mirror counts as healthy.
	if h.mirror == nil {
		return "healthy"
	}
	if err := h.mirror.Ping(ctx); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}
