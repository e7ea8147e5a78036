package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizhall/server/internal/v1/analytics"
	"github.com/quizhall/server/internal/v1/snapshot"
)

func serve(h gin.HandlerFunc, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET(path, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLiveness_AlwaysAlive(t *testing.T) {
	h := NewHandler(nil, nil)

	w := serve(h.Liveness, "/health/live")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestReadiness_HealthyWithoutMirror(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir())
	require.NoError(t, err)
	h := NewHandler(store, nil)

	w := serve(h.Readiness, "/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "healthy", resp.Checks["snapshot_dir"])
	assert.Equal(t, "healthy", resp.Checks["redis"], "no mirror means single-instance mode")
}

func TestReadiness_UnavailableWhenSnapshotDirGone(t *testing.T) {
	dir := t.TempDir()
	store, err := snapshot.NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))
	h := NewHandler(store, nil)

	w := serve(h.Readiness, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp.Status)
	assert.Equal(t, "unhealthy", resp.Checks["snapshot_dir"])
}

func TestReadiness_ChecksRedisWhenMirrored(t *testing.T) {
	mr := miniredis.RunT(t)
	mirror, err := analytics.NewMirror(mr.Addr(), "")
	require.NoError(t, err)
	defer mirror.Close()

	store, err := snapshot.NewStore(t.TempDir())
	require.NoError(t, err)
	h := NewHandler(store, mirror)

	w := serve(h.Readiness, "/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Checks["redis"])
}
