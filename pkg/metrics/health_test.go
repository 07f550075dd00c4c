package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealthChecker() {
	healthChecker = &HealthChecker{
		components: make(map[string]componentHealth),
		startTime:  time.Now(),
	}
}

func TestUpdateComponentRegistersAndOverwrites(t *testing.T) {
	resetHealthChecker()

	UpdateComponent("monitoring", true, "")
	require.Len(t, healthChecker.components, 1)

	UpdateComponent("monitoring", false, "probe registry empty")
	comp := healthChecker.components["monitoring"]
	assert.False(t, comp.Healthy)
	assert.Equal(t, "probe registry empty", comp.Message)
}

func TestGetHealthAllHealthy(t *testing.T) {
	resetHealthChecker()
	UpdateComponent("monitoring", true, "")
	UpdateComponent("recovery", true, "")

	health := GetHealth()
	assert.Equal(t, "healthy", health.Status)
	assert.Len(t, health.Components, 2)
}

func TestGetHealthOneUnhealthy(t *testing.T) {
	resetHealthChecker()
	UpdateComponent("monitoring", true, "")
	UpdateComponent("notification", false, "smtp unreachable")

	health := GetHealth()
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "unhealthy: smtp unreachable", health.Components["notification"])
}

func TestGetReadinessAllReady(t *testing.T) {
	resetHealthChecker()
	for _, name := range criticalComponents {
		UpdateComponent(name, true, "")
	}

	readiness := GetReadiness()
	assert.Equal(t, "ready", readiness.Status)
}

func TestGetReadinessMissingCriticalComponent(t *testing.T) {
	resetHealthChecker()
	UpdateComponent("monitoring", true, "")

	readiness := GetReadiness()
	assert.Equal(t, "not_ready", readiness.Status)
	assert.NotEmpty(t, readiness.Message)
}

func TestHealthzHandler(t *testing.T) {
	resetHealthChecker()
	UpdateComponent("monitoring", true, "")

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	HealthzHandler()(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var health HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
}

func TestHealthzHandlerUnhealthyReturns503(t *testing.T) {
	resetHealthChecker()
	UpdateComponent("monitoring", false, "down")

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	HealthzHandler()(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyzHandlerNotReadyReturns503(t *testing.T) {
	resetHealthChecker()

	req := httptest.NewRequest("GET", "/readyz", nil)
	w := httptest.NewRecorder()
	ReadyzHandler()(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLivezHandlerAlwaysOK(t *testing.T) {
	resetHealthChecker()

	req := httptest.NewRequest("GET", "/livez", nil)
	w := httptest.NewRecorder()
	LivezHandler()(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "alive", body["status"])
	assert.NotEmpty(t, body["uptime"])
}

func TestStatusHandlerServesProviderOutput(t *testing.T) {
	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	StatusHandler(func() any {
		return map[string]string{"cluster_name": "test-cluster"}
	})(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "test-cluster", body["cluster_name"])
}
