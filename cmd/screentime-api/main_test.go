package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/screentime-api/pkg/config"
	"github.com/noah-isme/screentime-api/pkg/database"
)

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *struct{ Code string } `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func testConfig() *config.Config {
	return &config.Config{
		Env:       config.EnvDevelopment,
		APIPrefix: "/api/v1",
		Database:  config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: ":memory:"},
		Scoring: config.ScoringConfig{
			StartingPoints:        10,
			PointStep:             0.5,
			StreakBonus:           0.5,
			StreakBonusPeriod:     30,
			UsageToleranceMinutes: 5,
			DefaultDailyLimit:     120,
		},
		Sweep:   config.SweepConfig{Enabled: true, Workers: 1, BufferSize: 8, Retries: 1, RetryDelay: 10 * time.Millisecond},
		Reports: config.ReportsConfig{Enabled: true},
	}
}

func setupServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()

	db, err := database.Open(context.Background(), cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	app := buildApp(cfg, db, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	app.sweep.Start(ctx)
	t.Cleanup(func() {
		app.sweep.Stop()
		cancel()
	})
	return newRouter(cfg, app, zap.NewNop())
}

func call(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestUsageFlowThroughRouter(t *testing.T) {
	r := setupServer(t)

	w, env := call(t, r, http.MethodPost, "/api/v1/classes", map[string]interface{}{
		"teacher_id": "t-1",
		"name":       "7A",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var class struct {
		ID                string `json:"id"`
		DailyLimitMinutes int    `json:"daily_limit_minutes"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &class))
	assert.Equal(t, 120, class.DailyLimitMinutes)

	w, _ = call(t, r, http.MethodPost, "/api/v1/classes/"+class.ID+"/apps", map[string]string{"app_name": "TikTok", "app_type": "blocked"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = call(t, r, http.MethodPost, "/api/v1/students", map[string]interface{}{"full_name": "Ana", "class_id": class.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var student struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &student))

	w, env = call(t, r, http.MethodPost, "/api/v1/students/"+student.ID+"/usage", map[string]interface{}{
		"date":            "2024-03-06",
		"total_minutes":   60,
		"per_app_minutes": map[string]int{"Duolingo": 30},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var evaluation struct {
		Verdict string `json:"verdict"`
		Outcome string `json:"outcome"`
		Ledger  struct {
			Points float64 `json:"points"`
		} `json:"ledger"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &evaluation))
	assert.Equal(t, "COMPLIANT", evaluation.Verdict)
	assert.Equal(t, "applied", evaluation.Outcome)
	assert.InDelta(t, 10.5, evaluation.Ledger.Points, 1e-9)

	w, env = call(t, r, http.MethodPost, "/api/v1/usage/batch", map[string]interface{}{
		"events": []map[string]interface{}{
			{"student_id": student.ID, "date": "2024-03-07", "total_minutes": 40},
		},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		_, env := call(t, r, http.MethodGet, "/api/v1/students/"+student.ID+"/ledger", nil)
		var ledger struct {
			Points float64 `json:"points"`
		}
		return json.Unmarshal(env.Data, &ledger) == nil && ledger.Points > 10.9
	}, 2*time.Second, 20*time.Millisecond)

	w, env = call(t, r, http.MethodGet, "/api/v1/classes/"+class.ID+"/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var dashboard struct {
		StudentCount  int     `json:"student_count"`
		AveragePoints float64 `json:"average_points"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &dashboard))
	assert.Equal(t, 1, dashboard.StudentCount)
	assert.InDelta(t, 11.0, dashboard.AveragePoints, 1e-9)
	assert.NotEmpty(t, env.Meta["request_id"])

	w, _ = call(t, r, http.MethodGet, "/api/v1/classes/"+class.ID+"/report?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Body.String(), "Ana,11.0,")
}

func TestRouterErrorsAndOps(t *testing.T) {
	r := setupServer(t)

	w, env := call(t, r, http.MethodPost, "/api/v1/students/missing/usage", map[string]interface{}{"date": "2024-03-06", "total_minutes": 10})
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNKNOWN_STUDENT", env.Error.Code)

	w, env = call(t, r, http.MethodPost, "/api/v1/classes", map[string]interface{}{"teacher_id": "t-1", "name": "7B", "daily_limit_minutes": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_CONFIG", env.Error.Code)

	w, _ = call(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = call(t, r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = call(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `path="/api/v1/students/:id/usage"`)
}
