package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SlpAus/group-reputation-backend/internal/platform/config"
	"github.com/SlpAus/group-reputation-backend/internal/platform/health"
	"github.com/SlpAus/group-reputation-backend/internal/platform/logging"
	"github.com/SlpAus/group-reputation-backend/internal/scoring"
	"github.com/SlpAus/group-reputation-backend/internal/user"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRouter(t *testing.T, adminToken string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	reg, err := user.NewGormRegistry(db)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		Server: config.ServerConfig{
			Cors:      config.CorsConfig{AllowedOrigins: []string{"http://localhost:3000"}},
			RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		},
		Admin: config.AdminConfig{Token: adminToken},
	}
	return NewRouter(Deps{
		Config:  cfg,
		Engine:  scoring.NewEngine(reg, scoring.WithLogger(log)),
		Checker: health.NewChecker(health.SQLProbe{DB: db}, log),
		Log:     log,
	})
}

func serve(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminRoutesDisabledWithoutToken(t *testing.T) {
	r := setupRouter(t, "")
	w := serve(r, http.MethodPost, "/api/admin/replenish", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	r := setupRouter(t, "s3cret")

	w := serve(r, http.MethodPost, "/api/admin/close-week", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodPost, "/api/admin/close-week", "", map[string]string{AdminTokenHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodPost, "/api/admin/close-week", "", map[string]string{AdminTokenHeader: "s3cret"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"hasWinner":false`)

	w = serve(r, http.MethodPost, "/api/admin/replenish", "", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVoteRoundTripThroughRouter(t *testing.T) {
	r := setupRouter(t, "")

	body := `{"voter":{"id":1,"name":"alice"},"target":{"id":2,"name":"bob"},"direction":"up"}`
	w := serve(r, http.MethodPost, "/api/votes", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"accepted":true`)
	assert.NotEmpty(t, w.Header().Get(logging.RequestIDHeader))

	w = serve(r, http.MethodGet, "/api/rankings/reputation", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"displayName":"bob"`)

	w = serve(r, http.MethodGet, "/api/users/1/stats?name=alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"votesToNextLevel":1`)
}

func TestInfrastructureRoutes(t *testing.T) {
	r := setupRouter(t, "")

	w := serve(r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"backend":"sql"`)

	w = serve(r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodOptions, "/api/votes", "", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
