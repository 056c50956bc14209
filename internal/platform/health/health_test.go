package health

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	runID string
	err   error
}

func (f *fakeProbe) Name() string { return "fake" }

func (f *fakeProbe) Probe(context.Context) (string, error) { return f.runID, f.err }

func newChecker(p Probe) (*Checker, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewChecker(p, slog.New(slog.NewTextHandler(&buf, nil))), &buf
}

func TestCheckerTransitions(t *testing.T) {
	probe := &fakeProbe{runID: "aaa"}
	c, logs := newChecker(probe)
	ctx := context.Background()

	assert.Equal(t, StateHealthy, c.PerformCheck(ctx).State)

	probe.err = errors.New("connection refused")
	r := c.PerformCheck(ctx)
	assert.Equal(t, StateDegraded, r.State)
	assert.Contains(t, r.Error, "connection refused")
	assert.Contains(t, logs.String(), "降级")

	probe.err = nil
	r = c.PerformCheck(ctx)
	assert.Equal(t, StateHealthy, r.State)
	assert.Empty(t, r.Error)
	assert.Equal(t, 0, r.Restarts)

	probe.runID = "bbb"
	r = c.PerformCheck(ctx)
	assert.Equal(t, StateHealthy, r.State)
	assert.Equal(t, 1, r.Restarts)
	assert.Contains(t, logs.String(), "Redis重启")
}

func TestRedisProbe(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c, _ := newChecker(RedisProbe{RDB: rdb})
	assert.Equal(t, StateHealthy, c.PerformCheck(context.Background()).State)

	mr.Close()
	assert.Equal(t, StateDegraded, c.PerformCheck(context.Background()).State)
}

func TestHandlerStatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	probe := &fakeProbe{}
	c, _ := newChecker(probe)
	r := gin.New()
	r.GET("/healthz", c.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "fake", body.Backend)

	probe.err = errors.New("down")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
