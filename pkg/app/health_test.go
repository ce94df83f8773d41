package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"vaxslot/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func serveHealth(t *testing.T, store Pinger, path string) (int, HealthResponse) {
	t.Helper()
	router := httprouter.New()
	NewHealthHandler(store, "mongo", logger.Discard()).RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestHealthHandler(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("no primary") })
	up := pingFunc(func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		if !ok {
			return errors.New("ping without deadline")
		}
		return nil
	})

	code, resp := serveHealth(t, down, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)

	code, resp = serveHealth(t, up, "/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"mongo": "ok"}, resp.Checks)

	code, resp = serveHealth(t, down, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", resp.Status)
	assert.Equal(t, map[string]string{"mongo": "unreachable"}, resp.Checks)
}
