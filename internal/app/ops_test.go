package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/phonepass/internal/store/memory"
)

type downStore struct{ *memory.Store }

func (downStore) Ping(context.Context) error { return errors.New("db down") }

func TestOpsHandler(t *testing.T) {
	a, _, _, reg := build(t, nil)
	_, err := a.Services.OTP.RequestChallenge(context.Background(), "+16502530000")
	require.NoError(t, err)
	h := a.OpsHandler(reg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `phonepass_otp_challenges_total{result="ok"} 1`))

	a.Store = downStore{memory.New()}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")
}
