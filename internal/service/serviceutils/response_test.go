package serviceutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("bad mode: %w", domain.ErrValidation), http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrRunInProgress, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", domain.ErrAuthExpired), http.StatusUnauthorized},
		{domain.ErrSyncDisabled, http.StatusUnauthorized},
		{domain.ErrQuotaExceeded, http.StatusTooManyRequests},
		{domain.ErrTransientNetwork, http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}


func TestResponseError_CarriesKind(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, ResponseError(c, http.StatusConflict, "Sync already running", domain.ErrRunInProgress))

	var resp GenericResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "run_in_progress", resp.ErrorKind)
	assert.Equal(t, domain.ErrRunInProgress.Error(), resp.Error)
}
