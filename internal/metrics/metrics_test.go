package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authservice/internal/apperrors"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	t.Run("observe auth", func(t *testing.T) {
		m := New(prometheus.NewRegistry())

		m.ObserveAuth(OpLogin, nil)
		m.ObserveAuth(OpLogin, apperrors.ErrInvalidCredentials)
		m.ObserveAuth(OpLogin, errors.Join(errors.New("secret details"), apperrors.ErrInvalidCredentials))
		m.ObserveAuth(OpRefresh, apperrors.ErrInvalidRefreshToken)

		require.Equal(t, 1.0, testutil.ToFloat64(m.AuthOperationsTotal.WithLabelValues(OpLogin, "ok")))
		require.Equal(t, 2.0, testutil.ToFloat64(m.AuthOperationsTotal.WithLabelValues(OpLogin, "invalid_credentials")))
		require.Equal(t, 1.0, testutil.ToFloat64(m.AuthOperationsTotal.WithLabelValues(OpRefresh, "invalid_refresh_token")))
	})

	t.Run("instrument handler", func(t *testing.T) {
		m := New(prometheus.NewRegistry())
		h := m.Instrument("login", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))

		require.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("login", "post", "401")))
	})

	t.Run("expose", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := New(reg)
		m.ObserveAuth(OpLogout, nil)

		rec := httptest.NewRecorder()
		Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		body, err := io.ReadAll(rec.Result().Body)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, strings.Contains(string(body), `authservice_auth_operations_total{operation="logout",result="ok"} 1`))
	})

	t.Run("register twice panics", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		New(reg)

		require.Panics(t, func() { New(reg) })
	})
}
