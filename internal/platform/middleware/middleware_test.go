package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membergate/pkg/testutil"
)

func TestRequestID(t *testing.T) {
	testutil.Given(t, "a request without a correlation id", func(t *testing.T) {
		var seen string
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		testutil.Then(t, "one is generated and echoed back", func(t *testing.T) {
			require.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get("X-Request-Id"))
		})
	})

	testutil.Given(t, "a proxy-supplied correlation id", func(t *testing.T) {
		var seen string
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "req-from-proxy")
		h.ServeHTTP(httptest.NewRecorder(), req)

		testutil.Then(t, "it is preserved", func(t *testing.T) {
			assert.Equal(t, "req-from-proxy", seen)
		})
	})
}

func TestRecovery(t *testing.T) {
	testutil.When(t, "a handler panics", func(t *testing.T) {
		h := Recovery(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		require.NotPanics(t, func() {
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		})

		testutil.Then(t, "the client gets a 500", func(t *testing.T) {
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
		})
	})
}

func TestTimeout(t *testing.T) {
	testutil.Given(t, "a bounded handler", func(t *testing.T) {
		var deadline time.Time
		var ok bool
		h := Timeout(50*time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deadline, ok = r.Context().Deadline()
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		testutil.Then(t, "the request context carries the deadline", func(t *testing.T) {
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 25*time.Millisecond)
		})
	})
}

func TestLoggerPreservesStatus(t *testing.T) {
	h := Logger(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
