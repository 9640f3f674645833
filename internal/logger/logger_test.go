package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRejectsUnknownLevel(t *testing.T) {
	err := Setup(Config{Level: "shouting"})
	assert.Error(t, err)
}

func TestRequestLoggerWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(Config{Level: "info", Format: "json", Output: &buf}))

	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Ctx(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/teapot", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	assert.Equal(t, "req-123", inner["request_id"])

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	assert.Equal(t, "http request", entry["message"])
	assert.Equal(t, "/teapot", entry["path"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, float64(len("short and stout")), entry["bytes"])
}

func TestRequestLoggerGeneratesRequestID(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(Config{Format: "json", Output: &buf}))

	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}
