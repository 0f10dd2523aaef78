package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteJSON(w, http.StatusOK, map[string]int{"n": 1}))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, w.Body.String())
}

func TestWriteJSON_EncodeError(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]interface{}{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to encode response")
	assert.Equal(t, http.StatusOK, goerr.Values(err)["status"])
	assert.Equal(t, http.StatusOK, w.Code)
}
