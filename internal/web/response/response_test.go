package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-1")
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(w, r, http.StatusUnprocessableEntity, "descriptor rejected", "parameter 0: bad id")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, contentTypeJSON, w.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unprocessable_entity", body.Error)
	assert.Equal(t, "descriptor rejected", body.Message)
	assert.Equal(t, "req-1", body.RequestID)
	assert.Equal(t, []string{"parameter 0: bad id"}, body.Details)
}

func TestRaw(t *testing.T) {
	w := httptest.NewRecorder()
	Raw(w, http.StatusOK, []byte(`[]`))
	assert.Equal(t, `[]`, w.Body.String())
	assert.Equal(t, contentTypeJSON, w.Header().Get("Content-Type"))
}

func TestErrorCodeFromStatus(t *testing.T) {
	assert.Equal(t, "not_found", errorCodeFromStatus(http.StatusNotFound))
	assert.Equal(t, "error", errorCodeFromStatus(999))
}
