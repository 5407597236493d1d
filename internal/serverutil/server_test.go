package serverutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	frerrs "github.com/jdholdren/feedreader/internal/errors"
)

type nameReq struct {
	Name string `json:"name"`
}

func (n nameReq) Validate() error {
	if n.Name == "" {
		return frerrs.Invalid("name", "is required")
	}
	return nil
}

func TestDecodeValid(t *testing.T) {
	got, err := DecodeValid[nameReq](strings.NewReader(`{"name": "feed"}`))
	require.NoError(t, err)
	assert.Equal(t, "feed", got.Name)

	_, err = DecodeValid[nameReq](strings.NewReader(`{"name": ""}`))
	var sErr *frerrs.Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, http.StatusUnprocessableEntity, sErr.Status)

	_, err = DecodeValid[nameReq](strings.NewReader(`not json`))
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, http.StatusUnprocessableEntity, sErr.Status)
}

func TestHandlerFuncE(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "structured error passes through",
			err:        frerrs.E(http.StatusConflict, "taken"),
			wantStatus: http.StatusConflict,
			wantMsg:    "taken",
		},
		{
			name:       "other errors are hidden",
			err:        errors.New("sql: connection refused at 10.0.0.3"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandlerFuncE(func(http.ResponseWriter, *http.Request) error {
				return tt.err
			}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantMsg, body["message"])
		})
	}
}

func TestErrRouter_NotFound(t *testing.T) {
	r := NewErrRouter()
	r.HandleFuncE("/things", func(w http.ResponseWriter, r *http.Request) error {
		return WriteJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodGet)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/things", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecover(t *testing.T) {
	h := Recover(AccessLogMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
