package errors_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	frerrs "github.com/jdholdren/feedreader/internal/errors"
)

func TestEConstructor(t *testing.T) {
	got := frerrs.E(
		"something went wrong",
		frerrs.Detail{Field: "name", Error: "was bad"},
		http.StatusBadRequest,
	)
	want := &frerrs.Error{
		Err: errors.New("something went wrong"),
		Details: []frerrs.Detail{
			{Field: "name", Error: "was bad"},
		},
		Status: http.StatusBadRequest,
	}

	assert.Equal(t, want, got)
}

func TestEDefaultsToInternal(t *testing.T) {
	got := frerrs.E()

	assert.Equal(t, http.StatusInternalServerError, got.Status)
}

func TestMarshalJSON(t *testing.T) {
	byts, err := json.Marshal(frerrs.E(http.StatusConflict, "conflict", frerrs.Detail{Field: "feed_url", Error: "already exists"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"message": "conflict",
		"details": [{"field": "feed_url", "error": "already exists"}],
		"status": 409
	}`, string(byts))

	byts, err = json.Marshal(frerrs.E(http.StatusNotFound))
	require.NoError(t, err)
	assert.JSONEq(t, `{"message": "Not Found", "details": [], "status": 404}`, string(byts))
}

func TestRoundTripAndUnwrap(t *testing.T) {
	sentinel := errors.New("underlying")
	wrapped := frerrs.E(sentinel, http.StatusBadGateway)
	assert.ErrorIs(t, wrapped, sentinel)

	byts, err := json.Marshal(frerrs.Invalid("limit", "must be between 1 and 100"))
	require.NoError(t, err)

	var got frerrs.Error
	require.NoError(t, json.Unmarshal(byts, &got))
	assert.Equal(t, http.StatusUnprocessableEntity, got.Status)
	assert.Equal(t, []frerrs.Detail{{Field: "limit", Error: "must be between 1 and 100"}}, got.Details)
}
