package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jina-ai/hubble-go/pkg/api"
)

func TestSessionHeaders(t *testing.T) {
	h := NewSession("SOME_TOKEN").Headers()

	assert.Equal(t, "token SOME_TOKEN", h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, "utf-8", h.Get("Accept-Charset"))
}

func TestSessionValidateAcceptsLiveCredential(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(api.Response{Code: http.StatusOK})
	}))
	defer srv.Close()

	s := NewSession("SOME_TOKEN", WithSessionBaseURL(srv.URL))
	require.NoError(t, s.Validate(context.Background()))
	assert.Equal(t, "token SOME_TOKEN", gotAuth)
}

func TestSessionValidateRejectsDeadCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(api.Response{Code: http.StatusUnauthorized, Message: "token expired"})
	}))
	defer srv.Close()

	err := NewSession("STALE_TOKEN", WithSessionBaseURL(srv.URL)).Validate(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsAuthenticationFailed(err))

	var authErr *api.AuthenticationFailedError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Equal(t, "token expired", authErr.Message)
}
