package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jina-ai/hubble-go/pkg/api"
)

// fakePlatform answers the RPC endpoints the client exercises and records the
// last request per endpoint.
type fakePlatform struct {
	server *httptest.Server

	lastBody    map[string][]byte
	lastHeaders map[string]http.Header

	whoamiStatus int
	failStatus   int
	failEndpoint string
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	p := &fakePlatform{
		lastBody:     make(map[string][]byte),
		lastHeaders:  make(map[string]http.Header),
		whoamiStatus: http.StatusOK,
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePlatform) handle(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, "/")
	body, _ := io.ReadAll(r.Body)
	p.lastBody[endpoint] = body
	p.lastHeaders[endpoint] = r.Header.Clone()

	if endpoint == p.failEndpoint {
		w.WriteHeader(p.failStatus)
		json.NewEncoder(w).Encode(api.Response{Code: p.failStatus, Message: "nope"})
		return
	}

	switch endpoint {
	case api.EndpointWhoami:
		w.WriteHeader(p.whoamiStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"_id": "user-1", "nickname": "somebody"},
		})
	case api.EndpointCreatePAT:
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"token": "PAT_VALUE"},
		})
	case api.EndpointListPATs:
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"personal_access_tokens": []map[string]any{
					{"_id": "pat-1", "name": "ci", "type": "pat"},
					{"_id": "pat-2", "name": "laptop", "type": "pat"},
				},
			},
		})
	case api.EndpointDeletePAT, api.EndpointDeleteArtifact:
		json.NewEncoder(w).Encode(api.Response{Code: http.StatusOK})
	case api.EndpointUploadArtifact:
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"_id": "artifact-1", "name": "model.bin"},
		})
	case api.EndpointArtifactDownloadURL:
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"download": p.server.URL + "/files/model.bin"},
		})
	case api.EndpointArtifactDetail:
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"_id": "artifact-1", "public": true},
		})
	case api.EndpointListArtifacts:
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"artifacts": []map[string]any{{"_id": "artifact-1"}, {"_id": "artifact-2"}},
			},
		})
	case "files/model.bin":
		fmt.Fprint(w, "ARTIFACT BYTES")
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, p *fakePlatform) *Client {
	t.Helper()
	c, err := New(context.Background(), "SOME_TOKEN", WithBaseURL(p.server.URL))
	require.NoError(t, err)
	return c
}

func TestNewValidatesCredential(t *testing.T) {
	p := newFakePlatform(t)
	c := newTestClient(t, p)
	require.NotNil(t, c)

	auth := p.lastHeaders[api.EndpointWhoami].Get("Authorization")
	assert.Equal(t, "token SOME_TOKEN", auth)
}

func TestNewRejectsBadCredential(t *testing.T) {
	p := newFakePlatform(t)
	p.whoamiStatus = http.StatusUnauthorized

	_, err := New(context.Background(), "BAD_TOKEN", WithBaseURL(p.server.URL))
	require.Error(t, err)
	assert.True(t, api.IsAuthenticationFailed(err))
}

func TestCreatePAT(t *testing.T) {
	p := newFakePlatform(t)
	c := newTestClient(t, p)

	pat, err := c.CreatePAT(context.Background(), "ci", 30)
	require.NoError(t, err)
	assert.Equal(t, "PAT_VALUE", pat.Value)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(p.lastBody[api.EndpointCreatePAT], &sent))
	assert.Equal(t, "ci", sent["name"])
	assert.EqualValues(t, 30, sent["expirationDays"])
}

func TestListPATs(t *testing.T) {
	p := newFakePlatform(t)
	c := newTestClient(t, p)

	pats, err := c.ListPATs(context.Background())
	require.NoError(t, err)
	require.Len(t, pats, 2)
	assert.Equal(t, "ci", pats[0].Name)
}

func TestDeletePAT(t *testing.T) {
	p := newFakePlatform(t)
	c := newTestClient(t, p)

	require.NoError(t, c.DeletePAT(context.Background(), "pat-1"))

	var sent map[string]any
	require.NoError(t, json.Unmarshal(p.lastBody[api.EndpointDeletePAT], &sent))
	assert.Equal(t, "pat-1", sent["id"])
}

func TestRequestsCarryCorrelationID(t *testing.T) {
	p := newFakePlatform(t)
	c := newTestClient(t, p)

	_, err := c.ListPATs(context.Background())
	require.NoError(t, err)

	id := p.lastHeaders[api.EndpointListPATs].Get(SessionIDHeader)
	_, parseErr := uuid.Parse(id)
	assert.NoError(t, parseErr, "correlation header must be a UUID, got %q", id)
}

func TestErrorKindMapping(t *testing.T) {
	p := newFakePlatform(t)
	c := newTestClient(t, p)
	p.failEndpoint = api.EndpointListPATs
	p.failStatus = http.StatusTooManyRequests

	_, err := c.ListPATs(context.Background())
	require.Error(t, err)

	var platformErr *api.PlatformError
	require.ErrorAs(t, err, &platformErr)
	assert.Equal(t, api.KindRateLimited, platformErr.Kind())
	assert.Equal(t, "nope", platformErr.Message)
}

func TestUnauthorizedBecomesAuthenticationFailure(t *testing.T) {
	p := newFakePlatform(t)
	c := newTestClient(t, p)
	p.failEndpoint = api.EndpointArtifactDetail
	p.failStatus = http.StatusUnauthorized

	_, err := c.ArtifactInfo(context.Background(), "artifact-1")
	assert.True(t, api.IsAuthenticationFailed(err))
}

func TestUploadArtifact(t *testing.T) {
	p := newFakePlatform(t)
	c := newTestClient(t, p)

	src := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(src, []byte("ARTIFACT BYTES"), 0o600))

	artifact, err := c.UploadArtifact(context.Background(), src, UploadOptions{
		MetaData: map[string]any{"framework": "torch"},
		Public:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "artifact-1", artifact.ID)

	contentType := p.lastHeaders[api.EndpointUploadArtifact].Get("Content-Type")
	assert.Contains(t, contentType, "multipart/form-data")

	sent := string(p.lastBody[api.EndpointUploadArtifact])
	assert.Contains(t, sent, `name="upload_file"; filename="model.bin"`)
	assert.Contains(t, sent, `name="public"`)
	assert.Contains(t, sent, "torch")
}

func TestDownloadArtifact(t *testing.T) {
	p := newFakePlatform(t)
	c := newTestClient(t, p)

	dest := t.TempDir()
	local, err := c.DownloadArtifact(context.Background(), "artifact-1", dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "model.bin"), local)

	content, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "ARTIFACT BYTES", string(content))
}

func TestListArtifacts(t *testing.T) {
	p := newFakePlatform(t)
	c := newTestClient(t, p)

	artifacts, err := c.ListArtifacts(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, artifacts, 2)
}

func TestUserInfo(t *testing.T) {
	p := newFakePlatform(t)
	c := newTestClient(t, p)

	profile, err := c.UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "somebody", profile.Nickname)
}
