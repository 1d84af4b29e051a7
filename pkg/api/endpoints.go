// Package api holds the Hubble RPC surface shared by the SDK clients: endpoint
// names, base URL resolution, and the error taxonomy for platform responses.
package api

import (
	"fmt"
	"os"
	"strings"
)

// Hubble API v2 treats every endpoint as an RPC name appended to the base URL.
const (
	EndpointAuthorize        = "user.identity.authorize"
	EndpointProxiedAuthorize = "user.identity.proxiedAuthorize"
	EndpointGrant            = "user.identity.grant.auto"
	EndpointWhoami           = "user.identity.whoami"
	EndpointSessionDismiss   = "user.session.dismiss"

	EndpointCreatePAT = "user.pat.create"
	EndpointListPATs  = "user.pat.list"
	EndpointDeletePAT = "user.pat.delete"

	EndpointUploadArtifact      = "artifact.upload"
	EndpointArtifactDownloadURL = "artifact.getDownloadUrl"
	EndpointDeleteArtifact      = "artifact.delete"
	EndpointArtifactDetail      = "artifact.getDetail"
	EndpointListArtifacts       = "artifact.list"

	EndpointImpersonateUser  = "user.m2m.impersonateUser"
	EndpointAuthorizedJWT    = "payment.app.getAuthorizedJWT"
	EndpointReportUsage      = "payment.app.reportUsage"
	EndpointUsageSummary     = "payment.app.getSummary"
	EndpointGetSubscriptions = "payment.app.getSubscriptions"
)

// JWKSPath is the unauthenticated well-known key set path, relative to the domain.
const JWKSPath = "v2/.well-known/jwks.json"

// RegistryEnv overrides the platform base URL, primarily for staging and tests.
const RegistryEnv = "JINA_HUBBLE_REGISTRY"

const defaultRegistry = "https://api.hubble.jina.ai"

// DomainURL returns the platform origin with a trailing slash, honoring the
// registry override environment variable.
func DomainURL() string {
	domain := os.Getenv(RegistryEnv)
	if domain == "" {
		domain = defaultRegistry
	}
	return strings.TrimSuffix(domain, "/") + "/"
}

// BaseURL returns the RPC prefix all v2 endpoints are appended to.
func BaseURL() string {
	return DomainURL() + "v2/rpc/"
}

// RPCURL returns the full URL for a named RPC endpoint.
func RPCURL(endpoint string) string {
	return BaseURL() + endpoint
}

// JWKSURL returns the full URL of the well-known JWKS document.
func JWKSURL() string {
	return DomainURL() + JWKSPath
}

// Response is the envelope every v2 RPC endpoint answers with. Data is left
// raw so each client can decode the shape it expects.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// String renders the envelope for diagnostics without dumping Data.
func (r Response) String() string {
	return fmt.Sprintf("code=%d message=%q", r.Code, r.Message)
}
