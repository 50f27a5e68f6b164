package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/medflow/medflow-clinic/pkg/actor"
	"github.com/medflow/medflow-clinic/pkg/auth"
	"github.com/medflow/medflow-clinic/pkg/config"
	"github.com/stretchr/testify/require"
)

// TestJWTConfig is the token configuration used by HTTP tests
var TestJWTConfig = config.JWTConfig{
	Secret:       "test-secret",
	AccessExpiry: 15 * time.Minute,
	Issuer:       "clinic-test",
}

// NewHTTPRequest builds a request with body encoded as JSON
func NewHTTPRequest(method, path string, body interface{}) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(MustJSONBytes(body))
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// BearerToken signs an access token for a with TestJWTConfig
func BearerToken(t *testing.T, a *actor.Actor) string {
	t.Helper()
	tok, err := auth.NewManager(&TestJWTConfig).GenerateAccessToken(&auth.StaffInfo{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		Role:        a.Role,
		Permissions: a.Permissions,
		TenantID:    a.TenantID,
		FacilityID:  a.FacilityID,
	})
	require.NoError(t, err)
	return tok.AccessToken
}

// WithBearer authenticates req as a
func WithBearer(t *testing.T, req *http.Request, a *actor.Actor) *http.Request {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+BearerToken(t, a))
	return req
}

// ExecuteRequest serves req on handler and returns the recorder
func ExecuteRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// AssertStatus fails the test when the response code differs
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	require.Equal(t, expected, rr.Code, "unexpected status, body: %s", rr.Body.String())
}

// ParseJSONBody decodes the response body into target
func ParseJSONBody(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), target), "body: %s", rr.Body.String())
}

// ContextWithTimeout returns a context cancelled when the test ends
func ContextWithTimeout(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx, cancel
}

// SkipIfShort skips integration tests under -short
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// MustJSONBytes marshals v or panics
func MustJSONBytes(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// PtrString returns a pointer to s
func PtrString(s string) *string {
	return &s
}
