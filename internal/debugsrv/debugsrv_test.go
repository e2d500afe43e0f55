package debugsrv

import (
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdptech/cdpclient/internal/metrics"
	"github.com/cdptech/cdpclient/internal/tree"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("127.0.0.1:%d", 20000+time.Now().Nanosecond()%20000)
}

func startServer(t *testing.T, snapshot func() *tree.Node, token string) (*Server, string) {
	t.Helper()
	addr := freeAddr(t)
	collector := metrics.New()
	srv, err := New(addr, collector, snapshot, token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	time.Sleep(20 * time.Millisecond)
	return srv, addr
}

func TestHealthzRequiresNoAuth(t *testing.T) {
	_, addr := startServer(t, func() *tree.Node { return nil }, "")
	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsRequiresNoAuth(t *testing.T) {
	_, addr := startServer(t, func() *tree.Node { return nil }, "")
	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "cdpclient_connected")
}

func TestTreeRouteDisabledWithoutToken(t *testing.T) {
	_, addr := startServer(t, func() *tree.Node { return nil }, "")
	resp, err := http.Get("http://" + addr + "/tree")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTreeRouteRejectsMissingOrBadToken(t *testing.T) {
	_, addr := startServer(t, func() *tree.Node { return nil }, "supersecret")

	resp, err := http.Get("http://" + addr + "/tree")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, "http://"+addr+"/tree", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestTreeRouteAcceptsValidToken(t *testing.T) {
	const secret = "supersecret"
	_, addr := startServer(t, func() *tree.Node { return nil }, secret)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, "http://"+addr+"/tree", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "root not yet resolved")
}
