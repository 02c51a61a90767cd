package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPFromRequestPrefersForwarded(t *testing.T) {
	req := httptest.NewRequest("GET", "/state", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.7, 10.0.0.1")
	assert.Equal(t, "10.0.0.7", IPFromRequest(req))

	req = httptest.NewRequest("GET", "/state", nil)
	req.RemoteAddr = "192.168.1.4:5555"
	assert.Equal(t, "192.168.1.4", IPFromRequest(req))
}

func TestRequestIDFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/state", nil)
	req.Header.Set("X-Request-Id", "req-1")
	assert.Equal(t, "req-1", RequestIDFromRequest(req))

	req.Header.Del("X-Request-Id")
	assert.NotEmpty(t, RequestIDFromRequest(req))
}

func TestPlatformFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/state", nil)
	assert.Equal(t, "unknown", PlatformFromRequest(req))
	req.Header.Set("X-Client-Platform", " iOS ")
	assert.Equal(t, "ios", PlatformFromRequest(req))
}
