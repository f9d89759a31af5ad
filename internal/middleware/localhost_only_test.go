package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestIsLocalhost(t *testing.T) {
	assert.True(t, isLocalhost("127.0.0.1"))
	assert.True(t, isLocalhost("::1"))
	assert.True(t, isLocalhost("localhost"))
	assert.False(t, isLocalhost("10.0.0.5"))
	assert.False(t, isLocalhost("203.0.113.9"))
}

func TestIsAllowedIP(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	l := NewLocalhostOnly(logger, []string{"203.0.113.9", "10.1.0.0/16"})

	assert.True(t, l.isAllowedIP("127.0.0.1"))
	assert.True(t, l.isAllowedIP("203.0.113.9"))
	assert.True(t, l.isAllowedIP("10.1.42.7"))
	assert.False(t, l.isAllowedIP("10.2.0.1"))
	assert.False(t, l.isAllowedIP("198.51.100.1"))

	// Empty whitelist: localhost only.
	bare := NewLocalhostOnly(logger, nil)
	assert.True(t, bare.isAllowedIP("::1"))
	assert.False(t, bare.isAllowedIP("203.0.113.9"))
}

func TestRestrictBlocksRemoteIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	r := gin.New()
	r.Use(NewLocalhostOnly(logger, nil).Restrict())
	r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("GET", "/admin", nil)
	req.RemoteAddr = "203.0.113.9:50000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "IP_NOT_ALLOWED")
}

func TestRestrictAllowsLocalhost(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	r := gin.New()
	r.Use(NewLocalhostOnly(logger, nil).Restrict())
	r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("GET", "/admin", nil)
	req.RemoteAddr = "127.0.0.1:50000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
