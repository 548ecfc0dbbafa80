package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/service"
)

func TestRequireSessionJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := service.NewAuthService(&config.Config{JWTSecret: "s", JWTExpiry: time.Hour})
	tok, err := auth.GenerateSessionToken("abc")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/sessions/:id", RequireSessionJWT(auth), func(c *gin.Context) {
		assert.Equal(t, "abc", GetClaims(c).SessionID)
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"header", "/sessions/abc", "Bearer " + tok, http.StatusOK},
		{"query", "/sessions/abc?token=" + tok, "", http.StatusOK},
		{"other session", "/sessions/xyz", "Bearer " + tok, http.StatusForbidden},
		{"missing", "/sessions/abc", "", http.StatusUnauthorized},
		{"garbage", "/sessions/abc", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireAdminJWT_RejectsSessionToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := service.NewAuthService(&config.Config{JWTSecret: "s", JWTExpiry: time.Hour})
	tok, err := auth.GenerateSessionToken("abc")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/admin", RequireAdminJWT(auth), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
