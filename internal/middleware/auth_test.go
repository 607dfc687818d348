package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mtbridge/signal-bridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authTestRouter(cfg *config.AuthConfig) *gin.Engine {
	r := gin.New()
	r.GET("/protected", JWTAuth(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
	})
	return r
}

func get(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthRoundTrip(t *testing.T) {
	cfg := &config.AuthConfig{JWTSecret: "secret", TokenTTLMinutes: 60}
	r := authTestRouter(cfg)

	token, err := IssueToken(cfg, "user-42")
	require.NoError(t, err)

	w := get(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-42")
}

func TestJWTAuthRejections(t *testing.T) {
	cfg := &config.AuthConfig{JWTSecret: "secret", TokenTTLMinutes: 60}
	r := authTestRouter(cfg)

	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code, "no header")
	assert.Equal(t, http.StatusUnauthorized, get(r, "Basic abc").Code, "wrong scheme")
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer not.a.jwt").Code, "garbage token")

	otherSecret, err := IssueToken(&config.AuthConfig{JWTSecret: "different", TokenTTLMinutes: 60}, "user-42")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+otherSecret).Code, "wrong signature")
}

func TestJWTAuthRejectsExpiredToken(t *testing.T) {
	cfg := &config.AuthConfig{JWTSecret: "secret"}
	claims := jwt.RegisteredClaims{
		Subject:   "user-42",
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	r := authTestRouter(cfg)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+expired).Code)
}

func TestJWTAuthRejectsUnsignedToken(t *testing.T) {
	cfg := &config.AuthConfig{JWTSecret: "secret"}
	claims := jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	r := authTestRouter(cfg)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+none).Code)
}
