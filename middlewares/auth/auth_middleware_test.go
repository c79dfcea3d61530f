package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joy095/treasury/logger"
	"github.com/joy095/treasury/utils"
	"github.com/joy095/treasury/utils/jwt_parse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.Silence()
	gin.SetMode(gin.TestMode)
}

func token(t *testing.T, secret []byte, sub, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt_parse.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestAdminMiddleware(t *testing.T) {
	secret := []byte("s3cret")
	admin := uuid.New()

	var reached int
	r := gin.New()
	r.GET("/admin", AdminMiddleware(secret), func(c *gin.Context) {
		reached++
		id, err := utils.GetUserIDFromContext(c)
		require.NoError(t, err)
		c.String(http.StatusOK, id.String())
	})

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"wrong secret", token(t, []byte("other"), admin.String(), "admin"), http.StatusUnauthorized},
		{"not admin", token(t, secret, admin.String(), "seller"), http.StatusForbidden},
		{"subject not uuid", token(t, secret, "bob", "admin"), http.StatusUnauthorized},
		{"admin", token(t, secret, admin.String(), "admin"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = 0
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, 1, reached)
				assert.Equal(t, admin.String(), w.Body.String())
			} else {
				assert.Zero(t, reached, "handler must not run for a rejected token")
			}
		})
	}
}

func TestAdminMiddlewareRejectsBeforeLaterHandlers(t *testing.T) {
	secret := []byte("s3cret")
	var chain []string

	r := gin.New()
	r.POST("/admin/pay", AdminMiddleware(secret),
		func(c *gin.Context) { chain = append(chain, "limiter"); c.Next() },
		func(c *gin.Context) { chain = append(chain, "handler"); c.Status(http.StatusOK) },
	)

	req := httptest.NewRequest(http.MethodPost, "/admin/pay", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, secret, uuid.New().String(), "seller"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "ACCESS_DENIED")
	assert.Empty(t, chain)
}
