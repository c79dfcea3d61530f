package jwt_parse

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joy095/treasury/logger"
)

// AdminRole is the role claim required on admin API tokens.
const AdminRole = "admin"

var ErrMissingSubject = errors.New("token has no subject")

// Claims are the fields read from an admin token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken validates an HS256 token signed with secret and returns its claims.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// Authenticate validates the bearer token and stores "sub" and "role" in the context. On
// failure it aborts with 401 and returns false. It never calls c.Next.
func Authenticate(c *gin.Context, secret []byte) (*Claims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		logger.ErrorLogger.Error("No authorization header provided")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token"})
		return nil, false
	}

	// Extract token from "Bearer <token>" format
	var tokenString string
	if len(authHeader) > 7 && strings.ToLower(authHeader[:7]) == "bearer " {
		tokenString = authHeader[7:]
	} else {
		logger.ErrorLogger.Error("Invalid authorization header format")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
		return nil, false
	}

	claims, err := ParseToken(tokenString, secret)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to parse JWT token: %v", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return nil, false
	}

	c.Set("sub", claims.Subject)
	c.Set("role", claims.Role)
	return claims, true
}

// ParseJWTToken is a middleware that requires any valid token.
func ParseJWTToken(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := Authenticate(c, secret); !ok {
			return
		}
		c.Next()
	}
}
