package middleware

import (
	"errors"
	"strings"

	"go_certmgr/internal/auth"
	"go_certmgr/internal/httpx"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthRequired is a middleware that validates JWT token
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := claimsFromRequest(c)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				httpx.FailErr(c, httpx.ErrTokenExpired("token expired"))
			} else {
				httpx.FailErr(c, httpx.ErrUnauthorized(""))
			}
			c.Abort()
			return
		}

		setUser(c, claims)
		c.Next()
	}
}

// AuthOptional validates a JWT token when one is present but lets the
// request through either way. Handlers that answer anonymous callers
// with a sentinel instead of a 401 use this.
func AuthOptional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := claimsFromRequest(c); err == nil {
			setUser(c, claims)
		}
		c.Next()
	}
}

func claimsFromRequest(c *gin.Context) (*auth.Claims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, errors.New("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errors.New("invalid authorization header format")
	}

	return auth.ParseToken(parts[1])
}

func setUser(c *gin.Context, claims *auth.Claims) {
	c.Set("uid", claims.UID)
	c.Set("username", claims.Username)
	c.Set("role", claims.Role)
}
