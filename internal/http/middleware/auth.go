// README: Bearer-token auth middleware; verifies tokens and exposes the caller.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bidride/internal/infra"
)

const (
	ctxUID  = "auth.uid"
	ctxRole = "auth.role"
)

type errorBody struct {
	Error string `json:"error"`
}

// Auth rejects requests without a verifiable "Authorization: Bearer" token.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
			return
		}
		authenticate(c, verifier, strings.TrimSpace(raw))
	}
}

// AuthQuery is Auth for websocket upgrades, where browsers cannot set
// headers: the token may also come from the "token" query parameter.
func AuthQuery(verifier infra.TokenVerifier) gin.HandlerFunc {
	header := Auth(verifier)
	return func(c *gin.Context) {
		raw := c.Query("token")
		if raw == "" {
			header(c)
			return
		}
		authenticate(c, verifier, raw)
	}
}

func authenticate(c *gin.Context, verifier infra.TokenVerifier, raw string) {
	token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
	if err != nil || token == nil || token.UID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "invalid token"})
		return
	}
	c.Set(ctxUID, token.UID)
	if role, ok := token.Claims["role"].(string); ok {
		c.Set(ctxRole, role)
	}
	c.Next()
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

// CallerRole is the "role" custom claim, or "" for ordinary users.
func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// RequireRole must run after Auth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody{Error: "forbidden: " + role + " role required"})
			return
		}
		c.Next()
	}
}
