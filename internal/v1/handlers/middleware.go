package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scorecast/scorecast/internal/v1/auth"
	"github.com/scorecast/scorecast/internal/v1/logging"
	"github.com/scorecast/scorecast/internal/v1/store"
	"github.com/scorecast/scorecast/internal/v1/types"
)

const claimsKey = "claims"

// RequireAuth validates the Bearer token and records the login. Claims land in
// the gin context under "claims" for the rate limiter and the handlers; the
// subject is also pushed into the request context so log lines carry user_id.
func RequireAuth(validator types.TokenValidator, users store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			detail(c, http.StatusUnauthorized, "Missing or malformed Authorization header")
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			msg := "Invalid token"
			if auth.IsExpired(err) {
				msg = "Token expired"
			}
			detail(c, http.StatusUnauthorized, msg)
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		ctx := context.WithValue(c.Request.Context(), logging.UserIDKey, claims.Subject)
		c.Request = c.Request.WithContext(ctx)

		// Best effort: a failed upsert must not block the request.
		if _, err := users.UpsertUser(ctx, claims.Subject, claims.Name, claims.Email); err != nil {
			logging.Warn(ctx, "failed to record login", zap.Error(err))
		}

		c.Next()
	}
}

// currentUser returns the authenticated subject. RequireAuth guarantees the
// claims are present on every route that calls this.
func currentUser(c *gin.Context) string {
	value, _ := c.Get(claimsKey)
	claims, _ := value.(*auth.CustomClaims)
	if claims == nil {
		return ""
	}
	return claims.Subject
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
