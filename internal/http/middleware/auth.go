package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"screentime/internal/domain"
	"screentime/internal/repository"
	"screentime/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxUserID = "user_id"
	ctxClaims = "claims"

	loginPath      = "/login"
	adminLoginPath = "/admin-login"
)

// ProfileGetter resolves the stored profile, which is authoritative for
// the role.
type ProfileGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
}

// JWT requires a valid bearer token and stores its claims on the context.
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token", "redirect": loginPath})
			return
		}

		claims, err := service.ParseJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "redirect": loginPath})
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// AdminOnly must run after JWT. The role is checked against the profile
// row, not just the token.
func AdminOnly(profiles ProfileGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "redirect": adminLoginPath})
			return
		}

		p, err := profiles.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repository.ErrNotFound) {
				status = http.StatusForbidden
			}
			c.AbortWithStatusJSON(status, gin.H{"error": "profile unavailable", "redirect": adminLoginPath})
			return
		}
		if !p.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only", "redirect": adminLoginPath})
			return
		}

		claims.Role = p.Role
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// ClaimsFrom returns the claims JWT stored on the context.
func ClaimsFrom(c *gin.Context) (service.Claims, bool) {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := v.(service.Claims)
	return claims, ok
}
