package middleware

import (
	"net/http"
	"strings"

	"github.com/calcforest/calcforest/internal/apperr"
	"github.com/calcforest/calcforest/internal/services"
	"github.com/gin-gonic/gin"
)

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	VerifyToken(token string) (services.Actor, error)
}

type AuthenticatedUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Actor converts the user into the identity services expect for writes.
func (u AuthenticatedUser) Actor() services.Actor {
	return services.Actor{UserID: u.ID, Username: u.Username}
}

const ContextUserKey = "user"

// RequireAuth rejects requests without a valid Bearer token. The token's
// claims are trusted; the user row is not loaded.
func RequireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")

		if authHeader == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)

		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		actor, err := verifier.VerifyToken(parts[1])

		if err != nil {
			appErr := apperr.From(err)
			ctx.AbortWithStatusJSON(appErr.HTTPStatus(), gin.H{"error": appErr.Message})
			return
		}

		ctx.Set(ContextUserKey, AuthenticatedUser{
			ID:       actor.UserID,
			Username: actor.Username,
		})
		ctx.Next()
	}
}
