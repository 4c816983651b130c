package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

func GetCurrentUser(ctx *gin.Context) (AuthenticatedUser, error) {
	user, exists := ctx.Get(ContextUserKey)

	if !exists {
		return AuthenticatedUser{}, fmt.Errorf("User not authenticated")
	}

	authenticatedUser, ok := user.(AuthenticatedUser)

	if !ok {
		return AuthenticatedUser{}, fmt.Errorf("Invalid user type in context")
	}

	return authenticatedUser, nil
}

func GetCurrentUserID(ctx *gin.Context) (string, error) {
	user, err := GetCurrentUser(ctx)

	if err != nil {
		return "", err
	}

	return user.ID, nil
}
