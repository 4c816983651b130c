package handlers

import (
	"net/http"

	"github.com/calcforest/calcforest/internal/apperr"
	"github.com/calcforest/calcforest/internal/middleware"
	"github.com/calcforest/calcforest/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthHandler struct {
	users *services.UserService
	log   *logrus.Logger
}

func NewAuthHandler(users *services.UserService, log *logrus.Logger) *AuthHandler {
	return &AuthHandler{users: users, log: log}
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req CredentialsRequest
	if !bindJSON(ctx, h.log, &req) {
		return
	}

	result, err := h.users.Register(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusCreated, result)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req CredentialsRequest
	if !bindJSON(ctx, h.log, &req) {
		return
	}

	result, err := h.users.Login(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	userID, err := middleware.GetCurrentUserID(ctx)
	if err != nil {
		respondError(ctx, h.log, apperr.Unauthorized("Authorization token is required"))
		return
	}

	user, err := h.users.Me(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, user)
}
