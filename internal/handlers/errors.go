package handlers

import (
	"errors"
	"io"

	"github.com/calcforest/calcforest/internal/apperr"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// respondError writes err as {"error": message}. Internal causes are logged
// and never sent to the client.
func respondError(ctx *gin.Context, log *logrus.Logger, err error) {
	appErr := apperr.From(err)

	if appErr.Kind == apperr.KindInternal {
		_ = ctx.Error(err)
		log.WithError(err).WithField("path", ctx.Request.URL.Path).Error("Request failed")
	}

	ctx.JSON(appErr.HTTPStatus(), gin.H{"error": appErr.Message})
}

// bindJSON decodes the request body into req. An empty body leaves req at
// its zero value so field validation reports what is missing.
func bindJSON(ctx *gin.Context, log *logrus.Logger, req any) bool {
	if err := ctx.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		log.WithError(err).Debug("Failed to bind JSON")
		respondError(ctx, log, apperr.Validation("Invalid request"))
		return false
	}
	return true
}
