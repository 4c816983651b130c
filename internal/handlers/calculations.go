package handlers

import (
	"net/http"

	"github.com/calcforest/calcforest/internal/apperr"
	"github.com/calcforest/calcforest/internal/middleware"
	"github.com/calcforest/calcforest/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type StartRequest struct {
	Number *float64 `json:"number"`
}

type OperateRequest struct {
	ParentID  string   `json:"parentId"`
	Operation string   `json:"operation"`
	Operand   *float64 `json:"operand"`
}

type CalculationHandler struct {
	calculations *services.CalculationService
	log          *logrus.Logger
}

func NewCalculationHandler(calculations *services.CalculationService, log *logrus.Logger) *CalculationHandler {
	return &CalculationHandler{calculations: calculations, log: log}
}

// ListForest responds with the root nodes and their nested children.
func (h *CalculationHandler) ListForest(ctx *gin.Context) {
	trees, err := h.calculations.ListForest(ctx.Request.Context())
	if err != nil {
		respondError(ctx, h.log, err)
		return
	}
	ctx.JSON(http.StatusOK, trees)
}

func (h *CalculationHandler) ListFlat(ctx *gin.Context) {
	nodes, err := h.calculations.ListFlat(ctx.Request.Context())
	if err != nil {
		respondError(ctx, h.log, err)
		return
	}
	ctx.JSON(http.StatusOK, nodes)
}

func (h *CalculationHandler) Get(ctx *gin.Context) {
	node, err := h.calculations.GetByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, h.log, err)
		return
	}
	ctx.JSON(http.StatusOK, node)
}

func (h *CalculationHandler) Start(ctx *gin.Context) {
	user, err := middleware.GetCurrentUser(ctx)
	if err != nil {
		respondError(ctx, h.log, apperr.Unauthorized("Authorization token is required"))
		return
	}

	var req StartRequest
	if !bindJSON(ctx, h.log, &req) {
		return
	}
	if req.Number == nil {
		respondError(ctx, h.log, apperr.Validation("A valid number is required"))
		return
	}

	node, err := h.calculations.CreateRoot(ctx.Request.Context(), user.Actor(), *req.Number)
	if err != nil {
		respondError(ctx, h.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, node)
}

func (h *CalculationHandler) Operate(ctx *gin.Context) {
	user, err := middleware.GetCurrentUser(ctx)
	if err != nil {
		respondError(ctx, h.log, apperr.Unauthorized("Authorization token is required"))
		return
	}

	var req OperateRequest
	if !bindJSON(ctx, h.log, &req) {
		return
	}

	node, err := h.calculations.ApplyOperation(ctx.Request.Context(), user.Actor(), services.OperationInput{
		ParentID:  req.ParentID,
		Operation: req.Operation,
		Operand:   req.Operand,
	})
	if err != nil {
		respondError(ctx, h.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, node)
}
