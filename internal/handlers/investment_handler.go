package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "convertax/internal/errors"
	"convertax/internal/pagination"
	"convertax/internal/services"
)

// InvestmentHandler handles investment-related requests.
type InvestmentHandler struct {
	investmentService services.InvestmentServicer
	auditService      services.AuditServicer
}

// NewInvestmentHandler creates a new InvestmentHandler.
func NewInvestmentHandler(investmentService services.InvestmentServicer, auditService services.AuditServicer) *InvestmentHandler {
	return &InvestmentHandler{investmentService: investmentService, auditService: auditService}
}

// CreateInvestmentRequest represents the request payload for opening an investment.
type CreateInvestmentRequest struct {
	InitialAmount decimal.Decimal `json:"initial_amount" binding:"money" swaggertype:"string" example:"1000.00"`
	CreatedAt     *time.Time      `json:"created_at,omitempty" example:"2024-07-31T12:00:00Z"`
}

// ListInvestmentsQuery holds the query parameters of ListInvestments.
type ListInvestmentsQuery struct {
	pagination.PageRequest
	Status string `form:"status" binding:"omitempty,investment_status"`
}

// CreateInvestment handles opening a new investment for the caller.
// @Summary     Create investment
// @Description Open an investment whose balance starts at the initial amount
// @Tags        investments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateInvestmentRequest true "Investment data"
// @Success     201 {object} map[string]interface{} "Investment created"
// @Failure     400 {object} ErrorResponse "Invalid amount or input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /investments [post]
func (h *InvestmentHandler) CreateInvestment(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateInvestmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	inv, err := h.investmentService.CreateInvestment(c.Request.Context(), userID, req.InitialAmount, req.CreatedAt)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), userID, services.AuditActionInvestmentCreated, "investment", inv.ID, c.ClientIP(),
		map[string]any{"initial_amount": inv.InitialAmount.String()})

	c.JSON(http.StatusCreated, gin.H{"investment": inv})
}

// GetInvestment returns an investment with its accrued value.
// @Summary     Get investment
// @Description Get an investment of the caller with interest accrued on the principal
// @Tags        investments
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Investment ID"
// @Success     200 {object} map[string]interface{} "Investment with accrual"
// @Failure     400 {object} ErrorResponse "Investment not found"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /investments/{id} [get]
func (h *InvestmentHandler) GetInvestment(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	id, err := parsePathID(c, "id", apperrors.ErrInvestmentNotFound)
	if err != nil {
		respondWithError(c, err)
		return
	}

	view, err := h.investmentService.GetInvestment(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if view.OwnerID != userID {
		respondWithError(c, apperrors.ErrInvestmentNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"investment": view})
}

// ListInvestments returns a page of the caller's investments.
// @Summary     List investments
// @Description List the caller's investments, oldest first, optionally filtered by status
// @Tags        investments
// @Produce     json
// @Security    BearerAuth
// @Param       status   query string false "Status filter"
// @Param       page     query int    false "Page number" default(1)
// @Param       pageSize query int    false "Items per page" default(10)
// @Success     200 {object} map[string]interface{} "Page of investments"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /investments [get]
func (h *InvestmentHandler) ListInvestments(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var q ListInvestmentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	page, err := h.investmentService.ListInvestments(c.Request.Context(), userID, q.Status, q.PageRequest)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}
