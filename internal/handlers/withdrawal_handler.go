package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "convertax/internal/errors"
	"convertax/internal/services"
)

// WithdrawalHandler handles withdrawal requests.
type WithdrawalHandler struct {
	withdrawalService services.WithdrawalServicer
	auditService      services.AuditServicer
}

// NewWithdrawalHandler creates a new WithdrawalHandler.
func NewWithdrawalHandler(withdrawalService services.WithdrawalServicer, auditService services.AuditServicer) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawalService: withdrawalService, auditService: auditService}
}

// WithdrawRequest represents the request payload for a withdrawal.
type WithdrawRequest struct {
	InvestmentID string          `json:"investment_id" binding:"required,uuid"`
	Amount       decimal.Decimal `json:"amount" binding:"money" swaggertype:"string" example:"100.00"`
}

// Withdraw handles a withdrawal from one of the caller's investments.
// @Summary     Withdraw
// @Description Debit the gross amount from an investment and withhold tax by investment age
// @Tags        withdrawals
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body WithdrawRequest true "Withdrawal data"
// @Success     200 {object} services.WithdrawalResult "Net amount, tax and updated investment"
// @Failure     400 {object} ErrorResponse "Invalid amount or investment not found"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /withdrawals [post]
func (h *WithdrawalHandler) Withdraw(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.withdrawalService.Withdraw(c.Request.Context(), userID, req.InvestmentID, req.Amount)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), userID, services.AuditActionWithdrawalExecuted, "investment", req.InvestmentID, c.ClientIP(),
		map[string]any{
			"amount":     req.Amount.String(),
			"tax_amount": result.TaxAmount.String(),
			"tax_rate":   result.TaxRate.String(),
		})

	c.JSON(http.StatusOK, result)
}
