package handler

import (
	"net/http"
	"strconv"

	"anoa.com/promptvault/internal/entity"
	creditDto "anoa.com/promptvault/internal/modules/credit/dto"
	credit "anoa.com/promptvault/internal/modules/credit/service"
	"anoa.com/promptvault/pkg/response"
	"anoa.com/promptvault/pkg/validator"
	"github.com/gin-gonic/gin"
)

type CreditHandler struct {
	ledger  credit.Ledger
	daily   credit.DailyRewardService
	bonuses credit.BonusService
}

func NewCreditHandler(ledger credit.Ledger, daily credit.DailyRewardService, bonuses credit.BonusService) *CreditHandler {
	return &CreditHandler{ledger: ledger, daily: daily, bonuses: bonuses}
}

func (h *CreditHandler) GetBalance(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, creditDto.BalanceResponse{UserID: userID, Balance: balance})
}

func (h *CreditHandler) GetTransactions(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.ledger.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, creditDto.TransactionListResponse{Data: records, Limit: limit, Offset: offset})
}

func (h *CreditHandler) GetAudit(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	audit, err := h.ledger.Audit(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, audit)
}

func (h *CreditHandler) Spend(c *gin.Context) {
	var req creditDto.EntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	if entity.ReservedSource(req.Source) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source is reserved"})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	req.UserID = userID

	record, err := h.ledger.Spend(c.Request.Context(), req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (h *CreditHandler) ClaimDaily(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	res, err := h.daily.ClaimDaily(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *CreditHandler) GetDailyStatus(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	status, err := h.daily.Status(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *CreditHandler) ClaimBonus(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	kind := c.Param("kind")
	granted, err := h.bonuses.GrantOnceIfEligible(c.Request.Context(), userID, kind)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, creditDto.BonusResponse{Kind: kind, Granted: granted})
}

func (h *CreditHandler) AdminEarn(c *gin.Context) {
	var req creditDto.AdminEarnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	record, err := h.ledger.Earn(c.Request.Context(), creditDto.EntryRequest{
		UserID:        req.UserID,
		Amount:        req.Amount,
		Source:        req.Source,
		Description:   req.Description,
		ReferenceID:   req.ReferenceID,
		ReferenceType: req.ReferenceType,
	})
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (h *CreditHandler) AdminAdjust(c *gin.Context) {
	var req creditDto.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	record, err := h.ledger.Adjust(c.Request.Context(), req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}
