package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/connectplus/wallet-ledger/internal/model"
	"github.com/connectplus/wallet-ledger/internal/repo"
	"github.com/connectplus/wallet-ledger/internal/service"
)

func RegisterHandlers(r *gin.Engine, svc *service.LedgerService, jwtSecret string) {
	v1 := r.Group("/v1", AuthMiddleware(jwtSecret))
	{
		v1.POST("/wallet/withdrawals", requestWithdrawalHandler(svc))
		v1.POST("/wallet/transfers", transferHandler(svc))
		v1.GET("/wallet/balance", balanceHandler(svc))
		v1.GET("/wallet/history", historyHandler(svc))
		v1.PUT("/wallet/bank", linkBankHandler(svc))
		v1.GET("/wallet/bank", getBankHandler(svc))
	}

	admin := v1.Group("/admin", RequireAdmin())
	{
		admin.GET("/withdrawals/pending", pendingHandler(svc))
		admin.POST("/withdrawals/:id/approve", approveHandler(svc))
		admin.POST("/withdrawals/:id/reject", rejectHandler(svc))
		admin.POST("/ledgers/:account_id/adjust", adjustHandler(svc))
		admin.DELETE("/ledgers/:account_id/history", clearHistoryHandler(svc))
		admin.GET("/ledgers/:account_id/balance", adminBalanceHandler(svc))
		admin.GET("/ledgers/:account_id/history", adminHistoryHandler(svc))
	}
}

// errStatus maps service errors onto HTTP codes. Validation failures are
// 4xx with the sentinel's message; anything unknown is a 500.
func errStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, repo.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, service.ErrBankNotLinked),
		errors.Is(err, service.ErrBelowMinimum),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrReasonRequired),
		errors.Is(err, service.ErrInvalidDirection),
		errors.Is(err, service.ErrBankInfoIncomplete),
		errors.Is(err, repo.ErrInsufficientBalance):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	c.JSON(errStatus(err), gin.H{"error": err.Error()})
}

type withdrawalReq struct {
	Amount         string `json:"amount" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

func requestWithdrawalHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req withdrawalReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		tx, err := svc.RequestWithdrawal(c, c.GetString(ContextAccountID), amt, req.IdempotencyKey)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, tx)
	}
}

type transferReq struct {
	Amount         string `json:"amount" binding:"required"`
	Target         string `json:"target" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

func transferHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transferReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		tx, err := svc.Transfer(c, c.GetString(ContextAccountID), amt, req.Target, req.IdempotencyKey)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, tx)
	}
}

func balanceHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		bal, err := svc.GetBalance(c, c.GetString(ContextAccountID))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal})
	}
}

func historyHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		txs, err := svc.GetHistory(c, c.GetString(ContextAccountID), limit)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}

type bankReq struct {
	BankName      string `json:"bank_name" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	HolderName    string `json:"holder_name" binding:"required"`
}

func linkBankHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bankReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		info := &model.BankInfo{
			AccountID:     c.GetString(ContextAccountID),
			BankName:      req.BankName,
			AccountNumber: req.AccountNumber,
			HolderName:    req.HolderName,
		}
		if err := svc.LinkBank(c, info); err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func getBankHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := svc.GetBank(c, c.GetString(ContextAccountID))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func pendingHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		txs, err := svc.ListPending(c, limit)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}

func approveHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tx, err := svc.Approve(c, c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, tx)
	}
}

type rejectReq struct {
	Reason string `json:"reason" binding:"required"`
}

func rejectHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rejectReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tx, err := svc.Reject(c, c.Param("id"), req.Reason)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, tx)
	}
}

type adjustReq struct {
	Amount    string `json:"amount" binding:"required"`
	Direction string `json:"direction" binding:"required"`
}

func adjustHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req adjustReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		tx, err := svc.AdjustBalance(c, c.Param("account_id"), amt, req.Direction)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, tx)
	}
}

func clearHistoryHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		removed, err := svc.ClearHistory(c, c.Param("account_id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

func adminBalanceHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		bal, err := svc.GetBalance(c, c.Param("account_id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal})
	}
}

func adminHistoryHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		txs, err := svc.GetHistory(c, c.Param("account_id"), limit)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}
