package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/money"
	"github.com/richardliu001/marketplace-ledger/internal/service"
)

type walletView struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	UsdBalance  string    `json:"usd_balance"`
	UsdtBalance string    `json:"usdt_balance"`
}

// newWalletView pads balances to the currency scale.
func newWalletView(w *model.Wallet) walletView {
	return walletView{
		ID:          w.ID,
		UserID:      w.UserID,
		UsdBalance:  w.UsdBalance.StringFixed(money.USD.Scale()),
		UsdtBalance: w.UsdtBalance.StringFixed(money.USDT.Scale()),
	}
}

type openWalletReq struct {
	UserID string `json:"user_id" binding:"required"`
}

func openWalletHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req openWalletReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			badRequest(c, "invalid user_id")
			return
		}
		w, err := svc.Open(c, userID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, newWalletView(w))
	}
}

func balanceHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := uuidParam(c, "user_id")
		if !ok {
			return
		}
		w, err := svc.Balance(c, userID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newWalletView(w))
	}
}

type amountReq struct {
	Amount         string `json:"amount" binding:"required"`
	Currency       string `json:"currency" binding:"required"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

// bindAmount parses the body into Money and the client's idempotency key;
// it has answered the request when ok is false.
func bindAmount(c *gin.Context) (m money.Money, key string, ok bool) {
	var req amountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return money.Money{}, "", false
	}
	cur, err := money.ParseCurrency(req.Currency)
	if err != nil {
		writeError(c, err)
		return money.Money{}, "", false
	}
	m, err = money.Parse(req.Amount, cur)
	if err != nil {
		writeError(c, err)
		return money.Money{}, "", false
	}
	return m, req.IdempotencyKey, true
}

func depositHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := uuidParam(c, "user_id")
		if !ok {
			return
		}
		amt, key, ok := bindAmount(c)
		if !ok {
			return
		}
		w, err := svc.Deposit(c, userID, amt, key)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newWalletView(w))
	}
}

func withdrawHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := uuidParam(c, "user_id")
		if !ok {
			return
		}
		amt, key, ok := bindAmount(c)
		if !ok {
			return
		}
		w, err := svc.Withdraw(c, userID, amt, key)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newWalletView(w))
	}
}

func listWalletsHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := svc.List(c)
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]walletView, 0, len(ws))
		for i := range ws {
			out = append(out, newWalletView(&ws[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

func deleteWalletHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := uuidParam(c, "user_id")
		if !ok {
			return
		}
		if err := svc.Delete(c, userID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func historyHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := uuidParam(c, "user_id")
		if !ok {
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 {
			badRequest(c, "invalid limit")
			return
		}
		entries, err := svc.History(c, userID, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}
