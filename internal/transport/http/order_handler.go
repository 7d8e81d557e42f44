package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/money"
	"github.com/richardliu001/marketplace-ledger/internal/service"
	"github.com/shopspring/decimal"
)

type orderItemReq struct {
	ProductID     uuid.UUID `json:"product_id" binding:"required"`
	TitleSnapshot string    `json:"title_snapshot"`
	UnitPrice     string    `json:"unit_price" binding:"required"`
	Quantity      int64     `json:"quantity"`
}

type createOrderReq struct {
	ID       *uuid.UUID     `json:"id"`
	BuyerID  uuid.UUID      `json:"buyer_id" binding:"required"`
	SellerID uuid.UUID      `json:"seller_id" binding:"required"`
	Currency string         `json:"currency" binding:"required"`
	Items    []orderItemReq `json:"items" binding:"required"`
}

func createOrderHandler(svc *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		cur, err := money.ParseCurrency(req.Currency)
		if err != nil {
			writeError(c, err)
			return
		}
		in := service.NewOrder{
			BuyerID:  req.BuyerID,
			SellerID: req.SellerID,
			Currency: cur,
		}
		if req.ID != nil {
			in.ID = *req.ID
		}
		for _, it := range req.Items {
			price, err := decimal.NewFromString(it.UnitPrice)
			if err != nil {
				badRequest(c, "invalid unit_price")
				return
			}
			in.Items = append(in.Items, service.OrderItem{
				ProductID:     it.ProductID,
				TitleSnapshot: it.TitleSnapshot,
				UnitPrice:     price,
				Quantity:      it.Quantity,
			})
		}
		t, err := svc.Create(c, in)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

func listOrdersHandler(svc *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f model.TransactionFilter
		var ok bool
		if f.BuyerID, ok = uuidQuery(c, "buyer_id"); !ok {
			return
		}
		if f.SellerID, ok = uuidQuery(c, "seller_id"); !ok {
			return
		}
		if raw := c.Query("status"); raw != "" {
			st, err := model.ParseStatus(raw)
			if err != nil {
				badRequest(c, "invalid status")
				return
			}
			f.Status = &st
		}
		txs, err := svc.List(c, f)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}

func getOrderHandler(svc *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		t, err := svc.Get(c, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

type setStatusReq struct {
	Status string `json:"status" binding:"required"`
}

func setStatusHandler(svc *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		var req setStatusReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		target, err := model.ParseStatus(req.Status)
		if err != nil {
			writeError(c, err)
			return
		}
		t, err := svc.SetStatus(c, id, target)
		if errors.Is(err, model.ErrInsufficientFunds) {
			writeErrorStatus(c, http.StatusPaymentRequired, err)
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}
