package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/service"
)

type addCartItemReq struct {
	UserID    uuid.UUID `json:"user_id" binding:"required"`
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int64     `json:"quantity"`
}

func addCartItemHandler(svc *service.CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addCartItemReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		item, err := svc.Add(c, req.UserID, req.ProductID, req.Quantity)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, item)
	}
}

func listCartItemsHandler(svc *service.CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := uuidQuery(c, "user_id")
		if !ok {
			return
		}
		items, err := svc.List(c, userID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

func getCartItemHandler(svc *service.CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		item, err := svc.Get(c, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

type updateCartItemReq struct {
	Quantity int64 `json:"quantity"`
}

func updateCartItemHandler(svc *service.CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		var req updateCartItemReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		item, err := svc.SetQuantity(c, id, req.Quantity)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func deleteCartItemHandler(svc *service.CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		if err := svc.Remove(c, id); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
