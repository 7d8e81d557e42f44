package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/config"
	"github.com/richardliu001/marketplace-ledger/internal/service"
	"go.uber.org/zap"
)

// Services bundles what the handlers call into.
type Services struct {
	Wallets *service.WalletService
	Orders  *service.OrderService
	Carts   *service.CartService
}

func NewRouter(svc Services, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, svc)
	return r
}

func RegisterHandlers(r *gin.Engine, svc Services) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "marketplace ledger"})
	})
	v1 := r.Group("/v1")
	{
		v1.POST("/wallets", openWalletHandler(svc.Wallets))
		v1.GET("/wallets", listWalletsHandler(svc.Wallets))
		v1.GET("/wallets/:user_id", balanceHandler(svc.Wallets))
		v1.DELETE("/wallets/:user_id", deleteWalletHandler(svc.Wallets))
		v1.POST("/wallets/:user_id/deposit", depositHandler(svc.Wallets))
		v1.POST("/wallets/:user_id/withdraw", withdrawHandler(svc.Wallets))
		v1.GET("/wallets/:user_id/history", historyHandler(svc.Wallets))

		v1.POST("/transactions", createOrderHandler(svc.Orders))
		v1.GET("/transactions", listOrdersHandler(svc.Orders))
		v1.GET("/transactions/:id", getOrderHandler(svc.Orders))
		v1.PATCH("/transactions/:id/status", setStatusHandler(svc.Orders))

		v1.POST("/cart-items", addCartItemHandler(svc.Carts))
		v1.GET("/cart-items", listCartItemsHandler(svc.Carts))
		v1.GET("/cart-items/:id", getCartItemHandler(svc.Carts))
		v1.PUT("/cart-items/:id", updateCartItemHandler(svc.Carts))
		v1.DELETE("/cart-items/:id", deleteCartItemHandler(svc.Carts))
	}
}

// uuidParam reads a path parameter as uuid, answering 400 when it is malformed.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// uuidQuery returns nil when the query parameter is absent.
func uuidQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, "invalid "+name)
		return nil, false
	}
	return &id, true
}
