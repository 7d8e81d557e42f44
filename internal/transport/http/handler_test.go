package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/config"
	"github.com/richardliu001/marketplace-ledger/internal/repo/memstore"
	"github.com/richardliu001/marketplace-ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, rl config.RateLimitConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()
	wallets, txs := memstore.NewWallets(), memstore.NewTransactions()
	svc := Services{
		Wallets: service.NewWalletService(wallets, txs, nil, log),
		Orders:  service.NewOrderService(txs, service.NewSettlementEngine(wallets, txs, log)),
		Carts:   service.NewCartService(memstore.NewCart()),
	}
	return NewRouter(svc, rl, log)
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func createOrder(t *testing.T, r *gin.Engine, buyer, seller uuid.UUID, price string) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/v1/transactions", gin.H{
		"buyer_id":  buyer,
		"seller_id": seller,
		"currency":  "USD",
		"items": []gin.H{
			{"product_id": uuid.New(), "title_snapshot": "Widget", "unit_price": price, "quantity": 2},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["id"].(string)
}

func TestWelcome(t *testing.T) {
	r := newTestRouter(t, config.RateLimitConfig{})
	w := do(t, r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWalletEndpoints(t *testing.T) {
	r := newTestRouter(t, config.RateLimitConfig{})
	user := uuid.New()

	w := do(t, r, http.MethodPost, "/v1/wallets", gin.H{"user_id": user})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "0.0000", decode(t, w)["usd_balance"])

	w = do(t, r, http.MethodPost, "/v1/wallets/"+user.String()+"/deposit", gin.H{"amount": "100.00", "currency": "usd", "idempotency_key": "req-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "100.0000", decode(t, w)["usd_balance"])

	w = do(t, r, http.MethodPost, "/v1/wallets/"+user.String()+"/withdraw", gin.H{"amount": "30", "currency": "USD", "idempotency_key": "req-2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "70.0000", decode(t, w)["usd_balance"])

	w = do(t, r, http.MethodPost, "/v1/wallets/"+user.String()+"/withdraw", gin.H{"amount": "500", "currency": "USD", "idempotency_key": "req-3"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/v1/wallets/"+user.String()+"/deposit", gin.H{"amount": "1.00001", "currency": "USD", "idempotency_key": "req-4"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, r, http.MethodPost, "/v1/wallets/"+user.String()+"/deposit", gin.H{"amount": "1", "currency": "EUR", "idempotency_key": "req-5"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, r, http.MethodGet, "/v1/wallets/"+user.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "70.0000", decode(t, w)["usd_balance"])
	assert.Equal(t, "0.00000000", decode(t, w)["usdt_balance"])

	w = do(t, r, http.MethodGet, "/v1/wallets/"+user.String()+"/history?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)

	w = do(t, r, http.MethodGet, "/v1/wallets/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/v1/wallets/"+user.String()+"/deposit", gin.H{"amount": "1", "currency": "USD"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "idempotency_key is required")

	w = do(t, r, http.MethodGet, "/v1/wallets/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/v1/wallets", "{bad json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDepositRetryWithSameKey(t *testing.T) {
	r := newTestRouter(t, config.RateLimitConfig{})
	user := uuid.New()
	body := gin.H{"amount": "25", "currency": "USDT", "idempotency_key": "checkout-42"}

	for i := 0; i < 3; i++ {
		w := do(t, r, http.MethodPost, "/v1/wallets/"+user.String()+"/deposit", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "25.00000000", decode(t, w)["usdt_balance"])
	}

	w := do(t, r, http.MethodGet, "/v1/wallets/"+user.String()+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)
}

func TestListAndDeleteWallets(t *testing.T) {
	r := newTestRouter(t, config.RateLimitConfig{})
	buyer, seller := uuid.New(), uuid.New()
	for _, u := range []uuid.UUID{buyer, seller} {
		w := do(t, r, http.MethodPost, "/v1/wallets", gin.H{"user_id": u})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, r, http.MethodGet, "/v1/wallets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, buyer.String(), all[0]["user_id"])

	id := createOrder(t, r, buyer, seller, "5.00")
	w = do(t, r, http.MethodDelete, "/v1/wallets/"+seller.String(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPatch, "/v1/transactions/"+id+"/status", gin.H{"status": "CANCELLED"})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodDelete, "/v1/wallets/"+seller.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodDelete, "/v1/wallets/"+seller.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/v1/wallets", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 1)
}

func TestTransactionLifecycle(t *testing.T) {
	r := newTestRouter(t, config.RateLimitConfig{})
	buyer, seller := uuid.New(), uuid.New()

	w := do(t, r, http.MethodPost, "/v1/wallets/"+buyer.String()+"/deposit", gin.H{"amount": "100.00", "currency": "USD", "idempotency_key": "req-6"})
	require.Equal(t, http.StatusOK, w.Code)

	id := createOrder(t, r, buyer, seller, "19.99")

	w = do(t, r, http.MethodGet, "/v1/transactions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PENDING", decode(t, w)["status"])

	w = do(t, r, http.MethodPatch, "/v1/transactions/"+id+"/status", gin.H{"status": "PAID"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "PAID", decode(t, w)["status"])

	w = do(t, r, http.MethodGet, "/v1/wallets/"+buyer.String(), nil)
	assert.Equal(t, "60.0200", decode(t, w)["usd_balance"])
	w = do(t, r, http.MethodGet, "/v1/wallets/"+seller.String(), nil)
	assert.Equal(t, "39.9800", decode(t, w)["usd_balance"])

	// PAID -> PENDING is not a legal move
	w = do(t, r, http.MethodPatch, "/v1/transactions/"+id+"/status", gin.H{"status": "PENDING"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPatch, "/v1/transactions/"+id+"/status", gin.H{"status": "SHIPPED"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, r, http.MethodGet, "/v1/transactions?buyer_id="+buyer.String()+"&status=PAID", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0]["id"])

	w = do(t, r, http.MethodGet, "/v1/transactions?buyer_id=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/v1/transactions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPayWithoutFunds(t *testing.T) {
	r := newTestRouter(t, config.RateLimitConfig{})
	buyer, seller := uuid.New(), uuid.New()

	w := do(t, r, http.MethodPost, "/v1/wallets/"+buyer.String()+"/deposit", gin.H{"amount": "10.00", "currency": "USD", "idempotency_key": "req-7"})
	require.Equal(t, http.StatusOK, w.Code)
	id := createOrder(t, r, buyer, seller, "19.99")

	w = do(t, r, http.MethodPatch, "/v1/transactions/"+id+"/status", gin.H{"status": "PAID"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	w = do(t, r, http.MethodGet, "/v1/transactions/"+id, nil)
	assert.Equal(t, "PENDING", decode(t, w)["status"])
}

func TestCreateTransactionValidation(t *testing.T) {
	r := newTestRouter(t, config.RateLimitConfig{})
	user := uuid.New()

	w := do(t, r, http.MethodPost, "/v1/transactions", gin.H{
		"buyer_id": user, "seller_id": user, "currency": "USD",
		"items": []gin.H{{"product_id": uuid.New(), "unit_price": "1.00", "quantity": 1}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, r, http.MethodPost, "/v1/transactions", gin.H{
		"buyer_id": user, "seller_id": uuid.New(), "currency": "USD",
		"items": []gin.H{{"product_id": uuid.New(), "unit_price": "1.00", "quantity": 0}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, r, http.MethodPost, "/v1/transactions", gin.H{
		"buyer_id": user, "seller_id": uuid.New(), "currency": "USD",
		"items": []gin.H{{"product_id": uuid.New(), "unit_price": "abc", "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCartEndpoints(t *testing.T) {
	r := newTestRouter(t, config.RateLimitConfig{})
	user, product := uuid.New(), uuid.New()

	w := do(t, r, http.MethodPost, "/v1/cart-items", gin.H{"user_id": user, "product_id": product, "quantity": 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	w = do(t, r, http.MethodPost, "/v1/cart-items", gin.H{"user_id": user, "product_id": product, "quantity": 2})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, id, decode(t, w)["id"])
	assert.EqualValues(t, 3, decode(t, w)["quantity"])

	w = do(t, r, http.MethodPut, "/v1/cart-items/"+id, gin.H{"quantity": 5})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 5, decode(t, w)["quantity"])

	w = do(t, r, http.MethodPut, "/v1/cart-items/"+id, gin.H{"quantity": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, r, http.MethodGet, "/v1/cart-items?user_id="+user.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	assert.Len(t, items, 1)

	w = do(t, r, http.MethodDelete, "/v1/cart-items/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodGet, "/v1/cart-items/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	r := newTestRouter(t, config.RateLimitConfig{RPS: 1, Burst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, r, http.MethodGet, "/", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
