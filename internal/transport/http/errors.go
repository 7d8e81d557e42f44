package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/money"
)

// statusFor maps domain error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientFunds),
		errors.Is(err, model.ErrConflict),
		errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, money.ErrPrecision),
		errors.Is(err, money.ErrUnknownCurrency),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrStorage):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	writeErrorStatus(c, statusFor(err), err)
}

func writeErrorStatus(c *gin.Context, status int, err error) {
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
