package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/influmatch/tokenledger/internal/marketplace"
	"github.com/influmatch/tokenledger/pkg/tokens"
)

const (
	errorCodeInsufficientBalance = "insufficient_balance"
	errorCodeUnknownInfluencer   = "unknown_influencer"
	errorCodeUnknownBoostPackage = "unknown_boost_package"
	errorCodeInvalidPayload      = "invalid_payload"
	errorCodeUnauthorized        = "unauthorized"
	errorCodeInvalidSignature    = "invalid_signature"
	errorCodeInternal            = "internal_error"
)

// respondError maps domain errors to HTTP statuses and stable error codes.
// Storage failures stay opaque: the user only learns that nothing was spent.
func respondError(ctx *gin.Context, err error) {
	var balanceError *tokens.InsufficientBalanceError
	if errors.As(err, &balanceError) {
		ctx.JSON(http.StatusPaymentRequired, ErrorEnvelope{Error: ErrorPayload{
			Code:            errorCodeInsufficientBalance,
			Message:         "not enough tokens",
			ShortfallTokens: balanceError.Shortfall(),
		}})
		return
	}
	switch {
	case errors.Is(err, tokens.ErrInsufficientBalance):
		ctx.JSON(http.StatusPaymentRequired, errorEnvelope(errorCodeInsufficientBalance, "not enough tokens"))
	case errors.Is(err, marketplace.ErrUnknownInfluencer):
		ctx.JSON(http.StatusNotFound, errorEnvelope(errorCodeUnknownInfluencer, "influencer not found"))
	case errors.Is(err, marketplace.ErrUnknownBoostPackage):
		ctx.JSON(http.StatusNotFound, errorEnvelope(errorCodeUnknownBoostPackage, "boost package not found"))
	case errors.Is(err, tokens.ErrInvalidUserID),
		errors.Is(err, tokens.ErrInvalidTokenAmount),
		errors.Is(err, tokens.ErrInvalidReferenceID):
		ctx.JSON(http.StatusBadRequest, errorEnvelope(errorCodeInvalidPayload, err.Error()))
	default:
		ctx.JSON(http.StatusInternalServerError, errorEnvelope(errorCodeInternal, "operation failed, no tokens were spent"))
	}
}

func errorEnvelope(code string, message string) ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorPayload{Code: code, Message: message}}
}
