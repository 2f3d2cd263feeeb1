package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/influmatch/tokenledger/pkg/tokens"
	"go.uber.org/zap"
)

const signatureHeaderName = "X-Payment-Signature"

func (server *Server) handleWallet(ctx *gin.Context) {
	userID, err := tokens.NewUserID(sessionUserID(ctx))
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorEnvelope(errorCodeUnauthorized, "missing session"))
		return
	}
	wallet, err := server.fetchWallet(ctx, userID)
	if err != nil {
		server.logger.Error("wallet fetch failed", zap.Error(err))
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, WalletEnvelope{Wallet: wallet})
}

func (server *Server) handleContact(ctx *gin.Context) {
	userID, err := tokens.NewUserID(sessionUserID(ctx))
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorEnvelope(errorCodeUnauthorized, "missing session"))
		return
	}
	var request contactRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorEnvelope(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	if strings.TrimSpace(request.InfluencerID) == "" {
		ctx.JSON(http.StatusBadRequest, errorEnvelope(errorCodeInvalidPayload, "influencer_id is required"))
		return
	}
	result, err := server.market.ContactInfluencer(ctx.Request.Context(), userID, request.InfluencerID, request.Message)
	if err != nil {
		respondError(ctx, err)
		return
	}
	wallet, err := server.fetchWallet(ctx, userID)
	if err != nil {
		server.logger.Error("wallet fetch failed", zap.Error(err))
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, ContactEnvelope{
		ContactID:  result.ContactID,
		CostTokens: result.CostTokens,
		Wallet:     wallet,
	})
}

func (server *Server) handleBoost(ctx *gin.Context) {
	userID, err := tokens.NewUserID(sessionUserID(ctx))
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorEnvelope(errorCodeUnauthorized, "missing session"))
		return
	}
	var request boostRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorEnvelope(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	if strings.TrimSpace(request.PackageID) == "" {
		ctx.JSON(http.StatusBadRequest, errorEnvelope(errorCodeInvalidPayload, "package_id is required"))
		return
	}
	result, err := server.market.PurchaseBoost(ctx.Request.Context(), userID, request.PackageID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	wallet, err := server.fetchWallet(ctx, userID)
	if err != nil {
		server.logger.Error("wallet fetch failed", zap.Error(err))
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, BoostEnvelope{
		BoostID:        result.BoostID,
		CostTokens:     result.CostTokens,
		ExpiresUnixUTC: result.ExpiresUnixUTC,
		Wallet:         wallet,
	})
}

func (server *Server) handleContactPricing(ctx *gin.Context) {
	followerCount, err := strconv.ParseInt(ctx.Query("followers"), 10, 64)
	if err != nil || followerCount < 0 {
		ctx.JSON(http.StatusBadRequest, errorEnvelope(errorCodeInvalidPayload, "followers must be a non-negative integer"))
		return
	}
	ctx.JSON(http.StatusOK, PricingEnvelope{
		FollowerCount: followerCount,
		CostTokens:    tokens.ContactCost(followerCount),
	})
}

// handlePaymentWebhook consumes the raw body so the signature covers exactly
// the bytes the processor signed. 400 is reserved for signature failures;
// everything past verification is acknowledged.
func (server *Server) handlePaymentWebhook(ctx *gin.Context) {
	payload, err := ctx.GetRawData()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorEnvelope(errorCodeInvalidPayload, "unreadable body"))
		return
	}
	signatureHeader := ctx.GetHeader(signatureHeaderName)
	if err := server.processor.Process(ctx.Request.Context(), payload, signatureHeader); err != nil {
		ctx.JSON(http.StatusBadRequest, errorEnvelope(errorCodeInvalidSignature, "signature verification failed"))
		return
	}
	ctx.JSON(http.StatusOK, AckEnvelope{Received: true})
}

func (server *Server) fetchWallet(ctx *gin.Context, userID tokens.UserID) (WalletPayload, error) {
	requestCtx := ctx.Request.Context()
	balance, err := server.ledger.Balance(requestCtx, userID)
	if err != nil {
		return WalletPayload{}, err
	}
	history, err := server.ledger.History(requestCtx, userID, time.Now().UTC().Add(time.Second).Unix(), walletHistoryLimit)
	if err != nil {
		return WalletPayload{}, err
	}
	transactions := make([]TransactionPayload, 0, len(history))
	for _, transaction := range history {
		metadata := transaction.MetadataJSON
		if metadata == "" {
			metadata = "{}"
		}
		transactions = append(transactions, TransactionPayload{
			TransactionID:  transaction.TransactionID,
			Amount:         transaction.Amount,
			Status:         transaction.Status.String(),
			Type:           transaction.Type.String(),
			ReferenceID:    transaction.ReferenceID,
			Purpose:        transaction.Purpose,
			Metadata:       json.RawMessage(metadata),
			CreatedUnixUTC: transaction.CreatedUnixUTC,
		})
	}
	return WalletPayload{
		Balance:      WalletBalance{Tokens: balance.Tokens},
		Transactions: transactions,
	}, nil
}
