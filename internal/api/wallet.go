package api

import (
	"net/http" // HTTP status codes
	"time"     // Time durations

	"spray_ledger/internal/coordinator" // Transaction coordinator
	"spray_ledger/internal/domain"      // Importing domain models
	"spray_ledger/internal/gateway"     // Bank listing
	"spray_ledger/internal/utils"       // Utility functions

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Exact amounts
)

// CreateWalletHandler opens the caller's wallet; repeating the call returns the existing one
func CreateWalletHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c) // Get actor from context
		if !ok {
			return
		}
		ctx := c.Request.Context()
		wallet, created, err := co.OpenWallet(ctx, user)
		if err != nil {
			respondError(c, err)
			return
		}
		if !created {
			c.JSON(http.StatusOK, gin.H{"message": "Wallet already exists", "wallet": wallet})
			return
		}
		forgetUsers(ctx, rdb, user.ID) // Invalidate wallet cache
		c.JSON(http.StatusCreated, gin.H{"message": "Wallet created", "wallet": wallet})
	}
}

// GetWalletHandler returns wallet info for the authenticated user
func GetWalletHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		cacheKey := utils.WalletKey(user.ID)                      // Cache key for wallet
		var wallet domain.Wallet                                  // Wallet struct to hold data
		found, err := utils.GetCache(ctx, rdb, cacheKey, &wallet) // Try to get from cache
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"wallet": wallet, "cached": true})
			return
		}
		if wallet, err = co.Wallet(ctx, user.ID); err != nil {
			respondError(c, err)
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, wallet, cacheTTL)        // Cache the wallet
		c.JSON(http.StatusOK, gin.H{"wallet": wallet, "cached": false}) // Return wallet info
	}
}

// SetPinRequest sets or replaces the wallet pin
type SetPinRequest struct {
	Pin string `json:"pin" binding:"required"` // Four to six digits
}

// SetPinHandler stores a new access pin for the caller's wallet
func SetPinHandler(co *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req SetPinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if err := co.SetPin(c.Request.Context(), user.ID, req.Pin); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Pin updated"})
	}
}

// TransferRequest represents a transfer request
type TransferRequest struct {
	ToUsername  string          `json:"to_username" binding:"required"` // Target username
	Amount      decimal.Decimal `json:"amount"`                         // Transfer amount
	Description string          `json:"description"`                    // Optional narration
	Pin         string          `json:"pin"`                            // Wallet pin, when one is set
}

// TransferHandler sends funds to another user's wallet
func TransferHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx := c.Request.Context()
		t, err := co.Send(ctx, coordinator.SendRequest{
			SenderID:    user.ID,         // Sender user ID
			Recipient:   req.ToUsername,  // Recipient username
			Amount:      req.Amount,      // Transfer amount
			Description: req.Description, // Narration
			Pin:         req.Pin,         // Wallet pin
		})
		if err != nil {
			respondError(c, err)
			return
		}
		forgetTransaction(ctx, co, rdb, user.ID, t) // Invalidate both parties
		c.JSON(http.StatusOK, gin.H{"message": "Transfer successful", "transaction": t})
	}
}

// FundRequest asks for a checkout link
type FundRequest struct {
	Amount decimal.Decimal `json:"amount"` // Top up amount
}

// FundWalletHandler records a pending top up and returns where to pay for it
func FundWalletHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req FundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
			return
		}
		ctx := c.Request.Context()
		res, err := co.InitiateFunding(ctx, user, req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		forgetUsers(ctx, rdb, user.ID) // The pending entry shows in history
		c.JSON(http.StatusCreated, gin.H{
			"transaction":  res.Transaction, // Pending FUND entry
			"payment_link": res.PaymentLink, // Gateway checkout
		})
	}
}

// PurchaseRequest pays a seller by card
type PurchaseRequest struct {
	Seller      string          `json:"seller" binding:"required"` // Seller username
	Amount      decimal.Decimal `json:"amount"`                    // Price
	Description string          `json:"description"`               // What is being bought
}

// PurchaseHandler records a pending purchase and returns where to pay for it
func PurchaseHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req PurchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx := c.Request.Context()
		res, err := co.InitiatePurchase(ctx, user, coordinator.PurchaseRequest{
			Seller:      req.Seller,
			Amount:      req.Amount,
			Description: req.Description,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		forgetTransaction(ctx, co, rdb, user.ID, res.Transaction) // Pending entry shows for both parties
		c.JSON(http.StatusCreated, gin.H{
			"transaction":  res.Transaction, // Pending PURCHASE entry
			"payment_link": res.PaymentLink, // Gateway checkout
		})
	}
}

// WithdrawRequest pays out to a bank account
type WithdrawRequest struct {
	Amount        decimal.Decimal `json:"amount"`                            // Payout amount
	BankCode      string          `json:"bank_code" binding:"required"`      // Destination bank
	AccountNumber string          `json:"account_number" binding:"required"` // Destination account
	Narration     string          `json:"narration"`                         // Optional narration
	Pin           string          `json:"pin"`                               // Wallet pin, when one is set
}

// WithdrawHandler debits the wallet and requests a bank payout
func WithdrawHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req WithdrawRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx := c.Request.Context()
		t, err := co.Withdraw(ctx, coordinator.WithdrawRequest{
			UserID:        user.ID,
			Amount:        req.Amount,
			BankCode:      req.BankCode,
			AccountNumber: req.AccountNumber,
			Narration:     req.Narration,
			Pin:           req.Pin,
		})
		forgetUsers(ctx, rdb, user.ID) // A refunded payout still leaves a FAILED entry
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Withdrawal submitted", "transaction": t})
	}
}

// banksKey caches the provider's bank list
const banksKey = "gateway:banks"

// BanksHandler lists the banks payouts can be sent to
func BanksHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var banks []gateway.Bank
		if found, err := utils.GetCache(ctx, rdb, banksKey, &banks); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"banks": banks, "cached": true})
			return
		}
		banks, err := co.Banks(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		_ = utils.SetCache(ctx, rdb, banksKey, banks, time.Hour) // Bank lists rarely change
		c.JSON(http.StatusOK, gin.H{"banks": banks, "cached": false})
	}
}

// GetTransactionHistoryHandler returns the transactions touching the caller's wallet
func GetTransactionHistoryHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		p := parsePage(c)
		f, err := parseTransactionFilter(c, p)
		if err != nil {
			respondError(c, err)
			return
		}
		ctx := c.Request.Context()
		cacheKey := utils.TxHistoryPrefix(user.ID) + queryKey(c, p, "type", "status", "from", "to") // Redis cache key
		var cached transactionPage
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached.Cached = true
			c.JSON(http.StatusOK, cached)
			return
		}
		txs, total, err := co.Transactions(ctx, user.ID, f)
		if err != nil {
			respondError(c, err)
			return
		}
		resp := newTransactionPage(txs, p, total)
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, cacheTTL) // Cache the page
		c.JSON(http.StatusOK, resp)
	}
}

// GetTransactionHandler returns one transaction of the caller's wallet
func GetTransactionHandler(co *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		t, err := co.Transaction(c.Request.Context(), user.ID, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction": t})
	}
}
