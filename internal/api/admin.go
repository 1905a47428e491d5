package api

import (
	"net/http" // HTTP status codes

	"spray_ledger/internal/coordinator" // Transaction coordinator
	"spray_ledger/internal/domain"      // Importing domain models
	"spray_ledger/internal/utils"       // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// ListUsersHandler returns all users with their wallet info
func ListUsersHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := parsePage(c)
		ctx := c.Request.Context()
		cacheKey := utils.AdminUsersPrefix + queryKey(c, p) // Cache key based on pagination parameters
		var cached userPage
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached.Cached = true // Indicate response is from cache
			c.JSON(http.StatusOK, cached)
			return
		}
		accounts, total, err := co.Users(ctx, p.Size, p.offset())
		if err != nil {
			respondError(c, err)
			return
		}
		resp := userPage{
			Users:      make([]UserAdminResponse, len(accounts)),
			Page:       p.Number,
			PageSize:   p.Size,
			Total:      total,
			TotalPages: p.totalPages(total),
		}
		// Map users to response format
		for i, a := range accounts {
			resp.Users[i] = UserAdminResponse{
				ID:       a.User.ID,       // User ID
				Username: a.User.Username, // Username
				Role:     a.User.Role,     // User role
				Wallet:   a.Wallet,        // Associated wallet
			}
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, cacheTTL) // Cache the response for future requests
		c.JSON(http.StatusOK, resp)
	}
}

// UserAdminResponse represents the user data returned to admin
type UserAdminResponse struct {
	ID       string         `json:"id"`       // User ID
	Username string         `json:"username"` // Username
	Role     string         `json:"role"`     // User role
	Wallet   *domain.Wallet `json:"wallet"`   // Associated wallet, null before one is opened
}

// userPage is one page of users as returned and cached
type userPage struct {
	Users      []UserAdminResponse `json:"users"`       // List of users
	Page       int                 `json:"page"`        // Current page
	PageSize   int                 `json:"page_size"`   // Page size
	Total      int64               `json:"total"`       // Total number of users
	TotalPages int                 `json:"total_pages"` // Total pages
	Cached     bool                `json:"cached"`      // Served from Redis
}

// ListTransactionsHandler returns all transactions, with optional filtering by user, wallet, type, status or date
func ListTransactionsHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := parsePage(c)
		f, err := parseTransactionFilter(c, p)
		if err != nil {
			respondError(c, err)
			return
		}
		ctx := c.Request.Context()
		// Build cache key from all query params
		cacheKey := utils.AdminTxPrefix + queryKey(c, p, "user_id", "wallet_id", "type", "status", "from", "to")
		var cached transactionPage
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached.Cached = true // Indicate response is from cache
			c.JSON(http.StatusOK, cached)
			return
		}
		f.WalletID = c.Query("wallet_id") // Filter by wallet
		if userID := c.Query("user_id"); userID != "" {
			w, err := co.Wallet(ctx, userID) // Filter by the user's wallet
			if err != nil {
				respondError(c, err)
				return
			}
			f.WalletID = w.ID
		}
		txs, total, err := co.AllTransactions(ctx, f)
		if err != nil {
			respondError(c, err)
			return
		}
		resp := newTransactionPage(txs, p, total)
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, cacheTTL) // Cache the response for future requests
		c.JSON(http.StatusOK, resp)
	}
}

// UserWalletResponse is a user with their wallet, for admins
type UserWalletResponse struct {
	User   domain.User   `json:"user"`   // Local user projection
	Wallet domain.Wallet `json:"wallet"` // Associated wallet
}

// GetUserWalletHandler returns any user's wallet
func GetUserWalletHandler(co *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		u, err := co.User(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		w, err := co.Wallet(ctx, u.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, UserWalletResponse{User: u, Wallet: w})
	}
}
