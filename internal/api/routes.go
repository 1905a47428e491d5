package api

import (
	"spray_ledger/internal/coordinator" // Transaction coordinator
	"spray_ledger/internal/middleware"  // Auth and metrics
	"spray_ledger/internal/store"       // Role lookups

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// Deps are the collaborators shared by every handler
type Deps struct {
	Coordinator   *coordinator.Coordinator
	Users         store.UserRepository // Stored roles for admin checks
	Redis         *redis.Client        // Nil disables caching
	JWTSecret     string
	WebhookSecret string // Empty accepts unsigned callbacks
}

// RegisterRoutes mounts the wallet, event, webhook and admin routes
func RegisterRoutes(r *gin.Engine, d Deps) {
	co, rdb := d.Coordinator, d.Redis
	auth := middleware.JWTAuthMiddleware(d.JWTSecret)

	// Gateway callbacks are authenticated by signature, not JWT
	r.POST("/webhooks/funding", FundingWebhookHandler(co, rdb, d.WebhookSecret))

	walletGroup := r.Group("/wallet")
	walletGroup.Use(auth)
	{
		walletGroup.POST("", CreateWalletHandler(co, rdb))                      // Create wallet endpoint
		walletGroup.GET("", GetWalletHandler(co, rdb))                          // Get wallet endpoint
		walletGroup.PUT("/pin", SetPinHandler(co))                              // Set pin endpoint
		walletGroup.POST("/transfer", TransferHandler(co, rdb))                 // Transfer endpoint
		walletGroup.POST("/fund", FundWalletHandler(co, rdb))                   // Gateway top up endpoint
		walletGroup.POST("/purchase", PurchaseHandler(co, rdb))                 // Card purchase endpoint
		walletGroup.POST("/withdraw", WithdrawHandler(co, rdb))                 // Bank payout endpoint
		walletGroup.GET("/banks", BanksHandler(co, rdb))                        // Payout banks endpoint
		walletGroup.GET("/transactions", GetTransactionHistoryHandler(co, rdb)) // Transaction history endpoint
		walletGroup.GET("/transactions/:id", GetTransactionHandler(co))         // Single transaction endpoint
	}

	eventGroup := r.Group("/events")
	eventGroup.Use(auth)
	{
		eventGroup.POST("", CreateEventHandler(co))                                            // Create event
		eventGroup.GET("", ListPublicEventsHandler(co))                                        // Browse public events
		eventGroup.GET("/mine", MyEventsHandler(co))                                           // Caller's events
		eventGroup.GET("/:code", GetEventHandler(co, rdb))                                     // Event details
		eventGroup.PATCH("/:code", UpdateEventHandler(co, rdb))                                // Owner edits
		eventGroup.POST("/:code/start", EventStepHandler(co.StartEvent, rdb, "Event started")) // Go live
		eventGroup.POST("/:code/join", JoinEventHandler(co, rdb))                              // Join, paying any fee
		eventGroup.POST("/:code/leave", EventStepHandler(co.LeaveEvent, rdb, "Left event"))    // Leave
		eventGroup.POST("/:code/spray", SprayHandler(co, rdb))                                 // Tip into escrow
		eventGroup.POST("/:code/end", EndEventHandler(co, rdb))                                // Settle and complete
		eventGroup.POST("/:code/cancel", EventStepHandler(co.CancelEvent, rdb, "Event cancelled"))
	}

	adminGroup := r.Group("/admin")
	adminGroup.Use(auth, middleware.AdminOnlyMiddleware(d.Users))
	{
		adminGroup.GET("/users", ListUsersHandler(co, rdb))               // List users endpoint
		adminGroup.GET("/transactions", ListTransactionsHandler(co, rdb)) // List transactions endpoint
		adminGroup.GET("/users/:id/wallet", GetUserWalletHandler(co))     // Any user's wallet
	}
}
