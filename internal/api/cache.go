package api

import (
	"context" // Context for Redis operations

	"spray_ledger/internal/coordinator" // Wallet owner lookups
	"spray_ledger/internal/domain"      // Importing domain models
	"spray_ledger/internal/utils"       // Utility functions

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// forgetUsers drops the cached wallet and history of each user, plus every
// cached admin listing
func forgetUsers(ctx context.Context, rdb *redis.Client, userIDs ...string) {
	if rdb == nil {
		return // Caching disabled
	}
	seen := map[string]bool{}
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		_ = utils.DeleteCache(ctx, rdb, utils.WalletKey(id))             // Invalidate wallet cache
		_ = utils.DeleteCachePrefix(ctx, rdb, utils.TxHistoryPrefix(id)) // Invalidate every history page
	}
	for _, prefix := range []string{utils.AdminTxPrefix, utils.AdminUsersPrefix} {
		if err := utils.DeleteCachePrefix(ctx, rdb, prefix); err != nil {
			logrus.WithError(err).Warn("Failed to invalidate admin cache")
		}
	}
}

// forgetTransaction invalidates the actor and every user whose wallet t touches
func forgetTransaction(ctx context.Context, co *coordinator.Coordinator, rdb *redis.Client, actorID string, t domain.Transaction) {
	if rdb == nil {
		return
	}
	users := []string{actorID}
	for _, walletID := range append([]string{t.Recipient}, t.Sender...) {
		owner, err := co.WalletOwner(ctx, walletID) // Resolve wallet to user
		if err != nil {
			logrus.WithFields(logrus.Fields{"wallet_id": walletID, "error": err.Error()}).Warn("Cache invalidation skipped wallet")
			continue
		}
		users = append(users, owner)
	}
	forgetUsers(ctx, rdb, users...)
}

// forgetEvent drops the cached event view
func forgetEvent(ctx context.Context, rdb *redis.Client, code string) {
	_ = utils.DeleteCache(ctx, rdb, utils.EventKey(code))
}
