package gormstore

import (
	"context"
	"time"

	"spray_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *repos) Find(ctx context.Context, q domain.UserQuery) (domain.User, bool, error) {
	var row userRow
	query := r.read(ctx)
	switch {
	case q.ID != "":
		query = query.Where("id = ?", q.ID)
	case q.Username != "":
		query = query.Where("username = ?", q.Username)
	default:
		return domain.User{}, false, nil
	}
	found, err := first(query, &row)
	return row.toDomain(), found, err
}

// Upsert refreshes identity fields but never touches wallet_id
func (r *repos) Upsert(ctx context.Context, u domain.User) error {
	row := toUserRow(u)
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "email", "role"}),
	}).Create(&row).Error)
}

func (r *repos) SetWalletID(ctx context.Context, userID, walletID string) error {
	return r.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", userID).Update("wallet_id", walletID).Error
}

func (r *repos) List(ctx context.Context, limit, offset int) ([]domain.User, int64, error) {
	q := r.db.WithContext(ctx).Model(&userRow{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	q = q.Order("username ASC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var rows []userRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, total, nil
}

func (r *repos) Create(ctx context.Context, w *domain.Wallet) error {
	row := toWalletRow(w)
	return translate(r.db.WithContext(ctx).Create(&row).Error) // Refs are inserted with the wallet
}

func (r *repos) FindByID(ctx context.Context, id string) (domain.Wallet, bool, error) {
	return r.findWallet(ctx, "id = ?", id)
}

func (r *repos) FindByUserID(ctx context.Context, userID string) (domain.Wallet, bool, error) {
	return r.findWallet(ctx, "user_id = ?", userID)
}

func (r *repos) findWallet(ctx context.Context, cond string, arg string) (domain.Wallet, bool, error) {
	var row walletRow
	query := r.read(ctx).Preload("Refs", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC") // Insertion order
	}).Where(cond, arg)
	found, err := first(query, &row)
	if !found || err != nil {
		return domain.Wallet{}, found, err
	}
	return row.toDomain(), true, nil
}

// IncrementBalance issues a single conditional UPDATE so the overdraft check
// and the write cannot interleave with another writer
func (r *repos) IncrementBalance(ctx context.Context, id string, delta decimal.Decimal) (bool, error) {
	q := r.db.WithContext(ctx).Model(&walletRow{}).Where("id = ?", id)
	if delta.IsNegative() {
		q = q.Where("balance >= ?", delta.Neg()) // Never go below zero
	}
	res := q.Updates(map[string]any{
		"balance":    gorm.Expr("balance + ?", delta),
		"updated_at": time.Now().UTC(),
	})
	return res.RowsAffected == 1, res.Error
}

func (r *repos) AppendTransactionRef(ctx context.Context, id, txID string) (int, error) {
	db := r.db.WithContext(ctx)
	var n int64
	if err := db.Model(&walletRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil // Unknown wallet
	}
	if err := db.Create(&walletRefRow{WalletID: id, TransactionID: txID}).Error; err != nil {
		return 0, translate(err)
	}
	if err := db.Model(&walletRefRow{}).Where("wallet_id = ?", id).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *repos) SetPinHash(ctx context.Context, id, hash string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&walletRow{}).Where("id = ?", id).Updates(map[string]any{
		"pin_hash":   hash,
		"updated_at": time.Now().UTC(), // Keeps RowsAffected at 1 when the hash is unchanged
	})
	return res.RowsAffected == 1, res.Error
}
