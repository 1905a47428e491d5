package gormstore

import (
	"context"
	"time"

	"spray_ledger/internal/domain"

	"gorm.io/gorm"
)

type txRepo struct{ repos }

func (r *txRepo) Insert(ctx context.Context, t *domain.Transaction) error {
	row := toTransactionRow(t)
	return translate(r.db.WithContext(ctx).Create(&row).Error) // Senders are inserted with the entry
}

func (r *txRepo) FindByID(ctx context.Context, id string) (domain.Transaction, bool, error) {
	return r.findOne(ctx, "transaction_id = ?", id)
}

func (r *txRepo) FindByReference(ctx context.Context, reference string) (domain.Transaction, bool, error) {
	return r.findOne(ctx, "reference = ?", reference)
}

func (r *txRepo) findOne(ctx context.Context, cond, arg string) (domain.Transaction, bool, error) {
	var row transactionRow
	found, err := first(r.read(ctx).Preload("Senders", orderSenders).Where(cond, arg), &row)
	if !found || err != nil {
		return domain.Transaction{}, found, err
	}
	return row.toDomain(), true, nil
}

func orderSenders(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *txRepo) UpdateStatus(ctx context.Context, id string, from, to domain.PaymentStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&transactionRow{}).
		Where("transaction_id = ? AND status = ?", id, string(from)). // Only from the expected status
		Updates(map[string]any{"status": string(to), "updated_at": time.Now().UTC()})
	return res.RowsAffected == 1, res.Error
}

func (r *txRepo) List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&transactionRow{})
	if f.WalletID != "" {
		senders := r.db.Model(&transactionSenderRow{}).Select("transaction_id").Where("wallet_id = ?", f.WalletID)
		q = q.Where("recipient = ? OR transaction_id IN (?)", f.WalletID, senders)
	}
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at <= ?", f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q = q.Order("created_at DESC").Order("transaction_id DESC") // Newest first
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var rows []transactionRow
	if err := q.Preload("Senders", orderSenders).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, total, nil
}
