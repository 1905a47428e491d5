package gormstore

import (
	"context"
	"time"

	"spray_ledger/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type outboxRepo struct{ repos }

func (r *outboxRepo) Insert(ctx context.Context, m *domain.OutboxMessage) error {
	row := toOutboxRow(m)
	return translate(r.db.WithContext(ctx).Create(&row).Error)
}

// FetchPending claims a batch so concurrent workers never see the same message
func (r *outboxRepo) FetchPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	var rows []outboxRow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", string(domain.OutboxPending)).
			Order("created_at ASC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		if err := q.Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		return tx.Model(&outboxRow{}).Where("id IN ?", ids).Update("status", string(domain.OutboxProcessing)).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		m := row.toDomain()
		m.Status = domain.OutboxProcessing
		out = append(out, m)
	}
	return out, nil
}

func (r *outboxRepo) MarkProcessed(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&outboxRow{}).Where("id = ?", id).Updates(map[string]any{
		"status":       string(domain.OutboxProcessed),
		"processed_at": now,
	}).Error
}

// MarkForRetry re-queues the message, parking it as FAILED after too many attempts
func (r *outboxRepo) MarkForRetry(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)
	err := db.Model(&outboxRow{}).Where("id = ?", id).Updates(map[string]any{
		"attempts": gorm.Expr("attempts + 1"),
		"status":   string(domain.OutboxPending),
	}).Error
	if err != nil {
		return err
	}
	return db.Model(&outboxRow{}).
		Where("id = ? AND attempts >= ?", id, domain.MaxOutboxAttempts).
		Update("status", string(domain.OutboxFailed)).Error
}
