package gormstore

import (
	"context"
	"strings"
	"time"

	"spray_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type eventRepo struct{ repos }

func orderParticipants(db *gorm.DB) *gorm.DB {
	return db.Order("joined_at ASC").Order("user_id ASC")
}

func (r *eventRepo) Insert(ctx context.Context, e *domain.Event) error {
	row := toEventRow(e)
	return translate(r.db.WithContext(ctx).Create(&row).Error) // Participants are inserted with the event
}

func (r *eventRepo) FindByCode(ctx context.Context, code string) (domain.Event, bool, error) {
	var row eventRow
	found, err := first(r.read(ctx).Preload("Participants", orderParticipants).Where("code = ?", code), &row)
	if !found || err != nil {
		return domain.Event{}, found, err
	}
	return row.toDomain(), true, nil
}

func (r *eventRepo) List(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	q := r.db.WithContext(ctx).Model(&eventRow{})
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.Visibility != "" {
		q = q.Where("visibility = ?", string(f.Visibility))
	}
	if f.Name != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+escapeLike(strings.ToLower(f.Name))+"%")
	}
	q = q.Order("created_at DESC").Order("code ASC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var rows []eventRow
	if err := q.Preload("Participants", orderParticipants).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *eventRepo) IncrementAmount(ctx context.Context, code string, delta decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Model(&eventRow{}).
		Where("code = ? AND status = ?", code, string(domain.EventActive)). // Only running events take deposits
		Updates(map[string]any{"amount": gorm.Expr("amount + ?", delta), "updated_at": time.Now().UTC()})
	return res.RowsAffected == 1, res.Error
}

func (r *eventRepo) UpdateStatus(ctx context.Context, code string, from, to domain.EventStatus, at time.Time) (bool, error) {
	fields := map[string]any{"status": string(to), "updated_at": at}
	switch {
	case to == domain.EventActive:
		fields["started_at"] = at
	case to.Terminal():
		fields["finish_time"] = at
	}
	res := r.db.WithContext(ctx).Model(&eventRow{}).
		Where("code = ? AND status = ?", code, string(from)).
		Updates(fields)
	return res.RowsAffected == 1, res.Error
}

func (r *eventRepo) UpdateDetails(ctx context.Context, e *domain.Event) (bool, error) {
	res := r.db.WithContext(ctx).Model(&eventRow{}).
		Where("code = ? AND status = ?", e.Code, string(e.Status)).
		Updates(map[string]any{
			"name":         e.Name,
			"description":  e.Description,
			"visibility":   string(e.Visibility),
			"is_scheduled": e.IsScheduled,
			"start_date":   e.StartDate,
			"updated_at":   e.UpdatedAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *eventRepo) Settle(ctx context.Context, code string, expected decimal.Decimal, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&eventRow{}).
		Where("code = ? AND status IN ? AND amount = ?", code, openStatuses(), expected). // Still open and untouched since read
		Updates(map[string]any{
			"amount":      decimal.Zero,
			"status":      string(domain.EventCompleted),
			"finish_time": at,
			"updated_at":  at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *eventRepo) SaveParticipant(ctx context.Context, code string, p domain.Participant) error {
	db := r.db.WithContext(ctx)
	var n int64
	if err := db.Model(&eventRow{}).Where("code = ?", code).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return domain.Errorf(domain.ErrNotFound, "event %s not found", code)
	}
	row := toParticipantRow(code, p)
	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func openStatuses() []string {
	out := make([]string, 0, len(domain.OpenEventStatuses))
	for _, s := range domain.OpenEventStatuses {
		out = append(out, string(s))
	}
	return out
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
