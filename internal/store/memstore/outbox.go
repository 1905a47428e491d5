package memstore

import (
	"context"
	"time"

	"spray_ledger/internal/domain"
)

type outboxRepo struct{ repos }

func (r *outboxRepo) Insert(_ context.Context, m *domain.OutboxMessage) error {
	if _, err := r.inject("outbox.insert"); err != nil {
		return err
	}
	return r.with(func(st *state) error {
		if _, ok := st.outbox[m.ID]; ok {
			return domain.ErrDuplicateKey
		}
		st.outbox[m.ID] = *m
		st.outboxOrder = append(st.outboxOrder, m.ID)
		return nil
	})
}

func (r *outboxRepo) FetchPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	err := r.with(func(st *state) error {
		for _, id := range st.outboxOrder {
			if limit > 0 && len(out) >= limit {
				break
			}
			m := st.outbox[id]
			if m.Status != domain.OutboxPending {
				continue
			}
			m.Status = domain.OutboxProcessing
			st.outbox[id] = m
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

func (r *outboxRepo) MarkProcessed(_ context.Context, id string) error {
	return r.with(func(st *state) error {
		m, ok := st.outbox[id]
		if !ok {
			return domain.Errorf(domain.ErrNotFound, "outbox message %s not found", id)
		}
		now := time.Now().UTC()
		m.Status = domain.OutboxProcessed
		m.ProcessedAt = &now
		st.outbox[id] = m
		return nil
	})
}

// MarkForRetry puts the message back in the queue. It is given up on after
// MaxOutboxAttempts deliveries.
func (r *outboxRepo) MarkForRetry(_ context.Context, id string) error {
	return r.with(func(st *state) error {
		m, ok := st.outbox[id]
		if !ok {
			return domain.Errorf(domain.ErrNotFound, "outbox message %s not found", id)
		}
		m.Attempts++
		m.Status = domain.OutboxPending
		if m.Attempts >= domain.MaxOutboxAttempts {
			m.Status = domain.OutboxFailed
		}
		st.outbox[id] = m
		return nil
	})
}
