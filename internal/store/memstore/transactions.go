package memstore

import (
	"context"
	"slices"
	"time"

	"spray_ledger/internal/domain"
)

type txRepo struct{ repos }

func (r *txRepo) Insert(_ context.Context, t *domain.Transaction) error {
	if _, err := r.inject("transactions.insert"); err != nil {
		return err
	}
	return r.with(func(st *state) error {
		if _, ok := st.transactions[t.TransactionID]; ok {
			return domain.ErrDuplicateKey
		}
		st.transactions[t.TransactionID] = copyTransaction(*t)
		st.txOrder = append(st.txOrder, t.TransactionID)
		return nil
	})
}

func (r *txRepo) FindByID(_ context.Context, id string) (domain.Transaction, bool, error) {
	var (
		txn   domain.Transaction
		found bool
	)
	err := r.with(func(st *state) error {
		var t domain.Transaction
		if t, found = st.transactions[id]; found {
			txn = copyTransaction(t)
		}
		return nil
	})
	return txn, found, err
}

func (r *txRepo) FindByReference(_ context.Context, reference string) (domain.Transaction, bool, error) {
	var (
		txn   domain.Transaction
		found bool
	)
	err := r.with(func(st *state) error {
		for _, id := range st.txOrder {
			if t := st.transactions[id]; t.Reference == reference {
				txn, found = copyTransaction(t), true
				return nil
			}
		}
		return nil
	})
	return txn, found, err
}

func (r *txRepo) UpdateStatus(_ context.Context, id string, from, to domain.PaymentStatus) (bool, error) {
	noMatch, err := r.inject("transactions.update_status")
	if err != nil || noMatch {
		return false, err
	}
	var applied bool
	err = r.with(func(st *state) error {
		t, ok := st.transactions[id]
		if !ok || t.Status != from {
			return nil
		}
		t.Status = to
		t.UpdatedAt = time.Now().UTC()
		st.transactions[id] = t
		applied = true
		return nil
	})
	return applied, err
}

func (r *txRepo) List(_ context.Context, f domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	var (
		out   []domain.Transaction
		total int64
	)
	err := r.with(func(st *state) error {
		// Walk newest insertion first so equal timestamps keep that order
		// after the stable sort.
		for i := len(st.txOrder) - 1; i >= 0; i-- {
			t := st.transactions[st.txOrder[i]]
			if f.Matches(t) {
				out = append(out, copyTransaction(t))
			}
		}
		slices.SortStableFunc(out, func(a, b domain.Transaction) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
		total = int64(len(out))
		out = paginate(out, f.Offset, f.Limit)
		return nil
	})
	return out, total, err
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
