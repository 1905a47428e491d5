package memstore

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"spray_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

func (r *repos) Find(_ context.Context, q domain.UserQuery) (domain.User, bool, error) {
	var (
		user  domain.User
		found bool
	)
	err := r.with(func(st *state) error {
		if q.ID != "" {
			user, found = st.users[q.ID]
			return nil
		}
		for _, u := range st.users {
			if q.Username != "" && u.Username == q.Username {
				user, found = u, true
				return nil
			}
		}
		return nil
	})
	return user, found, err
}

func (r *repos) Upsert(_ context.Context, u domain.User) error {
	if _, err := r.inject("users.upsert"); err != nil {
		return err
	}
	return r.with(func(st *state) error {
		if existing, ok := st.users[u.ID]; ok && u.WalletID == "" {
			u.WalletID = existing.WalletID
		}
		st.users[u.ID] = u
		return nil
	})
}

func (r *repos) SetWalletID(_ context.Context, userID, walletID string) error {
	if _, err := r.inject("users.set_wallet"); err != nil {
		return err
	}
	return r.with(func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return nil
		}
		u.WalletID = walletID
		st.users[userID] = u
		return nil
	})
}

func (r *repos) List(_ context.Context, limit, offset int) ([]domain.User, int64, error) {
	var (
		out   []domain.User
		total int64
	)
	err := r.with(func(st *state) error {
		out = slices.Collect(maps.Values(st.users))
		slices.SortFunc(out, func(a, b domain.User) int {
			if c := strings.Compare(a.Username, b.Username); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
		total = int64(len(out))
		out = paginate(out, offset, limit)
		return nil
	})
	return out, total, err
}

func (r *repos) Create(_ context.Context, w *domain.Wallet) error {
	if _, err := r.inject("wallets.create"); err != nil {
		return err
	}
	return r.with(func(st *state) error {
		if _, ok := st.wallets[w.ID]; ok {
			return domain.ErrDuplicateKey
		}
		for _, existing := range st.wallets {
			if existing.UserID == w.UserID {
				return domain.ErrDuplicateKey
			}
		}
		st.wallets[w.ID] = copyWallet(*w)
		return nil
	})
}

func (r *repos) FindByID(_ context.Context, id string) (domain.Wallet, bool, error) {
	var (
		wallet domain.Wallet
		found  bool
	)
	err := r.with(func(st *state) error {
		var w domain.Wallet
		if w, found = st.wallets[id]; found {
			wallet = copyWallet(w)
		}
		return nil
	})
	return wallet, found, err
}

func (r *repos) FindByUserID(_ context.Context, userID string) (domain.Wallet, bool, error) {
	var (
		wallet domain.Wallet
		found  bool
	)
	err := r.with(func(st *state) error {
		for _, w := range st.wallets {
			if w.UserID == userID {
				wallet, found = copyWallet(w), true
				return nil
			}
		}
		return nil
	})
	return wallet, found, err
}

func (r *repos) IncrementBalance(_ context.Context, id string, delta decimal.Decimal) (bool, error) {
	noMatch, err := r.inject("wallets.increment_balance")
	if err != nil || noMatch {
		return false, err
	}
	var applied bool
	err = r.with(func(st *state) error {
		w, ok := st.wallets[id]
		if !ok {
			return nil
		}
		next := w.Balance.Add(delta)
		if delta.IsNegative() && next.IsNegative() {
			return nil
		}
		w.Balance = next
		w.UpdatedAt = time.Now().UTC()
		st.wallets[id] = w
		applied = true
		return nil
	})
	return applied, err
}

func (r *repos) AppendTransactionRef(_ context.Context, id, txID string) (int, error) {
	noMatch, err := r.inject("wallets.append_ref")
	if err != nil || noMatch {
		return 0, err
	}
	var count int
	err = r.with(func(st *state) error {
		w, ok := st.wallets[id]
		if !ok {
			return nil
		}
		w.TransactionRefs = append(w.TransactionRefs, txID)
		st.wallets[id] = w
		count = len(w.TransactionRefs)
		return nil
	})
	return count, err
}

func (r *repos) SetPinHash(_ context.Context, id, hash string) (bool, error) {
	noMatch, err := r.inject("wallets.set_pin")
	if err != nil || noMatch {
		return false, err
	}
	var applied bool
	err = r.with(func(st *state) error {
		w, ok := st.wallets[id]
		if !ok {
			return nil
		}
		w.PinHash = hash
		st.wallets[id] = w
		applied = true
		return nil
	})
	return applied, err
}
