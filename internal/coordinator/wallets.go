package coordinator

import (
	"context"
	"fmt"
	"strings"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/ledger"
	"spray_ledger/internal/store"
	"spray_ledger/internal/wallet"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// OpenWallet registers the actor locally and opens their wallet. Opening
// twice returns the existing wallet with created == false.
func (c *Coordinator) OpenWallet(ctx context.Context, actor domain.User) (w domain.Wallet, created bool, err error) {
	log := logrus.WithField("user_id", actor.ID)
	err = c.atomic(ctx, "open_wallet", func(ctx context.Context, tx store.Tx) error {
		if err := tx.Users().Upsert(ctx, actor); err != nil {
			return domain.Wrap(domain.ErrInternal, err, "save user")
		}
		var err error
		w, created, err = c.wallets.Open(ctx, tx, actor)
		return err
	})
	if err != nil {
		logFailure(log, err, "open wallet failed")
		return domain.Wallet{}, false, err
	}
	if created {
		log.WithField("wallet_id", w.ID).Info("wallet opened")
	}
	return w, created, nil
}

// Wallet returns the wallet owned by userID.
func (c *Coordinator) Wallet(ctx context.Context, userID string) (domain.Wallet, error) {
	return c.wallets.GetUserWallet(ctx, c.store, userID)
}

// SetPin sets or replaces the access pin of the actor's wallet.
func (c *Coordinator) SetPin(ctx context.Context, userID, pin string) error {
	err := c.atomic(ctx, "set_pin", func(ctx context.Context, tx store.Tx) error {
		w, err := c.wallets.GetUserWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		return c.wallets.SetPin(ctx, tx, w.ID, pin)
	})
	if err != nil {
		logFailure(logrus.WithField("user_id", userID), err, "set pin failed")
	}
	return err
}

// SendRequest moves money between two users.
type SendRequest struct {
	SenderID    string
	Recipient   string // Username of the receiving user
	Amount      decimal.Decimal
	Description string
	Pin         string // Required when the sender's wallet has a pin
}

// Send debits the sender, credits the recipient and records one SEND entry
// referenced from both wallets.
func (c *Coordinator) Send(ctx context.Context, req SendRequest) (domain.Transaction, error) {
	log := logrus.WithFields(logrus.Fields{"user_id": req.SenderID, "recipient": req.Recipient})
	amount, err := positive(req.Amount)
	if err != nil {
		return domain.Transaction{}, err
	}

	var t domain.Transaction
	err = c.atomic(ctx, "send", func(ctx context.Context, tx store.Tx) error {
		from, err := c.wallets.GetUserWallet(ctx, tx, req.SenderID)
		if err != nil {
			return err
		}
		recipient, to, err := c.recipientWallet(ctx, tx, req.Recipient)
		if err != nil {
			return err
		}
		if from.ID == to.ID {
			return domain.Errorf(domain.ErrValidation, "transaction invalid: sender and recipient are the same")
		}
		if err := wallet.VerifyPin(from, req.Pin); err != nil {
			return err
		}

		if err := c.wallets.UpdateBalance(ctx, tx, domain.Debit, from.ID, amount); err != nil {
			return err
		}
		if err := c.wallets.UpdateBalance(ctx, tx, domain.Credit, to.ID, amount); err != nil {
			return err
		}
		desc := req.Description
		if desc == "" {
			desc = fmt.Sprintf("%s sent to %s", amount.StringFixed(domain.MoneyPlaces), recipient.Username)
		}
		t, err = c.record(ctx, tx, ledger.Details{
			Type:        domain.TransactionSend,
			Amount:      amount,
			Sender:      []string{from.ID},
			Recipient:   to.ID,
			Description: desc,
		}, domain.PaymentSuccess)
		if err != nil {
			return err
		}
		return c.appendRef(ctx, tx, t.TransactionID, from.ID, to.ID)
	})
	if err != nil {
		logFailure(log, err, "send failed")
		return domain.Transaction{}, err
	}
	countMoved(t)
	log.WithFields(logrus.Fields{"transaction_id": t.TransactionID, "amount": t.Amount}).Info("money sent")
	return t, nil
}

func (c *Coordinator) recipientWallet(ctx context.Context, repos store.Repositories, username string) (domain.User, domain.Wallet, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return domain.User{}, domain.Wallet{}, domain.Errorf(domain.ErrValidation, "recipient is required")
	}
	u, found, err := repos.Users().Find(ctx, domain.UserQuery{Username: username})
	if err != nil {
		return domain.User{}, domain.Wallet{}, domain.Wrap(domain.ErrInternal, err, "find user")
	}
	if !found {
		return domain.User{}, domain.Wallet{}, domain.Errorf(domain.ErrNotFound, "user %s not found", username)
	}
	var w domain.Wallet
	if u.WalletID != "" {
		w, err = c.wallets.GetWallet(ctx, repos, u.WalletID)
	} else {
		w, err = c.wallets.GetUserWallet(ctx, repos, u.ID)
	}
	return u, w, err
}

// Transactions lists the ledger entries touching the user's wallet, newest
// first, with the unpaginated total.
func (c *Coordinator) Transactions(ctx context.Context, userID string, f domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	w, err := c.wallets.GetUserWallet(ctx, c.store, userID)
	if err != nil {
		return nil, 0, err
	}
	return c.ledger.QueryUserTransactions(ctx, c.store, w.ID, f)
}

// Transaction returns one entry visible to userID.
func (c *Coordinator) Transaction(ctx context.Context, userID, id string) (domain.Transaction, error) {
	w, err := c.wallets.GetUserWallet(ctx, c.store, userID)
	if err != nil {
		return domain.Transaction{}, err
	}
	t, err := c.ledger.Get(ctx, c.store, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !t.Involves(w.ID) {
		return domain.Transaction{}, domain.Errorf(domain.ErrNotFound, "transaction %s not found", id)
	}
	return t, nil
}

// AllTransactions lists every entry matching f; admin only.
func (c *Coordinator) AllTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	return c.ledger.Query(ctx, c.store, f)
}

// User returns the local projection of userID.
func (c *Coordinator) User(ctx context.Context, userID string) (domain.User, error) {
	u, found, err := c.store.Users().Find(ctx, domain.UserQuery{ID: userID})
	if err != nil {
		return domain.User{}, domain.Wrap(domain.ErrInternal, err, "find user")
	}
	if !found {
		return domain.User{}, domain.Errorf(domain.ErrNotFound, "user %s not found", userID)
	}
	return u, nil
}

// UserAccount is a user with their wallet, nil until one is opened.
type UserAccount struct {
	User   domain.User
	Wallet *domain.Wallet
}

// Users lists a page of users with their wallets; admin only.
func (c *Coordinator) Users(ctx context.Context, limit, offset int) ([]UserAccount, int64, error) {
	users, total, err := c.store.Users().List(ctx, limit, offset)
	if err != nil {
		return nil, 0, domain.Wrap(domain.ErrInternal, err, "list users")
	}
	out := make([]UserAccount, 0, len(users))
	for _, u := range users {
		acct := UserAccount{User: u}
		w, found, err := c.store.Wallets().FindByUserID(ctx, u.ID)
		if err != nil {
			return nil, 0, domain.Wrap(domain.ErrInternal, err, "find wallet of %s", u.ID)
		}
		if found {
			acct.Wallet = &w
		}
		out = append(out, acct)
	}
	return out, total, nil
}

// WalletOwner returns the user holding walletID.
func (c *Coordinator) WalletOwner(ctx context.Context, walletID string) (string, error) {
	w, err := c.wallets.GetWallet(ctx, c.store, walletID)
	if err != nil {
		return "", err
	}
	return w.UserID, nil
}
