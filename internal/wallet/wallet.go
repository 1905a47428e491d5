// Package wallet owns wallet balances and their ordered ledger references.
package wallet

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`) // 4 to 6 digits

// Store implements the wallet operations on top of store repositories. Every
// method takes the repositories to run against: a store.Tx inside an atomic
// context, or the store itself for plain reads.
type Store struct {
	currency string           // Currency of newly opened wallets
	now      func() time.Time // Clock
}

// New returns a Store opening wallets in currency.
func New(currency string) *Store {
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return &Store{currency: strings.ToUpper(currency), now: time.Now}
}

// UpdateBalance debits or credits walletID by amount.
func (s *Store) UpdateBalance(ctx context.Context, repos store.Repositories, action domain.BalanceAction, walletID string, amount decimal.Decimal) error {
	if !action.Valid() {
		return domain.Errorf(domain.ErrValidation, "invalid balance action %q", action)
	}
	amount = domain.Round2(amount)
	if !amount.IsPositive() {
		return domain.Errorf(domain.ErrValidation, "amount must be greater than zero")
	}
	delta := amount
	if action == domain.Debit {
		delta = amount.Neg()
	}
	ok, err := repos.Wallets().IncrementBalance(ctx, walletID, delta)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "update wallet %s balance", walletID)
	}
	if ok {
		return nil
	}
	// Nothing matched: either the wallet is missing or the debit is not covered
	if _, err := s.GetWallet(ctx, repos, walletID); err != nil {
		return err
	}
	return domain.Errorf(domain.ErrInsufficientFunds, "insufficient funds in wallet %s", walletID)
}

// GetWallet looks up a wallet by id.
func (s *Store) GetWallet(ctx context.Context, repos store.Repositories, walletID string) (domain.Wallet, error) {
	w, found, err := repos.Wallets().FindByID(ctx, walletID)
	if err != nil {
		return domain.Wallet{}, domain.Wrap(domain.ErrInternal, err, "find wallet")
	}
	if !found {
		return domain.Wallet{}, domain.Errorf(domain.ErrNotFound, "wallet %s not found", walletID)
	}
	return w, nil
}

// GetUserWallet looks up the wallet owned by userID.
func (s *Store) GetUserWallet(ctx context.Context, repos store.Repositories, userID string) (domain.Wallet, error) {
	w, found, err := repos.Wallets().FindByUserID(ctx, userID)
	if err != nil {
		return domain.Wallet{}, domain.Wrap(domain.ErrInternal, err, "find user wallet")
	}
	if !found {
		return domain.Wallet{}, domain.Errorf(domain.ErrNotFound, "user %s has no wallet", userID)
	}
	return w, nil
}

// AppendTransactionRef records txID on the wallet and returns the new
// reference count. A zero count is a ledger integrity failure.
func (s *Store) AppendTransactionRef(ctx context.Context, repos store.Repositories, walletID, txID string) (int, error) {
	n, err := repos.Wallets().AppendTransactionRef(ctx, walletID, txID)
	if err != nil {
		return 0, domain.Wrap(domain.ErrInternal, err, "append transaction reference")
	}
	if n == 0 {
		return 0, domain.Errorf(domain.ErrLedgerIntegrity, "could not record transaction %s on wallet %s", txID, walletID)
	}
	return n, nil
}

// Open creates the wallet of user, or returns the existing one with
// created == false.
func (s *Store) Open(ctx context.Context, repos store.Repositories, user domain.User) (w domain.Wallet, created bool, err error) {
	if user.ID == "" {
		return domain.Wallet{}, false, domain.Errorf(domain.ErrValidation, "user id is required")
	}
	existing, found, err := repos.Wallets().FindByUserID(ctx, user.ID)
	if err != nil {
		return domain.Wallet{}, false, domain.Wrap(domain.ErrInternal, err, "find user wallet")
	}
	if found {
		return existing, false, nil
	}
	now := s.now().UTC()
	w = domain.Wallet{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		Balance:         decimal.Zero,
		Currency:        s.currency,
		TransactionRefs: []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := repos.Wallets().Create(ctx, &w); err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			return domain.Wallet{}, false, domain.Wrap(domain.ErrInvalidStateTransition, err, "user %s already has a wallet", user.ID)
		}
		return domain.Wallet{}, false, domain.Wrap(domain.ErrInternal, err, "create wallet")
	}
	if err := repos.Users().SetWalletID(ctx, user.ID, w.ID); err != nil {
		return domain.Wallet{}, false, domain.Wrap(domain.ErrInternal, err, "link wallet to user")
	}
	return w, true, nil
}

// SetPin stores a bcrypt hash of pin on the wallet.
func (s *Store) SetPin(ctx context.Context, repos store.Repositories, walletID, pin string) error {
	if !pinPattern.MatchString(pin) {
		return domain.Errorf(domain.ErrValidation, "pin must be 4 to 6 digits")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "hash pin")
	}
	ok, err := repos.Wallets().SetPinHash(ctx, walletID, string(hash))
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "store pin")
	}
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "wallet %s not found", walletID)
	}
	return nil
}

// VerifyPin checks pin against the wallet's hash. Wallets without a pin
// accept any value.
func VerifyPin(w domain.Wallet, pin string) error {
	if !w.HasPin() {
		return nil
	}
	if pin == "" {
		return domain.Errorf(domain.ErrUnauthorized, "wallet pin is required")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(w.PinHash), []byte(pin)); err != nil {
		return domain.Errorf(domain.ErrUnauthorized, "incorrect wallet pin")
	}
	return nil
}
