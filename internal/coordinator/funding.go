package coordinator

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/gateway"
	"spray_ledger/internal/ledger"
	"spray_ledger/internal/store"
	"spray_ledger/internal/wallet"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// FundingResult is a pending top up and where to pay for it.
type FundingResult struct {
	Transaction domain.Transaction
	PaymentLink string
}

// InitiateFunding records a PENDING FUND entry for the actor's wallet and
// asks the gateway for a checkout. The wallet is credited only when the
// gateway confirms the payment through HandleFundingNotification.
func (c *Coordinator) InitiateFunding(ctx context.Context, actor domain.User, amount decimal.Decimal) (FundingResult, error) {
	log := logrus.WithField("user_id", actor.ID)
	amount, err := positive(amount)
	if err != nil {
		return FundingResult{}, err
	}
	if c.gateway == nil {
		return FundingResult{}, domain.Errorf(domain.ErrExternalDependency, "payment gateway is not configured")
	}
	if actor.Email == "" {
		return FundingResult{}, domain.Errorf(domain.ErrValidation, "an email address is required to fund a wallet")
	}

	var t domain.Transaction
	err = c.atomic(ctx, "initiate_funding", func(ctx context.Context, tx store.Tx) error {
		w, err := c.wallets.GetUserWallet(ctx, tx, actor.ID)
		if err != nil {
			return err
		}
		t, err = c.record(ctx, tx, ledger.Details{
			Type:          domain.TransactionFund,
			Amount:        amount,
			Currency:      w.Currency,
			Recipient:     w.ID,
			PaymentMethod: domain.PaymentMethodCard,
			Description:   fmt.Sprintf("wallet top up of %s", amount.StringFixed(domain.MoneyPlaces)),
			Meta:          map[string]any{"email": actor.Email},
		}, domain.PaymentPending)
		return err
	})
	if err != nil {
		logFailure(log, err, "initiate funding failed")
		return FundingResult{}, err
	}
	link, err := c.checkout(ctx, log, t, actor.Email)
	if err != nil {
		return FundingResult{}, err
	}
	return FundingResult{Transaction: t, PaymentLink: link}, nil
}

// PurchaseRequest pays a seller through a gateway checkout.
type PurchaseRequest struct {
	Seller      string // Seller username
	Amount      decimal.Decimal
	Description string
}

// InitiatePurchase records a PENDING PURCHASE entry from the buyer's wallet
// to the seller's and asks the gateway for a checkout. The buyer pays by
// card, so no wallet is debited; the seller is credited when the gateway
// confirms the payment through HandleFundingNotification.
func (c *Coordinator) InitiatePurchase(ctx context.Context, buyer domain.User, req PurchaseRequest) (FundingResult, error) {
	log := logrus.WithFields(logrus.Fields{"user_id": buyer.ID, "seller": req.Seller})
	amount, err := positive(req.Amount)
	if err != nil {
		return FundingResult{}, err
	}
	if c.gateway == nil {
		return FundingResult{}, domain.Errorf(domain.ErrExternalDependency, "payment gateway is not configured")
	}
	if buyer.Email == "" {
		return FundingResult{}, domain.Errorf(domain.ErrValidation, "an email address is required to pay by card")
	}

	var t domain.Transaction
	err = c.atomic(ctx, "initiate_purchase", func(ctx context.Context, tx store.Tx) error {
		bw, err := c.wallets.GetUserWallet(ctx, tx, buyer.ID)
		if err != nil {
			return err
		}
		seller, sw, err := c.recipientWallet(ctx, tx, req.Seller)
		if err != nil {
			return err
		}
		if sw.ID == bw.ID {
			return domain.Errorf(domain.ErrValidation, "cannot buy from yourself")
		}
		description := strings.TrimSpace(req.Description)
		if description == "" {
			description = fmt.Sprintf("purchase from %s", seller.Username)
		}
		t, err = c.record(ctx, tx, ledger.Details{
			Type:          domain.TransactionPurchase,
			Amount:        amount,
			Currency:      sw.Currency,
			Sender:        []string{bw.ID},
			Recipient:     sw.ID,
			PaymentMethod: domain.PaymentMethodCard,
			Description:   description,
			Meta:          map[string]any{"email": buyer.Email, "seller_id": seller.ID},
		}, domain.PaymentPending)
		return err
	})
	if err != nil {
		logFailure(log, err, "initiate purchase failed")
		return FundingResult{}, err
	}
	link, err := c.checkout(ctx, log, t, buyer.Email)
	if err != nil {
		return FundingResult{}, err
	}
	return FundingResult{Transaction: t, PaymentLink: link}, nil
}

// checkout asks the gateway to collect t. On failure no money has moved, so
// the entry is closed as FAILED and can never be settled.
func (c *Coordinator) checkout(ctx context.Context, log *logrus.Entry, t domain.Transaction, email string) (string, error) {
	log = log.WithField("reference", t.Reference)
	link, gwErr := c.gateway.InitializePayment(ctx, gateway.PaymentRequest{
		Reference: t.Reference,
		Email:     email,
		Amount:    t.Amount,
		Currency:  t.Currency,
	})
	if gwErr != nil {
		err := c.atomic(context.WithoutCancel(ctx), "fail_checkout", func(ctx context.Context, tx store.Tx) error {
			_, err := c.settleStatus(ctx, tx, t, domain.PaymentFailed)
			return err
		})
		if err != nil {
			log.WithError(err).Error("failed to close entry after gateway error")
		}
		logFailure(log, gwErr, "payment initialization failed")
		return "", domain.Wrap(domain.ErrExternalDependency, gwErr, "could not initialize payment")
	}
	log.WithFields(logrus.Fields{"type": t.Type, "amount": t.Amount}).Info("checkout initiated")
	return link.URL, nil
}

// NotificationResult is the outcome of a settlement callback.
type NotificationResult struct {
	Transaction domain.Transaction
	Applied     bool // False for a redelivery that changed nothing
}

// HandleFundingNotification applies a gateway callback for a FUND or
// PURCHASE reference by crediting the recipient wallet. Only a PENDING entry
// is ever settled, so redelivering a notification never credits a wallet
// twice.
func (c *Coordinator) HandleFundingNotification(ctx context.Context, n gateway.Notification) (NotificationResult, error) {
	ref := strings.TrimSpace(n.Reference)
	log := logrus.WithFields(logrus.Fields{"reference": ref, "status": n.Status})
	if ref == "" {
		return NotificationResult{}, domain.Errorf(domain.ErrValidation, "reference is required")
	}
	amount, err := positive(n.Amount)
	if err != nil {
		return NotificationResult{}, err
	}

	if c.locker != nil {
		key := "lock:funding:" + ref
		ok, err := c.locker.Acquire(ctx, key, c.lockTTL)
		switch {
		case err != nil:
			// The PENDING guard alone still prevents a double credit
			log.WithError(err).Warn("funding lock unavailable, continuing without it")
		case !ok:
			return NotificationResult{}, domain.Errorf(domain.ErrInvalidStateTransition, "notification for %s is already being processed", ref)
		default:
			defer func() {
				if err := c.locker.Release(context.WithoutCancel(ctx), key); err != nil {
					log.WithError(err).Warn("failed to release funding lock")
				}
			}()
		}
	}

	var res NotificationResult
	err = c.atomic(ctx, "fund_webhook", func(ctx context.Context, tx store.Tx) error {
		t, err := c.ledger.GetByReference(ctx, tx, ref)
		if err != nil {
			return err
		}
		res = NotificationResult{Transaction: t}
		if t.Type != domain.TransactionFund && t.Type != domain.TransactionPurchase {
			return domain.Errorf(domain.ErrValidation, "reference %s is not a card payment", ref)
		}
		if t.Status != domain.PaymentPending {
			if (t.Status == domain.PaymentSuccess) == n.Succeeded() {
				return nil // Redelivery of the recorded outcome
			}
			return domain.Errorf(domain.ErrInvalidStateTransition, "funding %s is already %s", ref, t.Status)
		}
		if !amount.Equal(t.Amount) {
			return domain.Errorf(domain.ErrValidation, "amount %s does not match funding of %s", amount.StringFixed(domain.MoneyPlaces), t.Amount.StringFixed(domain.MoneyPlaces))
		}

		if !n.Succeeded() {
			res.Transaction, err = c.settleStatus(ctx, tx, t, domain.PaymentFailed)
			res.Applied = err == nil
			return err
		}
		if err := c.wallets.UpdateBalance(ctx, tx, domain.Credit, t.Recipient, t.Amount); err != nil {
			return err
		}
		if res.Transaction, err = c.settleStatus(ctx, tx, t, domain.PaymentSuccess); err != nil {
			return err
		}
		res.Applied = true
		return c.appendRef(ctx, tx, t.TransactionID, append(slices.Clone(t.Sender), t.Recipient)...)
	})
	if err != nil {
		logFailure(log, err, "funding notification failed")
		return NotificationResult{}, err
	}
	if !res.Applied {
		log.Info("funding notification already applied")
		return res, nil
	}
	if res.Transaction.Status == domain.PaymentSuccess {
		countMoved(res.Transaction)
	}
	log = log.WithFields(logrus.Fields{
		"transaction_id": res.Transaction.TransactionID,
		"wallet_id":      res.Transaction.Recipient,
		"amount":         res.Transaction.Amount,
	})
	if res.Transaction.Status == domain.PaymentFailed {
		log.Warn("funding failed")
		return res, nil
	}
	log.Info("funding settled")
	return res, nil
}

// WithdrawRequest pays money out of the actor's wallet to a bank account.
type WithdrawRequest struct {
	UserID        string
	Amount        decimal.Decimal
	BankCode      string
	AccountNumber string
	Narration     string
	Pin           string
}

// Withdraw debits the wallet and records a PENDING WITHDRAW entry in one
// atomic context, then requests the payout. A rejected payout is compensated
// in a second atomic context that refunds the wallet and fails the entry.
func (c *Coordinator) Withdraw(ctx context.Context, req WithdrawRequest) (domain.Transaction, error) {
	log := logrus.WithField("user_id", req.UserID)
	amount, err := positive(req.Amount)
	if err != nil {
		return domain.Transaction{}, err
	}
	if strings.TrimSpace(req.BankCode) == "" || strings.TrimSpace(req.AccountNumber) == "" {
		return domain.Transaction{}, domain.Errorf(domain.ErrValidation, "bank code and account number are required")
	}
	if c.gateway == nil {
		return domain.Transaction{}, domain.Errorf(domain.ErrExternalDependency, "payment gateway is not configured")
	}

	var t domain.Transaction
	err = c.atomic(ctx, "withdraw", func(ctx context.Context, tx store.Tx) error {
		w, err := c.wallets.GetUserWallet(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if err := wallet.VerifyPin(w, req.Pin); err != nil {
			return err
		}
		if err := c.wallets.UpdateBalance(ctx, tx, domain.Debit, w.ID, amount); err != nil {
			return err
		}
		t, err = c.record(ctx, tx, ledger.Details{
			Type:          domain.TransactionWithdraw,
			Amount:        amount,
			Currency:      w.Currency,
			Sender:        []string{w.ID},
			Recipient:     w.ID,
			PaymentMethod: domain.PaymentMethodBank,
			Description:   req.Narration,
			Meta: map[string]any{
				"bank_code":      req.BankCode,
				"account_number": req.AccountNumber,
			},
		}, domain.PaymentPending)
		if err != nil {
			return err
		}
		return c.appendRef(ctx, tx, t.TransactionID, w.ID)
	})
	if err != nil {
		logFailure(log, err, "withdraw failed")
		return domain.Transaction{}, err
	}
	log = log.WithFields(logrus.Fields{"transaction_id": t.TransactionID, "amount": t.Amount})

	payout, gwErr := c.gateway.Transfer(ctx, gateway.TransferRequest{
		Reference:     t.Reference,
		Amount:        t.Amount,
		Currency:      t.Currency,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		Narration:     req.Narration,
	})
	// The debit already committed; finish the entry even if the caller left
	bg := context.WithoutCancel(ctx)
	if gwErr != nil {
		logFailure(log, gwErr, "payout failed, refunding wallet")
		err := c.atomic(bg, "refund_withdraw", func(ctx context.Context, tx store.Tx) error {
			if err := c.wallets.UpdateBalance(ctx, tx, domain.Credit, t.Sender[0], t.Amount); err != nil {
				return err
			}
			_, err := c.settleStatus(ctx, tx, t, domain.PaymentFailed)
			return err
		})
		if err != nil {
			log.WithError(err).Error("failed to refund wallet after payout failure")
			return domain.Transaction{}, domain.Wrap(domain.ErrLedgerIntegrity, err, "payout failed and withdrawal %s could not be refunded", t.TransactionID)
		}
		return domain.Transaction{}, domain.Wrap(domain.ErrExternalDependency, gwErr, "payout failed; the amount was returned to your wallet")
	}

	done := t
	err = c.atomic(bg, "complete_withdraw", func(ctx context.Context, tx store.Tx) error {
		var err error
		done, err = c.settleStatus(ctx, tx, t, domain.PaymentSuccess)
		return err
	})
	if err != nil {
		// The payout went out; leave the entry PENDING for reconciliation
		log.WithError(err).Error("failed to complete withdrawal after payout")
		return t, nil
	}
	t = done
	countMoved(t)
	log.WithField("provider_reference", payout.ProviderReference).Info("withdrawal completed")
	return t, nil
}

// Banks lists payout destination banks.
func (c *Coordinator) Banks(ctx context.Context) ([]gateway.Bank, error) {
	if c.gateway == nil {
		return nil, domain.Errorf(domain.ErrExternalDependency, "payment gateway is not configured")
	}
	banks, err := c.gateway.Banks(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.ErrExternalDependency, err, "could not list banks")
	}
	return banks, nil
}
