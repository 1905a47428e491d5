package coordinator

import (
	"context"
	"errors"
	"testing"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/gateway"
	"spray_ledger/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) transaction(t *testing.T, id string) domain.Transaction {
	t.Helper()
	tx, found, err := f.store.Transactions().FindByID(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	return tx
}

func TestFundingIsCreditedOnceOnConfirmation(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "0")
	ctx := context.Background()

	fund, err := f.c.InitiateFunding(ctx, ada, amount("500"))
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/"+fund.Transaction.Reference, fund.PaymentLink)
	assert.Equal(t, domain.PaymentPending, fund.Transaction.Status)
	assert.Equal(t, domain.PaymentMethodCard, fund.Transaction.PaymentMethod)
	assert.Empty(t, fund.Transaction.Sender)
	assert.Equal(t, fund.Transaction.TransactionID, fund.Transaction.Reference)
	assert.Equal(t, "0.00", f.balance(t, aw.ID))
	require.Len(t, f.gw.payments, 1)
	assert.Equal(t, "ada@example.com", f.gw.payments[0].Email)

	n := gateway.Notification{Reference: fund.Transaction.Reference, Amount: amount("500.00"), Status: "success"}
	res, err := f.c.HandleFundingNotification(ctx, n)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, domain.PaymentSuccess, res.Transaction.Status)
	assert.Equal(t, "500.00", f.balance(t, aw.ID))
	assert.Equal(t, []string{fund.Transaction.TransactionID}, f.refs(t, aw.ID))

	// Redelivery is acknowledged without a second credit
	res, err = f.c.HandleFundingNotification(ctx, n)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "500.00", f.balance(t, aw.ID))
	assert.Len(t, f.refs(t, aw.ID), 1)
}

func TestFundingNotificationRejections(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "0")
	ctx := context.Background()
	fund, err := f.c.InitiateFunding(ctx, ada, amount("500"))
	require.NoError(t, err)
	ref := fund.Transaction.Reference

	tests := []struct {
		name   string
		n      gateway.Notification
		expect error
	}{
		{"unknown reference", gateway.Notification{Reference: "FN-missing", Amount: amount("500"), Status: "success"}, domain.ErrNotFound},
		{"amount mismatch", gateway.Notification{Reference: ref, Amount: amount("5000"), Status: "success"}, domain.ErrValidation},
		{"zero amount", gateway.Notification{Reference: ref, Amount: amount("0"), Status: "success"}, domain.ErrValidation},
		{"missing reference", gateway.Notification{Amount: amount("500"), Status: "success"}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.c.HandleFundingNotification(ctx, tt.n)
			assert.ErrorIs(t, err, tt.expect)
			assert.Equal(t, "0.00", f.balance(t, aw.ID))
			assert.Equal(t, domain.PaymentPending, f.transaction(t, fund.Transaction.TransactionID).Status)
		})
	}
}

func TestFailedFundingNotificationNeverCredits(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "0")
	ctx := context.Background()
	fund, err := f.c.InitiateFunding(ctx, ada, amount("75.50"))
	require.NoError(t, err)

	res, err := f.c.HandleFundingNotification(ctx, gateway.Notification{Reference: fund.Transaction.Reference, Amount: amount("75.5"), Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, res.Transaction.Status)

	_, err = f.c.HandleFundingNotification(ctx, gateway.Notification{Reference: fund.Transaction.Reference, Amount: amount("75.5"), Status: "success"})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Equal(t, "0.00", f.balance(t, aw.ID))
}

func TestRepeatedFailedFundingNotificationIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "0")
	ctx := context.Background()
	fund, err := f.c.InitiateFunding(ctx, ada, amount("75.50"))
	require.NoError(t, err)
	n := gateway.Notification{Reference: fund.Transaction.Reference, Amount: amount("75.50"), Status: "failed"}

	res, err := f.c.HandleFundingNotification(ctx, n)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	res, err = f.c.HandleFundingNotification(ctx, n)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, domain.PaymentFailed, res.Transaction.Status)
	assert.Equal(t, "0.00", f.balance(t, aw.ID))
	assert.Empty(t, f.refs(t, aw.ID))
}

func TestFundingNotificationSurfacesIntegrityFailure(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "0")
	ctx := context.Background()
	fund, err := f.c.InitiateFunding(ctx, ada, amount("20"))
	require.NoError(t, err)
	f.failNth("wallets.append_ref", 1, memstore.ErrNoMatch)

	_, err = f.c.HandleFundingNotification(ctx, gateway.Notification{Reference: fund.Transaction.Reference, Amount: amount("20"), Status: "success"})
	assert.ErrorIs(t, err, domain.ErrLedgerIntegrity)

	f.fault = nil
	assert.Equal(t, "0.00", f.balance(t, aw.ID))
	assert.Equal(t, domain.PaymentPending, f.transaction(t, fund.Transaction.TransactionID).Status)
}

func TestFundingNotificationRespectsLock(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "0")
	ctx := context.Background()
	fund, err := f.c.InitiateFunding(ctx, ada, amount("20"))
	require.NoError(t, err)
	f.locker.held["lock:funding:"+fund.Transaction.Reference] = true

	_, err = f.c.HandleFundingNotification(ctx, gateway.Notification{Reference: fund.Transaction.Reference, Amount: amount("20"), Status: "success"})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Equal(t, "0.00", f.balance(t, aw.ID))
}

func TestInitiateFundingGatewayFailure(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "0")
	f.gw.initErr = errors.New("503 service unavailable")

	_, err := f.c.InitiateFunding(context.Background(), ada, amount("100"))
	assert.ErrorIs(t, err, domain.ErrExternalDependency)

	txs, _, err := f.c.Transactions(context.Background(), ada.ID, domain.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.PaymentFailed, txs[0].Status)
	assert.Equal(t, "0.00", f.balance(t, aw.ID))
}

func TestPurchaseCreditsSellerOnConfirmation(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "5")
	_, bw := f.user(t, "bob", "0")
	ctx := context.Background()

	buy, err := f.c.InitiatePurchase(ctx, ada, PurchaseRequest{Seller: "Bob", Amount: amount("40"), Description: "aso ebi"})
	require.NoError(t, err)
	pt := buy.Transaction
	assert.Equal(t, domain.TransactionPurchase, pt.Type)
	assert.Equal(t, domain.PaymentPending, pt.Status)
	assert.Equal(t, []string{aw.ID}, pt.Sender)
	assert.Equal(t, bw.ID, pt.Recipient)
	assert.Equal(t, pt.TransactionID, pt.Reference)
	assert.Equal(t, "https://pay.example/"+pt.Reference, buy.PaymentLink)
	assert.Equal(t, "0.00", f.balance(t, bw.ID))

	n := gateway.Notification{Reference: pt.Reference, Amount: amount("40"), Status: "success"}
	res, err := f.c.HandleFundingNotification(ctx, n)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "40.00", f.balance(t, bw.ID))
	assert.Equal(t, "5.00", f.balance(t, aw.ID))
	assert.Equal(t, []string{pt.TransactionID}, f.refs(t, aw.ID))
	assert.Equal(t, []string{pt.TransactionID}, f.refs(t, bw.ID))

	res, err = f.c.HandleFundingNotification(ctx, n)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "40.00", f.balance(t, bw.ID))
}

func TestPurchaseRejections(t *testing.T) {
	f := newFixture(t)
	ada, _ := f.user(t, "ada", "0")
	f.user(t, "bob", "0")
	ctx := context.Background()

	_, err := f.c.InitiatePurchase(ctx, ada, PurchaseRequest{Seller: "ada", Amount: amount("1")})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.c.InitiatePurchase(ctx, ada, PurchaseRequest{Seller: "carol", Amount: amount("1")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.c.InitiatePurchase(ctx, ada, PurchaseRequest{Seller: "bob", Amount: amount("0")})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, f.ledgerSize(t))

	f.gw.initErr = errors.New("503 service unavailable")
	_, err = f.c.InitiatePurchase(ctx, ada, PurchaseRequest{Seller: "bob", Amount: amount("1")})
	assert.ErrorIs(t, err, domain.ErrExternalDependency)
	txs, _, err := f.c.Transactions(ctx, ada.ID, domain.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionPurchase, txs[0].Type)
	assert.Equal(t, domain.PaymentFailed, txs[0].Status)
}

func TestWithdrawCompletesPayout(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "1000")

	tx, err := f.c.Withdraw(context.Background(), WithdrawRequest{UserID: ada.ID, Amount: amount("300"), BankCode: "044", AccountNumber: "0123456789"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSuccess, tx.Status)
	assert.Equal(t, domain.TransactionWithdraw, tx.Type)
	assert.Equal(t, "700.00", f.balance(t, aw.ID))
	assert.Equal(t, domain.PaymentSuccess, f.transaction(t, tx.TransactionID).Status)
	require.Len(t, f.gw.transfers, 1)
	assert.Equal(t, tx.Reference, f.gw.transfers[0].Reference)
}

func TestWithdrawRefundsRejectedPayout(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "1000")
	f.gw.transferErr = errors.New("account closed")

	_, err := f.c.Withdraw(context.Background(), WithdrawRequest{UserID: ada.ID, Amount: amount("300"), BankCode: "044", AccountNumber: "0123456789"})
	assert.ErrorIs(t, err, domain.ErrExternalDependency)
	assert.Equal(t, "1000.00", f.balance(t, aw.ID))

	txs, _, err := f.c.Transactions(context.Background(), ada.ID, domain.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.PaymentFailed, txs[0].Status)
}

func TestWithdrawWithoutFundsNeverCallsGateway(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "10")

	_, err := f.c.Withdraw(context.Background(), WithdrawRequest{UserID: ada.ID, Amount: amount("300"), BankCode: "044", AccountNumber: "0123456789"})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Empty(t, f.gw.transfers)
	assert.Equal(t, "10.00", f.balance(t, aw.ID))
	assert.Zero(t, f.ledgerSize(t))

	_, err = f.c.Withdraw(context.Background(), WithdrawRequest{UserID: ada.ID, Amount: amount("5")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestWithoutGatewayFundingIsUnavailable(t *testing.T) {
	f := newFixture(t)
	f.c.gateway = nil
	ada, _ := f.user(t, "ada", "10")

	_, err := f.c.InitiateFunding(context.Background(), ada, amount("5"))
	assert.ErrorIs(t, err, domain.ErrExternalDependency)
	_, err = f.c.Banks(context.Background())
	assert.ErrorIs(t, err, domain.ErrExternalDependency)
	assert.Zero(t, f.ledgerSize(t))
}
