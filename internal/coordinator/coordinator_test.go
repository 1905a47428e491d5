package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/escrow"
	"spray_ledger/internal/gateway"
	"spray_ledger/internal/ledger"
	"spray_ledger/internal/store/memstore"
	"spray_ledger/internal/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu          sync.Mutex
	initErr     error
	transferErr error
	payments    []gateway.PaymentRequest
	transfers   []gateway.TransferRequest
}

func (g *fakeGateway) InitializePayment(_ context.Context, req gateway.PaymentRequest) (gateway.PaymentLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments = append(g.payments, req)
	if g.initErr != nil {
		return gateway.PaymentLink{}, g.initErr
	}
	return gateway.PaymentLink{URL: "https://pay.example/" + req.Reference}, nil
}

func (g *fakeGateway) Transfer(_ context.Context, req gateway.TransferRequest) (gateway.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transfers = append(g.transfers, req)
	if g.transferErr != nil {
		return gateway.TransferResult{}, g.transferErr
	}
	return gateway.TransferResult{ProviderReference: "P-" + req.Reference, Status: "SUCCESS"}, nil
}

func (g *fakeGateway) Banks(context.Context) ([]gateway.Bank, error) {
	return []gateway.Bank{{Code: "044", Name: "Access Bank"}}, nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

type fixture struct {
	store  *memstore.Store
	c      *Coordinator
	gw     *fakeGateway
	locker *fakeLocker
	fault  func(op string) error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{gw: &fakeGateway{}, locker: &fakeLocker{held: map[string]bool{}}}
	f.store = memstore.New(memstore.WithFault(func(op string) error {
		if f.fault != nil {
			return f.fault(op)
		}
		return nil
	}))
	f.c = New(
		f.store,
		wallet.New("NGN"),
		ledger.New(ledger.NewIDGenerator()),
		escrow.New(decimal.RequireFromString("0.05")),
		WithGateway(f.gw),
		WithLocker(f.locker),
	)
	return f
}

// failNth fails the nth call of op with err.
func (f *fixture) failNth(op string, n int, err error) {
	calls := 0
	f.fault = func(got string) error {
		if got != op {
			return nil
		}
		calls++
		if calls == n {
			return err
		}
		return nil
	}
}

func (f *fixture) user(t *testing.T, name, balance string) (domain.User, domain.Wallet) {
	t.Helper()
	u := domain.User{ID: "id-" + name, Username: name, Email: name + "@example.com", Role: domain.RoleUser}
	w, created, err := f.c.OpenWallet(context.Background(), u)
	require.NoError(t, err)
	require.True(t, created)
	if b := decimal.RequireFromString(balance); b.IsPositive() {
		ok, err := f.store.Wallets().IncrementBalance(context.Background(), w.ID, b)
		require.NoError(t, err)
		require.True(t, ok)
	}
	u.WalletID = w.ID
	return u, w
}

func (f *fixture) balance(t *testing.T, walletID string) string {
	t.Helper()
	w, found, err := f.store.Wallets().FindByID(context.Background(), walletID)
	require.NoError(t, err)
	require.True(t, found)
	return w.Balance.StringFixed(2)
}

func (f *fixture) refs(t *testing.T, walletID string) []string {
	t.Helper()
	w, _, err := f.store.Wallets().FindByID(context.Background(), walletID)
	require.NoError(t, err)
	return w.TransactionRefs
}

func (f *fixture) ledgerSize(t *testing.T) int64 {
	t.Helper()
	_, total, err := f.store.Transactions().List(context.Background(), domain.TransactionFilter{})
	require.NoError(t, err)
	return total
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestOpenWalletIsIdempotent(t *testing.T) {
	f := newFixture(t)
	u, w := f.user(t, "ada", "0")

	again, created, err := f.c.OpenWallet(context.Background(), u)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, w.ID, again.ID)

	stored, err := f.c.User(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, stored.WalletID)
}

func TestSendMovesMoneyAndRecordsOneEntry(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "1000")
	_, bw := f.user(t, "bola", "0")

	tx, err := f.c.Send(context.Background(), SendRequest{SenderID: ada.ID, Recipient: "Bola", Amount: amount("250")})
	require.NoError(t, err)

	assert.Equal(t, "750.00", f.balance(t, aw.ID))
	assert.Equal(t, "250.00", f.balance(t, bw.ID))
	assert.Equal(t, domain.TransactionSend, tx.Type)
	assert.Equal(t, domain.PaymentSuccess, tx.Status)
	assert.Equal(t, []string{aw.ID}, tx.Sender)
	assert.Equal(t, bw.ID, tx.Recipient)
	assert.Equal(t, "250.00 sent to bola", tx.Description)
	assert.True(t, ledger.ValidID(tx.TransactionID))
	assert.Equal(t, []string{tx.TransactionID}, f.refs(t, aw.ID))
	assert.Equal(t, []string{tx.TransactionID}, f.refs(t, bw.ID))
	assert.EqualValues(t, 1, f.ledgerSize(t))
}

func TestSendToSelfIsRejectedBeforeAnyMutation(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "100")

	_, err := f.c.Send(context.Background(), SendRequest{SenderID: ada.ID, Recipient: "ada", Amount: amount("10")})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "100.00", f.balance(t, aw.ID))
	assert.Zero(t, f.ledgerSize(t))
}

func TestSendFailures(t *testing.T) {
	tests := []struct {
		name   string
		req    func(ada domain.User) SendRequest
		expect error
	}{
		{"insufficient funds", func(u domain.User) SendRequest {
			return SendRequest{SenderID: u.ID, Recipient: "bola", Amount: amount("100.01")}
		}, domain.ErrInsufficientFunds},
		{"unknown recipient", func(u domain.User) SendRequest {
			return SendRequest{SenderID: u.ID, Recipient: "nobody", Amount: amount("1")}
		}, domain.ErrNotFound},
		{"zero amount", func(u domain.User) SendRequest {
			return SendRequest{SenderID: u.ID, Recipient: "bola", Amount: amount("0.001")}
		}, domain.ErrValidation},
		{"sender without wallet", func(domain.User) SendRequest {
			return SendRequest{SenderID: "ghost", Recipient: "bola", Amount: amount("1")}
		}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ada, aw := f.user(t, "ada", "100")
			_, bw := f.user(t, "bola", "0")

			_, err := f.c.Send(context.Background(), tt.req(ada))
			assert.ErrorIs(t, err, tt.expect)
			assert.Equal(t, "100.00", f.balance(t, aw.ID))
			assert.Equal(t, "0.00", f.balance(t, bw.ID))
			assert.Zero(t, f.ledgerSize(t))
		})
	}
}

func TestSendAbortsWhenReferenceAppendFails(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "100")
	_, bw := f.user(t, "bola", "0")
	f.failNth("wallets.append_ref", 2, memstore.ErrNoMatch)

	_, err := f.c.Send(context.Background(), SendRequest{SenderID: ada.ID, Recipient: "bola", Amount: amount("40")})
	assert.ErrorIs(t, err, domain.ErrLedgerIntegrity)

	f.fault = nil
	assert.Equal(t, "100.00", f.balance(t, aw.ID))
	assert.Equal(t, "0.00", f.balance(t, bw.ID))
	assert.Empty(t, f.refs(t, aw.ID))
	assert.Zero(t, f.ledgerSize(t))
	pending, err := f.store.Outbox().FetchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSendChecksPin(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "100")
	f.user(t, "bola", "0")
	require.NoError(t, f.c.SetPin(context.Background(), ada.ID, "4321"))

	_, err := f.c.Send(context.Background(), SendRequest{SenderID: ada.ID, Recipient: "bola", Amount: amount("5")})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.c.Send(context.Background(), SendRequest{SenderID: ada.ID, Recipient: "bola", Amount: amount("5"), Pin: "0000"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, "100.00", f.balance(t, aw.ID))

	_, err = f.c.Send(context.Background(), SendRequest{SenderID: ada.ID, Recipient: "bola", Amount: amount("5"), Pin: "4321"})
	require.NoError(t, err)
	assert.Equal(t, "95.00", f.balance(t, aw.ID))
}

func TestCommittedEntriesReachTheOutbox(t *testing.T) {
	f := newFixture(t)
	ada, _ := f.user(t, "ada", "100")
	f.user(t, "bola", "0")

	tx, err := f.c.Send(context.Background(), SendRequest{SenderID: ada.ID, Recipient: "bola", Amount: amount("5")})
	require.NoError(t, err)
	_, err = f.c.Send(context.Background(), SendRequest{SenderID: ada.ID, Recipient: "bola", Amount: amount("500")})
	require.Error(t, err)

	msgs, err := f.store.Outbox().FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.OutboxTransactionRecorded, msgs[0].Type)
	assert.Contains(t, msgs[0].Payload, tx.TransactionID)
}

func TestTransactionsAreScopedToTheUser(t *testing.T) {
	f := newFixture(t)
	ada, _ := f.user(t, "ada", "100")
	bola, _ := f.user(t, "bola", "100")
	cyn, _ := f.user(t, "cyn", "0")
	ctx := context.Background()

	first, err := f.c.Send(ctx, SendRequest{SenderID: ada.ID, Recipient: "bola", Amount: amount("1")})
	require.NoError(t, err)
	second, err := f.c.Send(ctx, SendRequest{SenderID: bola.ID, Recipient: "ada", Amount: amount("2")})
	require.NoError(t, err)
	_, err = f.c.Send(ctx, SendRequest{SenderID: bola.ID, Recipient: "cyn", Amount: amount("3")})
	require.NoError(t, err)

	txs, total, err := f.c.Transactions(ctx, ada.ID, domain.TransactionFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, txs, 2)
	assert.Equal(t, second.TransactionID, txs[0].TransactionID)
	assert.Equal(t, first.TransactionID, txs[1].TransactionID)

	_, err = f.c.Transaction(ctx, cyn.ID, first.TransactionID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, total, err := f.c.AllTransactions(ctx, domain.TransactionFilter{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, all, 2)
}

func TestConcurrentSendsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ada, aw := f.user(t, "ada", "100")
	_, bw := f.user(t, "bola", "0")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		okN  int
		errs []error
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.c.Send(context.Background(), SendRequest{SenderID: ada.ID, Recipient: "bola", Amount: amount("10")})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				okN++
			} else {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, okN)
	for _, err := range errs {
		assert.True(t, errors.Is(err, domain.ErrInsufficientFunds), err)
	}
	assert.Equal(t, "0.00", f.balance(t, aw.ID))
	assert.Equal(t, "100.00", f.balance(t, bw.ID))
	assert.EqualValues(t, 10, f.ledgerSize(t))
}
