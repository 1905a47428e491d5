package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDsAreUniqueAndWellFormed(t *testing.T) {
	g := NewIDGenerator()
	for _, typ := range domain.TransactionTypes {
		prefix, _ := typ.Prefix()
		seen := make(map[string]struct{}, 10000)
		for i := 0; i < 10000; i++ {
			id, err := g.New(typ)
			require.NoError(t, err)
			require.Regexp(t, `^`+prefix+`[A-Z0-9]{26}$`, id)
			_, dup := seen[id]
			require.False(t, dup, "duplicate id %s", id)
			seen[id] = struct{}{}
		}
	}
}

func TestIDRejectsUnknownType(t *testing.T) {
	_, err := NewIDGenerator().New("REFUND")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func sendDetails() Details {
	return Details{
		Type:      domain.TransactionSend,
		Amount:    decimal.RequireFromString("12.345"),
		Sender:    []string{"w1"},
		Recipient: "w2",
	}
}

func TestCreate(t *testing.T) {
	s := memstore.New()
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l := New(NewIDGenerator(), WithClock(func() time.Time { return fixed }))

	tx, err := l.Create(context.Background(), s, sendDetails(), domain.PaymentSuccess)
	require.NoError(t, err)

	assert.True(t, ValidID(tx.TransactionID))
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("12.35")))
	assert.Equal(t, domain.DefaultCurrency, tx.Currency)
	assert.Equal(t, domain.PaymentMethodNA, tx.PaymentMethod)
	assert.Equal(t, fixed, tx.CreatedAt)
	assert.Empty(t, tx.Reference)

	stored, err := l.Get(context.Background(), s, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, stored.Sender)
}

func TestCreateFundUsesIDAsReference(t *testing.T) {
	s := memstore.New()
	l := New(NewIDGenerator())
	tx, err := l.Create(context.Background(), s, Details{
		Type:      domain.TransactionFund,
		Amount:    decimal.NewFromInt(100),
		Recipient: "w1",
	}, domain.PaymentPending)
	require.NoError(t, err)
	assert.Equal(t, tx.TransactionID, tx.Reference)

	got, err := l.GetByReference(context.Background(), s, tx.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, got.Status)
}

func TestCreatePurchaseUsesIDAsReference(t *testing.T) {
	s := memstore.New()
	l := New(NewIDGenerator())
	tx, err := l.Create(context.Background(), s, Details{
		Type:      domain.TransactionPurchase,
		Amount:    decimal.NewFromInt(40),
		Sender:    []string{"w-buyer"},
		Recipient: "w-seller",
	}, domain.PaymentPending)
	require.NoError(t, err)
	assert.Equal(t, tx.TransactionID, tx.Reference)
	assert.Regexp(t, `^PR[A-Z0-9]{26}$`, tx.TransactionID)
}

func TestCreateValidation(t *testing.T) {
	l := New(NewIDGenerator())
	s := memstore.New()

	cases := map[string]struct {
		mutate func(*Details)
		status domain.PaymentStatus
	}{
		"empty details":    {mutate: func(d *Details) { *d = Details{} }, status: domain.PaymentSuccess},
		"missing recipient": {mutate: func(d *Details) { d.Recipient = "" }, status: domain.PaymentSuccess},
		"zero amount":      {mutate: func(d *Details) { d.Amount = decimal.Zero }, status: domain.PaymentSuccess},
		"rounds to zero":   {mutate: func(d *Details) { d.Amount = decimal.RequireFromString("0.004") }, status: domain.PaymentSuccess},
		"missing sender":   {mutate: func(d *Details) { d.Sender = nil }, status: domain.PaymentSuccess},
		"unknown status":   {mutate: func(*Details) {}, status: "settled"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			d := sendDetails()
			tc.mutate(&d)
			_, err := l.Create(context.Background(), s, d, tc.status)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestCreateRetriesOnDuplicateID(t *testing.T) {
	calls := 0
	s := memstore.New(memstore.WithFault(func(op string) error {
		if op == "transactions.insert" {
			calls++
			if calls == 1 {
				return domain.ErrDuplicateKey
			}
		}
		return nil
	}))
	l := New(NewIDGenerator())

	_, err := l.Create(context.Background(), s, sendDetails(), domain.PaymentSuccess)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCreateSurfacesPersistenceFailure(t *testing.T) {
	s := memstore.New(memstore.WithFault(func(op string) error {
		if op == "transactions.insert" {
			return errors.New("connection reset")
		}
		return nil
	}))
	_, err := New(NewIDGenerator()).Create(context.Background(), s, sendDetails(), domain.PaymentSuccess)
	assert.ErrorIs(t, err, domain.ErrInternal)
}

func TestTransitionStatus(t *testing.T) {
	s := memstore.New()
	l := New(NewIDGenerator())
	ctx := context.Background()
	tx, err := l.Create(ctx, s, Details{Type: domain.TransactionFund, Amount: decimal.NewFromInt(5), Recipient: "w1"}, domain.PaymentPending)
	require.NoError(t, err)

	require.NoError(t, l.TransitionStatus(ctx, s, tx.TransactionID, domain.PaymentPending, domain.PaymentSuccess))

	err = l.TransitionStatus(ctx, s, tx.TransactionID, domain.PaymentPending, domain.PaymentFailed)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = l.TransitionStatus(ctx, s, tx.TransactionID, domain.PaymentSuccess, domain.PaymentFailed)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	err = l.TransitionStatus(ctx, s, "FNMISSING", domain.PaymentPending, domain.PaymentSuccess)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQueryUserTransactionsNewestFirst(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(NewIDGenerator(), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))

	first, err := l.Create(ctx, s, Details{Type: domain.TransactionSend, Amount: decimal.NewFromInt(1), Sender: []string{"w1"}, Recipient: "w2"}, domain.PaymentSuccess)
	require.NoError(t, err)
	_, err = l.Create(ctx, s, Details{Type: domain.TransactionSend, Amount: decimal.NewFromInt(1), Sender: []string{"w3"}, Recipient: "w4"}, domain.PaymentSuccess)
	require.NoError(t, err)
	second, err := l.Create(ctx, s, Details{Type: domain.TransactionEvent, Amount: decimal.NewFromInt(1), Sender: []string{"w2"}, Recipient: "w5"}, domain.PaymentSuccess)
	require.NoError(t, err)

	txs, total, err := l.QueryUserTransactions(ctx, s, "w2", domain.TransactionFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, txs, 2)
	assert.Equal(t, second.TransactionID, txs[0].TransactionID)
	assert.Equal(t, first.TransactionID, txs[1].TransactionID)

	_, _, err = l.QueryUserTransactions(ctx, s, "", domain.TransactionFilter{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
