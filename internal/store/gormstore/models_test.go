package gormstore

import (
	"testing"
	"time"

	"spray_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransactionRowKeepsSenderOrder(t *testing.T) {
	tx := &domain.Transaction{
		TransactionID: "EV01J0000000000000000000000A",
		Type:          domain.TransactionEvent,
		Amount:        decimal.RequireFromString("95.00"),
		Status:        domain.PaymentSuccess,
		Sender:        []string{"w3", "w1", "w2"},
		Recipient:     "w9",
		Meta:          map[string]any{"charge": "5.00"},
		CreatedAt:     time.Now().UTC(),
	}

	row := toTransactionRow(tx)
	for i, s := range row.Senders {
		assert.Equal(t, i, s.Position)
		assert.Equal(t, tx.TransactionID, s.TransactionID)
	}
	got := row.toDomain()
	assert.Equal(t, tx.Sender, got.Sender)
	assert.Equal(t, domain.TransactionEvent, got.Type)
	assert.True(t, got.Amount.Equal(tx.Amount))
}

func TestWalletRowKeepsRefs(t *testing.T) {
	w := &domain.Wallet{ID: "w1", UserID: "u1", Balance: decimal.NewFromInt(10), TransactionRefs: []string{"a", "b"}}
	got := toWalletRow(w).toDomain()
	assert.Equal(t, []string{"a", "b"}, got.TransactionRefs)
	assert.True(t, got.Balance.Equal(w.Balance))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%\_off\\`, escapeLike(`50%_off\`))
}

func TestOpenStatuses(t *testing.T) {
	assert.Equal(t, []string{"PENDING", "ACTIVE"}, openStatuses())
}
