package mongostore

import (
	"testing"
	"time"

	"spray_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDecimal128KeepsCents(t *testing.T) {
	for _, s := range []string{"0", "0.01", "1234.56", "99999999.99"} {
		got, err := fromD128(toD128(decimal.RequireFromString(s)))
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString(s)), s)
	}
}

func TestEventDocumentRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := &domain.Event{
		Code:        "K7Q2M9XA",
		Name:        "Wedding",
		OwnerID:     "u1",
		OwnerWallet: "w1",
		Status:      domain.EventActive,
		Class:       domain.EventPaid,
		Visibility:  domain.EventPrivate,
		AccessFee:   decimal.RequireFromString("500.00"),
		Amount:      decimal.RequireFromString("1250.50"),
		Participants: []domain.Participant{
			{UserID: "u1", WalletID: "w1", IsActive: true, HasPaid: true, Contributed: decimal.Zero, JoinedAt: now},
			{UserID: "u2", WalletID: "w2", IsActive: true, Contributed: decimal.RequireFromString("1250.50"), JoinedAt: now},
		},
		StartedAt: &now,
		CreatedAt: now,
	}

	raw, err := bson.Marshal(toEventDoc(e))
	require.NoError(t, err)
	var doc eventDoc
	require.NoError(t, bson.Unmarshal(raw, &doc))
	got, err := doc.toDomain()
	require.NoError(t, err)

	assert.Equal(t, e.Code, got.Code)
	assert.Equal(t, domain.EventPrivate, got.Visibility)
	assert.True(t, got.Amount.Equal(e.Amount))
	require.Len(t, got.Participants, 2)
	assert.True(t, got.Participants[1].Contributed.Equal(e.Participants[1].Contributed))
	assert.Equal(t, []string{"w2"}, got.ContributorWalletIDs())
}

func TestTransactionFilterMatchesEitherSide(t *testing.T) {
	filter := transactionFilter(domain.TransactionFilter{WalletID: "w1", Type: domain.TransactionSend})
	assert.Equal(t, "SEND", filter["type"])
	or, ok := filter["$or"].(bson.A)
	require.True(t, ok)
	assert.Len(t, or, 2)
	_, hasCreated := filter["created_at"]
	assert.False(t, hasCreated)
}

func TestWriteConcernParsing(t *testing.T) {
	assert.Equal(t, 1, writeConcern("1").W)
	assert.Equal(t, "majority", writeConcern("majority").W)
	assert.Equal(t, "snapshot", readConcern("").Level)
}
