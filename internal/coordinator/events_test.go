package coordinator

import (
	"context"
	"errors"
	"testing"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/escrow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) event(t *testing.T, owner domain.User, p escrow.CreateParams, start bool) domain.Event {
	t.Helper()
	if p.Name == "" {
		p.Name = "Owambe"
	}
	ev, err := f.c.CreateEvent(context.Background(), owner, p)
	require.NoError(t, err)
	if start {
		ev, err = f.c.StartEvent(context.Background(), owner.ID, ev.Code)
		require.NoError(t, err)
	}
	return ev
}

func (f *fixture) escrowOf(t *testing.T, code string) domain.Event {
	t.Helper()
	ev, err := f.c.Event(context.Background(), code)
	require.NoError(t, err)
	return ev
}

func TestSprayMovesFundsIntoEscrow(t *testing.T) {
	f := newFixture(t)
	owner, ow := f.user(t, "host", "0")
	guest, gw := f.user(t, "guest", "1000")
	ev := f.event(t, owner, escrow.CreateParams{}, true)
	ctx := context.Background()

	_, err := f.c.JoinEvent(ctx, guest.ID, ev.Code, "")
	require.NoError(t, err)
	res, err := f.c.Spray(ctx, guest.ID, ev.Code, amount("200"))
	require.NoError(t, err)

	assert.Equal(t, "800.00", f.balance(t, gw.ID))
	assert.Equal(t, "0.00", f.balance(t, ow.ID))
	assert.Equal(t, "200.00", f.escrowOf(t, ev.Code).Amount.StringFixed(2))

	tx := res.Transaction
	assert.Equal(t, domain.TransactionEvent, tx.Type)
	assert.Equal(t, domain.PaymentSuccess, tx.Status)
	assert.Equal(t, []string{gw.ID}, tx.Sender)
	assert.Equal(t, ow.ID, tx.Recipient)
	assert.Equal(t, "200.00", tx.Amount.StringFixed(2))
	assert.Equal(t, ev.Code, tx.EventCode)
	assert.Equal(t, []string{tx.TransactionID}, f.refs(t, gw.ID))
	assert.Empty(t, f.refs(t, ow.ID))
}

func TestSprayRequiresActiveEvent(t *testing.T) {
	f := newFixture(t)
	owner, _ := f.user(t, "host", "0")
	guest, gw := f.user(t, "guest", "100")
	ev := f.event(t, owner, escrow.CreateParams{}, false)
	ctx := context.Background()
	_, err := f.c.JoinEvent(ctx, guest.ID, ev.Code, "")
	require.NoError(t, err)

	_, err = f.c.Spray(ctx, guest.ID, ev.Code, amount("10"))
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Equal(t, "100.00", f.balance(t, gw.ID))
	assert.Zero(t, f.ledgerSize(t))
}

func TestSprayAbortsWhenEscrowUpdateFails(t *testing.T) {
	f := newFixture(t)
	owner, _ := f.user(t, "host", "0")
	guest, gw := f.user(t, "guest", "100")
	ev := f.event(t, owner, escrow.CreateParams{}, true)
	_, err := f.c.JoinEvent(context.Background(), guest.ID, ev.Code, "")
	require.NoError(t, err)
	f.failNth("events.save_participant", 1, errors.New("disk full"))

	_, err = f.c.Spray(context.Background(), guest.ID, ev.Code, amount("10"))
	assert.ErrorIs(t, err, domain.ErrInternal)

	f.fault = nil
	assert.Equal(t, "100.00", f.balance(t, gw.ID))
	assert.True(t, f.escrowOf(t, ev.Code).Amount.IsZero())
	assert.Zero(t, f.ledgerSize(t))
}

func TestSprayByOutsiderIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	owner, _ := f.user(t, "host", "0")
	outsider, w := f.user(t, "outsider", "100")
	ev := f.event(t, owner, escrow.CreateParams{}, true)

	_, err := f.c.Spray(context.Background(), outsider.ID, ev.Code, amount("10"))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, "100.00", f.balance(t, w.ID))
}

func TestPaidJoinRoutesFeeToOwner(t *testing.T) {
	f := newFixture(t)
	owner, ow := f.user(t, "host", "0")
	guest, gw := f.user(t, "guest", "500")
	ev := f.event(t, owner, escrow.CreateParams{Class: domain.EventPaid, AccessFee: amount("50")}, true)
	ctx := context.Background()

	res, err := f.c.JoinEvent(ctx, guest.ID, ev.Code, "")
	require.NoError(t, err)
	assert.True(t, res.Joined)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, "50.00", res.Transaction.Amount.StringFixed(2))
	assert.Equal(t, []string{gw.ID}, res.Transaction.Sender)
	assert.Equal(t, ow.ID, res.Transaction.Recipient)

	assert.Equal(t, "450.00", f.balance(t, gw.ID))
	assert.Equal(t, "50.00", f.balance(t, ow.ID))
	stored := f.escrowOf(t, ev.Code)
	assert.True(t, stored.Amount.IsZero())
	p, ok := stored.Participant(guest.ID)
	require.True(t, ok)
	assert.True(t, p.HasPaid)

	// Leaving and coming back does not charge again
	_, err = f.c.LeaveEvent(ctx, guest.ID, ev.Code)
	require.NoError(t, err)
	res, err = f.c.JoinEvent(ctx, guest.ID, ev.Code, "")
	require.NoError(t, err)
	assert.True(t, res.Joined)
	assert.Nil(t, res.Transaction)
	assert.Equal(t, "450.00", f.balance(t, gw.ID))
	assert.EqualValues(t, 1, f.ledgerSize(t))
}

func TestPaidJoinWithoutFundsLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	owner, ow := f.user(t, "host", "0")
	guest, gw := f.user(t, "guest", "10")
	ev := f.event(t, owner, escrow.CreateParams{Class: domain.EventPaid, AccessFee: amount("50")}, false)

	_, err := f.c.JoinEvent(context.Background(), guest.ID, ev.Code, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, "10.00", f.balance(t, gw.ID))
	assert.Equal(t, "0.00", f.balance(t, ow.ID))
	_, joined := f.escrowOf(t, ev.Code).Participant(guest.ID)
	assert.False(t, joined)
	assert.Zero(t, f.ledgerSize(t))
}

func TestPrivateEventNeedsPasscode(t *testing.T) {
	f := newFixture(t)
	owner, _ := f.user(t, "host", "0")
	guest, _ := f.user(t, "guest", "0")
	ev := f.event(t, owner, escrow.CreateParams{Visibility: domain.EventPrivate, Passcode: "s3cret"}, false)

	_, err := f.c.JoinEvent(context.Background(), guest.ID, ev.Code, "guess")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	res, err := f.c.JoinEvent(context.Background(), guest.ID, ev.Code, "s3cret")
	require.NoError(t, err)
	assert.True(t, res.Joined)

	public, err := f.c.PublicEvents(context.Background(), "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, public)
}

func TestSettleEventPaysOwnerNetOfCommission(t *testing.T) {
	f := newFixture(t)
	owner, ow := f.user(t, "host", "0")
	a, aw := f.user(t, "ada", "600")
	b, bw := f.user(t, "bola", "400")
	ev := f.event(t, owner, escrow.CreateParams{}, true)
	ctx := context.Background()
	for _, u := range []domain.User{a, b} {
		_, err := f.c.JoinEvent(ctx, u.ID, ev.Code, "")
		require.NoError(t, err)
	}
	_, err := f.c.Spray(ctx, a.ID, ev.Code, amount("600"))
	require.NoError(t, err)
	_, err = f.c.Spray(ctx, b.ID, ev.Code, amount("400"))
	require.NoError(t, err)

	res, err := f.c.SettleEvent(ctx, owner.ID, ev.Code)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", res.Gross.StringFixed(2))
	assert.Equal(t, "50.00", res.Charge.StringFixed(2))
	assert.Equal(t, "950.00", res.Net.StringFixed(2))
	assert.Equal(t, domain.EventCompleted, res.Event.Status)

	assert.Equal(t, "950.00", f.balance(t, ow.ID))
	stored := f.escrowOf(t, ev.Code)
	assert.True(t, stored.Amount.IsZero())
	assert.Equal(t, domain.EventCompleted, stored.Status)
	assert.NotNil(t, stored.FinishTime)

	require.NotNil(t, res.Transaction)
	assert.Equal(t, "950.00", res.Transaction.Amount.StringFixed(2))
	assert.ElementsMatch(t, []string{aw.ID, bw.ID}, res.Transaction.Sender)
	assert.Equal(t, ow.ID, res.Transaction.Recipient)
	assert.Equal(t, []string{res.Transaction.TransactionID}, f.refs(t, ow.ID))
}

func TestSettleTwiceFailsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	owner, ow := f.user(t, "host", "0")
	guest, _ := f.user(t, "guest", "100")
	ev := f.event(t, owner, escrow.CreateParams{}, true)
	ctx := context.Background()
	_, err := f.c.JoinEvent(ctx, guest.ID, ev.Code, "")
	require.NoError(t, err)
	_, err = f.c.Spray(ctx, guest.ID, ev.Code, amount("100"))
	require.NoError(t, err)
	_, err = f.c.SettleEvent(ctx, owner.ID, ev.Code)
	require.NoError(t, err)
	size := f.ledgerSize(t)

	_, err = f.c.SettleEvent(ctx, owner.ID, ev.Code)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Equal(t, "95.00", f.balance(t, ow.ID))
	assert.Equal(t, size, f.ledgerSize(t))
}

func TestSettleGuards(t *testing.T) {
	f := newFixture(t)
	owner, ow := f.user(t, "host", "0")
	guest, _ := f.user(t, "guest", "100")
	ev := f.event(t, owner, escrow.CreateParams{}, true)
	ctx := context.Background()
	_, err := f.c.JoinEvent(ctx, guest.ID, ev.Code, "")
	require.NoError(t, err)
	_, err = f.c.Spray(ctx, guest.ID, ev.Code, amount("100"))
	require.NoError(t, err)

	_, err = f.c.SettleEvent(ctx, guest.ID, ev.Code)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	f.failNth("wallets.increment_balance", 1, errors.New("connection reset"))
	_, err = f.c.SettleEvent(ctx, owner.ID, ev.Code)
	assert.Error(t, err)
	f.fault = nil

	stored := f.escrowOf(t, ev.Code)
	assert.Equal(t, domain.EventActive, stored.Status)
	assert.Equal(t, "100.00", stored.Amount.StringFixed(2))
	assert.Equal(t, "0.00", f.balance(t, ow.ID))

	_, err = f.c.SettleEvent(ctx, owner.ID, ev.Code)
	require.NoError(t, err)
	assert.Equal(t, "95.00", f.balance(t, ow.ID))
}

func TestSettleEmptyEventRecordsNothing(t *testing.T) {
	f := newFixture(t)
	owner, ow := f.user(t, "host", "0")
	ev := f.event(t, owner, escrow.CreateParams{}, true)

	res, err := f.c.SettleEvent(context.Background(), owner.ID, ev.Code)
	require.NoError(t, err)
	assert.Nil(t, res.Transaction)
	assert.Equal(t, domain.EventCompleted, res.Event.Status)
	assert.Equal(t, "0.00", f.balance(t, ow.ID))
	assert.Zero(t, f.ledgerSize(t))
}

func TestEventLifecycle(t *testing.T) {
	f := newFixture(t)
	owner, _ := f.user(t, "host", "0")
	ctx := context.Background()

	_, err := f.c.CreateEvent(ctx, domain.User{ID: "nowallet"}, escrow.CreateParams{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ev := f.event(t, owner, escrow.CreateParams{}, false)
	_, err = f.c.CreateEvent(ctx, owner, escrow.CreateParams{Name: "second"})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	mine, err := f.c.OwnedEvents(ctx, owner.ID, domain.OpenEventStatuses...)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, ev.Code, mine[0].Code)

	cancelled, err := f.c.CancelEvent(ctx, owner.ID, ev.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.EventCancelled, cancelled.Status)
	_, err = f.c.StartEvent(ctx, owner.ID, ev.Code)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	_, err = f.c.StartEvent(ctx, owner.ID, "NOPE0000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateEvent(t *testing.T) {
	f := newFixture(t)
	owner, _ := f.user(t, "host", "0")
	guest, _ := f.user(t, "guest", "0")
	ev := f.event(t, owner, escrow.CreateParams{}, false)
	ctx := context.Background()
	name, active := "Renamed", domain.EventActive

	_, err := f.c.UpdateEvent(ctx, guest.ID, ev.Code, escrow.UpdateParams{Name: &name})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	updated, err := f.c.UpdateEvent(ctx, owner.ID, ev.Code, escrow.UpdateParams{Name: &name, Status: &active})
	require.NoError(t, err)
	assert.Equal(t, domain.EventActive, updated.Status)

	stored := f.escrowOf(t, ev.Code)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, domain.EventActive, stored.Status)
	assert.Zero(t, f.ledgerSize(t))
}
