package coordinator

import (
	"context"
	"fmt"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/escrow"
	"spray_ledger/internal/ledger"
	"spray_ledger/internal/store"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CreateEvent opens a PENDING event owned by the actor. Owner fields of p
// are taken from the actor and their wallet.
func (c *Coordinator) CreateEvent(ctx context.Context, actor domain.User, p escrow.CreateParams) (domain.Event, error) {
	log := logrus.WithField("user_id", actor.ID)
	var ev domain.Event
	err := c.atomic(ctx, "create_event", func(ctx context.Context, tx store.Tx) error {
		w, err := c.wallets.GetUserWallet(ctx, tx, actor.ID)
		if err != nil {
			return err
		}
		p.OwnerID = actor.ID
		p.OwnerName = actor.Username
		p.OwnerWallet = w.ID
		ev, err = c.escrow.Create(ctx, tx, p)
		return err
	})
	if err != nil {
		logFailure(log, err, "create event failed")
		return domain.Event{}, err
	}
	log.WithFields(logrus.Fields{"event_code": ev.Code, "class": ev.Class}).Info("event created")
	return ev, nil
}

// Event returns one event by code.
func (c *Coordinator) Event(ctx context.Context, code string) (domain.Event, error) {
	return c.escrow.Get(ctx, c.store, code)
}

// PublicEvents lists open public events, optionally filtered by name.
func (c *Coordinator) PublicEvents(ctx context.Context, name string, limit, offset int) ([]domain.Event, error) {
	return c.escrow.List(ctx, c.store, domain.EventFilter{
		Statuses:   domain.OpenEventStatuses,
		Visibility: domain.EventPublic,
		Name:       name,
		Limit:      limit,
		Offset:     offset,
	})
}

// OwnedEvents lists the events created by userID, newest first.
func (c *Coordinator) OwnedEvents(ctx context.Context, userID string, statuses ...domain.EventStatus) ([]domain.Event, error) {
	return c.escrow.List(ctx, c.store, domain.EventFilter{OwnerID: userID, Statuses: statuses})
}

// StartEvent moves the actor's PENDING event to ACTIVE.
func (c *Coordinator) StartEvent(ctx context.Context, userID, code string) (domain.Event, error) {
	return c.eventStep(ctx, "start_event", userID, code, func(ctx context.Context, tx store.Tx, ev domain.Event) (domain.Event, error) {
		return c.escrow.Start(ctx, tx, ev, userID)
	})
}

// CancelEvent cancels the actor's open event. Events holding escrow must be
// ended instead.
func (c *Coordinator) CancelEvent(ctx context.Context, userID, code string) (domain.Event, error) {
	return c.eventStep(ctx, "cancel_event", userID, code, func(ctx context.Context, tx store.Tx, ev domain.Event) (domain.Event, error) {
		return c.escrow.Cancel(ctx, tx, ev, userID)
	})
}

// UpdateEvent edits the actor's open event; a status in p goes through the
// lifecycle rules of StartEvent and CancelEvent.
func (c *Coordinator) UpdateEvent(ctx context.Context, userID, code string, p escrow.UpdateParams) (domain.Event, error) {
	return c.eventStep(ctx, "update_event", userID, code, func(ctx context.Context, tx store.Tx, ev domain.Event) (domain.Event, error) {
		return c.escrow.Update(ctx, tx, ev, userID, p)
	})
}

// LeaveEvent marks the actor inactive in the event.
func (c *Coordinator) LeaveEvent(ctx context.Context, userID, code string) (domain.Event, error) {
	return c.eventStep(ctx, "leave_event", userID, code, func(ctx context.Context, tx store.Tx, ev domain.Event) (domain.Event, error) {
		return c.escrow.Leave(ctx, tx, ev, userID)
	})
}

func (c *Coordinator) eventStep(ctx context.Context, op, userID, code string, step func(context.Context, store.Tx, domain.Event) (domain.Event, error)) (domain.Event, error) {
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "event_code": code})
	var ev domain.Event
	err := c.atomic(ctx, op, func(ctx context.Context, tx store.Tx) error {
		current, err := c.escrow.Get(ctx, tx, code)
		if err != nil {
			return err
		}
		ev, err = step(ctx, tx, current)
		return err
	})
	if err != nil {
		logFailure(log, err, op+" failed")
		return domain.Event{}, err
	}
	log.WithField("status", ev.Status).Info(op)
	return ev, nil
}

// JoinResult is the outcome of joining an event.
type JoinResult struct {
	Event       domain.Event
	Joined      bool                // False when the actor was already active
	Transaction *domain.Transaction // Access fee entry, nil when nothing was charged
}

// JoinEvent attaches the actor to the event. On a PAID event a participant
// who has not paid yet is charged the access fee, which moves straight to
// the owner's wallet and never enters escrow.
func (c *Coordinator) JoinEvent(ctx context.Context, userID, code, passcode string) (JoinResult, error) {
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "event_code": code})
	var res JoinResult
	err := c.atomic(ctx, "join_event", func(ctx context.Context, tx store.Tx) error {
		ev, err := c.escrow.Get(ctx, tx, code)
		if err != nil {
			return err
		}
		w, err := c.wallets.GetUserWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		res = JoinResult{}
		if res.Event, res.Joined, err = c.escrow.Join(ctx, tx, ev, userID, w.ID, passcode); err != nil {
			return err
		}
		ev = res.Event
		p, _ := ev.Participant(userID)
		if ev.Class != domain.EventPaid || p.HasPaid || ev.IsOwner(userID) {
			return nil
		}

		fee := ev.AccessFee
		if err := c.wallets.UpdateBalance(ctx, tx, domain.Debit, w.ID, fee); err != nil {
			return err
		}
		if err := c.wallets.UpdateBalance(ctx, tx, domain.Credit, ev.OwnerWallet, fee); err != nil {
			return err
		}
		if res.Event, err = c.escrow.PayAccessFee(ctx, tx, ev, userID); err != nil {
			return err
		}
		t, err := c.record(ctx, tx, ledger.Details{
			Type:        domain.TransactionEvent,
			Amount:      fee,
			Sender:      []string{w.ID},
			Recipient:   ev.OwnerWallet,
			Description: fmt.Sprintf("access fee for %s", ev.Name),
			EventCode:   ev.Code,
			Meta:        map[string]any{"kind": "access_fee"},
		}, domain.PaymentSuccess)
		if err != nil {
			return err
		}
		res.Transaction = &t
		return c.appendRef(ctx, tx, t.TransactionID, w.ID)
	})
	if err != nil {
		logFailure(log, err, "join event failed")
		return JoinResult{}, err
	}
	if res.Transaction != nil {
		countMoved(*res.Transaction)
		log = log.WithField("transaction_id", res.Transaction.TransactionID)
	}
	log.WithField("joined", res.Joined).Info("event joined")
	return res, nil
}

// SprayResult is the outcome of tipping into an event.
type SprayResult struct {
	Event       domain.Event
	Transaction domain.Transaction
}

// Spray debits the participant and adds amount to the event escrow, recording
// one EVENT entry referenced from the participant's wallet.
func (c *Coordinator) Spray(ctx context.Context, userID, code string, amount decimal.Decimal) (SprayResult, error) {
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "event_code": code})
	amount, err := positive(amount)
	if err != nil {
		return SprayResult{}, err
	}
	var res SprayResult
	err = c.atomic(ctx, "spray", func(ctx context.Context, tx store.Tx) error {
		ev, err := c.escrow.Get(ctx, tx, code)
		if err != nil {
			return err
		}
		if ev.Status != domain.EventActive {
			return domain.Errorf(domain.ErrInvalidStateTransition, "event %s is %s, not ACTIVE", ev.Code, ev.Status)
		}
		w, err := c.wallets.GetUserWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := c.wallets.UpdateBalance(ctx, tx, domain.Debit, w.ID, amount); err != nil {
			return err
		}
		if res.Event, err = c.escrow.Deposit(ctx, tx, ev, userID, amount); err != nil {
			return err
		}
		res.Transaction, err = c.record(ctx, tx, ledger.Details{
			Type:        domain.TransactionEvent,
			Amount:      amount,
			Sender:      []string{w.ID},
			Recipient:   ev.OwnerWallet,
			Description: fmt.Sprintf("sprayed %s at %s", amount.StringFixed(domain.MoneyPlaces), ev.Name),
			EventCode:   ev.Code,
			Meta:        map[string]any{"kind": "spray"},
		}, domain.PaymentSuccess)
		if err != nil {
			return err
		}
		return c.appendRef(ctx, tx, res.Transaction.TransactionID, w.ID)
	})
	if err != nil {
		logFailure(log, err, "spray failed")
		return SprayResult{}, err
	}
	countMoved(res.Transaction)
	log.WithFields(logrus.Fields{
		"transaction_id": res.Transaction.TransactionID,
		"amount":         amount,
		"escrow":         res.Event.Amount,
	}).Info("event sprayed")
	return res, nil
}

// SettleResult is the outcome of ending an event.
type SettleResult struct {
	escrow.Settlement
	Transaction *domain.Transaction // Payout entry, nil when the escrow was empty
}

// SettleEvent ends the actor's event: the escrow is split into commission and
// payout, the owner is credited the payout and the event is completed.
func (c *Coordinator) SettleEvent(ctx context.Context, userID, code string) (SettleResult, error) {
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "event_code": code})
	var res SettleResult
	err := c.atomic(ctx, "settle_event", func(ctx context.Context, tx store.Tx) error {
		ev, err := c.escrow.Get(ctx, tx, code)
		if err != nil {
			return err
		}
		res = SettleResult{}
		if res.Settlement, err = c.escrow.Settle(ctx, tx, ev, userID); err != nil {
			return err
		}
		if !res.Net.IsPositive() {
			return nil
		}
		if err := c.wallets.UpdateBalance(ctx, tx, domain.Credit, ev.OwnerWallet, res.Net); err != nil {
			return err
		}
		t, err := c.record(ctx, tx, ledger.Details{
			Type:        domain.TransactionEvent,
			Amount:      res.Net,
			Sender:      ev.ContributorWalletIDs(),
			Recipient:   ev.OwnerWallet,
			Description: fmt.Sprintf("payout for %s", ev.Name),
			EventCode:   ev.Code,
			Meta: map[string]any{
				"kind":       "settlement",
				"gross":      res.Gross.StringFixed(domain.MoneyPlaces),
				"charge":     res.Charge.StringFixed(domain.MoneyPlaces),
				"commission": c.escrow.Commission().String(),
			},
		}, domain.PaymentSuccess)
		if err != nil {
			return err
		}
		res.Transaction = &t
		return c.appendRef(ctx, tx, t.TransactionID, ev.OwnerWallet)
	})
	if err != nil {
		logFailure(log, err, "settle event failed")
		return SettleResult{}, err
	}
	if res.Transaction != nil {
		countMoved(*res.Transaction)
		log = log.WithField("transaction_id", res.Transaction.TransactionID)
	}
	log.WithFields(logrus.Fields{"gross": res.Gross, "charge": res.Charge, "net": res.Net}).Info("event settled")
	return res, nil
}
