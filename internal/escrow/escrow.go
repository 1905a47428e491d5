// Package escrow drives the event lifecycle and the funds held against it.
//
// Escrow never moves wallet balances. The coordinator pairs every escrow
// step with the matching wallet and ledger writes inside one atomic context,
// and passes that context's repositories in.
package escrow

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/store"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCommission is the platform share of settled escrow.
var DefaultCommission = decimal.RequireFromString("0.05")

const codeAttempts = 5

// Escrow holds settlement policy; event state lives in the store.
type Escrow struct {
	commission decimal.Decimal
	now        func() time.Time
	codes      func() (string, error)
}

// Option configures an Escrow.
type Option func(*Escrow)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Escrow) { e.now = now }
}

// WithCodeSource overrides the event code generator.
func WithCodeSource(codes func() (string, error)) Option {
	return func(e *Escrow) { e.codes = codes }
}

// ValidCommission reports whether rate lies strictly between 0 and 1.
func ValidCommission(rate decimal.Decimal) bool {
	return rate.IsPositive() && rate.LessThan(decimal.NewFromInt(1))
}

// New returns an Escrow keeping commission of every settlement. A rate
// outside (0, 1) is logged and replaced by DefaultCommission.
func New(commission decimal.Decimal, opts ...Option) *Escrow {
	if !ValidCommission(commission) {
		logrus.WithField("commission", commission.String()).Warnf("commission out of range, using %s", DefaultCommission)
		commission = DefaultCommission
	}
	e := &Escrow{commission: commission, now: time.Now, codes: newCode}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Commission returns the settlement rate.
func (e *Escrow) Commission() decimal.Decimal {
	return e.commission
}

// CreateParams describes a new event.
type CreateParams struct {
	OwnerID     string
	OwnerName   string
	OwnerWallet string
	Name        string
	Description string
	Class       domain.EventClass
	Visibility  domain.EventVisibility
	AccessFee   decimal.Decimal
	Passcode    string
	StartDate   *time.Time
}

func (e *Escrow) validateCreate(p *CreateParams) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return domain.Errorf(domain.ErrValidation, "event name is required")
	}
	if p.OwnerID == "" || p.OwnerWallet == "" {
		return domain.Errorf(domain.ErrValidation, "event owner and owner wallet are required")
	}
	if p.Class == "" {
		p.Class = domain.EventFree
	}
	if p.Visibility == "" {
		p.Visibility = domain.EventPublic
	}
	p.AccessFee = domain.Round2(p.AccessFee)
	switch p.Class {
	case domain.EventPaid:
		if !p.AccessFee.IsPositive() {
			return domain.Errorf(domain.ErrValidation, "paid events need an access fee greater than zero")
		}
	case domain.EventFree:
		if !p.AccessFee.IsZero() {
			return domain.Errorf(domain.ErrValidation, "free events cannot charge an access fee")
		}
	default:
		return domain.Errorf(domain.ErrValidation, "invalid event class %q", p.Class)
	}
	if p.Visibility != domain.EventPublic && p.Visibility != domain.EventPrivate {
		return domain.Errorf(domain.ErrValidation, "invalid event type %q", p.Visibility)
	}
	if p.Passcode != "" {
		if p.Visibility != domain.EventPrivate {
			return domain.Errorf(domain.ErrValidation, "only private events can have a passcode")
		}
		if len(p.Passcode) < 4 {
			return domain.Errorf(domain.ErrValidation, "passcode must be at least 4 characters")
		}
	}
	if p.StartDate != nil && p.StartDate.Before(e.now()) {
		return domain.Errorf(domain.ErrValidation, "start date must be in the future")
	}
	return nil
}

// Create opens a PENDING event. An owner may hold at most one PENDING or
// ACTIVE event; the owner joins as an active, paid participant.
func (e *Escrow) Create(ctx context.Context, repos store.Repositories, p CreateParams) (domain.Event, error) {
	if err := e.validateCreate(&p); err != nil {
		return domain.Event{}, err
	}
	open, err := repos.Events().List(ctx, domain.EventFilter{
		OwnerID:  p.OwnerID,
		Statuses: domain.OpenEventStatuses,
		Limit:    1,
	})
	if err != nil {
		return domain.Event{}, domain.Wrap(domain.ErrInternal, err, "list open events")
	}
	if len(open) > 0 {
		return domain.Event{}, domain.Errorf(domain.ErrInvalidStateTransition,
			"event %s is still %s; close it before creating a new one", open[0].Code, open[0].Status)
	}

	now := e.now().UTC()
	ev := domain.Event{
		Name:        p.Name,
		Description: p.Description,
		OwnerID:     p.OwnerID,
		OwnerName:   p.OwnerName,
		OwnerWallet: p.OwnerWallet,
		Status:      domain.EventPending,
		Class:       p.Class,
		Visibility:  p.Visibility,
		AccessFee:   p.AccessFee,
		Amount:      decimal.Zero,
		Participants: []domain.Participant{{
			UserID:      p.OwnerID,
			WalletID:    p.OwnerWallet,
			IsActive:    true,
			HasPaid:     true,
			Contributed: decimal.Zero,
			JoinedAt:    now,
		}},
		IsScheduled: p.StartDate != nil,
		StartDate:   p.StartDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Passcode != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Passcode), bcrypt.DefaultCost)
		if err != nil {
			return domain.Event{}, domain.Wrap(domain.ErrInternal, err, "hash passcode")
		}
		ev.PasscodeHash = string(hash)
	}

	for attempt := 1; ; attempt++ {
		if ev.Code, err = e.codes(); err != nil {
			return domain.Event{}, domain.Wrap(domain.ErrInternal, err, "generate event code")
		}
		err = repos.Events().Insert(ctx, &ev)
		if err == nil {
			return ev, nil
		}
		if !errors.Is(err, domain.ErrDuplicateKey) || attempt == codeAttempts {
			return domain.Event{}, domain.Wrap(domain.ErrInternal, err, "persist event")
		}
	}
}

// Get looks up an event by code.
func (e *Escrow) Get(ctx context.Context, repos store.Repositories, code string) (domain.Event, error) {
	ev, found, err := repos.Events().FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return domain.Event{}, domain.Wrap(domain.ErrInternal, err, "find event")
	}
	if !found {
		return domain.Event{}, domain.Errorf(domain.ErrNotFound, "event %s not found", code)
	}
	return ev, nil
}

// List returns events matching f, newest first.
func (e *Escrow) List(ctx context.Context, repos store.Repositories, f domain.EventFilter) ([]domain.Event, error) {
	events, err := repos.Events().List(ctx, f)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "list events")
	}
	return events, nil
}

// Join attaches userID to the event, or reactivates a participant who left.
// Joining while already active changes nothing and reports joined == false.
func (e *Escrow) Join(ctx context.Context, repos store.Repositories, ev domain.Event, userID, walletID, passcode string) (_ domain.Event, joined bool, err error) {
	if ev.Status.Terminal() {
		return ev, false, domain.Errorf(domain.ErrInvalidStateTransition, "event %s is %s", ev.Code, ev.Status)
	}
	existing, found := ev.Participant(userID)
	if found && existing.IsActive {
		return ev, false, nil
	}
	if ev.RequiresPasscode() && !ev.IsOwner(userID) {
		if err := bcrypt.CompareHashAndPassword([]byte(ev.PasscodeHash), []byte(passcode)); err != nil {
			return ev, false, domain.Errorf(domain.ErrUnauthorized, "incorrect event passcode")
		}
	}
	p := existing
	if !found {
		p = domain.Participant{UserID: userID, Contributed: decimal.Zero, JoinedAt: e.now().UTC()}
	}
	p.WalletID = walletID
	p.IsActive = true
	if err := e.saveParticipant(ctx, repos, &ev, p); err != nil {
		return ev, false, err
	}
	return ev, true, nil
}

// Leave marks the participant inactive. Contributions and access fee state
// are kept so a later re-join is not charged again.
func (e *Escrow) Leave(ctx context.Context, repos store.Repositories, ev domain.Event, userID string) (domain.Event, error) {
	p, found := ev.Participant(userID)
	if !found {
		return ev, domain.Errorf(domain.ErrNotFound, "user %s is not a participant of event %s", userID, ev.Code)
	}
	if ev.IsOwner(userID) {
		return ev, domain.Errorf(domain.ErrValidation, "the event owner cannot leave; cancel or end the event instead")
	}
	if !p.IsActive {
		return ev, nil
	}
	p.IsActive = false
	if err := e.saveParticipant(ctx, repos, &ev, p); err != nil {
		return ev, err
	}
	return ev, nil
}

// PayAccessFee marks the participant as paid. The fee itself is moved from
// participant to owner by the caller and never enters the escrow amount.
func (e *Escrow) PayAccessFee(ctx context.Context, repos store.Repositories, ev domain.Event, userID string) (domain.Event, error) {
	if ev.Class != domain.EventPaid {
		return ev, domain.Errorf(domain.ErrValidation, "event %s has no access fee", ev.Code)
	}
	p, found := ev.Participant(userID)
	if !found {
		return ev, domain.Errorf(domain.ErrNotFound, "user %s is not a participant of event %s", userID, ev.Code)
	}
	if p.HasPaid {
		return ev, nil
	}
	p.HasPaid = true
	if err := e.saveParticipant(ctx, repos, &ev, p); err != nil {
		return ev, err
	}
	return ev, nil
}

// Deposit adds amount to the escrow of an ACTIVE event on behalf of an active
// participant. The matching wallet debit is the caller's job.
func (e *Escrow) Deposit(ctx context.Context, repos store.Repositories, ev domain.Event, userID string, amount decimal.Decimal) (domain.Event, error) {
	if ev.Status != domain.EventActive {
		return ev, domain.Errorf(domain.ErrInvalidStateTransition, "event %s is %s, not ACTIVE", ev.Code, ev.Status)
	}
	amount = domain.Round2(amount)
	if !amount.IsPositive() {
		return ev, domain.Errorf(domain.ErrValidation, "amount must be greater than zero")
	}
	if ev.IsOwner(userID) {
		return ev, domain.Errorf(domain.ErrValidation, "owners cannot tip their own event")
	}
	p, found := ev.Participant(userID)
	if !found || !p.IsActive {
		return ev, domain.Errorf(domain.ErrUnauthorized, "user %s has not joined event %s", userID, ev.Code)
	}
	if ev.Class == domain.EventPaid && !p.HasPaid {
		return ev, domain.Errorf(domain.ErrUnauthorized, "access fee for event %s is unpaid", ev.Code)
	}

	ok, err := repos.Events().IncrementAmount(ctx, ev.Code, amount)
	if err != nil {
		return ev, domain.Wrap(domain.ErrInternal, err, "update event amount")
	}
	if !ok {
		return ev, domain.Errorf(domain.ErrInvalidStateTransition, "event %s is no longer ACTIVE", ev.Code)
	}
	ev.Amount = ev.Amount.Add(amount)

	p.Contributed = p.Contributed.Add(amount)
	if err := e.saveParticipant(ctx, repos, &ev, p); err != nil {
		return ev, err
	}
	return ev, nil
}

// Settlement is the outcome of closing an event's escrow.
type Settlement struct {
	Event  domain.Event    // Event after settlement
	Gross  decimal.Decimal // Escrow before settlement
	Charge decimal.Decimal // Platform commission
	Net    decimal.Decimal // Owner payout
}

// Settle splits the escrow into commission and payout, zeroes it and
// completes the event. Only the owner may settle.
func (e *Escrow) Settle(ctx context.Context, repos store.Repositories, ev domain.Event, callerID string) (Settlement, error) {
	if !ev.IsOwner(callerID) {
		return Settlement{}, domain.Errorf(domain.ErrUnauthorized, "only the owner can end event %s", ev.Code)
	}
	if ev.Status.Terminal() {
		return Settlement{}, domain.Errorf(domain.ErrInvalidStateTransition, "event %s is already %s", ev.Code, ev.Status)
	}
	gross := ev.Amount
	charge, net := domain.Split(gross, e.commission)
	at := e.now().UTC()

	ok, err := repos.Events().Settle(ctx, ev.Code, gross, at)
	if err != nil {
		return Settlement{}, domain.Wrap(domain.ErrInternal, err, "settle event")
	}
	if !ok {
		return Settlement{}, domain.Errorf(domain.ErrInvalidStateTransition, "event %s changed while settling", ev.Code)
	}
	ev.Amount = decimal.Zero
	ev.Status = domain.EventCompleted
	ev.FinishTime = &at
	ev.UpdatedAt = at
	return Settlement{Event: ev, Gross: gross, Charge: charge, Net: net}, nil
}

// Start moves a PENDING event to ACTIVE. Only the owner may start.
func (e *Escrow) Start(ctx context.Context, repos store.Repositories, ev domain.Event, callerID string) (domain.Event, error) {
	if !ev.IsOwner(callerID) {
		return ev, domain.Errorf(domain.ErrUnauthorized, "only the owner can start event %s", ev.Code)
	}
	return e.transition(ctx, repos, ev, domain.EventActive)
}

// Cancel moves an open event to CANCELLED. Events still holding escrow must
// be ended instead so the funds reach the owner.
func (e *Escrow) Cancel(ctx context.Context, repos store.Repositories, ev domain.Event, callerID string) (domain.Event, error) {
	if !ev.IsOwner(callerID) {
		return ev, domain.Errorf(domain.ErrUnauthorized, "only the owner can cancel event %s", ev.Code)
	}
	if ev.Amount.IsPositive() {
		return ev, domain.Errorf(domain.ErrInvalidStateTransition, "event %s holds %s in escrow; end it instead", ev.Code, ev.Amount.StringFixed(domain.MoneyPlaces))
	}
	return e.transition(ctx, repos, ev, domain.EventCancelled)
}

// UpdateParams lists the owner-editable fields; nil leaves a field as is.
type UpdateParams struct {
	Name        *string
	Description *string
	Visibility  *domain.EventVisibility
	StartDate   *time.Time
	Status      *domain.EventStatus
}

// Update edits an open event. Only the owner may update. A status change
// follows the same rules as Start and Cancel; COMPLETED is only reached by
// settling.
func (e *Escrow) Update(ctx context.Context, repos store.Repositories, ev domain.Event, callerID string, p UpdateParams) (domain.Event, error) {
	if !ev.IsOwner(callerID) {
		return ev, domain.Errorf(domain.ErrUnauthorized, "only the owner can update event %s", ev.Code)
	}
	if ev.Status.Terminal() {
		return ev, domain.Errorf(domain.ErrInvalidStateTransition, "event %s is already %s", ev.Code, ev.Status)
	}
	if p.Status != nil && *p.Status != ev.Status {
		switch to := *p.Status; {
		case to == domain.EventCompleted:
			return ev, domain.Errorf(domain.ErrInvalidStateTransition, "end event %s to complete it", ev.Code)
		case to == domain.EventCancelled && ev.Amount.IsPositive():
			return ev, domain.Errorf(domain.ErrInvalidStateTransition, "event %s holds %s in escrow; end it instead", ev.Code, ev.Amount.StringFixed(domain.MoneyPlaces))
		case !ev.Status.CanTransitionTo(to):
			return ev, domain.Errorf(domain.ErrInvalidStateTransition, "event %s cannot move from %s to %s", ev.Code, ev.Status, to)
		}
	}

	next := ev
	if p.Name != nil {
		if next.Name = strings.TrimSpace(*p.Name); next.Name == "" {
			return ev, domain.Errorf(domain.ErrValidation, "event name is required")
		}
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Visibility != nil {
		switch *p.Visibility {
		case domain.EventPublic:
			if ev.RequiresPasscode() {
				return ev, domain.Errorf(domain.ErrValidation, "only private events can have a passcode")
			}
		case domain.EventPrivate:
		default:
			return ev, domain.Errorf(domain.ErrValidation, "invalid event type %q", *p.Visibility)
		}
		next.Visibility = *p.Visibility
	}
	if p.StartDate != nil {
		if ev.Status != domain.EventPending {
			return ev, domain.Errorf(domain.ErrInvalidStateTransition, "event %s has already started", ev.Code)
		}
		if p.StartDate.Before(e.now()) {
			return ev, domain.Errorf(domain.ErrValidation, "start date must be in the future")
		}
		start := p.StartDate.UTC()
		next.StartDate, next.IsScheduled = &start, true
	}

	if p.Name != nil || p.Description != nil || p.Visibility != nil || p.StartDate != nil {
		next.UpdatedAt = e.now().UTC()
		ok, err := repos.Events().UpdateDetails(ctx, &next)
		if err != nil {
			return ev, domain.Wrap(domain.ErrInternal, err, "update event")
		}
		if !ok {
			return ev, domain.Errorf(domain.ErrInvalidStateTransition, "event %s changed concurrently", ev.Code)
		}
	}
	if p.Status != nil && *p.Status != next.Status {
		return e.transition(ctx, repos, next, *p.Status)
	}
	return next, nil
}

func (e *Escrow) transition(ctx context.Context, repos store.Repositories, ev domain.Event, to domain.EventStatus) (domain.Event, error) {
	if !ev.Status.CanTransitionTo(to) {
		return ev, domain.Errorf(domain.ErrInvalidStateTransition, "event %s cannot move from %s to %s", ev.Code, ev.Status, to)
	}
	at := e.now().UTC()
	ok, err := repos.Events().UpdateStatus(ctx, ev.Code, ev.Status, to, at)
	if err != nil {
		return ev, domain.Wrap(domain.ErrInternal, err, "update event status")
	}
	if !ok {
		return ev, domain.Errorf(domain.ErrInvalidStateTransition, "event %s changed concurrently", ev.Code)
	}
	ev.Status = to
	switch {
	case to == domain.EventActive:
		ev.StartedAt = &at
	case to.Terminal():
		ev.FinishTime = &at
	}
	ev.UpdatedAt = at
	return ev, nil
}

func (e *Escrow) saveParticipant(ctx context.Context, repos store.Repositories, ev *domain.Event, p domain.Participant) error {
	if err := repos.Events().SaveParticipant(ctx, ev.Code, p); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return domain.Wrap(domain.ErrInternal, err, "save participant")
	}
	ev.Participants = slices.Clone(ev.Participants)
	for i := range ev.Participants {
		if ev.Participants[i].UserID == p.UserID {
			ev.Participants[i] = p
			return nil
		}
	}
	ev.Participants = append(ev.Participants, p)
	return nil
}
