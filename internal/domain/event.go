package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventStatus is the escrow lifecycle state of an event.
type EventStatus string

const (
	EventPending   EventStatus = "PENDING"
	EventActive    EventStatus = "ACTIVE"
	EventCompleted EventStatus = "COMPLETED"
	EventCancelled EventStatus = "CANCELLED"
)

// Terminal reports whether the event can no longer change state.
func (s EventStatus) Terminal() bool {
	return s == EventCompleted || s == EventCancelled
}

// CanTransitionTo encodes PENDING -> ACTIVE -> COMPLETED, with CANCELLED
// reachable from any non-terminal state.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	switch s {
	case EventPending:
		return next == EventActive || next == EventCancelled
	case EventActive:
		return next == EventCompleted || next == EventCancelled
	case EventCompleted, EventCancelled:
		return false
	}
	return false
}

// OpenEventStatuses are the states counted against the one-open-event rule.
var OpenEventStatuses = []EventStatus{EventPending, EventActive}

// EventClass decides whether joining costs an access fee.
type EventClass string

const (
	EventFree EventClass = "FREE"
	EventPaid EventClass = "PAID"
)

// EventVisibility decides whether an event is listed publicly.
type EventVisibility string

const (
	EventPublic  EventVisibility = "PUBLIC"
	EventPrivate EventVisibility = "PRIVATE"
)

// ParseEventClass accepts any letter case; empty means FREE.
func ParseEventClass(s string) (EventClass, error) {
	switch c := EventClass(strings.ToUpper(strings.TrimSpace(s))); c {
	case "":
		return EventFree, nil
	case EventFree, EventPaid:
		return c, nil
	}
	return "", Errorf(ErrValidation, "invalid event class %q", s)
}

// ParseEventVisibility accepts any letter case; empty means PUBLIC.
func ParseEventVisibility(s string) (EventVisibility, error) {
	switch v := EventVisibility(strings.ToUpper(strings.TrimSpace(s))); v {
	case "":
		return EventPublic, nil
	case EventPublic, EventPrivate:
		return v, nil
	}
	return "", Errorf(ErrValidation, "invalid event type %q", s)
}

// Participant is a user attached to an event.
type Participant struct {
	UserID      string          `json:"user_id"`
	WalletID    string          `json:"wallet_id"`
	IsActive    bool            `json:"is_active"`
	HasPaid     bool            `json:"has_paid"`
	Contributed decimal.Decimal `json:"contributed"` // Sum of tips deposited into escrow
	JoinedAt    time.Time       `json:"joined_at"`
}

// Event holds escrowed funds for a live session.
type Event struct {
	Code         string          `json:"event_code"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	OwnerID      string          `json:"owner_id"`
	OwnerName    string          `json:"owner_username,omitempty"`
	OwnerWallet  string          `json:"owner_wallet_id"`
	Status       EventStatus     `json:"status"`
	Class        EventClass      `json:"class"`
	Visibility   EventVisibility `json:"type"`
	AccessFee    decimal.Decimal `json:"access_fee"`
	Amount       decimal.Decimal `json:"amount"` // Escrow accumulator
	PasscodeHash string          `json:"-"`
	Participants []Participant   `json:"participants"`
	IsScheduled  bool            `json:"is_scheduled"`
	StartDate    *time.Time      `json:"start_date,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishTime   *time.Time      `json:"finish_time,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsOwner reports whether userID created the event.
func (e Event) IsOwner(userID string) bool {
	return e.OwnerID == userID
}

// RequiresPasscode reports whether joining needs a passcode.
func (e Event) RequiresPasscode() bool {
	return e.PasscodeHash != ""
}

// Participant looks up userID among the participants.
func (e Event) Participant(userID string) (Participant, bool) {
	for _, p := range e.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// ContributorWalletIDs returns the wallets that deposited into escrow, in
// participant order and without duplicates.
func (e Event) ContributorWalletIDs() []string {
	seen := make(map[string]bool, len(e.Participants))
	ids := make([]string, 0, len(e.Participants))
	for _, p := range e.Participants {
		if !p.Contributed.IsPositive() || seen[p.WalletID] {
			continue
		}
		seen[p.WalletID] = true
		ids = append(ids, p.WalletID)
	}
	return ids
}

// ActiveParticipantCount counts participants currently in the event.
func (e Event) ActiveParticipantCount() int {
	n := 0
	for _, p := range e.Participants {
		if p.IsActive {
			n++
		}
	}
	return n
}

// EventFilter narrows event listings. Zero values match everything.
type EventFilter struct {
	OwnerID    string
	Statuses   []EventStatus
	Visibility EventVisibility
	Name       string // Case-insensitive substring
	Limit      int
	Offset     int
}

// Matches applies the filter to a single event.
func (f EventFilter) Matches(e Event) bool {
	if f.OwnerID != "" && e.OwnerID != f.OwnerID {
		return false
	}
	if f.Visibility != "" && e.Visibility != f.Visibility {
		return false
	}
	if f.Name != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(f.Name)) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if e.Status == s {
			return true
		}
	}
	return false
}
