package mongostore

import (
	"fmt"
	"time"

	"spray_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names.
const (
	usersCollection        = "users"
	walletsCollection      = "wallets"
	transactionsCollection = "transactions"
	eventsCollection       = "events"
	outboxCollection       = "outbox"
)

type userDoc struct {
	ID       string `bson:"_id"`
	Username string `bson:"username"`
	Email    string `bson:"email,omitempty"`
	Role     string `bson:"role"`
	WalletID string `bson:"wallet_id,omitempty"`
}

type walletDoc struct {
	ID              string               `bson:"_id"`
	UserID          string               `bson:"user_id"`
	Balance         primitive.Decimal128 `bson:"balance"`
	Currency        string               `bson:"currency"`
	PinHash         string               `bson:"pin_hash,omitempty"`
	TransactionRefs []string             `bson:"transaction_refs"`
	CreatedAt       time.Time            `bson:"created_at"`
	UpdatedAt       time.Time            `bson:"updated_at"`
}

type transactionDoc struct {
	ID            string               `bson:"_id"`
	Type          string               `bson:"type"`
	Reference     string               `bson:"reference,omitempty"`
	Amount        primitive.Decimal128 `bson:"amount"`
	Currency      string               `bson:"currency"`
	Status        string               `bson:"status"`
	PaymentMethod string               `bson:"payment_method"`
	Sender        []string             `bson:"sender"`
	Recipient     string               `bson:"recipient"`
	Description   string               `bson:"description,omitempty"`
	EventCode     string               `bson:"event_id,omitempty"`
	Meta          map[string]any       `bson:"meta,omitempty"`
	CreatedAt     time.Time            `bson:"created_at"`
	UpdatedAt     time.Time            `bson:"updated_at"`
}

type participantDoc struct {
	UserID      string               `bson:"user_id"`
	WalletID    string               `bson:"wallet_id"`
	IsActive    bool                 `bson:"is_active"`
	HasPaid     bool                 `bson:"has_paid"`
	Contributed primitive.Decimal128 `bson:"contributed"`
	JoinedAt    time.Time            `bson:"joined_at"`
}

type eventDoc struct {
	Code         string               `bson:"_id"`
	Name         string               `bson:"name"`
	Description  string               `bson:"description,omitempty"`
	OwnerID      string               `bson:"owner_id"`
	OwnerName    string               `bson:"owner_username,omitempty"`
	OwnerWallet  string               `bson:"owner_wallet_id"`
	Status       string               `bson:"status"`
	Class        string               `bson:"class"`
	Visibility   string               `bson:"type"`
	AccessFee    primitive.Decimal128 `bson:"access_fee"`
	Amount       primitive.Decimal128 `bson:"amount"`
	PasscodeHash string               `bson:"passcode_hash,omitempty"`
	Participants []participantDoc     `bson:"participants"`
	IsScheduled  bool                 `bson:"is_scheduled"`
	StartDate    *time.Time           `bson:"start_date,omitempty"`
	StartedAt    *time.Time           `bson:"started_at,omitempty"`
	FinishTime   *time.Time           `bson:"finish_time,omitempty"`
	CreatedAt    time.Time            `bson:"created_at"`
	UpdatedAt    time.Time            `bson:"updated_at"`
}

type outboxDoc struct {
	ID          string     `bson:"_id"`
	Type        string     `bson:"type"`
	Payload     string     `bson:"payload"`
	Status      string     `bson:"status"`
	Attempts    int        `bson:"attempts"`
	CreatedAt   time.Time  `bson:"created_at"`
	ProcessedAt *time.Time `bson:"processed_at,omitempty"`
}

func toD128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		// decimal.Decimal always renders a finite plain number.
		panic(fmt.Sprintf("mongostore: decimal %s not representable: %v", d, err))
	}
	return v
}

func fromD128(v primitive.Decimal128) (decimal.Decimal, error) {
	if v.IsNaN() || v.IsInf() != 0 {
		return decimal.Zero, fmt.Errorf("mongostore: non-finite decimal %s", v)
	}
	return decimal.NewFromString(v.String())
}

func (d userDoc) toDomain() domain.User {
	return domain.User{ID: d.ID, Username: d.Username, Email: d.Email, Role: d.Role, WalletID: d.WalletID}
}

func toWalletDoc(w *domain.Wallet) walletDoc {
	refs := w.TransactionRefs
	if refs == nil {
		refs = []string{}
	}
	return walletDoc{
		ID:              w.ID,
		UserID:          w.UserID,
		Balance:         toD128(w.Balance),
		Currency:        w.Currency,
		PinHash:         w.PinHash,
		TransactionRefs: refs,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
}

func (d walletDoc) toDomain() (domain.Wallet, error) {
	balance, err := fromD128(d.Balance)
	if err != nil {
		return domain.Wallet{}, err
	}
	return domain.Wallet{
		ID:              d.ID,
		UserID:          d.UserID,
		Balance:         balance,
		Currency:        d.Currency,
		PinHash:         d.PinHash,
		TransactionRefs: append([]string{}, d.TransactionRefs...),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}

func toTransactionDoc(t *domain.Transaction) transactionDoc {
	sender := t.Sender
	if sender == nil {
		sender = []string{}
	}
	return transactionDoc{
		ID:            t.TransactionID,
		Type:          string(t.Type),
		Reference:     t.Reference,
		Amount:        toD128(t.Amount),
		Currency:      t.Currency,
		Status:        string(t.Status),
		PaymentMethod: string(t.PaymentMethod),
		Sender:        sender,
		Recipient:     t.Recipient,
		Description:   t.Description,
		EventCode:     t.EventCode,
		Meta:          t.Meta,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func (d transactionDoc) toDomain() (domain.Transaction, error) {
	amount, err := fromD128(d.Amount)
	if err != nil {
		return domain.Transaction{}, err
	}
	return domain.Transaction{
		TransactionID: d.ID,
		Type:          domain.TransactionType(d.Type),
		Reference:     d.Reference,
		Amount:        amount,
		Currency:      d.Currency,
		Status:        domain.PaymentStatus(d.Status),
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		Sender:        append([]string{}, d.Sender...),
		Recipient:     d.Recipient,
		Description:   d.Description,
		EventCode:     d.EventCode,
		Meta:          d.Meta,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

func toParticipantDoc(p domain.Participant) participantDoc {
	return participantDoc{
		UserID:      p.UserID,
		WalletID:    p.WalletID,
		IsActive:    p.IsActive,
		HasPaid:     p.HasPaid,
		Contributed: toD128(p.Contributed),
		JoinedAt:    p.JoinedAt,
	}
}

func toEventDoc(e *domain.Event) eventDoc {
	doc := eventDoc{
		Code:         e.Code,
		Name:         e.Name,
		Description:  e.Description,
		OwnerID:      e.OwnerID,
		OwnerName:    e.OwnerName,
		OwnerWallet:  e.OwnerWallet,
		Status:       string(e.Status),
		Class:        string(e.Class),
		Visibility:   string(e.Visibility),
		AccessFee:    toD128(e.AccessFee),
		Amount:       toD128(e.Amount),
		PasscodeHash: e.PasscodeHash,
		Participants: make([]participantDoc, 0, len(e.Participants)),
		IsScheduled:  e.IsScheduled,
		StartDate:    e.StartDate,
		StartedAt:    e.StartedAt,
		FinishTime:   e.FinishTime,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	for _, p := range e.Participants {
		doc.Participants = append(doc.Participants, toParticipantDoc(p))
	}
	return doc
}

func (d eventDoc) toDomain() (domain.Event, error) {
	fee, err := fromD128(d.AccessFee)
	if err != nil {
		return domain.Event{}, err
	}
	amount, err := fromD128(d.Amount)
	if err != nil {
		return domain.Event{}, err
	}
	e := domain.Event{
		Code:         d.Code,
		Name:         d.Name,
		Description:  d.Description,
		OwnerID:      d.OwnerID,
		OwnerName:    d.OwnerName,
		OwnerWallet:  d.OwnerWallet,
		Status:       domain.EventStatus(d.Status),
		Class:        domain.EventClass(d.Class),
		Visibility:   domain.EventVisibility(d.Visibility),
		AccessFee:    fee,
		Amount:       amount,
		PasscodeHash: d.PasscodeHash,
		Participants: make([]domain.Participant, 0, len(d.Participants)),
		IsScheduled:  d.IsScheduled,
		StartDate:    d.StartDate,
		StartedAt:    d.StartedAt,
		FinishTime:   d.FinishTime,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	for _, p := range d.Participants {
		contributed, err := fromD128(p.Contributed)
		if err != nil {
			return domain.Event{}, err
		}
		e.Participants = append(e.Participants, domain.Participant{
			UserID:      p.UserID,
			WalletID:    p.WalletID,
			IsActive:    p.IsActive,
			HasPaid:     p.HasPaid,
			Contributed: contributed,
			JoinedAt:    p.JoinedAt,
		})
	}
	return e, nil
}

func toOutboxDoc(m *domain.OutboxMessage) outboxDoc {
	return outboxDoc{
		ID:          m.ID,
		Type:        m.Type,
		Payload:     m.Payload,
		Status:      string(m.Status),
		Attempts:    m.Attempts,
		CreatedAt:   m.CreatedAt,
		ProcessedAt: m.ProcessedAt,
	}
}

func (d outboxDoc) toDomain() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:          d.ID,
		Type:        d.Type,
		Payload:     d.Payload,
		Status:      domain.OutboxStatus(d.Status),
		Attempts:    d.Attempts,
		CreatedAt:   d.CreatedAt,
		ProcessedAt: d.ProcessedAt,
	}
}
