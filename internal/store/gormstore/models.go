package gormstore

import (
	"time"

	"spray_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

// userRow mirrors the identity collaborator locally
type userRow struct {
	ID       string `gorm:"primaryKey;size:64"`             // Identity id
	Username string `gorm:"size:64;index"`                  // Handle
	Email    string `gorm:"size:255"`                       // Contact address
	Role     string `gorm:"size:16;not null;default:user"`  // user or admin
	WalletID string `gorm:"size:64"`                        // Empty until a wallet is opened
}

func (userRow) TableName() string { return "users" }

// walletRow is a wallet with its ordered ledger references
type walletRow struct {
	ID        string          `gorm:"primaryKey;size:64"`               // Wallet id
	UserID    string          `gorm:"size:64;uniqueIndex;not null"`     // One wallet per user
	Balance   decimal.Decimal `gorm:"type:decimal(20,2);not null"`      // Never negative
	Currency  string          `gorm:"size:3;not null"`                  // ISO currency
	PinHash   string          `gorm:"size:255"`                         // bcrypt hash, optional
	Refs      []walletRefRow  `gorm:"foreignKey:WalletID;references:ID"` // Ledger references
	CreatedAt time.Time       // Creation time
	UpdatedAt time.Time       // Last change
}

func (walletRow) TableName() string { return "wallets" }

// walletRefRow keeps one ledger reference; the auto-increment id gives the order
type walletRefRow struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	WalletID      string `gorm:"size:64;index;not null"`
	TransactionID string `gorm:"size:64;not null"`
}

func (walletRefRow) TableName() string { return "wallet_transactions" }

// transactionRow is one ledger entry
type transactionRow struct {
	TransactionID string                 `gorm:"primaryKey;size:64"`                           // Prefixed ULID
	Type          string                 `gorm:"size:16;index;not null"`                       // EVENT, SEND...
	Reference     string                 `gorm:"size:128;index"`                               // Gateway reference
	Amount        decimal.Decimal        `gorm:"type:decimal(20,2);not null"`                  // Always positive
	Currency      string                 `gorm:"size:3;not null"`                              // ISO currency
	Status        string                 `gorm:"size:16;index;not null"`                       // pending, success...
	PaymentMethod string                 `gorm:"size:8;not null"`                              // bank, card or na
	Senders       []transactionSenderRow `gorm:"foreignKey:TransactionID;references:TransactionID"` // Ordered senders
	Recipient     string                 `gorm:"size:64;index;not null"`                       // Wallet id
	Description   string                 `gorm:"size:255"`                                     // Free text
	EventCode     string                 `gorm:"size:16;index"`                                // Owning event, if any
	Meta          map[string]any         `gorm:"serializer:json"`                              // Free-form metadata
	CreatedAt     time.Time              `gorm:"index"`                                        // Creation time
	UpdatedAt     time.Time              // Last status change
}

func (transactionRow) TableName() string { return "transactions" }

// transactionSenderRow lets wallet filters hit an index instead of a JSON column
type transactionSenderRow struct {
	TransactionID string `gorm:"primaryKey;size:64"`
	Position      int    `gorm:"primaryKey"`
	WalletID      string `gorm:"size:64;index;not null"`
}

func (transactionSenderRow) TableName() string { return "transaction_senders" }

// eventRow is an event and its escrow
type eventRow struct {
	Code         string           `gorm:"primaryKey;size:16"`                    // Short join code
	Name         string           `gorm:"size:255;not null"`                     // Display name
	Description  string           `gorm:"type:text"`                             // Free text
	OwnerID      string           `gorm:"size:64;index;not null"`                // Creator
	OwnerName    string           `gorm:"size:64"`                               // Creator handle
	OwnerWallet  string           `gorm:"size:64;not null"`                      // Settlement destination
	Status       string           `gorm:"size:16;index;not null"`                // PENDING, ACTIVE...
	Class        string           `gorm:"size:8;not null"`                       // FREE or PAID
	Visibility   string           `gorm:"size:8;not null"`                       // PUBLIC or PRIVATE
	AccessFee    decimal.Decimal  `gorm:"type:decimal(20,2);not null"`           // Paid events only
	Amount       decimal.Decimal  `gorm:"type:decimal(20,2);not null"`           // Escrow accumulator
	PasscodeHash string           `gorm:"size:255"`                              // bcrypt hash, optional
	Participants []participantRow `gorm:"foreignKey:EventCode;references:Code"`  // Attached users
	IsScheduled  bool             // Has a planned start
	StartDate    *time.Time       // Planned start
	StartedAt    *time.Time       // Set on ACTIVE
	FinishTime   *time.Time       // Set on COMPLETED or CANCELLED
	CreatedAt    time.Time        `gorm:"index"`
	UpdatedAt    time.Time
}

func (eventRow) TableName() string { return "events" }

// participantRow is keyed by event and user
type participantRow struct {
	EventCode   string          `gorm:"primaryKey;size:16"`
	UserID      string          `gorm:"primaryKey;size:64"`
	WalletID    string          `gorm:"size:64;not null"`
	IsActive    bool            `gorm:"not null"`
	HasPaid     bool            `gorm:"not null"`
	Contributed decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	JoinedAt    time.Time
}

func (participantRow) TableName() string { return "event_participants" }

// outboxRow is a message awaiting broker delivery
type outboxRow struct {
	ID          string     `gorm:"primaryKey;size:36"`
	Type        string     `gorm:"size:64;not null"`
	Payload     string     `gorm:"type:text;not null"`
	Status      string     `gorm:"size:16;index;not null"`
	Attempts    int        `gorm:"not null"`
	CreatedAt   time.Time  `gorm:"index"`
	ProcessedAt *time.Time
}

func (outboxRow) TableName() string { return "outbox" }

// Models lists every table owned by the relational backend.
func Models() []any {
	return []any{
		&userRow{},
		&walletRow{},
		&walletRefRow{},
		&transactionRow{},
		&transactionSenderRow{},
		&eventRow{},
		&participantRow{},
		&outboxRow{},
	}
}

func toUserRow(u domain.User) userRow {
	return userRow{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role, WalletID: u.WalletID}
}

func (r userRow) toDomain() domain.User {
	return domain.User{ID: r.ID, Username: r.Username, Email: r.Email, Role: r.Role, WalletID: r.WalletID}
}

func toWalletRow(w *domain.Wallet) walletRow {
	row := walletRow{
		ID:        w.ID,
		UserID:    w.UserID,
		Balance:   w.Balance,
		Currency:  w.Currency,
		PinHash:   w.PinHash,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
	for _, ref := range w.TransactionRefs {
		row.Refs = append(row.Refs, walletRefRow{WalletID: w.ID, TransactionID: ref})
	}
	return row
}

func (r walletRow) toDomain() domain.Wallet {
	w := domain.Wallet{
		ID:              r.ID,
		UserID:          r.UserID,
		Balance:         r.Balance,
		Currency:        r.Currency,
		PinHash:         r.PinHash,
		TransactionRefs: make([]string, 0, len(r.Refs)),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	for _, ref := range r.Refs {
		w.TransactionRefs = append(w.TransactionRefs, ref.TransactionID)
	}
	return w
}

func toTransactionRow(t *domain.Transaction) transactionRow {
	row := transactionRow{
		TransactionID: t.TransactionID,
		Type:          string(t.Type),
		Reference:     t.Reference,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Status:        string(t.Status),
		PaymentMethod: string(t.PaymentMethod),
		Recipient:     t.Recipient,
		Description:   t.Description,
		EventCode:     t.EventCode,
		Meta:          t.Meta,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	for i, s := range t.Sender {
		row.Senders = append(row.Senders, transactionSenderRow{TransactionID: t.TransactionID, Position: i, WalletID: s})
	}
	return row
}

func (r transactionRow) toDomain() domain.Transaction {
	t := domain.Transaction{
		TransactionID: r.TransactionID,
		Type:          domain.TransactionType(r.Type),
		Reference:     r.Reference,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Status:        domain.PaymentStatus(r.Status),
		PaymentMethod: domain.PaymentMethod(r.PaymentMethod),
		Sender:        make([]string, 0, len(r.Senders)),
		Recipient:     r.Recipient,
		Description:   r.Description,
		EventCode:     r.EventCode,
		Meta:          r.Meta,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	for _, s := range r.Senders {
		t.Sender = append(t.Sender, s.WalletID)
	}
	return t
}

func toEventRow(e *domain.Event) eventRow {
	row := eventRow{
		Code:         e.Code,
		Name:         e.Name,
		Description:  e.Description,
		OwnerID:      e.OwnerID,
		OwnerName:    e.OwnerName,
		OwnerWallet:  e.OwnerWallet,
		Status:       string(e.Status),
		Class:        string(e.Class),
		Visibility:   string(e.Visibility),
		AccessFee:    e.AccessFee,
		Amount:       e.Amount,
		PasscodeHash: e.PasscodeHash,
		IsScheduled:  e.IsScheduled,
		StartDate:    e.StartDate,
		StartedAt:    e.StartedAt,
		FinishTime:   e.FinishTime,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	for _, p := range e.Participants {
		row.Participants = append(row.Participants, toParticipantRow(e.Code, p))
	}
	return row
}

func (r eventRow) toDomain() domain.Event {
	e := domain.Event{
		Code:         r.Code,
		Name:         r.Name,
		Description:  r.Description,
		OwnerID:      r.OwnerID,
		OwnerName:    r.OwnerName,
		OwnerWallet:  r.OwnerWallet,
		Status:       domain.EventStatus(r.Status),
		Class:        domain.EventClass(r.Class),
		Visibility:   domain.EventVisibility(r.Visibility),
		AccessFee:    r.AccessFee,
		Amount:       r.Amount,
		PasscodeHash: r.PasscodeHash,
		Participants: make([]domain.Participant, 0, len(r.Participants)),
		IsScheduled:  r.IsScheduled,
		StartDate:    r.StartDate,
		StartedAt:    r.StartedAt,
		FinishTime:   r.FinishTime,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	for _, p := range r.Participants {
		e.Participants = append(e.Participants, domain.Participant{
			UserID:      p.UserID,
			WalletID:    p.WalletID,
			IsActive:    p.IsActive,
			HasPaid:     p.HasPaid,
			Contributed: p.Contributed,
			JoinedAt:    p.JoinedAt,
		})
	}
	return e
}

func toParticipantRow(code string, p domain.Participant) participantRow {
	return participantRow{
		EventCode:   code,
		UserID:      p.UserID,
		WalletID:    p.WalletID,
		IsActive:    p.IsActive,
		HasPaid:     p.HasPaid,
		Contributed: p.Contributed,
		JoinedAt:    p.JoinedAt,
	}
}

func toOutboxRow(m *domain.OutboxMessage) outboxRow {
	return outboxRow{
		ID:          m.ID,
		Type:        m.Type,
		Payload:     m.Payload,
		Status:      string(m.Status),
		Attempts:    m.Attempts,
		CreatedAt:   m.CreatedAt,
		ProcessedAt: m.ProcessedAt,
	}
}

func (r outboxRow) toDomain() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:          r.ID,
		Type:        r.Type,
		Payload:     r.Payload,
		Status:      domain.OutboxStatus(r.Status),
		Attempts:    r.Attempts,
		CreatedAt:   r.CreatedAt,
		ProcessedAt: r.ProcessedAt,
	}
}
