package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"conti/internal/core"
	"conti/internal/ledger"
)

// Routing keys for published ledger events.
const (
	TypeEntryCreated      = "entry.created"
	TypeEntryUpdated      = "entry.updated"
	TypeEntryDeleted      = "entry.deleted"
	TypeTransferCompleted = "transfer.completed"
)

// EntryEvent describes one committed entry mutation. Amounts travel as
// decimal strings so consumers never see binary floats.
type EntryEvent struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	Kind      string    `json:"kind"`
	EntryID   int64     `json:"entry_id"`
	UserID    int64     `json:"user_id"`
	WalletID  int64     `json:"wallet_id"`
	Amount    string    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`

	// Set on entry.updated only: where the entry pointed before.
	OldWalletID int64  `json:"old_wallet_id,omitempty"`
	OldAmount   string `json:"old_amount,omitempty"`
}

// TransferEvent describes one committed transfer with the ids of the
// synthetic entry pair.
type TransferEvent struct {
	EventID             string    `json:"event_id"`
	Type                string    `json:"type"`
	UserID              int64     `json:"user_id"`
	SourceWalletID      int64     `json:"source_wallet_id"`
	DestinationWalletID int64     `json:"destination_wallet_id"`
	ExpenseID           int64     `json:"expense_id"`
	IncomeID            int64     `json:"income_id"`
	Amount              string    `json:"amount"`
	Timestamp           time.Time `json:"timestamp"`
}

func newEntryEvent(eventType string, e core.Entry) EntryEvent {
	return EntryEvent{
		EventID:   uuid.New().String(),
		Type:      eventType,
		Kind:      e.Kind.String(),
		EntryID:   e.ID,
		UserID:    e.UserID,
		WalletID:  e.WalletID,
		Amount:    e.Amount.String(),
		Timestamp: time.Now().UTC(),
	}
}

func newTransferEvent(res ledger.TransferResult) TransferEvent {
	return TransferEvent{
		EventID:             uuid.New().String(),
		Type:                TypeTransferCompleted,
		UserID:              res.Expense.UserID,
		SourceWalletID:      res.Source.ID,
		DestinationWalletID: res.Destination.ID,
		ExpenseID:           res.Expense.ID,
		IncomeID:            res.Income.ID,
		Amount:              res.Expense.Amount.String(),
		Timestamp:           time.Now().UTC(),
	}
}

// EntryEventFromJSON decodes a consumed entry event.
func EntryEventFromJSON(data []byte) (*EntryEvent, error) {
	var ev EntryEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// TransferEventFromJSON decodes a consumed transfer event.
func TransferEventFromJSON(data []byte) (*TransferEvent, error) {
	var ev TransferEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
