package domain

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Money is an amount in minor currency units (kobo). Paystack amounts are
// integral kobo, so no fractional arithmetic occurs anywhere in the ledger.
type Money int64

// Ledger is the durable balance record for one user. Available funds are
// spendable, locked funds are sale earnings held until the unlock window
// passes, pending funds are reserved for in-flight payouts. Funds move
// between the three buckets, they are never duplicated.
type Ledger struct {
	UserToken UserToken
	Available Money
	Locked    Money
	Pending   Money
	UpdatedAt time.Time
}

// EntryType classifies a ledger transaction.
type EntryType string

const (
	EntryTicketPurchase EntryType = "ticket_purchase"
	EntryTicketSale     EntryType = "ticket_sale"
	EntryWithdrawal     EntryType = "withdrawal"
	EntryRefundSent     EntryType = "refund_sent"
	EntryRefundReceived EntryType = "refund_received"
	EntryPayoutRejected EntryType = "payout_rejected"
	EntryPremiumPayment EntryType = "premium_payment"
	EntryDeposit        EntryType = "deposit"
)

// EntryStatus is the lifecycle status of a transaction record. Everything but
// Status is immutable after append.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
	EntryCancelled EntryStatus = "cancelled"
)

// Entry is one append-only transaction record. Amount is signed: negative is
// a debit against the user, positive a credit. Reference correlates the entry
// with an external payment or payout and is the idempotency key where one
// applies.
type Entry struct {
	ID          uuid.UUID
	UserToken   UserToken
	Type        EntryType
	Amount      Money
	Description string
	EventID     EventID
	Status      EntryStatus
	Reference   string
	CreatedAt   time.Time
}

// NewEntry builds a completed entry with a fresh id.
func NewEntry(user UserToken, typ EntryType, amount Money, description string) Entry {
	return Entry{
		ID:          uuid.New(),
		UserToken:   user,
		Type:        typ,
		Amount:      amount,
		Description: description,
		Status:      EntryCompleted,
		CreatedAt:   time.Now().UTC(),
	}
}

// Validate rejects entries that could corrupt the log.
func (e Entry) Validate() error {
	if e.UserToken == "" {
		return errors.WithDetail(ErrValidation, "entry missing user token")
	}
	if e.Amount == 0 {
		return errors.WithDetail(ErrValidation, "entry amount must be non-zero")
	}
	switch e.Type {
	case EntryTicketPurchase, EntryTicketSale, EntryWithdrawal, EntryRefundSent,
		EntryRefundReceived, EntryPayoutRejected, EntryPremiumPayment, EntryDeposit:
	default:
		return errors.WithDetailf(ErrValidation, "unknown entry type %q", e.Type)
	}
	return nil
}
