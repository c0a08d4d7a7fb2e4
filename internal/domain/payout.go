package domain

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatus is the state of a withdrawal request.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutApproved   PayoutStatus = "approved"
	PayoutRejected   PayoutStatus = "rejected"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// payoutTransitions is the allowed state machine:
// pending -> approved | rejected | processing
// approved -> processing | completed | failed
// processing -> completed | failed
// completed, rejected and failed are terminal. Failed payouts are not
// retried automatically; they go to manual review.
var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutPending:    {PayoutApproved, PayoutRejected, PayoutProcessing},
	PayoutApproved:   {PayoutProcessing, PayoutCompleted, PayoutFailed},
	PayoutProcessing: {PayoutCompleted, PayoutFailed},
}

// CanTransition reports whether from -> to is a legal payout transition.
func CanTransition(from, to PayoutStatus) bool {
	for _, next := range payoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BankAccount is the transfer destination for a payout.
type BankAccount struct {
	BankName      string
	BankCode      string
	AccountNumber string
	AccountName   string
}

// PayoutRequest is one withdrawal ask. Amount is deducted from the user's
// available balance at request time (reservation), not at completion.
type PayoutRequest struct {
	ID          uuid.UUID
	UserToken   UserToken
	Amount      Money
	Account     BankAccount
	Status      PayoutStatus
	Reference   string
	AdminNotes  string
	ScheduledAt time.Time
	RequestedAt time.Time
	ResolvedAt  time.Time
	TransferID  string
}

// NewPayoutRequest creates a pending request with a fresh reference.
func NewPayoutRequest(user UserToken, amount Money, account BankAccount, scheduledAt time.Time) PayoutRequest {
	return PayoutRequest{
		ID:          uuid.New(),
		UserToken:   user,
		Amount:      amount,
		Account:     account,
		Status:      PayoutPending,
		Reference:   "po_" + uuid.NewString(),
		ScheduledAt: scheduledAt,
		RequestedAt: time.Now().UTC(),
	}
}
