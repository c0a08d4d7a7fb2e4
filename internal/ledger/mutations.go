package ledger

import (
	"time"

	"github.com/unihub-exe/unihub-core/internal/domain"
)

func entryFor(user domain.UserToken, typ domain.EntryType, amount domain.Money, desc string, eventID domain.EventID, ref string) *domain.Entry {
	e := domain.NewEntry(user, typ, amount, desc)
	e.EventID = eventID
	e.Reference = ref
	return &e
}

// Purchase debits a buyer's available balance for a ticket.
func Purchase(buyer domain.UserToken, amount domain.Money, eventID domain.EventID, ref, desc string) Mutation {
	return Mutation{
		User:           buyer,
		AvailableDelta: -amount,
		Entry:          entryFor(buyer, domain.EntryTicketPurchase, -amount, desc, eventID, ref),
	}
}

// SaleEarnings credits a seller's locked balance; the funds thaw at unlockAt.
func SaleEarnings(seller domain.UserToken, amount domain.Money, eventID domain.EventID, ref string, unlockAt time.Time) Mutation {
	return Mutation{
		User:        seller,
		LockedDelta: amount,
		Entry:       entryFor(seller, domain.EntryTicketSale, amount, "ticket sale", eventID, ref),
		Hold:        &EarningsHold{EventID: eventID, UnlockAt: unlockAt},
	}
}

// Deposit credits wallet funding confirmed by the payment gateway.
func Deposit(user domain.UserToken, amount domain.Money, ref string) Mutation {
	return Mutation{
		User:           user,
		AvailableDelta: amount,
		Entry:          entryFor(user, domain.EntryDeposit, amount, "wallet funding", "", ref),
	}
}

// RefundReceived credits a participant after an event cancellation.
func RefundReceived(user domain.UserToken, amount domain.Money, eventID domain.EventID) Mutation {
	return Mutation{
		User:           user,
		AvailableDelta: amount,
		Entry:          entryFor(user, domain.EntryRefundReceived, amount, "refund for cancelled event", eventID, ""),
	}
}

// RefundSent debits the organizer for one participant's refund, drawing
// fromAvailable first and fromLocked for the remainder. One log entry covers
// the combined amount.
func RefundSent(organizer domain.UserToken, fromAvailable, fromLocked domain.Money, eventID domain.EventID) Mutation {
	total := fromAvailable + fromLocked
	return Mutation{
		User:           organizer,
		AvailableDelta: -fromAvailable,
		LockedDelta:    -fromLocked,
		Entry:          entryFor(organizer, domain.EntryRefundSent, -total, "refund for cancelled event", eventID, ""),
	}
}

// PurchaseReversal returns a debited amount after a settlement step failed
// past the point of debit.
func PurchaseReversal(buyer domain.UserToken, amount domain.Money, eventID domain.EventID, ref string) Mutation {
	return Mutation{
		User:           buyer,
		AvailableDelta: amount,
		Entry:          entryFor(buyer, domain.EntryRefundReceived, amount, "reversal of failed ticket purchase", eventID, ref),
	}
}

// Reserve earmarks funds for an in-flight payout: available drops, pending
// rises, and a pending withdrawal entry is logged under the payout reference.
func Reserve(user domain.UserToken, amount domain.Money, ref string) Mutation {
	e := entryFor(user, domain.EntryWithdrawal, -amount, "withdrawal", "", ref)
	e.Status = domain.EntryPending
	return Mutation{
		User:           user,
		AvailableDelta: -amount,
		PendingDelta:   amount,
		Entry:          e,
	}
}

// ReleaseReservation restores a reservation after a rejected or failed
// payout: the exact reserved amount returns to available and a compensating
// credit is logged.
func ReleaseReservation(user domain.UserToken, amount domain.Money, ref string) Mutation {
	return Mutation{
		User:           user,
		AvailableDelta: amount,
		PendingDelta:   -amount,
		Entry:          entryFor(user, domain.EntryPayoutRejected, amount, "payout reservation released", "", ref),
	}
}

// SettleReservation consumes the reservation once the bank transfer went
// through, completing the withdrawal entry logged at request time.
func SettleReservation(user domain.UserToken, amount domain.Money, ref string) Mutation {
	return Mutation{
		User:         user,
		PendingDelta: -amount,
		Update:       &StatusUpdate{Reference: ref, Status: domain.EntryCompleted},
	}
}

// UnlockEarnings moves thawed funds from locked to available. A pure bucket
// move: no money enters or leaves the user, so no log entry.
func UnlockEarnings(user domain.UserToken, amount domain.Money) Mutation {
	return Mutation{
		User:           user,
		AvailableDelta: amount,
		LockedDelta:    -amount,
	}
}
