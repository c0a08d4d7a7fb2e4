package domain

// Outcome of a registration decision.
type Outcome string

const (
	OutcomeAccepted        Outcome = "accepted"
	OutcomeWaitlisted      Outcome = "waitlisted"
	OutcomePendingApproval Outcome = "pending_approval"
	OutcomeEventFull       Outcome = "event_full"
	OutcomeInvalidCode     Outcome = "invalid_code"
	OutcomeDuplicate       Outcome = "already_registered"
	OutcomeWaitlistDup     Outcome = "already_waitlisted"
	OutcomePendingDup      Outcome = "already_pending"
)

// Terminal reports whether the outcome carries a side effect (seat, waitlist
// slot or pending slot). Rejections are pure: no mutation of any kind.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeAccepted, OutcomeWaitlisted, OutcomePendingApproval:
		return true
	}
	return false
}

// Err maps a rejecting outcome to its sentinel error, nil otherwise.
func (o Outcome) Err() error {
	switch o {
	case OutcomeEventFull:
		return ErrEventFull
	case OutcomeInvalidCode:
		return ErrInvalidCode
	case OutcomeDuplicate:
		return ErrAlreadyRegistered
	case OutcomeWaitlistDup:
		return ErrAlreadyWaitlisted
	case OutcomePendingDup:
		return ErrAlreadyPending
	}
	return nil
}

// Decide applies the registration policy to a snapshot of an event. The check
// order is part of the policy and must not be reordered: code gate, duplicate
// checks, capacity (waitlist before reject), approval, accept. The caller is
// responsible for re-checking capacity and duplicates under a lock before
// committing the effect; Decide itself mutates nothing.
func Decide(e *Event, requester UserToken, code string) Outcome {
	if e.RegistrationCode != "" && code != e.RegistrationCode {
		return OutcomeInvalidCode
	}
	if e.HasParticipant(requester) {
		return OutcomeDuplicate
	}
	if e.OnWaitlist(requester) {
		return OutcomeWaitlistDup
	}
	if e.IsPending(requester) {
		return OutcomePendingDup
	}
	if e.IsFull() {
		if e.WaitlistEnabled {
			return OutcomeWaitlisted
		}
		return OutcomeEventFull
	}
	if e.RequiresApproval {
		return OutcomePendingApproval
	}
	return OutcomeAccepted
}
