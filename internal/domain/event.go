package domain

import "time"

// Visibility of an event listing.
type Visibility string

const (
	VisibilityPublic      Visibility = "public"
	VisibilityPrivate     Visibility = "private"
	VisibilityMembersOnly Visibility = "members_only"
)

// TicketType is one priced tier of an event. Sold is an issuance counter; by
// default it is advisory, behind config it gates issuance per tier.
type TicketType struct {
	Name     string
	Price    Money
	Capacity int
	Sold     int
}

// Participant is a confirmed registrant. Entry flips true on check-in.
type Participant struct {
	UserToken  UserToken
	Name       string
	Email      string
	PassID     string
	Entry      bool
	TicketType string
	AmountPaid Money
	AddedAt    time.Time
}

// WaitlistEntry is a registrant queued behind a full event.
type WaitlistEntry struct {
	UserToken UserToken
	Name      string
	Email     string
	AddedAt   time.Time
}

// PendingRegistration is a registrant awaiting organizer approval.
type PendingRegistration struct {
	UserToken  UserToken
	Name       string
	Email      string
	Answers    map[string]string
	TicketType string
	AddedAt    time.Time
}

// Event is the aggregate the tracker manages. Capacity 0 means unlimited. A
// user token appears in at most one of Participants, Waitlist and Pending.
type Event struct {
	ID               EventID
	OwnerToken       UserToken
	Name             string
	Capacity         int
	TicketTypes      []TicketType
	Visibility       Visibility
	RequiresApproval bool
	WaitlistEnabled  bool
	RegistrationCode string
	EndsAt           time.Time
	Participants     []Participant
	Waitlist         []WaitlistEntry
	Pending          []PendingRegistration
	Cancelled        bool
	CancelledAt      time.Time
	CancelReason     string
}

// IsFull reports whether the confirmed participant list has reached capacity.
func (e *Event) IsFull() bool {
	return e.Capacity > 0 && len(e.Participants) >= e.Capacity
}

func (e *Event) HasParticipant(tok UserToken) bool {
	for i := range e.Participants {
		if e.Participants[i].UserToken == tok {
			return true
		}
	}
	return false
}

func (e *Event) OnWaitlist(tok UserToken) bool {
	for i := range e.Waitlist {
		if e.Waitlist[i].UserToken == tok {
			return true
		}
	}
	return false
}

func (e *Event) IsPending(tok UserToken) bool {
	for i := range e.Pending {
		if e.Pending[i].UserToken == tok {
			return true
		}
	}
	return false
}

// TicketPrice returns the price for a named tier, or 0 for an unnamed or free
// registration.
func (e *Event) TicketPrice(name string) (Money, bool) {
	if name == "" {
		return 0, true
	}
	for i := range e.TicketTypes {
		if e.TicketTypes[i].Name == name {
			return e.TicketTypes[i].Price, true
		}
	}
	return 0, false
}
