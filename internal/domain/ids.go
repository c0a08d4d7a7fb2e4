package domain

// UserToken is the opaque external identifier for a user. It doubles as a
// bearer credential elsewhere in the platform, so it is a distinct type:
// ledger and event records key on it, but nothing in this module may treat it
// as an authentication secret.
type UserToken string

// EventID is the public identifier of an event, decoupled from the storage
// primary key.
type EventID string

func (t UserToken) String() string { return string(t) }
func (id EventID) String() string  { return string(id) }
