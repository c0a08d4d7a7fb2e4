package registration_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/unihub-exe/unihub-core/internal/domain"
	"github.com/unihub-exe/unihub-core/internal/memstore"
	"github.com/unihub-exe/unihub-core/internal/observability"
	"github.com/unihub-exe/unihub-core/internal/registration"
)

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeNotifier) Notify(_ context.Context, kind string, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
}

func (f *fakeNotifier) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func newService(events *memstore.EventStore) (*registration.Service, *fakeNotifier) {
	notify := &fakeNotifier{}
	return registration.NewService(events, notify, observability.NewLogger(), false), notify
}

func seedEvent(events *memstore.EventStore, e domain.Event) {
	if e.ID == "" {
		e.ID = "evt_1"
	}
	events.Put(&e)
}

func registrant(tok string) registration.Registrant {
	return registration.Registrant{
		User:  domain.UserToken(tok),
		Name:  "User " + tok,
		Email: tok + "@campus.edu",
	}
}

func TestRegister_CapacityBoundUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	events := memstore.NewEventStore()
	svc, _ := newService(events)
	seedEvent(events, domain.Event{ID: "evt_1", Capacity: 5})

	const attempts = 50
	var wg sync.WaitGroup
	accepted := make(chan struct{}, attempts)
	full := make(chan struct{}, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r := registrant(string(rune('a'+n%26)) + string(rune('0'+n/26)))
			_, outcome, err := svc.Evaluate(ctx, "evt_1", r)
			if err != nil {
				return
			}
			if _, err := svc.Commit(ctx, "evt_1", r, outcome, 0); err != nil {
				if errors.Is(err, domain.ErrEventFull) || errors.Is(err, domain.ErrAlreadyRegistered) {
					full <- struct{}{}
				}
				return
			}
			if outcome == domain.OutcomeAccepted {
				accepted <- struct{}{}
			}
		}(i)
	}
	wg.Wait()

	e, err := events.Find(ctx, "evt_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(e.Participants) > 5 {
		t.Fatalf("capacity bound violated: %d participants for capacity 5", len(e.Participants))
	}
}

func TestRegister_CapacityOneRace(t *testing.T) {
	ctx := context.Background()
	events := memstore.NewEventStore()
	svc, _ := newService(events)
	seedEvent(events, domain.Event{ID: "evt_1", Capacity: 1})

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, tok := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(i int, tok string) {
			defer wg.Done()
			r := registrant(tok)
			_, outcome, err := svc.Evaluate(ctx, "evt_1", r)
			if err != nil {
				results[i] = err
				return
			}
			_, results[i] = svc.Commit(ctx, "evt_1", r, outcome, 0)
		}(i, tok)
	}
	wg.Wait()

	e, _ := events.Find(ctx, "evt_1")
	if len(e.Participants) != 1 {
		t.Fatalf("exactly one of the two must win, got %d participants", len(e.Participants))
	}
	okCount := 0
	for _, err := range results {
		if err == nil {
			okCount++
		} else if !errors.Is(err, domain.ErrEventFull) {
			t.Errorf("loser must see ErrEventFull, got %v", err)
		}
	}
	if okCount != 1 {
		t.Fatalf("winners = %d, want 1", okCount)
	}
}

func TestRegister_MutualExclusivity(t *testing.T) {
	ctx := context.Background()
	events := memstore.NewEventStore()
	svc, _ := newService(events)
	seedEvent(events, domain.Event{
		ID:              "evt_1",
		Capacity:        1,
		WaitlistEnabled: true,
		Participants:    []domain.Participant{{UserToken: "first"}},
	})

	r := registrant("carol")
	_, outcome, err := svc.Evaluate(ctx, "evt_1", r)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != domain.OutcomeWaitlisted {
		t.Fatalf("outcome = %v, want waitlisted", outcome)
	}
	if _, err := svc.Commit(ctx, "evt_1", r, outcome, 0); err != nil {
		t.Fatal(err)
	}

	// A second attempt by the same user must reject as a waitlist duplicate
	// with no mutation.
	_, outcome, err = svc.Evaluate(ctx, "evt_1", r)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != domain.OutcomeWaitlistDup {
		t.Fatalf("outcome = %v, want already_waitlisted", outcome)
	}

	e, _ := events.Find(ctx, "evt_1")
	sets := 0
	if e.HasParticipant("carol") {
		sets++
	}
	if e.OnWaitlist("carol") {
		sets++
	}
	if e.IsPending("carol") {
		sets++
	}
	if sets != 1 {
		t.Fatalf("carol appears in %d membership sets, want exactly 1", sets)
	}
}

func TestCheckIn_Idempotent(t *testing.T) {
	ctx := context.Background()
	events := memstore.NewEventStore()
	svc, notify := newService(events)
	seedEvent(events, domain.Event{
		ID:           "evt_1",
		Participants: []domain.Participant{{UserToken: "alice"}, {UserToken: "bob"}},
	})

	flipped, err := svc.CheckIn(ctx, "evt_1", []domain.UserToken{"alice", "ghost"})
	if err != nil {
		t.Fatal(err)
	}
	if flipped != 1 {
		t.Fatalf("flipped = %d, want 1 (ghost is a no-op)", flipped)
	}

	flipped, err = svc.CheckIn(ctx, "evt_1", []domain.UserToken{"alice"})
	if err != nil {
		t.Fatal(err)
	}
	if flipped != 0 {
		t.Fatalf("second check-in flipped = %d, want 0", flipped)
	}
	if got := notify.count("participant.checked_in"); got != 1 {
		t.Errorf("check-in notified %d times, want 1", got)
	}

	e, _ := events.Find(ctx, "evt_1")
	if !e.Participants[0].Entry || e.Participants[1].Entry {
		t.Errorf("entry flags wrong after check-in: %+v", e.Participants)
	}
}

func TestRemove_PromotesWaitlistHead(t *testing.T) {
	ctx := context.Background()
	events := memstore.NewEventStore()
	svc, notify := newService(events)
	seedEvent(events, domain.Event{
		ID:           "evt_1",
		Capacity:     1,
		Participants: []domain.Participant{{UserToken: "alice"}},
		Waitlist: []domain.WaitlistEntry{
			{UserToken: "bob", Email: "bob@campus.edu"},
			{UserToken: "carol"},
		},
	})

	removed, err := svc.Remove(ctx, "evt_1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if removed.UserToken != "alice" {
		t.Fatalf("removed %s, want alice", removed.UserToken)
	}

	e, _ := events.Find(ctx, "evt_1")
	if !e.HasParticipant("bob") || e.OnWaitlist("bob") {
		t.Error("bob was not promoted off the waitlist")
	}
	if !e.OnWaitlist("carol") {
		t.Error("carol should remain on the waitlist")
	}
	if notify.count("waitlist.promoted") != 1 {
		t.Error("promotion should notify once")
	}
}

func TestApprove_FreePendingOnly(t *testing.T) {
	ctx := context.Background()
	events := memstore.NewEventStore()
	svc, _ := newService(events)
	seedEvent(events, domain.Event{
		ID:               "evt_1",
		RequiresApproval: true,
		TicketTypes:      []domain.TicketType{{Name: "vip", Price: 5000}},
		Pending: []domain.PendingRegistration{
			{UserToken: "free_user"},
			{UserToken: "vip_user", TicketType: "vip"},
		},
	})

	p, err := svc.Approve(ctx, "evt_1", "free_user")
	if err != nil {
		t.Fatal(err)
	}
	if p.PassID == "" {
		t.Error("approved participant has no pass id")
	}

	if _, err := svc.Approve(ctx, "evt_1", "vip_user"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("priced pending approval must be refused, got %v", err)
	}

	e, _ := events.Find(ctx, "evt_1")
	if !e.HasParticipant("free_user") || e.IsPending("free_user") {
		t.Error("free_user was not promoted cleanly")
	}
	if !e.IsPending("vip_user") {
		t.Error("refused approval must leave vip_user in the pending queue")
	}
}

func TestApprove_FullEventKeepsRegistrationQueued(t *testing.T) {
	ctx := context.Background()
	events := memstore.NewEventStore()
	svc, _ := newService(events)
	seedEvent(events, domain.Event{
		ID:           "evt_1",
		Capacity:     1,
		Participants: []domain.Participant{{UserToken: "seated"}},
		Pending:      []domain.PendingRegistration{{UserToken: "queued"}},
	})

	if _, err := svc.Approve(ctx, "evt_1", "queued"); !errors.Is(err, domain.ErrEventFull) {
		t.Fatalf("expected ErrEventFull, got %v", err)
	}

	e, _ := events.Find(ctx, "evt_1")
	if !e.IsPending("queued") {
		t.Error("refused approval consumed the pending registration")
	}
	if e.HasParticipant("queued") {
		t.Error("queued must not be seated on a full event")
	}
}

func TestEvaluate_UnknownTicketType(t *testing.T) {
	events := memstore.NewEventStore()
	svc, _ := newService(events)
	seedEvent(events, domain.Event{ID: "evt_1"})

	r := registrant("alice")
	r.TicketType = "nope"
	_, _, err := svc.Evaluate(context.Background(), "evt_1", r)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown ticket type, got %v", err)
	}
}
