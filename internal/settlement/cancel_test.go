package settlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unihub-exe/unihub-core/internal/domain"
)

func TestCancel_ConservesMoney(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{
		TicketTypes: []domain.TicketType{{Name: "regular", Price: 3000}},
		Participants: []domain.Participant{
			{UserToken: "a", TicketType: "regular", AmountPaid: 3000},
			{UserToken: "b", TicketType: "regular", AmountPaid: 3000},
			{UserToken: "c", AmountPaid: 0}, // free seat, no refund
		},
	})
	// Earnings partially unlocked already: split across both buckets.
	f.ledgers.Seed("organizer", 4000, 2000, 0)

	res, err := f.svc.Cancel(ctx, "evt_1", "organizer", "venue flooded")
	if err != nil {
		t.Fatal(err)
	}
	if res.Refunded != 2 || res.TotalRefunded != 6000 {
		t.Fatalf("refunded %d totalling %d, want 2 totalling 6000", res.Refunded, res.TotalRefunded)
	}
	if res.OrganizerDebit != res.TotalRefunded {
		t.Errorf("organizer debit %d != total refunded %d", res.OrganizerDebit, res.TotalRefunded)
	}

	for _, user := range []domain.UserToken{"a", "b"} {
		l, err := f.ledgers.Get(ctx, user)
		if err != nil {
			t.Fatalf("buyer %s ledger: %v", user, err)
		}
		if l.Available != 3000 {
			t.Errorf("buyer %s refunded %d, want 3000", user, l.Available)
		}
	}
	if _, err := f.ledgers.Get(ctx, "c"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("free seat must not receive a refund")
	}

	// 6000 debited available-first: 4000 available then 2000 locked.
	org, _ := f.ledgers.Get(ctx, "organizer")
	if org.Available != 0 || org.Locked != 0 {
		t.Errorf("organizer available/locked = %d/%d, want 0/0", org.Available, org.Locked)
	}

	e, _ := f.events.Find(ctx, "evt_1")
	if !e.Cancelled || e.CancelReason != "venue flooded" {
		t.Errorf("event not marked cancelled: %+v", e)
	}
}

func TestCancel_DebitsAvailableBeforeLocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{
		Participants: []domain.Participant{{UserToken: "a", AmountPaid: 1000}},
	})
	f.ledgers.Seed("organizer", 600, 5000, 0)

	if _, err := f.svc.Cancel(ctx, "evt_1", "organizer", ""); err != nil {
		t.Fatal(err)
	}

	org, _ := f.ledgers.Get(ctx, "organizer")
	if org.Available != 0 || org.Locked != 4600 {
		t.Errorf("organizer available/locked = %d/%d, want 0/4600", org.Available, org.Locked)
	}
}

func TestCancel_OnlyOrganizer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{})

	if _, err := f.svc.Cancel(ctx, "evt_1", "stranger", ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	e, _ := f.events.Find(ctx, "evt_1")
	if e.Cancelled {
		t.Error("unauthorized call must not cancel the event")
	}
}

func TestCancel_SecondCallRefundsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{
		Participants: []domain.Participant{{UserToken: "a", AmountPaid: 1000}},
	})
	f.ledgers.Seed("organizer", 1000, 0, 0)

	if _, err := f.svc.Cancel(ctx, "evt_1", "organizer", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Cancel(ctx, "evt_1", "organizer", ""); !errors.Is(err, domain.ErrEventCancelled) {
		t.Fatalf("expected ErrEventCancelled on second cancel, got %v", err)
	}

	a, _ := f.ledgers.Get(ctx, "a")
	if a.Available != 1000 {
		t.Errorf("double cancel paid out twice: buyer holds %d", a.Available)
	}
}

func TestCancel_InsufficientOrganizerFundsAborts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{
		Participants: []domain.Participant{{UserToken: "a", AmountPaid: 3000}},
	})
	f.ledgers.Seed("organizer", 1000, 1000, 0)

	// Organizer holds too little; the sweep aborts without inventing money.
	_, err := f.svc.Cancel(ctx, "evt_1", "organizer", "")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	org, _ := f.ledgers.Get(ctx, "organizer")
	if org.Available != 1000 || org.Locked != 1000 {
		t.Errorf("aborted refund moved organizer money: %d/%d", org.Available, org.Locked)
	}
}

func TestCancel_NotifiesParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{
		Participants: []domain.Participant{{UserToken: "a", AmountPaid: 500}},
		EndsAt:       time.Now().Add(time.Hour),
	})
	f.ledgers.Seed("organizer", 500, 0, 0)

	if _, err := f.svc.Cancel(ctx, "evt_1", "organizer", "low turnout"); err != nil {
		t.Fatal(err)
	}

	f.notify.mu.Lock()
	defer f.notify.mu.Unlock()
	var sawCancelled bool
	for _, k := range f.notify.kinds {
		if k == "event.cancelled" {
			sawCancelled = true
		}
	}
	if !sawCancelled {
		t.Errorf("no event.cancelled notification, got %v", f.notify.kinds)
	}
}
