package settlement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unihub-exe/unihub-core/internal/domain"
	"github.com/unihub-exe/unihub-core/internal/ledger"
	"github.com/unihub-exe/unihub-core/internal/memstore"
	"github.com/unihub-exe/unihub-core/internal/observability"
	"github.com/unihub-exe/unihub-core/internal/registration"
	"github.com/unihub-exe/unihub-core/internal/settlement"
)

type fakeGateway struct {
	verifications map[string]domain.Verification
	err           error
}

func (g *fakeGateway) Verify(_ context.Context, ref string) (domain.Verification, error) {
	if g.err != nil {
		return domain.Verification{}, g.err
	}
	v, ok := g.verifications[ref]
	if !ok {
		return domain.Verification{Reference: ref, Status: "failed"}, nil
	}
	return v, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeNotifier) Notify(_ context.Context, kind string, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, string, domain.UserToken, map[string]any) {}

type fixture struct {
	svc     *settlement.Service
	ledgers *memstore.LedgerStore
	events  *memstore.EventStore
	refs    *memstore.RefStore
	gateway *fakeGateway
	notify  *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledgers: memstore.NewLedgerStore(),
		events:  memstore.NewEventStore(),
		refs:    memstore.NewRefStore(),
		gateway: &fakeGateway{verifications: map[string]domain.Verification{}},
		notify:  &fakeNotifier{},
	}
	log := observability.NewLogger()
	eng := ledger.New(f.ledgers)
	reg := registration.NewService(f.events, f.notify, log, false)
	f.svc = settlement.NewService(eng, reg, f.events, f.gateway, f.refs, nopAuditor{}, f.notify, log, time.Hour)
	return f
}

func (f *fixture) seedEvent(e domain.Event) {
	if e.ID == "" {
		e.ID = "evt_1"
	}
	if e.OwnerToken == "" {
		e.OwnerToken = "organizer"
	}
	f.events.Put(&e)
}

func walletRequest(user string, ticketType string) settlement.RegisterRequest {
	return settlement.RegisterRequest{
		EventID: "evt_1",
		Registrant: registration.Registrant{
			User:       domain.UserToken(user),
			Name:       "User " + user,
			Email:      user + "@campus.edu",
			TicketType: ticketType,
		},
		Method: settlement.PayWallet,
	}
}

func TestRegister_WalletPurchase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{
		TicketTypes: []domain.TicketType{{Name: "regular", Price: 3000}},
		EndsAt:      time.Now().Add(24 * time.Hour),
	})
	f.ledgers.Seed("buyer", 5000, 0, 0)

	res, err := f.svc.Register(ctx, walletRequest("buyer", "regular"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeAccepted || res.Participant == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.AmountPaid != 3000 {
		t.Errorf("amount paid = %d, want 3000", res.AmountPaid)
	}

	l, _ := f.ledgers.Get(ctx, "buyer")
	if l.Available != 2000 {
		t.Errorf("buyer available = %d, want 2000", l.Available)
	}

	var purchases int
	for _, e := range f.ledgers.AllEntries() {
		if e.UserToken == "buyer" && e.Type == domain.EntryTicketPurchase {
			purchases++
			if e.Amount != -3000 {
				t.Errorf("purchase entry amount = %d, want -3000", e.Amount)
			}
		}
	}
	if purchases != 1 {
		t.Errorf("purchase entries = %d, want 1", purchases)
	}

	// Seller earnings land locked until the unlock window passes.
	org, _ := f.ledgers.Get(ctx, "organizer")
	if org.Locked != 3000 || org.Available != 0 {
		t.Errorf("organizer locked/available = %d/%d, want 3000/0", org.Locked, org.Available)
	}

	e, _ := f.events.Find(ctx, "evt_1")
	if len(e.Participants) != 1 || e.Participants[0].AmountPaid != 3000 {
		t.Errorf("participant not recorded: %+v", e.Participants)
	}
	if e.TicketTypes[0].Sold != 1 {
		t.Errorf("sold counter = %d, want 1", e.TicketTypes[0].Sold)
	}
}

func TestRegister_WalletInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{TicketTypes: []domain.TicketType{{Name: "regular", Price: 3000}}})
	f.ledgers.Seed("buyer", 1000, 0, 0)

	_, err := f.svc.Register(ctx, walletRequest("buyer", "regular"))
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	l, _ := f.ledgers.Get(ctx, "buyer")
	if l.Available != 1000 {
		t.Errorf("failed settlement must not move money, available = %d", l.Available)
	}
	e, _ := f.events.Find(ctx, "evt_1")
	if len(e.Participants) != 0 {
		t.Error("failed settlement must not seat the buyer")
	}
}

func TestRegister_GatewayVerificationFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{TicketTypes: []domain.TicketType{{Name: "regular", Price: 3000}}})

	req := walletRequest("buyer", "regular")
	req.Method = settlement.PayPaystack
	req.Reference = "ref_bad"
	f.gateway.verifications["ref_bad"] = domain.Verification{Reference: "ref_bad", Status: "failed"}

	_, err := f.svc.Register(ctx, req)
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}

	e, _ := f.events.Find(ctx, "evt_1")
	if len(e.Participants) != 0 {
		t.Error("failed verification must not seat the buyer")
	}
	if entries := f.ledgers.AllEntries(); len(entries) != 0 {
		t.Errorf("failed verification must not touch the ledger, got %d entries", len(entries))
	}

	// The unsettled reference was released and may be retried once the
	// charge actually succeeds.
	f.gateway.verifications["ref_bad"] = domain.Verification{Reference: "ref_bad", Status: "success", Amount: 3000}
	if _, err := f.svc.Register(ctx, req); err != nil {
		t.Fatalf("retry after released reference: %v", err)
	}
}

func TestRegister_DuplicateReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{Capacity: 10, TicketTypes: []domain.TicketType{{Name: "regular", Price: 3000}}})
	f.gateway.verifications["ref_1"] = domain.Verification{Reference: "ref_1", Status: "success", Amount: 3000}

	req := walletRequest("buyer", "regular")
	req.Method = settlement.PayPaystack
	req.Reference = "ref_1"
	if _, err := f.svc.Register(ctx, req); err != nil {
		t.Fatal(err)
	}

	// Same charge reference by another user must not buy a second seat.
	req2 := walletRequest("mallory", "regular")
	req2.Method = settlement.PayPaystack
	req2.Reference = "ref_1"
	if _, err := f.svc.Register(ctx, req2); !errors.Is(err, domain.ErrDuplicateRef) {
		t.Fatalf("expected ErrDuplicateRef, got %v", err)
	}
}

func TestRegister_ShortPaidCharge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{TicketTypes: []domain.TicketType{{Name: "regular", Price: 3000}}})
	f.gateway.verifications["ref_short"] = domain.Verification{Reference: "ref_short", Status: "success", Amount: 2999}

	req := walletRequest("buyer", "regular")
	req.Method = settlement.PayPaystack
	req.Reference = "ref_short"
	if _, err := f.svc.Register(ctx, req); !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider for short payment, got %v", err)
	}
}

func TestRegister_FreeEventTakesNoPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{Capacity: 10})

	res, err := f.svc.Register(ctx, walletRequest("student", ""))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeAccepted || res.AmountPaid != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if entries := f.ledgers.AllEntries(); len(entries) != 0 {
		t.Errorf("free registration wrote %d ledger entries", len(entries))
	}
}

func TestRegister_InvalidCodeIsPure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{
		RegistrationCode: "SECRET",
		TicketTypes:      []domain.TicketType{{Name: "regular", Price: 3000}},
	})
	f.ledgers.Seed("buyer", 5000, 0, 0)

	req := walletRequest("buyer", "regular")
	req.Registrant.Code = "WRONG"
	res, err := f.svc.Register(ctx, req)
	if !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if res.Outcome != domain.OutcomeInvalidCode {
		t.Errorf("outcome = %v", res.Outcome)
	}

	l, _ := f.ledgers.Get(ctx, "buyer")
	if l.Available != 5000 {
		t.Error("rejection must not move money")
	}
	e, _ := f.events.Find(ctx, "evt_1")
	if len(e.Participants)+len(e.Waitlist)+len(e.Pending) != 0 {
		t.Error("rejection must not mutate any membership set")
	}
}

func TestRegister_FullEventWaitlistsBeforePayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedEvent(domain.Event{
		Capacity:        1,
		WaitlistEnabled: true,
		TicketTypes:     []domain.TicketType{{Name: "regular", Price: 3000}},
		Participants:    []domain.Participant{{UserToken: "first"}},
	})
	f.ledgers.Seed("buyer", 5000, 0, 0)

	res, err := f.svc.Register(ctx, walletRequest("buyer", "regular"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeWaitlisted {
		t.Fatalf("outcome = %v, want waitlisted", res.Outcome)
	}

	l, _ := f.ledgers.Get(ctx, "buyer")
	if l.Available != 5000 {
		t.Error("waitlisting must not take payment")
	}
}

// failingEvents wraps the event store to fail AddParticipant, simulating a
// storage error after the wallet debit.
type failingEvents struct {
	registration.EventStore
}

func (f *failingEvents) AddParticipant(context.Context, domain.EventID, domain.Participant, bool) error {
	return errors.New("storage down")
}

func TestRegister_WalletDebitCompensatedOnCommitFailure(t *testing.T) {
	ctx := context.Background()
	ledgers := memstore.NewLedgerStore()
	events := memstore.NewEventStore()
	refs := memstore.NewRefStore()
	notify := &fakeNotifier{}
	log := observability.NewLogger()
	eng := ledger.New(ledgers)
	broken := &failingEvents{EventStore: events}
	reg := registration.NewService(broken, notify, log, false)
	svc := settlement.NewService(eng, reg, broken, &fakeGateway{}, refs, nopAuditor{}, notify, log, time.Hour)

	events.Put(&domain.Event{
		ID: "evt_1", OwnerToken: "organizer",
		TicketTypes: []domain.TicketType{{Name: "regular", Price: 3000}},
	})
	ledgers.Seed("buyer", 5000, 0, 0)

	_, err := svc.Register(ctx, walletRequest("buyer", "regular"))
	if err == nil {
		t.Fatal("expected the storage error to surface")
	}

	l, _ := ledgers.Get(ctx, "buyer")
	if l.Available != 5000 {
		t.Fatalf("debit was not compensated, available = %d", l.Available)
	}
	// The debit and its reversal both appear in the log.
	if entries := ledgers.AllEntries(); len(entries) != 2 {
		t.Errorf("expected debit + reversal entries, got %d", len(entries))
	}
}
