package pg_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/unihub-exe/unihub-core/internal/adapters/pg"
	"github.com/unihub-exe/unihub-core/internal/domain"
	"github.com/unihub-exe/unihub-core/internal/ledger"
)

func startPostgres(t *testing.T) *pg.Repository {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			Env:          map[string]string{"POSTGRES_USER": "unihub", "POSTGRES_PASSWORD": "unihub", "POSTGRES_DB": "unihub"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatal(err)
	}

	dsn := fmt.Sprintf("postgres://unihub:unihub@%s:%s/unihub?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	repo := pg.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return repo
}

func TestLedgerStore_NoOverdraft(t *testing.T) {
	ctx := context.Background()
	repo := startPostgres(t)
	store := pg.NewLedgerStore(repo)

	credit := ledger.Deposit("buyer", 5000, "dep_1")
	if err := store.Apply(ctx, credit); err != nil {
		t.Fatal(err)
	}

	debit := ledger.Purchase("buyer", 9000, "evt_1", "", "ticket")
	if err := store.Apply(ctx, debit); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	l, err := store.Get(ctx, "buyer")
	if err != nil {
		t.Fatal(err)
	}
	if l.Available != 5000 {
		t.Errorf("failed debit moved money, available = %d", l.Available)
	}

	entries, err := store.Entries(ctx, "buyer", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Type != domain.EntryDeposit {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestLedgerStore_HoldLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := startPostgres(t)
	store := pg.NewLedgerStore(repo)

	unlockAt := time.Now().Add(-time.Minute)
	sale := ledger.SaleEarnings("org", 3000, "evt_1", "ref_1", unlockAt)
	if err := store.Apply(ctx, sale); err != nil {
		t.Fatal(err)
	}

	due, err := store.DueUnlocks(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].Amount != 3000 {
		t.Fatalf("unexpected due holds %+v", due)
	}

	for i := 0; i < 2; i++ { // second release is a no-op
		if err := store.ReleaseHold(ctx, due[0]); err != nil {
			t.Fatal(err)
		}
	}

	l, _ := store.Get(ctx, "org")
	if l.Available != 3000 || l.Locked != 0 {
		t.Errorf("available/locked = %d/%d, want 3000/0", l.Available, l.Locked)
	}
}

func TestEventStore_CapacityAndDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := startPostgres(t)
	store := pg.NewEventStore(repo)

	err := store.Put(ctx, &domain.Event{
		ID: "evt_1", OwnerToken: "org", Name: "GoConf", Capacity: 1,
		TicketTypes: []domain.TicketType{{Name: "regular", Price: 3000, Capacity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	p := domain.Participant{UserToken: "alice", Name: "Alice", TicketType: "regular", AddedAt: time.Now()}
	if err := store.AddParticipant(ctx, "evt_1", p, true); err != nil {
		t.Fatal(err)
	}
	if err := store.AddParticipant(ctx, "evt_1", p, true); !errors.Is(err, domain.ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}

	bob := domain.Participant{UserToken: "bob", Name: "Bob", TicketType: "regular", AddedAt: time.Now()}
	if err := store.AddParticipant(ctx, "evt_1", bob, true); !errors.Is(err, domain.ErrEventFull) {
		t.Errorf("expected ErrEventFull, got %v", err)
	}

	e, err := store.Find(ctx, "evt_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(e.Participants) != 1 || e.TicketTypes[0].Sold != 1 {
		t.Errorf("participants=%d sold=%d, want 1/1", len(e.Participants), e.TicketTypes[0].Sold)
	}
}

func TestEventStore_RemovePromotesWaitlistHead(t *testing.T) {
	ctx := context.Background()
	repo := startPostgres(t)
	store := pg.NewEventStore(repo)

	err := store.Put(ctx, &domain.Event{
		ID: "evt_1", OwnerToken: "org", Name: "GoConf", Capacity: 1, WaitlistEnabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AddParticipant(ctx, "evt_1", domain.Participant{UserToken: "alice", AddedAt: time.Now()}, false); err != nil {
		t.Fatal(err)
	}
	if err := store.AddToWaitlist(ctx, "evt_1", domain.WaitlistEntry{UserToken: "bob", AddedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	removed, promoted, err := store.RemoveParticipant(ctx, "evt_1", "alice", true)
	if err != nil {
		t.Fatal(err)
	}
	if removed.UserToken != "alice" || promoted == nil || promoted.UserToken != "bob" {
		t.Fatalf("removed=%v promoted=%v", removed.UserToken, promoted)
	}

	e, _ := store.Find(ctx, "evt_1")
	if len(e.Participants) != 1 || e.Participants[0].UserToken != "bob" || len(e.Waitlist) != 0 {
		t.Errorf("promotion left event in state %+v", e)
	}
}

func TestPayoutStore_GuardedTransition(t *testing.T) {
	ctx := context.Background()
	repo := startPostgres(t)
	store := pg.NewPayoutStore(repo)

	req := domain.NewPayoutRequest("ada", 3000, domain.BankAccount{
		BankCode: "011", AccountNumber: "0123456789", AccountName: "Ada",
	}, time.Time{})
	if err := store.Create(ctx, req); err != nil {
		t.Fatal(err)
	}

	if err := store.Transition(ctx, req.ID, domain.PayoutPending, domain.PayoutProcessing, "", ""); err != nil {
		t.Fatal(err)
	}
	// The claim is consumed; a second claim loses.
	if err := store.Transition(ctx, req.ID, domain.PayoutPending, domain.PayoutProcessing, "", ""); !errors.Is(err, domain.ErrBadTransition) {
		t.Fatalf("expected ErrBadTransition, got %v", err)
	}

	if err := store.Transition(ctx, req.ID, domain.PayoutProcessing, domain.PayoutCompleted, "", "TRF_9"); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get(ctx, req.ID)
	if got.Status != domain.PayoutCompleted || got.TransferID != "TRF_9" || got.ResolvedAt.IsZero() {
		t.Errorf("stored payout %+v", got)
	}
}
