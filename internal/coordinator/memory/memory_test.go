package memory

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
	"github.com/dropDatabas3/covenant/internal/identity"
)

var (
	vault = identity.MustParse("0x00000000000000000000000000000000000000aa")
	alice = identity.MustParse("0x000000000000000000000000000000000000000a")
	bob   = identity.MustParse("0x000000000000000000000000000000000000000b")
)

func pendingFixture(seq uint64) (core.Key, *core.PendingAction) {
	key := core.Key{Vault: vault, Domain: 1}
	a := action.Action{
		Sequence: seq,
		Target:   identity.MustParse("0x1111111111111111111111111111111111111111"),
		Amount:   big.NewInt(100),
	}
	fp := fingerprint.Compute(key.Vault, key.Domain, a)
	return key, &core.PendingAction{
		Fingerprint: fp,
		Action:      a,
		Proposer:    alice,
		Approvals:   []core.Approval{{Identity: alice, Signature: make([]byte, 65), SubmittedAt: time.Now().UTC()}},
		CreatedAt:   time.Now().UTC(),
	}
}

func TestCreate_Idempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	key, p := pendingFixture(0)

	stored, created, err := s.Create(ctx, key, p)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	if stored.Fingerprint != p.Fingerprint {
		t.Fatal("stored fingerprint mismatch")
	}

	// Re-crear devuelve la entrada existente, sin pisarla.
	again, created, err := s.Create(ctx, key, p)
	if err != nil || created {
		t.Fatalf("second create: created=%v err=%v", created, err)
	}
	if again.Fingerprint != p.Fingerprint || len(again.Approvals) != 1 {
		t.Fatal("existing entry was replaced")
	}
}

func TestAddApproval(t *testing.T) {
	s := New()
	ctx := context.Background()
	key, p := pendingFixture(0)
	if _, _, err := s.Create(ctx, key, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	stored, err := s.AddApproval(ctx, key, p.Fingerprint, core.Approval{Identity: bob, Signature: make([]byte, 65)})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(stored.Approvals) != 2 {
		t.Fatalf("want 2 approvals, got %d", len(stored.Approvals))
	}

	// Segunda aprobación de la misma identidad: conflicto, no reemplazo.
	_, err = s.AddApproval(ctx, key, p.Fingerprint, core.Approval{Identity: bob, Signature: make([]byte, 65)})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}

	got, err := s.Get(ctx, key, p.Fingerprint)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Approvals) != 2 {
		t.Fatal("conflict mutated stored approvals")
	}
}

func TestAddApproval_NotFound(t *testing.T) {
	s := New()
	key, p := pendingFixture(0)
	_, err := s.AddApproval(context.Background(), key, p.Fingerprint, core.Approval{Identity: bob})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestList_SortedSnapshot(t *testing.T) {
	s := New()
	ctx := context.Background()
	key, p0 := pendingFixture(0)
	_, p1 := pendingFixture(1)
	_, p2 := pendingFixture(2)
	for _, p := range []*core.PendingAction{p2, p0, p1} {
		if _, _, err := s.Create(ctx, key, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := s.List(ctx, key)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("want 3, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Fingerprint.String() >= list[i].Fingerprint.String() {
			t.Fatal("list not ascending by fingerprint")
		}
	}

	// Snapshot: mutar lo devuelto no toca el estado.
	list[0].Approvals[0].Identity = bob
	fresh, _ := s.Get(ctx, key, list[0].Fingerprint)
	if fresh.Approvals[0].Identity != alice {
		t.Fatal("List leaked live state")
	}
}

// N goroutines aprueban con la misma identidad: exactamente una gana.
func TestAddApproval_ConcurrentSameIdentity(t *testing.T) {
	s := New()
	ctx := context.Background()
	key, p := pendingFixture(0)
	if _, _, err := s.Create(ctx, key, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 32
	var wins atomic.Int32
	g := new(errgroup.Group)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := s.AddApproval(ctx, key, p.Fingerprint, core.Approval{Identity: bob, Signature: make([]byte, 65)})
			switch {
			case err == nil:
				wins.Add(1)
				return nil
			case errors.Is(err, core.ErrConflict):
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wins.Load() != 1 {
		t.Fatalf("want exactly 1 winner, got %d", wins.Load())
	}

	got, _ := s.Get(ctx, key, p.Fingerprint)
	if len(got.Approvals) != 2 {
		t.Fatalf("want 2 approvals after race, got %d", len(got.Approvals))
	}
}

func TestSnapshotRestore(t *testing.T) {
	s := New()
	ctx := context.Background()
	key, p := pendingFixture(0)
	if _, _, err := s.Create(ctx, key, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	blob, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	restored := New()
	if err := restored.Restore(blob); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, err := restored.Get(ctx, key, p.Fingerprint)
	if err != nil {
		t.Fatalf("get after restore: %v", err)
	}
	if got.Proposer != alice || len(got.Approvals) != 1 {
		t.Fatal("restored state differs")
	}
}
