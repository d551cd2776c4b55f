package bolt

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

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

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

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

func TestCreateGetApprove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "covenant.db")
	s := openStore(t, path)
	defer s.Close()
	ctx := context.Background()

	key, p := pendingFixture(0)

	_, created, err := s.Create(ctx, key, p)
	if err != nil || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}
	_, created, err = s.Create(ctx, key, p)
	if err != nil || created {
		t.Fatalf("idempotent create: created=%v err=%v", created, err)
	}

	stored, err := s.AddApproval(ctx, key, p.Fingerprint, core.Approval{Identity: bob, Signature: make([]byte, 65)})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(stored.Approvals) != 2 {
		t.Fatalf("want 2 approvals, got %d", len(stored.Approvals))
	}

	_, err = s.AddApproval(ctx, key, p.Fingerprint, core.Approval{Identity: bob})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}

	var missing fingerprint.Fingerprint
	missing[0] = 0xff
	if _, err := s.Get(ctx, key, missing); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

// El estado sobrevive a cerrar y reabrir el archivo.
func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "covenant.db")
	ctx := context.Background()
	key, p := pendingFixture(0)

	s := openStore(t, path)
	if _, _, err := s.Create(ctx, key, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.AddApproval(ctx, key, p.Fingerprint, core.Approval{Identity: bob, Signature: make([]byte, 65)}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2 := openStore(t, path)
	defer s2.Close()
	got, err := s2.Get(ctx, key, p.Fingerprint)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Proposer != alice || len(got.Approvals) != 2 {
		t.Fatal("state lost across reopen")
	}
	if got.Action.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("amount lost: %s", got.Action.Amount)
	}
}

func TestList_AscendingByFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "covenant.db")
	s := openStore(t, path)
	defer s.Close()
	ctx := context.Background()

	key, _ := pendingFixture(0)
	for seq := uint64(0); seq < 5; seq++ {
		_, p := pendingFixture(seq)
		if _, _, err := s.Create(ctx, key, p); err != nil {
			t.Fatalf("create seq=%d: %v", seq, err)
		}
	}

	list, err := s.List(ctx, key)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("want 5, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Fingerprint.String() >= list[i].Fingerprint.String() {
			t.Fatal("list not ascending by fingerprint")
		}
	}

	// Key ajena: lista vacía, sin error.
	other := core.Key{Vault: vault, Domain: 99}
	empty, err := s.List(ctx, other)
	if err != nil || len(empty) != 0 {
		t.Fatalf("other key: len=%d err=%v", len(empty), err)
	}
}
