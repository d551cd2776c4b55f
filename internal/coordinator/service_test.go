package coordinator

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	"github.com/dropDatabas3/covenant/internal/coordinator/memory"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
	"github.com/dropDatabas3/covenant/internal/identity"
	"github.com/dropDatabas3/covenant/internal/ledger"
	"github.com/dropDatabas3/covenant/internal/quorum"
)

var (
	vault = identity.MustParse("0x00000000000000000000000000000000000000aa")
	alice = identity.MustParse("0x000000000000000000000000000000000000000a")
	bob   = identity.MustParse("0x000000000000000000000000000000000000000b")
)

func testAction() action.Action {
	return action.Action{
		Sequence: 0,
		Target:   identity.MustParse("0x1111111111111111111111111111111111111111"),
		Amount:   big.NewInt(25),
	}
}

func fakeSig() []byte { return make([]byte, 65) }

func TestPropose(t *testing.T) {
	svc := New(memory.New())
	ctx := context.Background()
	key := core.Key{Vault: vault, Domain: 1}
	a := testAction()

	p, created, err := svc.Propose(ctx, key, a, core.Approval{Identity: alice, Signature: fakeSig()})
	if err != nil || !created {
		t.Fatalf("propose: created=%v err=%v", created, err)
	}

	// El fingerprint lo calcula el service, nunca el cliente.
	if p.Fingerprint != fingerprint.Compute(key.Vault, key.Domain, a) {
		t.Fatal("fingerprint mismatch")
	}
	if p.Proposer != alice || len(p.Approvals) != 1 || p.Approvals[0].Identity != alice {
		t.Fatal("proposer approval not recorded")
	}
	if p.Approvals[0].SubmittedAt.IsZero() || p.CreatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}

	// Re-proponer: misma entrada, created=false, la aprobación no se duplica.
	again, created, err := svc.Propose(ctx, key, a, core.Approval{Identity: bob, Signature: fakeSig()})
	if err != nil || created {
		t.Fatalf("duplicate propose: created=%v err=%v", created, err)
	}
	if again.Proposer != alice || len(again.Approvals) != 1 {
		t.Fatal("duplicate propose altered the stored entry")
	}
}

func TestPropose_Invalid(t *testing.T) {
	svc := New(memory.New())
	ctx := context.Background()
	key := core.Key{Vault: vault, Domain: 1}

	// Acción malformada.
	bad := testAction()
	bad.Amount = nil
	if _, _, err := svc.Propose(ctx, key, bad, core.Approval{Identity: alice, Signature: fakeSig()}); !errors.Is(err, core.ErrInvalid) {
		t.Fatalf("nil amount: want ErrInvalid, got %v", err)
	}

	// Aprobación sin firma o con largo incorrecto.
	if _, _, err := svc.Propose(ctx, key, testAction(), core.Approval{Identity: alice}); !errors.Is(err, core.ErrInvalid) {
		t.Fatalf("empty signature: want ErrInvalid, got %v", err)
	}
	if _, _, err := svc.Propose(ctx, key, testAction(), core.Approval{Identity: alice, Signature: make([]byte, 10)}); !errors.Is(err, core.ErrInvalid) {
		t.Fatalf("short signature: want ErrInvalid, got %v", err)
	}

	// Identidad cero.
	if _, _, err := svc.Propose(ctx, key, testAction(), core.Approval{Signature: fakeSig()}); !errors.Is(err, core.ErrInvalid) {
		t.Fatalf("zero identity: want ErrInvalid, got %v", err)
	}

	// Vault cero en la key.
	if _, _, err := svc.Propose(ctx, core.Key{Domain: 1}, testAction(), core.Approval{Identity: alice, Signature: fakeSig()}); !errors.Is(err, core.ErrInvalid) {
		t.Fatalf("zero vault: want ErrInvalid, got %v", err)
	}
}

func TestApprove(t *testing.T) {
	svc := New(memory.New())
	ctx := context.Background()
	key := core.Key{Vault: vault, Domain: 1}
	a := testAction()

	p, _, err := svc.Propose(ctx, key, a, core.Approval{Identity: alice, Signature: fakeSig()})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	stored, err := svc.Approve(ctx, key, p.Fingerprint, core.Approval{Identity: bob, Signature: fakeSig()})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(stored.Approvals) != 2 {
		t.Fatalf("want 2 approvals, got %d", len(stored.Approvals))
	}

	if _, err := svc.Approve(ctx, key, p.Fingerprint, core.Approval{Identity: bob, Signature: fakeSig()}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}

	var missing fingerprint.Fingerprint
	missing[0] = 0xff
	if _, err := svc.Approve(ctx, key, missing, core.Approval{Identity: bob, Signature: fakeSig()}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

type captureNotifier struct {
	ch chan fingerprint.Fingerprint
}

func (n *captureNotifier) ProposalCreated(ctx context.Context, key core.Key, p *core.PendingAction) {
	n.ch <- p.Fingerprint
}

func TestPropose_NotifiesOnceOnCreate(t *testing.T) {
	notifier := &captureNotifier{ch: make(chan fingerprint.Fingerprint, 2)}
	svc := New(memory.New(), WithNotifier(notifier))
	ctx := context.Background()
	key := core.Key{Vault: vault, Domain: 1}
	a := testAction()

	p, _, err := svc.Propose(ctx, key, a, core.Approval{Identity: alice, Signature: fakeSig()})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	select {
	case fp := <-notifier.ch:
		if fp != p.Fingerprint {
			t.Fatalf("notified wrong fingerprint: %s", fp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier not called")
	}

	// El duplicado no vuelve a notificar.
	if _, _, err := svc.Propose(ctx, key, a, core.Approval{Identity: bob, Signature: fakeSig()}); err != nil {
		t.Fatalf("duplicate propose: %v", err)
	}
	select {
	case <-notifier.ch:
		t.Fatal("duplicate proposal must not notify")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSequenceHint(t *testing.T) {
	dev := ledger.NewDev()
	m, err := quorum.NewMembership([]identity.Address{alice, bob}, 1)
	if err != nil {
		t.Fatalf("membership: %v", err)
	}
	if err := dev.CreateVault(vault, m, big.NewInt(0)); err != nil {
		t.Fatalf("create vault: %v", err)
	}

	svc := New(memory.New(), WithLedgerReader(dev))
	ctx := context.Background()

	seq, ok := svc.SequenceHint(ctx, vault)
	if !ok || seq != 0 {
		t.Fatalf("hint: seq=%d ok=%v", seq, ok)
	}

	// Vault desconocido: sin hint, sin error.
	if _, ok := svc.SequenceHint(ctx, alice); ok {
		t.Fatal("unknown vault should have no hint")
	}

	// Sin reader configurado tampoco hay hint.
	bare := New(memory.New())
	if _, ok := bare.SequenceHint(ctx, vault); ok {
		t.Fatal("no reader should mean no hint")
	}
}
