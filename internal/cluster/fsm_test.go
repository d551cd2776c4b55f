package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/hashicorp/raft"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
	"github.com/dropDatabas3/covenant/internal/identity"
)

var (
	testVault = identity.MustParse("0x00000000000000000000000000000000000000aa")
	alice     = identity.MustParse("0x000000000000000000000000000000000000000a")
	bob       = identity.MustParse("0x000000000000000000000000000000000000000b")
)

func pendingFixture() (core.Key, *core.PendingAction) {
	key := core.Key{Vault: testVault, Domain: 1}
	a := action.Action{
		Sequence: 0,
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

func mustLog(t *testing.T, m Mutation) *raft.Log {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal mutation: %v", err)
	}
	return &raft.Log{Data: data}
}

func proposeMutation(t *testing.T, key core.Key, p *core.PendingAction) Mutation {
	t.Helper()
	payload, err := json.Marshal(proposeDTO{Pending: p})
	if err != nil {
		t.Fatalf("marshal propose: %v", err)
	}
	return Mutation{Type: MutationPropose, Key: key, Payload: payload}
}

func approveMutation(t *testing.T, key core.Key, fp fingerprint.Fingerprint, a core.Approval) Mutation {
	t.Helper()
	payload, err := json.Marshal(approveDTO{Fingerprint: fp.String(), Approval: a})
	if err != nil {
		t.Fatalf("marshal approve: %v", err)
	}
	return Mutation{Type: MutationApprove, Key: key, Payload: payload}
}

func TestFSM_ApplyProposeAndApprove(t *testing.T) {
	fsm := NewFSM()
	key, p := pendingFixture()

	res := fsm.Apply(mustLog(t, proposeMutation(t, key, p))).(*ApplyResult)
	if res.Err != nil || !res.Created {
		t.Fatalf("propose apply: created=%v err=%v", res.Created, res.Err)
	}

	// Mismo propose de nuevo: determinístico, created=false sin error.
	res = fsm.Apply(mustLog(t, proposeMutation(t, key, p))).(*ApplyResult)
	if res.Err != nil || res.Created {
		t.Fatalf("duplicate propose: created=%v err=%v", res.Created, res.Err)
	}

	res = fsm.Apply(mustLog(t, approveMutation(t, key, p.Fingerprint, core.Approval{
		Identity: bob, Signature: make([]byte, 65), SubmittedAt: time.Now().UTC(),
	}))).(*ApplyResult)
	if res.Err != nil {
		t.Fatalf("approve apply: %v", res.Err)
	}
	if len(res.Pending.Approvals) != 2 {
		t.Fatalf("want 2 approvals, got %d", len(res.Pending.Approvals))
	}

	// El conflicto viaja en el ApplyResult, no como fallo del log.
	res = fsm.Apply(mustLog(t, approveMutation(t, key, p.Fingerprint, core.Approval{
		Identity: bob, Signature: make([]byte, 65),
	}))).(*ApplyResult)
	if !errors.Is(res.Err, core.ErrConflict) {
		t.Fatalf("want ErrConflict in result, got %v", res.Err)
	}
}

func TestFSM_ApplyGarbage(t *testing.T) {
	fsm := NewFSM()

	res := fsm.Apply(&raft.Log{Data: []byte("not json")}).(*ApplyResult)
	if res.Err == nil {
		t.Fatal("garbage log entry should error")
	}

	res = fsm.Apply(&raft.Log{}).(*ApplyResult)
	if res.Err == nil {
		t.Fatal("empty log entry should error")
	}

	res = fsm.Apply(mustLog(t, Mutation{Type: "nope"})).(*ApplyResult)
	if res.Err == nil {
		t.Fatal("unknown mutation type should error")
	}
}

// sink mínimo para ejercitar Persist sin un cluster real.
type memSink struct {
	bytes.Buffer
	canceled bool
}

func (s *memSink) ID() string    { return "test" }
func (s *memSink) Cancel() error { s.canceled = true; return nil }
func (s *memSink) Close() error  { return nil }

func TestFSM_SnapshotRestore(t *testing.T) {
	fsm := NewFSM()
	key, p := pendingFixture()
	if res := fsm.Apply(mustLog(t, proposeMutation(t, key, p))).(*ApplyResult); res.Err != nil {
		t.Fatalf("propose: %v", res.Err)
	}

	snap, err := fsm.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	sink := &memSink{}
	if err := snap.Persist(sink); err != nil {
		t.Fatalf("persist: %v", err)
	}
	snap.Release()

	restored := NewFSM()
	if err := restored.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, err := restored.State().Get(context.Background(), key, p.Fingerprint)
	if err != nil {
		t.Fatalf("get after restore: %v", err)
	}
	if got.Proposer != alice || len(got.Approvals) != 1 {
		t.Fatal("restored state differs")
	}
	if got.Action.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatal("amount lost in snapshot roundtrip")
	}
}
