package quorum

import (
	"errors"
	"math/big"
	"sort"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
	"github.com/dropDatabas3/covenant/internal/identity"
	"github.com/dropDatabas3/covenant/internal/sig"
)

// signer junta clave e identidad para armar batches en orden canónico.
type signer struct {
	priv *secp256k1.PrivateKey
	addr identity.Address
}

func newSigners(t *testing.T, n int) []signer {
	t.Helper()
	out := make([]signer, n)
	for i := range out {
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("keygen: %v", err)
		}
		out[i] = signer{priv: priv, addr: sig.AddressOf(priv)}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].addr.Less(out[j].addr) })
	return out
}

func testFingerprint() fingerprint.Fingerprint {
	vault := identity.MustParse("0x00000000000000000000000000000000000000aa")
	return fingerprint.Compute(vault, 1, action.Action{
		Sequence: 0,
		Target:   identity.MustParse("0x1111111111111111111111111111111111111111"),
		Amount:   big.NewInt(42),
	})
}

func signBatch(fp fingerprint.Fingerprint, signers ...signer) [][]byte {
	digest := fingerprint.Digest(fp)
	out := make([][]byte, len(signers))
	for i, s := range signers {
		out[i] = sig.Sign(digest, s.priv)
	}
	return out
}

func membershipOf(t *testing.T, threshold uint32, signers ...signer) Membership {
	t.Helper()
	addrs := make([]identity.Address, len(signers))
	for i, s := range signers {
		addrs[i] = s.addr
	}
	m, err := NewMembership(addrs, threshold)
	if err != nil {
		t.Fatalf("membership: %v", err)
	}
	return m
}

func TestVerify_Admits(t *testing.T) {
	ss := newSigners(t, 3)
	m := membershipOf(t, 2, ss...)
	fp := testFingerprint()

	// Exactamente threshold firmas, en orden.
	got, err := Verify(fp, m, signBatch(fp, ss[0], ss[1]))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(got) != 2 || got[0] != ss[0].addr || got[1] != ss[1].addr {
		t.Fatalf("wrong signers: %v", got)
	}

	// Más que threshold también admite.
	if _, err := Verify(fp, m, signBatch(fp, ss[0], ss[1], ss[2])); err != nil {
		t.Fatalf("Verify all: %v", err)
	}
}

func TestVerify_InsufficientApprovals(t *testing.T) {
	ss := newSigners(t, 3)
	m := membershipOf(t, 2, ss...)
	fp := testFingerprint()

	_, err := Verify(fp, m, signBatch(fp, ss[0]))
	if !errors.Is(err, ErrInsufficientApprovals) {
		t.Fatalf("want ErrInsufficientApprovals, got %v", err)
	}

	_, err = Verify(fp, m, nil)
	if !errors.Is(err, ErrInsufficientApprovals) {
		t.Fatalf("empty batch: want ErrInsufficientApprovals, got %v", err)
	}
}

func TestVerify_Unordered(t *testing.T) {
	ss := newSigners(t, 2)
	m := membershipOf(t, 2, ss...)
	fp := testFingerprint()

	// [sigB, sigA]: orden invertido.
	_, err := Verify(fp, m, signBatch(fp, ss[1], ss[0]))
	if !errors.Is(err, ErrUnorderedOrDuplicate) {
		t.Fatalf("want ErrUnorderedOrDuplicate, got %v", err)
	}
}

func TestVerify_Duplicate(t *testing.T) {
	ss := newSigners(t, 2)
	m := membershipOf(t, 2, ss...)
	fp := testFingerprint()

	// [sigA, sigA]: misma identidad dos veces no suma quorum.
	_, err := Verify(fp, m, signBatch(fp, ss[0], ss[0]))
	if !errors.Is(err, ErrUnorderedOrDuplicate) {
		t.Fatalf("want ErrUnorderedOrDuplicate, got %v", err)
	}
}

func TestVerify_UnknownSigner(t *testing.T) {
	ss := newSigners(t, 3)
	m := membershipOf(t, 2, ss[0], ss[1]) // ss[2] queda afuera
	fp := testFingerprint()

	batch := signBatch(fp, ss...)
	_, err := Verify(fp, m, batch)
	if !errors.Is(err, ErrUnknownSigner) {
		t.Fatalf("want ErrUnknownSigner, got %v", err)
	}
}

func TestVerify_BadSignatureRejectsBatch(t *testing.T) {
	ss := newSigners(t, 2)
	m := membershipOf(t, 2, ss...)
	fp := testFingerprint()

	batch := signBatch(fp, ss...)
	batch[1] = make([]byte, 65) // r=s=0

	_, err := Verify(fp, m, batch)
	if !errors.Is(err, ErrSignatureRecovery) {
		t.Fatalf("want ErrSignatureRecovery, got %v", err)
	}
}

// Firmas sobre otro fingerprint no cuentan para este.
func TestVerify_WrongFingerprint(t *testing.T) {
	ss := newSigners(t, 2)
	m := membershipOf(t, 2, ss...)
	fp := testFingerprint()

	other := fingerprint.Compute(
		identity.MustParse("0x00000000000000000000000000000000000000bb"), 1,
		action.Action{Target: identity.MustParse("0x1111111111111111111111111111111111111111"), Amount: big.NewInt(42)},
	)
	batch := signBatch(other, ss...)

	if _, err := Verify(fp, m, batch); err == nil {
		t.Fatal("signatures over another fingerprint were admitted")
	}
}

func TestVerify_InvalidMembership(t *testing.T) {
	fp := testFingerprint()
	_, err := Verify(fp, Membership{}, nil)
	if err == nil {
		t.Fatal("invalid membership should be rejected")
	}
}
