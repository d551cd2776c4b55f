package quorum

import (
	"errors"
	"testing"

	"github.com/dropDatabas3/covenant/internal/identity"
)

var (
	memA = identity.MustParse("0x000000000000000000000000000000000000000a")
	memB = identity.MustParse("0x000000000000000000000000000000000000000b")
	memC = identity.MustParse("0x000000000000000000000000000000000000000c")
	memD = identity.MustParse("0x000000000000000000000000000000000000000d")
)

func TestNewMembership_SortsInput(t *testing.T) {
	m, err := NewMembership([]identity.Address{memC, memA, memB}, 2)
	if err != nil {
		t.Fatalf("NewMembership: %v", err)
	}
	want := []identity.Address{memA, memB, memC}
	for i, a := range m.Members {
		if a != want[i] {
			t.Fatalf("members not sorted: %v", m.Members)
		}
	}
}

func TestNewMembership_Rejections(t *testing.T) {
	if _, err := NewMembership(nil, 1); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("empty members: %v", err)
	}
	if _, err := NewMembership([]identity.Address{memA, memA}, 1); !errors.Is(err, ErrDuplicateMember) {
		t.Fatalf("duplicate members: %v", err)
	}
	if _, err := NewMembership([]identity.Address{memA, memB}, 0); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("threshold 0: %v", err)
	}
	if _, err := NewMembership([]identity.Address{memA, memB}, 3); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("threshold > members: %v", err)
	}
	if _, err := NewMembership([]identity.Address{identity.Zero, memA}, 1); !errors.Is(err, ErrUnknownMember) {
		t.Fatalf("zero member: %v", err)
	}
}

func TestContains(t *testing.T) {
	m, _ := NewMembership([]identity.Address{memA, memC}, 1)
	if !m.Contains(memA) || !m.Contains(memC) {
		t.Fatal("members should be contained")
	}
	if m.Contains(memB) {
		t.Fatal("non-member reported as contained")
	}
}

func TestAddMember(t *testing.T) {
	m, _ := NewMembership([]identity.Address{memA, memB}, 2)

	next, err := m.AddMember(memC)
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if len(next.Members) != 3 || !next.Contains(memC) {
		t.Fatal("member not added")
	}
	// El original queda intacto (value semantics).
	if len(m.Members) != 2 {
		t.Fatal("original membership mutated")
	}

	if _, err := m.AddMember(memA); !errors.Is(err, ErrDuplicateMember) {
		t.Fatalf("re-add: %v", err)
	}
}

func TestRemoveMember(t *testing.T) {
	m, _ := NewMembership([]identity.Address{memA, memB, memC}, 2)

	next, err := m.RemoveMember(memB)
	if err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if next.Contains(memB) || len(next.Members) != 2 {
		t.Fatal("member not removed")
	}

	if _, err := m.RemoveMember(memD); !errors.Is(err, ErrUnknownMember) {
		t.Fatalf("remove unknown: %v", err)
	}
}

// Bajar miembros por debajo del threshold no clampa: rechaza.
func TestRemoveMember_ThresholdGuard(t *testing.T) {
	m, _ := NewMembership([]identity.Address{memA, memB}, 2)
	if _, err := m.RemoveMember(memA); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("want ErrInvalidThreshold, got %v", err)
	}
}

func TestSetThreshold(t *testing.T) {
	m, _ := NewMembership([]identity.Address{memA, memB, memC}, 2)

	next, err := m.SetThreshold(3)
	if err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if next.Threshold != 3 || m.Threshold != 2 {
		t.Fatal("threshold update wrong")
	}

	if _, err := m.SetThreshold(0); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("threshold 0: %v", err)
	}
	if _, err := m.SetThreshold(4); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("threshold 4: %v", err)
	}
}
