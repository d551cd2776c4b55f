package identity

import (
	"encoding/json"
	"testing"
)

func TestParse_Roundtrip(t *testing.T) {
	in := "0x1111111111111111111111111111111111111111"
	a, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.String() != in {
		t.Fatalf("roundtrip: got %s want %s", a, in)
	}
}

func TestParse_CaseAndPrefix(t *testing.T) {
	mixed := "0xAbCdEf0123456789abcdef0123456789ABCDEF01"
	noPrefix := "abcdef0123456789abcdef0123456789abcdef01"

	a, err := Parse(mixed)
	if err != nil {
		t.Fatalf("Parse(mixed): %v", err)
	}
	b, err := Parse(noPrefix)
	if err != nil {
		t.Fatalf("Parse(noPrefix): %v", err)
	}
	if a != b {
		t.Fatalf("case/prefix should not matter: %s vs %s", a, b)
	}
}

func TestParse_Invalid(t *testing.T) {
	invalids := []string{
		"",
		"0x",
		"0x1234",                                     // corto
		"0x11111111111111111111111111111111111111",   // 19 bytes
		"0x111111111111111111111111111111111111111g", // no-hex
		"0x111111111111111111111111111111111111111111", // 21 bytes
	}
	for _, v := range invalids {
		if _, err := Parse(v); err == nil {
			t.Fatalf("expected error for %q", v)
		}
	}
}

func TestFromPublicKey_RejectsBadInput(t *testing.T) {
	if _, err := FromPublicKey(nil); err == nil {
		t.Fatal("expected error for nil key")
	}
	if _, err := FromPublicKey(make([]byte, 65)); err == nil {
		t.Fatal("expected error for missing 0x04 tag")
	}
	short := make([]byte, 33)
	short[0] = 0x04
	if _, err := FromPublicKey(short); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestCmp_Ordering(t *testing.T) {
	lo := MustParse("0x0000000000000000000000000000000000000001")
	hi := MustParse("0x0000000000000000000000000000000000000002")

	if !lo.Less(hi) {
		t.Fatal("lo should be less than hi")
	}
	if hi.Less(lo) {
		t.Fatal("hi should not be less than lo")
	}
	if lo.Cmp(lo) != 0 {
		t.Fatal("Cmp self should be 0")
	}
}

func TestJSON_Roundtrip(t *testing.T) {
	a := MustParse("0x2222222222222222222222222222222222222222")
	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Address
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != a {
		t.Fatalf("roundtrip: got %s want %s", got, a)
	}
}

func TestZero(t *testing.T) {
	var a Address
	if !a.IsZero() {
		t.Fatal("zero value should be zero")
	}
	if !Zero.IsZero() {
		t.Fatal("Zero sentinel should be zero")
	}
	if MustParse("0x0000000000000000000000000000000000000001").IsZero() {
		t.Fatal("non-zero address reported as zero")
	}
}
