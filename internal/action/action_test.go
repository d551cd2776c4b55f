package action

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/dropDatabas3/covenant/internal/identity"
)

var target = identity.MustParse("0x1111111111111111111111111111111111111111")

func TestValidate(t *testing.T) {
	ok := Action{Sequence: 1, Target: target, Amount: big.NewInt(100)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid action rejected: %v", err)
	}

	cases := []struct {
		name string
		a    Action
	}{
		{"zero target", Action{Amount: big.NewInt(1)}},
		{"nil amount", Action{Target: target}},
		{"negative amount", Action{Target: target, Amount: big.NewInt(-1)}},
		{"amount over uint256", Action{Target: target, Amount: new(big.Int).Lsh(big.NewInt(1), 256)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.a.Validate()
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("want ErrMalformed, got %v", err)
			}
		})
	}
}

func TestAmountBytes(t *testing.T) {
	a := Action{Target: target, Amount: big.NewInt(0x0102)}
	b := a.AmountBytes()
	if b[30] != 0x01 || b[31] != 0x02 {
		t.Fatalf("big-endian padding wrong: % x", b[28:])
	}
	for _, v := range b[:30] {
		if v != 0 {
			t.Fatal("leading bytes should be zero")
		}
	}
}

func TestJSON_AmountAsDecimalString(t *testing.T) {
	big256, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	a := Action{Sequence: 7, Target: target, Amount: big256, Payload: []byte{0x01}}

	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if _, ok := m["amount"].(string); !ok {
		t.Fatalf("amount should travel as string, got %T", m["amount"])
	}

	var back Action
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Amount.Cmp(big256) != 0 {
		t.Fatalf("amount lost precision: %s", back.Amount)
	}
	if back.Sequence != 7 || back.Target != target {
		t.Fatal("fields lost in roundtrip")
	}
}

func TestJSON_RejectsNonDecimalAmount(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"sequence":1,"target":"0x1111111111111111111111111111111111111111","amount":"0xff"}`), &a)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("want ErrMalformed, got %v", err)
	}
}

func TestClone_Independence(t *testing.T) {
	a := Action{Target: target, Amount: big.NewInt(5), Payload: []byte{1, 2}}
	c := a.Clone()
	c.Amount.SetInt64(99)
	c.Payload[0] = 9
	if a.Amount.Int64() != 5 || a.Payload[0] != 1 {
		t.Fatal("clone shares memory with original")
	}
}
