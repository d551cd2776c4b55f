// Package identity define la identidad pública de 20 bytes recuperable de una
// firma, con un orden total fijo usado para sorting y membership.
package identity

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Size es el ancho fijo de una Address en bytes.
const Size = 20

// Address es un identificador público opaco de ancho fijo. El orden total
// (Cmp) se define una sola vez acá; nunca se comparan bytes de firma como
// proxy de identidad.
type Address [Size]byte

// Zero es la Address nula. Nunca es una identidad válida.
var Zero Address

// FromPublicKey deriva la Address de una clave pública secp256k1 sin
// comprimir (65 bytes, primer byte 0x04): keccak256 del punto, últimos 20
// bytes.
func FromPublicKey(uncompressed []byte) (Address, error) {
	if len(uncompressed) != 65 || uncompressed[0] != 0x04 {
		return Zero, fmt.Errorf("identity: invalid uncompressed public key (%d bytes)", len(uncompressed))
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	sum := h.Sum(nil)

	var a Address
	copy(a[:], sum[12:])
	return a, nil
}

// Parse acepta hex con o sin prefijo 0x, case-insensitive. La comparación de
// identidades en el coordinator es siempre sobre la forma parseada, nunca
// sobre el string crudo.
func Parse(s string) (Address, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw = strings.TrimPrefix(raw, "0X")
	if len(raw) != Size*2 {
		return Zero, fmt.Errorf("identity: want %d hex chars, got %d", Size*2, len(raw))
	}
	b, err := hex.DecodeString(strings.ToLower(raw))
	if err != nil {
		return Zero, fmt.Errorf("identity: %w", err)
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// MustParse es Parse con panic; solo para tests y genesis hardcodeada.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) IsZero() bool { return a == Zero }

// Cmp impone el orden total: comparación lexicográfica de bytes.
func (a Address) Cmp(b Address) int { return bytes.Compare(a[:], b[:]) }

func (a Address) Less(b Address) bool { return a.Cmp(b) < 0 }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
