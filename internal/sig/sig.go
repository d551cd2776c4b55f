// Package sig implementa firma y recuperación de identidad sobre secp256k1.
// El formato de wire es r(32) || s(32) || v(1), con v en {0,1} o {27,28}.
//
// La forma canónica low-s se exige acá, en el borde: ningún código upstream
// (verifier incluido) ve jamás una firma maleable. Dos firmas byte-distintas
// sobre el mismo digest no pueden recuperar la misma identidad.
package sig

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/dropDatabas3/covenant/internal/identity"
)

// Length es el largo exacto de una firma serializada.
const Length = 65

var (
	// ErrSignatureFormat: largo o encoding incorrecto.
	ErrSignatureFormat = errors.New("invalid signature format")
	// ErrSignatureValue: componentes fuera de rango, v inválido o s alto
	// (forma no canónica).
	ErrSignatureValue = errors.New("invalid signature value")
	// ErrRecovery: la firma no recupera ningún punto válido. Siempre es una
	// falla explícita, nunca una identidad cero.
	ErrRecovery = errors.New("signature recovery failed")
)

// Recover recupera la identidad que produjo la firma sobre digest.
// Rechaza firmas no canónicas (high-s) con ErrSignatureValue.
func Recover(digest [32]byte, signature []byte) (identity.Address, error) {
	if len(signature) != Length {
		return identity.Zero, fmt.Errorf("%w: want %d bytes, got %d", ErrSignatureFormat, Length, len(signature))
	}

	v := signature[64]
	if v == 27 || v == 28 {
		v -= 27
	}
	if v > 1 {
		return identity.Zero, fmt.Errorf("%w: recovery id %d", ErrSignatureValue, signature[64])
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature[:32]); overflow || r.IsZero() {
		return identity.Zero, fmt.Errorf("%w: r out of range", ErrSignatureValue)
	}
	if overflow := s.SetByteSlice(signature[32:64]); overflow || s.IsZero() {
		return identity.Zero, fmt.Errorf("%w: s out of range", ErrSignatureValue)
	}
	if s.IsOverHalfOrder() {
		return identity.Zero, fmt.Errorf("%w: non-canonical high-s", ErrSignatureValue)
	}

	// RecoverCompact espera [v+27 || r || s].
	compact := make([]byte, Length)
	compact[0] = 27 + v
	copy(compact[1:33], signature[:32])
	copy(compact[33:], signature[32:64])

	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return identity.Zero, fmt.Errorf("%w: %v", ErrRecovery, err)
	}

	addr, err := identity.FromPublicKey(pub.SerializeUncompressed())
	if err != nil {
		return identity.Zero, fmt.Errorf("%w: %v", ErrRecovery, err)
	}
	return addr, nil
}

// Sign firma digest con la clave dada y devuelve la forma de wire
// r || s || v(0/1). SignCompact usa RFC6979 y produce s bajo, así que el
// resultado siempre pasa Recover.
func Sign(digest [32]byte, priv *secp256k1.PrivateKey) []byte {
	compact := ecdsa.SignCompact(priv, digest[:], false)

	out := make([]byte, Length)
	copy(out[:32], compact[1:33])
	copy(out[32:64], compact[33:])
	out[64] = compact[0] - 27
	return out
}

// AddressOf deriva la identidad de una clave privada. Helper para CLI y
// tests.
func AddressOf(priv *secp256k1.PrivateKey) identity.Address {
	addr, err := identity.FromPublicKey(priv.PubKey().SerializeUncompressed())
	if err != nil {
		// SerializeUncompressed siempre produce 65 bytes con tag 0x04.
		panic(err)
	}
	return addr
}
