// Package fingerprint deriva el digest determinístico de 32 bytes que
// identifica una Action bajo un (vault, domain), y el mensaje firmable que lo
// envuelve. Compute es una función pura y total: mismo input, mismo output,
// sin excepciones para ningún input bien tipado.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/identity"
)

// Size es el ancho fijo del fingerprint en bytes.
const Size = 32

// signPrefix versiona el envoltorio de firma. Un fingerprint crudo nunca
// puede confundirse con un mensaje firmable de otro protocolo: el prefijo es
// fijo y el cuerpo tiene largo fijo, así que el wrapping es inyectivo sobre
// los pares (prefijo, fingerprint).
const signPrefix = "\x19covenant/v1 signed action:\n32"

// Fingerprint es la clave primaria de una acción pendiente y el mensaje que
// firman los aprobadores (vía Digest).
type Fingerprint [Size]byte

// typeTag separa el espacio de hash de covenant de cualquier otro uso de
// keccak256 sobre concatenaciones de 32 bytes.
var typeTag = keccak256([]byte("covenant/v1 action(vault,domain,sequence,target,amount,payload)"))

// Compute deriva el fingerprint de una Action bajo un vault y domain.
// Todos los campos se codifican a ancho fijo (32 bytes cada uno), por lo que
// el encoding es inyectivo: dos acciones con cualquier campo distinto
// producen fingerprints distintos.
func Compute(vault identity.Address, domain uint64, a action.Action) Fingerprint {
	buf := make([]byte, 0, 7*32)

	buf = append(buf, typeTag[:]...)
	buf = append(buf, leftPad(vault[:])...)
	buf = append(buf, encodeUint64(domain)...)
	buf = append(buf, encodeUint64(a.Sequence)...)
	buf = append(buf, leftPad(a.Target[:])...)

	amt := a.AmountBytes()
	buf = append(buf, amt[:]...)

	payloadHash := keccak256(a.Payload)
	buf = append(buf, payloadHash[:]...)

	return Fingerprint(keccak256(buf))
}

// SignableMessage envuelve el fingerprint con el prefijo versionado.
func SignableMessage(fp Fingerprint) []byte {
	msg := make([]byte, 0, len(signPrefix)+Size)
	msg = append(msg, signPrefix...)
	msg = append(msg, fp[:]...)
	return msg
}

// Digest es el valor de 32 bytes que efectivamente se firma: keccak256 del
// mensaje envuelto.
func Digest(fp Fingerprint) [32]byte {
	return keccak256(SignableMessage(fp))
}

// Parse acepta hex con o sin 0x, case-insensitive.
func Parse(s string) (Fingerprint, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw = strings.TrimPrefix(raw, "0X")
	if len(raw) != Size*2 {
		return Fingerprint{}, fmt.Errorf("fingerprint: want %d hex chars, got %d", Size*2, len(raw))
	}
	b, err := hex.DecodeString(strings.ToLower(raw))
	if err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprint: %w", err)
	}
	var fp Fingerprint
	copy(fp[:], b)
	return fp, nil
}

func (fp Fingerprint) String() string { return "0x" + hex.EncodeToString(fp[:]) }

func (fp Fingerprint) MarshalText() ([]byte, error) { return []byte(fp.String()), nil }

func (fp *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*fp = parsed
	return nil
}

func keccak256(data []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// leftPad extiende a 32 bytes con ceros a la izquierda.
func leftPad(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func encodeUint64(v uint64) []byte {
	out := make([]byte, 32)
	binary.BigEndian.PutUint64(out[24:], v)
	return out
}
