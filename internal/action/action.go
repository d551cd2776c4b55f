// Package action modela la acción propuesta sobre un vault. Una Action es
// inmutable una vez calculado su fingerprint; el payload es opaco para el
// core y solo lo interpreta el ledger al ejecutar.
package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/dropDatabas3/covenant/internal/identity"
)

// ErrMalformed marca errores de validación de campos. Corregibles por el
// caller; se devuelven verbatim en el boundary HTTP.
var ErrMalformed = errors.New("malformed action")

// maxUint256 = 2^256 - 1, el amount más grande representable en el encoding
// de 32 bytes del fingerprint.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Action describe una operación a autorizar: mover Amount hacia Target y/o
// aplicar la instrucción del Payload, con Sequence anclada al contador del
// vault.
type Action struct {
	Sequence uint64           `json:"sequence"`
	Target   identity.Address `json:"target"`
	Amount   *big.Int         `json:"-"`
	Payload  []byte           `json:"payload,omitempty"`
}

// Validate chequea campos en el estilo de un modelo: nunca muta, devuelve el
// primer problema encontrado envolviendo ErrMalformed.
func (a Action) Validate() error {
	if a.Target.IsZero() {
		return fmt.Errorf("%w: zero target", ErrMalformed)
	}
	if a.Amount == nil {
		return fmt.Errorf("%w: nil amount", ErrMalformed)
	}
	if a.Amount.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", ErrMalformed)
	}
	if a.Amount.Cmp(maxUint256) > 0 {
		return fmt.Errorf("%w: amount exceeds uint256", ErrMalformed)
	}
	return nil
}

// AmountBytes devuelve el amount como 32 bytes big-endian. Requiere una
// Action ya validada.
func (a Action) AmountBytes() [32]byte {
	var out [32]byte
	a.Amount.FillBytes(out[:])
	return out
}

// Clone copia profunda (Amount y Payload incluidos).
func (a Action) Clone() Action {
	c := a
	if a.Amount != nil {
		c.Amount = new(big.Int).Set(a.Amount)
	}
	if a.Payload != nil {
		c.Payload = append([]byte(nil), a.Payload...)
	}
	return c
}

// JSON: el amount viaja como string decimal para no perder precisión.

type actionJSON struct {
	Sequence uint64           `json:"sequence"`
	Target   identity.Address `json:"target"`
	Amount   string           `json:"amount"`
	Payload  []byte           `json:"payload,omitempty"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	amt := "0"
	if a.Amount != nil {
		amt = a.Amount.String()
	}
	return json.Marshal(actionJSON{
		Sequence: a.Sequence,
		Target:   a.Target,
		Amount:   amt,
		Payload:  a.Payload,
	})
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amt := raw.Amount
	if amt == "" {
		amt = "0"
	}
	n, ok := new(big.Int).SetString(amt, 10)
	if !ok {
		return fmt.Errorf("%w: amount %q is not a decimal integer", ErrMalformed, raw.Amount)
	}
	a.Sequence = raw.Sequence
	a.Target = raw.Target
	a.Amount = n
	a.Payload = raw.Payload
	return nil
}
