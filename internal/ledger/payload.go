package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/identity"
)

// Ops del payload. El fingerprint y el verifier son agnósticos al payload;
// esta variante etiquetada se interpreta únicamente al ejecutar. Los cambios
// de governance pasan por el mismo quorum que cualquier transferencia: no
// hay caso especial.
const (
	OpTransfer     = "transfer"
	OpAddMember    = "add_member"
	OpRemoveMember = "remove_member"
	OpSetThreshold = "set_threshold"
)

// Payload es la instrucción codificada en Action.Payload. Un payload vacío
// equivale a {op: transfer}: mover Amount hacia Target.
type Payload struct {
	Op        string           `json:"op"`
	Member    identity.Address `json:"member,omitempty"`
	Threshold uint32           `json:"threshold,omitempty"`
}

// DecodePayload interpreta los bytes opacos de una Action.
func DecodePayload(a action.Action) (Payload, error) {
	if len(a.Payload) == 0 {
		return Payload{Op: OpTransfer}, nil
	}
	var p Payload
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return Payload{}, fmt.Errorf("ledger: payload: %w", err)
	}
	switch p.Op {
	case OpTransfer:
	case OpAddMember, OpRemoveMember:
		if p.Member.IsZero() {
			return Payload{}, fmt.Errorf("ledger: payload: %s without member", p.Op)
		}
	case OpSetThreshold:
		if p.Threshold == 0 {
			return Payload{}, fmt.Errorf("ledger: payload: set_threshold without threshold")
		}
	default:
		return Payload{}, fmt.Errorf("ledger: payload: unknown op %q", p.Op)
	}
	return p, nil
}

// EncodePayload serializa la instrucción para armar una Action. Helper para
// CLI y tests.
func EncodePayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}
