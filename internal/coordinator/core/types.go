// Package core define los tipos y el contrato de persistencia del
// coordinator. Los adapters (memory, bolt, redis, pg, cluster) implementan
// Repository; el resto del sistema solo habla con esta interfaz.
package core

import (
	"fmt"
	"time"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
	"github.com/dropDatabas3/covenant/internal/identity"
)

// Key agrupa las acciones pendientes de un vault bajo un domain. Todo el
// estado persistido del coordinator es un mapping Key -> (Fingerprint ->
// PendingAction); no hay otro estado.
type Key struct {
	Vault  identity.Address `json:"vault"`
	Domain uint64           `json:"domain"`
}

func (k Key) String() string { return fmt.Sprintf("%s:%d", k.Vault, k.Domain) }

// Approval es una firma cruda más la identidad declarada por el cliente.
// El coordinator persiste ambas tal cual llegan; el verifier rederiva la
// identidad de la firma e ignora la declarada, así que un claim falso no
// puede suplantar a nadie — a lo sumo bloquea su propio slot.
type Approval struct {
	Identity    identity.Address `json:"identity"`
	Signature   []byte           `json:"signature"`
	SubmittedAt time.Time        `json:"submitted_at"`
}

// PendingAction es un fingerprint más las aprobaciones juntadas hasta ahora,
// en orden de llegada. Solo muta por append de aprobaciones (una por
// identidad); el coordinator nunca la borra.
type PendingAction struct {
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Action      action.Action           `json:"action"`
	Proposer    identity.Address        `json:"proposer"`
	Approvals   []Approval              `json:"approvals"`
	CreatedAt   time.Time               `json:"created_at"`
}

// HasApproval busca por identidad declarada (ya normalizada al parsear).
func (p *PendingAction) HasApproval(id identity.Address) bool {
	for _, a := range p.Approvals {
		if a.Identity == id {
			return true
		}
	}
	return false
}

// Clone devuelve una copia profunda para snapshot semantics: las listas que
// devuelve el coordinator nunca comparten memoria con el estado vivo.
func (p *PendingAction) Clone() *PendingAction {
	if p == nil {
		return nil
	}
	out := &PendingAction{
		Fingerprint: p.Fingerprint,
		Action:      p.Action.Clone(),
		Proposer:    p.Proposer,
		CreatedAt:   p.CreatedAt,
	}
	out.Approvals = make([]Approval, len(p.Approvals))
	for i, a := range p.Approvals {
		out.Approvals[i] = Approval{
			Identity:    a.Identity,
			Signature:   append([]byte(nil), a.Signature...),
			SubmittedAt: a.SubmittedAt,
		}
	}
	return out
}
