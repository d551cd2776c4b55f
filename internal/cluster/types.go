// Package cluster replica el estado del coordinator entre nodos con Raft.
// Cada mutación (propose/approve) pasa por el log replicado y se aplica en
// todos los nodos sobre un repositorio en memoria; las lecturas se sirven
// localmente.
package cluster

import (
	"encoding/json"

	"github.com/dropDatabas3/covenant/internal/coordinator/core"
)

type MutationType string

const (
	MutationPropose MutationType = "propose"
	MutationApprove MutationType = "approve"
)

// Mutation es la unidad que viaja por el log de Raft. El payload lleva todo
// lo necesario para que el apply sea determinístico en cada nodo (timestamps
// incluidos: se fijan en el leader, no en el apply).
type Mutation struct {
	Type    MutationType    `json:"type"`
	Key     core.Key        `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

type proposeDTO struct {
	Pending *core.PendingAction `json:"pending"`
}

type approveDTO struct {
	Fingerprint string        `json:"fingerprint"`
	Approval    core.Approval `json:"approval"`
}
