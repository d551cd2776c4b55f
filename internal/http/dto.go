package http

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	"github.com/dropDatabas3/covenant/internal/identity"
)

// Las firmas viajan en hex (con o sin prefijo 0x); el payload de la acción va
// en base64 por el marshalling estándar de []byte.

type proposeRequest struct {
	Action    action.Action    `json:"action"`
	Proposer  identity.Address `json:"proposer"`
	Signature string           `json:"signature"`
}

type approveRequest struct {
	Identity  identity.Address `json:"identity"`
	Signature string           `json:"signature"`
}

type verifyRequest struct {
	Action     action.Action `json:"action"`
	Signatures []string      `json:"signatures"`
}

type executeRequest struct {
	Action     action.Action `json:"action"`
	Signatures []string      `json:"signatures"`
}

type approvalDTO struct {
	Identity    identity.Address `json:"identity"`
	Signature   string           `json:"signature"`
	SubmittedAt time.Time        `json:"submitted_at"`
}

type pendingDTO struct {
	Fingerprint string           `json:"fingerprint"`
	Action      action.Action    `json:"action"`
	Proposer    identity.Address `json:"proposer"`
	Approvals   []approvalDTO    `json:"approvals"`
	CreatedAt   time.Time        `json:"created_at"`
	// Outdated marca propuestas cuya sequence quedó atrás del contador del
	// ledger. Solo consultivo; null cuando no hay hint disponible.
	Outdated *bool `json:"outdated,omitempty"`
}

type proposeResponse struct {
	Created bool       `json:"created"`
	Pending pendingDTO `json:"pending"`
}

type listResponse struct {
	Vault   identity.Address `json:"vault"`
	Domain  uint64           `json:"domain"`
	Pending []pendingDTO     `json:"pending"`
}

type verifyResponse struct {
	Fingerprint string `json:"fingerprint"`
	Admitted    bool   `json:"admitted"`
	Reason      string `json:"reason,omitempty"`
	Approvals   int    `json:"approvals"`
}

type executeResponse struct {
	Fingerprint string `json:"fingerprint"`
	Executed    bool   `json:"executed"`
	Sequence    uint64 `json:"sequence"`
}

func decodeSignature(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("signature is not valid hex: %v", err)
	}
	return raw, nil
}

func decodeSignatures(in []string) ([][]byte, error) {
	out := make([][]byte, len(in))
	for i, s := range in {
		raw, err := decodeSignature(s)
		if err != nil {
			return nil, fmt.Errorf("signatures[%d]: %v", i, err)
		}
		out[i] = raw
	}
	return out, nil
}

func toPendingDTO(p *core.PendingAction, outdated *bool) pendingDTO {
	dto := pendingDTO{
		Fingerprint: p.Fingerprint.String(),
		Action:      p.Action,
		Proposer:    p.Proposer,
		Approvals:   make([]approvalDTO, len(p.Approvals)),
		CreatedAt:   p.CreatedAt,
		Outdated:    outdated,
	}
	for i, a := range p.Approvals {
		dto.Approvals[i] = approvalDTO{
			Identity:    a.Identity,
			Signature:   "0x" + hex.EncodeToString(a.Signature),
			SubmittedAt: a.SubmittedAt,
		}
	}
	return dto
}
