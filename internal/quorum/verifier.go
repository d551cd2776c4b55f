// Package quorum decide si una lista candidata de firmas satisface el quorum
// de una membership sobre un fingerprint. Verify es puro y sin efectos: puede
// correr en cualquier goroutine sin sincronización.
package quorum

import (
	"errors"
	"fmt"

	"github.com/dropDatabas3/covenant/internal/fingerprint"
	"github.com/dropDatabas3/covenant/internal/identity"
	"github.com/dropDatabas3/covenant/internal/sig"
)

var (
	// ErrSignatureRecovery: alguna firma del batch no recupera. Rechaza el
	// batch completo; envuelve el error de sig con el índice.
	ErrSignatureRecovery = errors.New("signature recovery failed")
	// ErrUnorderedOrDuplicate: las identidades recuperadas no vienen en
	// orden estrictamente ascendente. Este único chequeo cubre tanto el
	// doble conteo de un aprobador como la presentación no canónica: el
	// verifier no reordena ni deduplica jamás por el caller.
	ErrUnorderedOrDuplicate = errors.New("signers unordered or duplicated")
	// ErrUnknownSigner: una identidad recuperada no es miembro actual.
	ErrUnknownSigner = errors.New("unknown signer")
	// ErrInsufficientApprovals: menos firmantes válidos que el threshold.
	ErrInsufficientApprovals = errors.New("insufficient approvals")
)

// Verify admite o rechaza la lista candidata contra la membership dada.
// En caso de admisión devuelve las identidades aprobadoras (distintas,
// ascendentes); en caso de rechazo, un error tipado con el detalle necesario
// para corregir el input. Nada acá es retriable: el resultado es función
// determinística del input.
//
// La identidad de cada firma se rederiva siempre de la firma misma; cualquier
// identidad "declarada" por el caller se ignora.
func Verify(fp fingerprint.Fingerprint, m Membership, sigs [][]byte) ([]identity.Address, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	digest := fingerprint.Digest(fp)

	signers := make([]identity.Address, 0, len(sigs))
	for i, raw := range sigs {
		addr, err := sig.Recover(digest, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: signature %d: %v", ErrSignatureRecovery, i, err)
		}
		signers = append(signers, addr)
	}

	for i := 1; i < len(signers); i++ {
		if signers[i-1].Cmp(signers[i]) >= 0 {
			return nil, fmt.Errorf("%w: position %d", ErrUnorderedOrDuplicate, i)
		}
	}

	for _, s := range signers {
		if !m.Contains(s) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSigner, s)
		}
	}

	if uint32(len(signers)) < m.Threshold {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientApprovals, len(signers), m.Threshold)
	}
	return signers, nil
}
