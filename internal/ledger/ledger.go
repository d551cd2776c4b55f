// Package ledger define el boundary con el entorno de ejecución autoritativo:
// quien persiste el contador de sequence y la membership, y el único que
// ejecuta acciones. El coordinator consume Reader solo para display; Execute
// rederiva el fingerprint y corre el Quorum Verifier por su cuenta — jamás
// confía en una decisión de verificación calculada afuera.
package ledger

import (
	"context"
	"errors"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/identity"
	"github.com/dropDatabas3/covenant/internal/quorum"
)

var (
	// ErrUnknownVault: el vault no existe en el ledger.
	ErrUnknownVault = errors.New("unknown vault")
	// ErrStaleSequence: la sequence embebida en la acción ya no coincide
	// con el contador actual. Un batch admitido por el verifier igual se
	// rechaza acá; el replay no depende de la decisión del coordinator.
	ErrStaleSequence = errors.New("stale sequence")
	// ErrInsufficientFunds: el balance del vault no cubre el amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Reader expone el estado que el coordinator puede leer: snapshot del
// contador y membership vigente. Nunca autoritativo fuera del ledger mismo.
type Reader interface {
	Sequence(ctx context.Context, vault identity.Address) (uint64, error)
	Membership(ctx context.Context, vault identity.Address) (quorum.Membership, error)
}

// Ledger agrega la operación de escritura. Execute aplica la acción solo si:
// el quorum admite la lista de firmas contra la membership actual, y
// action.Sequence == contador actual. Después de aplicar, incrementa el
// contador. Atómico por vault.
type Ledger interface {
	Reader
	Execute(ctx context.Context, vault identity.Address, domain uint64, a action.Action, sigs [][]byte) error
}
