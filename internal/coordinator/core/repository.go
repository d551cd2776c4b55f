package core

import (
	"context"

	"github.com/dropDatabas3/covenant/internal/fingerprint"
)

// Repository es el backend de almacenamiento enchufable del coordinator.
//
// Contrato de atomicidad por fingerprint (sin lock global entre keys):
//   - Create concurrente del mismo fingerprint: exactamente uno crea, el
//     resto observa la entrada existente (created=false).
//   - AddApproval concurrente de la misma identidad: exactamente uno gana,
//     el resto recibe ErrConflict.
//
// Toda aprobación aceptada queda registrada de forma durable antes de que la
// llamada retorne; no hay ventana de consistencia eventual.
type Repository interface {
	// Create guarda p si no existe acción pendiente para su fingerprint.
	// Si ya existe, devuelve la entrada existente con created=false — la
	// propuesta duplicada es creación idempotente, no un error.
	Create(ctx context.Context, key Key, p *PendingAction) (stored *PendingAction, created bool, err error)

	// AddApproval agrega una aprobación. ErrNotFound si el fingerprint no
	// tiene acción pendiente; ErrConflict si la identidad ya aprobó.
	AddApproval(ctx context.Context, key Key, fp fingerprint.Fingerprint, a Approval) (*PendingAction, error)

	// Get devuelve la acción pendiente o ErrNotFound.
	Get(ctx context.Context, key Key, fp fingerprint.Fingerprint) (*PendingAction, error)

	// List devuelve un snapshot de las acciones pendientes de la key, en
	// orden estable (fingerprint ascendente). Nunca una vista viva.
	List(ctx context.Context, key Key) ([]*PendingAction, error)

	Ping(ctx context.Context) error
	Close() error
}
