package quorum

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dropDatabas3/covenant/internal/identity"
)

var (
	// ErrInvalidThreshold: el threshold quedaría fuera de [1, len(members)].
	// Nunca se clampa en silencio; la mutación se rechaza entera.
	ErrInvalidThreshold = errors.New("invalid threshold")
	// ErrDuplicateMember: alta de una identidad que ya es miembro.
	ErrDuplicateMember = errors.New("duplicate member")
	// ErrUnknownMember: baja de una identidad que no es miembro.
	ErrUnknownMember = errors.New("unknown member")
)

// Membership es el conjunto autoritativo de identidades aprobadoras más el
// tamaño del quorum. Es un value type: las mutaciones devuelven un valor
// nuevo ya validado y el original queda intacto. La copia autoritativa vive
// en el ledger; el verifier recibe un valor por llamada y no cachea nada.
//
// Invariante: Members no vacío, estrictamente ascendente (sin repetidos),
// 1 <= Threshold <= len(Members).
type Membership struct {
	Members   []identity.Address
	Threshold uint32
}

// NewMembership ordena los miembros y valida. Es la única vía de
// construcción fuera de genesis.
func NewMembership(members []identity.Address, threshold uint32) (Membership, error) {
	ms := append([]identity.Address(nil), members...)
	sort.Slice(ms, func(i, j int) bool { return ms[i].Less(ms[j]) })
	m := Membership{Members: ms, Threshold: threshold}
	if err := m.Validate(); err != nil {
		return Membership{}, err
	}
	return m, nil
}

func (m Membership) Validate() error {
	if len(m.Members) == 0 {
		return fmt.Errorf("%w: no members", ErrInvalidThreshold)
	}
	for i, a := range m.Members {
		if a.IsZero() {
			return fmt.Errorf("%w: zero member", ErrUnknownMember)
		}
		if i > 0 && m.Members[i-1].Cmp(a) >= 0 {
			return fmt.Errorf("%w: members not strictly ascending", ErrDuplicateMember)
		}
	}
	if m.Threshold < 1 || int(m.Threshold) > len(m.Members) {
		return fmt.Errorf("%w: threshold %d with %d members", ErrInvalidThreshold, m.Threshold, len(m.Members))
	}
	return nil
}

// Contains hace búsqueda binaria; Members siempre está ordenado.
func (m Membership) Contains(a identity.Address) bool {
	i := sort.Search(len(m.Members), func(i int) bool { return m.Members[i].Cmp(a) >= 0 })
	return i < len(m.Members) && m.Members[i] == a
}

// AddMember devuelve una membership con la identidad agregada.
func (m Membership) AddMember(a identity.Address) (Membership, error) {
	if a.IsZero() {
		return Membership{}, fmt.Errorf("%w: zero member", ErrUnknownMember)
	}
	if m.Contains(a) {
		return Membership{}, fmt.Errorf("%w: %s", ErrDuplicateMember, a)
	}
	return NewMembership(append(m.clone().Members, a), m.Threshold)
}

// RemoveMember devuelve una membership sin la identidad. Si el threshold
// excedería el nuevo tamaño, se rechaza con ErrInvalidThreshold: el caller
// debe bajar el threshold en una acción previa.
func (m Membership) RemoveMember(a identity.Address) (Membership, error) {
	if !m.Contains(a) {
		return Membership{}, fmt.Errorf("%w: %s", ErrUnknownMember, a)
	}
	out := make([]identity.Address, 0, len(m.Members)-1)
	for _, cur := range m.Members {
		if cur != a {
			out = append(out, cur)
		}
	}
	return NewMembership(out, m.Threshold)
}

// SetThreshold devuelve una membership con el quorum nuevo.
func (m Membership) SetThreshold(t uint32) (Membership, error) {
	return NewMembership(m.clone().Members, t)
}

func (m Membership) clone() Membership {
	return Membership{
		Members:   append([]identity.Address(nil), m.Members...),
		Threshold: m.Threshold,
	}
}

// Clone expone la copia profunda para callers que cachean snapshots.
func (m Membership) Clone() Membership { return m.clone() }
