package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
	"github.com/dropDatabas3/covenant/internal/identity"
	"github.com/dropDatabas3/covenant/internal/metrics"
	"github.com/dropDatabas3/covenant/internal/observability/logger"
	"github.com/dropDatabas3/covenant/internal/quorum"
)

// Dev es la implementación de referencia en memoria del ledger. Respalda los
// tests e2e y el modo dev del servicio; en producción el ledger es un
// servicio externo y este repo solo habla con su boundary.
type Dev struct {
	mu     sync.Mutex
	vaults map[identity.Address]*vaultState
	log    *zap.Logger
}

type vaultState struct {
	sequence   uint64
	membership quorum.Membership
	balance    *big.Int
	balances   map[identity.Address]*big.Int
}

var _ Ledger = (*Dev)(nil)

func NewDev() *Dev {
	return &Dev{
		vaults: make(map[identity.Address]*vaultState),
		log:    logger.Named("devledger"),
	}
}

// CreateVault registra un vault con su membership génesis y balance inicial.
// Es la única excepción de bootstrap: de acá en adelante la membership solo
// muta por acciones ejecutadas que pasaron el quorum.
func (d *Dev) CreateVault(vault identity.Address, m quorum.Membership, balance *big.Int) error {
	if vault.IsZero() {
		return fmt.Errorf("%w: zero vault", ErrUnknownVault)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if balance == nil {
		balance = new(big.Int)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.vaults[vault]; ok {
		return fmt.Errorf("vault %s already exists", vault)
	}
	d.vaults[vault] = &vaultState{
		membership: m.Clone(),
		balance:    new(big.Int).Set(balance),
		balances:   make(map[identity.Address]*big.Int),
	}
	return nil
}

func (d *Dev) Sequence(ctx context.Context, vault identity.Address) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.vaults[vault]
	if !ok {
		return 0, ErrUnknownVault
	}
	return st.sequence, nil
}

func (d *Dev) Membership(ctx context.Context, vault identity.Address) (quorum.Membership, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.vaults[vault]
	if !ok {
		return quorum.Membership{}, ErrUnknownVault
	}
	return st.membership.Clone(), nil
}

// BalanceOf expone el balance acreditado a una identidad (tests y display).
func (d *Dev) BalanceOf(vault, who identity.Address) *big.Int {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.vaults[vault]
	if !ok {
		return new(big.Int)
	}
	if b, ok := st.balances[who]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Execute rederiva el fingerprint, corre el verifier contra la membership
// actual y chequea sequence == contador, todo bajo el lock del ledger. El
// chequeo de staleness es independiente de cualquier admit previo: un batch
// válido ya ejecutado no puede re-ejecutarse.
func (d *Dev) Execute(ctx context.Context, vault identity.Address, domain uint64, a action.Action, sigs [][]byte) error {
	if err := a.Validate(); err != nil {
		return err
	}
	payload, err := DecodePayload(a)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.vaults[vault]
	if !ok {
		return ErrUnknownVault
	}

	fp := fingerprint.Compute(vault, domain, a)
	signers, err := quorum.Verify(fp, st.membership, sigs)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues("rejected").Inc()
		return err
	}

	if a.Sequence != st.sequence {
		metrics.ExecutionsTotal.WithLabelValues("stale").Inc()
		return fmt.Errorf("%w: action has %d, counter is %d", ErrStaleSequence, a.Sequence, st.sequence)
	}

	if err := d.apply(st, a, payload); err != nil {
		metrics.ExecutionsTotal.WithLabelValues("failed").Inc()
		return err
	}
	st.sequence++

	metrics.ExecutionsTotal.WithLabelValues("applied").Inc()
	d.log.Info("action executed",
		zap.String("vault", vault.String()),
		zap.Uint64("domain", domain),
		zap.String("fingerprint", fp.String()),
		zap.String("op", payload.Op),
		zap.Uint64("next_sequence", st.sequence),
		zap.Int("approvers", len(signers)),
	)
	return nil
}

func (d *Dev) apply(st *vaultState, a action.Action, p Payload) error {
	switch p.Op {
	case OpTransfer:
		if st.balance.Cmp(a.Amount) < 0 {
			return fmt.Errorf("%w: balance %s, amount %s", ErrInsufficientFunds, st.balance, a.Amount)
		}
		st.balance.Sub(st.balance, a.Amount)
		cur, ok := st.balances[a.Target]
		if !ok {
			cur = new(big.Int)
			st.balances[a.Target] = cur
		}
		cur.Add(cur, a.Amount)
		return nil

	case OpAddMember:
		next, err := st.membership.AddMember(p.Member)
		if err != nil {
			return err
		}
		st.membership = next
		return nil

	case OpRemoveMember:
		next, err := st.membership.RemoveMember(p.Member)
		if err != nil {
			return err
		}
		st.membership = next
		return nil

	case OpSetThreshold:
		next, err := st.membership.SetThreshold(p.Threshold)
		if err != nil {
			return err
		}
		st.membership = next
		return nil
	}
	return fmt.Errorf("ledger: unknown op %q", p.Op)
}
