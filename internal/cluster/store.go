package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
)

// ErrNotLeader: la escritura llegó a un follower. El mensaje incluye la
// dirección del leader para que el caller redirija.
var ErrNotLeader = errors.New("not the cluster leader")

// Store implementa core.Repository sobre el cluster: las escrituras pasan por
// raft.Apply (solo en el leader) y las lecturas se sirven del estado local
// del FSM. La durabilidad del contrato la da el commit del log replicado.
type Store struct {
	node *Node
	fsm  *FSM
}

var _ core.Repository = (*Store)(nil)

func NewStore(node *Node, fsm *FSM) *Store {
	return &Store{node: node, fsm: fsm}
}

func (s *Store) Create(ctx context.Context, key core.Key, p *core.PendingAction) (*core.PendingAction, bool, error) {
	if !s.node.IsLeader() {
		return nil, false, fmt.Errorf("%w: leader is %s", ErrNotLeader, s.node.LeaderAddr())
	}
	payload, err := json.Marshal(proposeDTO{Pending: p})
	if err != nil {
		return nil, false, err
	}
	res, err := s.apply(ctx, Mutation{Type: MutationPropose, Key: key, Payload: payload})
	if err != nil {
		return nil, false, err
	}
	return res.Pending, res.Created, res.Err
}

func (s *Store) AddApproval(ctx context.Context, key core.Key, fp fingerprint.Fingerprint, a core.Approval) (*core.PendingAction, error) {
	if !s.node.IsLeader() {
		return nil, fmt.Errorf("%w: leader is %s", ErrNotLeader, s.node.LeaderAddr())
	}
	payload, err := json.Marshal(approveDTO{Fingerprint: fp.String(), Approval: a})
	if err != nil {
		return nil, err
	}
	res, err := s.apply(ctx, Mutation{Type: MutationApprove, Key: key, Payload: payload})
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Pending, nil
}

func (s *Store) apply(ctx context.Context, m Mutation) (*ApplyResult, error) {
	resp, err := s.node.Apply(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("cluster: apply: %w", err)
	}
	res, ok := resp.(*ApplyResult)
	if !ok {
		return nil, fmt.Errorf("cluster: unexpected apply response %T", resp)
	}
	return res, nil
}

func (s *Store) Get(ctx context.Context, key core.Key, fp fingerprint.Fingerprint) (*core.PendingAction, error) {
	return s.fsm.State().Get(ctx, key, fp)
}

func (s *Store) List(ctx context.Context, key core.Key) ([]*core.PendingAction, error) {
	return s.fsm.State().List(ctx, key)
}

func (s *Store) Ping(ctx context.Context) error {
	if s.node == nil || s.node.r == nil {
		return errors.New("raft not initialized")
	}
	return nil
}

func (s *Store) Close() error { return s.node.Shutdown() }
