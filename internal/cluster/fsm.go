package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/raft"

	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	"github.com/dropDatabas3/covenant/internal/coordinator/memory"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
)

// FSM aplica mutaciones replicadas sobre un Store en memoria. El resultado
// de Apply se devuelve como *ApplyResult: en el leader lo consume
// cluster.Store; en los followers se descarta.
type FSM struct {
	state *memory.Store
}

// ApplyResult transporta el resultado de una mutación aplicada. Los errores
// de negocio (ErrConflict, ErrNotFound) viajan acá, no como fallo de Raft:
// el log ya los commiteó en todos los nodos con el mismo resultado.
type ApplyResult struct {
	Pending *core.PendingAction
	Created bool
	Err     error
}

func NewFSM() *FSM {
	return &FSM{state: memory.New()}
}

// State expone el repositorio subyacente para las lecturas locales.
func (f *FSM) State() *memory.Store { return f.state }

func (f *FSM) Apply(l *raft.Log) interface{} {
	if l == nil || len(l.Data) == 0 {
		return &ApplyResult{Err: fmt.Errorf("cluster: empty log entry")}
	}
	var m Mutation
	if err := json.Unmarshal(l.Data, &m); err != nil {
		return &ApplyResult{Err: fmt.Errorf("cluster: decode mutation: %w", err)}
	}

	ctx := context.Background()
	switch m.Type {
	case MutationPropose:
		var dto proposeDTO
		if err := json.Unmarshal(m.Payload, &dto); err != nil {
			return &ApplyResult{Err: fmt.Errorf("cluster: decode propose: %w", err)}
		}
		stored, created, err := f.state.Create(ctx, m.Key, dto.Pending)
		return &ApplyResult{Pending: stored, Created: created, Err: err}

	case MutationApprove:
		var dto approveDTO
		if err := json.Unmarshal(m.Payload, &dto); err != nil {
			return &ApplyResult{Err: fmt.Errorf("cluster: decode approve: %w", err)}
		}
		fp, err := fingerprint.Parse(dto.Fingerprint)
		if err != nil {
			return &ApplyResult{Err: fmt.Errorf("cluster: decode approve: %w", err)}
		}
		stored, err := f.state.AddApproval(ctx, m.Key, fp, dto.Approval)
		return &ApplyResult{Pending: stored, Err: err}

	default:
		return &ApplyResult{Err: fmt.Errorf("cluster: unknown mutation type %q", m.Type)}
	}
}

func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	data, err := f.state.Snapshot()
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{data: data}, nil
}

func (f *FSM) Restore(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return f.state.Restore(data)
}

type fsmSnapshot struct {
	data []byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if _, err := sink.Write(s.data); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
