// Package memory implementa el Repository en memoria. Útil para desarrollo y
// testing, y como estado interno del FSM de cluster (ver Snapshot/Restore).
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
)

type Store struct {
	mu   sync.RWMutex
	data map[core.Key]map[fingerprint.Fingerprint]*core.PendingAction
}

var _ core.Repository = (*Store)(nil)

func New() *Store {
	return &Store{data: make(map[core.Key]map[fingerprint.Fingerprint]*core.PendingAction)}
}

func (s *Store) Create(ctx context.Context, key core.Key, p *core.PendingAction) (*core.PendingAction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.data[key]
	if !ok {
		bucket = make(map[fingerprint.Fingerprint]*core.PendingAction)
		s.data[key] = bucket
	}
	if existing, ok := bucket[p.Fingerprint]; ok {
		return existing.Clone(), false, nil
	}
	bucket[p.Fingerprint] = p.Clone()
	return p.Clone(), true, nil
}

func (s *Store) AddApproval(ctx context.Context, key core.Key, fp fingerprint.Fingerprint, a core.Approval) (*core.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.data[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	p, ok := bucket[fp]
	if !ok {
		return nil, core.ErrNotFound
	}
	if p.HasApproval(a.Identity) {
		return nil, core.ErrConflict
	}
	p.Approvals = append(p.Approvals, core.Approval{
		Identity:    a.Identity,
		Signature:   append([]byte(nil), a.Signature...),
		SubmittedAt: a.SubmittedAt,
	})
	return p.Clone(), nil
}

func (s *Store) Get(ctx context.Context, key core.Key, fp fingerprint.Fingerprint) (*core.PendingAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if bucket, ok := s.data[key]; ok {
		if p, ok := bucket[fp]; ok {
			return p.Clone(), nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) List(ctx context.Context, key core.Key) ([]*core.PendingAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.data[key]
	out := make([]*core.PendingAction, 0, len(bucket))
	for _, p := range bucket {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Fingerprint.String() < out[j].Fingerprint.String()
	})
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// snapshot es el formato JSON de Snapshot/Restore (cluster FSM).
type snapshot struct {
	Entries []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	Key     core.Key              `json:"key"`
	Pending []*core.PendingAction `json:"pending"`
}

// Snapshot serializa todo el estado. Orden determinístico para que dos nodos
// con el mismo estado produzcan bytes comparables.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{Entries: make([]snapshotEntry, 0, len(s.data))}
	for key, bucket := range s.data {
		entry := snapshotEntry{Key: key, Pending: make([]*core.PendingAction, 0, len(bucket))}
		for _, p := range bucket {
			entry.Pending = append(entry.Pending, p.Clone())
		}
		sort.Slice(entry.Pending, func(i, j int) bool {
			return entry.Pending[i].Fingerprint.String() < entry.Pending[j].Fingerprint.String()
		})
		snap.Entries = append(snap.Entries, entry)
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].Key.String() < snap.Entries[j].Key.String()
	})
	return json.Marshal(snap)
}

// Restore reemplaza el estado completo por el del snapshot.
func (s *Store) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	next := make(map[core.Key]map[fingerprint.Fingerprint]*core.PendingAction, len(snap.Entries))
	for _, entry := range snap.Entries {
		bucket := make(map[fingerprint.Fingerprint]*core.PendingAction, len(entry.Pending))
		for _, p := range entry.Pending {
			bucket[p.Fingerprint] = p
		}
		next[entry.Key] = bucket
	}

	s.mu.Lock()
	s.data = next
	s.mu.Unlock()
	return nil
}
