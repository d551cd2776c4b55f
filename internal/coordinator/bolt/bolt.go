// Package bolt implementa el Repository sobre BoltDB: un bucket por key
// (vault:domain), un registro JSON por fingerprint. Cada mutación corre en
// una transacción Update, que da la atomicidad por fingerprint del contrato.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"

	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
)

type Store struct {
	db *bolt.DB
}

var _ core.Repository = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Create(ctx context.Context, key core.Key, p *core.PendingAction) (*core.PendingAction, bool, error) {
	var (
		stored  *core.PendingAction
		created bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(key.String()))
		if err != nil {
			return err
		}
		k := []byte(p.Fingerprint.String())
		if raw := b.Get(k); raw != nil {
			existing := new(core.PendingAction)
			if err := json.Unmarshal(raw, existing); err != nil {
				return fmt.Errorf("bolt: corrupt record %s: %w", p.Fingerprint, err)
			}
			stored = existing
			return nil
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := b.Put(k, raw); err != nil {
			return err
		}
		stored = p.Clone()
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Store) AddApproval(ctx context.Context, key core.Key, fp fingerprint.Fingerprint, a core.Approval) (*core.PendingAction, error) {
	var stored *core.PendingAction
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(key.String()))
		if b == nil {
			return core.ErrNotFound
		}
		k := []byte(fp.String())
		raw := b.Get(k)
		if raw == nil {
			return core.ErrNotFound
		}
		p := new(core.PendingAction)
		if err := json.Unmarshal(raw, p); err != nil {
			return fmt.Errorf("bolt: corrupt record %s: %w", fp, err)
		}
		if p.HasApproval(a.Identity) {
			return core.ErrConflict
		}
		p.Approvals = append(p.Approvals, a)
		next, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := b.Put(k, next); err != nil {
			return err
		}
		stored = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Store) Get(ctx context.Context, key core.Key, fp fingerprint.Fingerprint) (*core.PendingAction, error) {
	var stored *core.PendingAction
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(key.String()))
		if b == nil {
			return core.ErrNotFound
		}
		raw := b.Get([]byte(fp.String()))
		if raw == nil {
			return core.ErrNotFound
		}
		p := new(core.PendingAction)
		if err := json.Unmarshal(raw, p); err != nil {
			return fmt.Errorf("bolt: corrupt record %s: %w", fp, err)
		}
		stored = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Store) List(ctx context.Context, key core.Key) ([]*core.PendingAction, error) {
	out := make([]*core.PendingAction, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(key.String()))
		if b == nil {
			return nil
		}
		// Bolt itera en orden de key, que es el hex del fingerprint: el
		// orden estable del contrato sale gratis.
		return b.ForEach(func(_, raw []byte) error {
			p := new(core.PendingAction)
			if err := json.Unmarshal(raw, p); err != nil {
				return fmt.Errorf("bolt: corrupt record: %w", err)
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error { return nil })
}

func (s *Store) Close() error { return s.db.Close() }
