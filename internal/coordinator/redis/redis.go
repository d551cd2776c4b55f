// Package redis implementa el Repository sobre Redis. La atomicidad por
// fingerprint se apoya en HSETNX: tanto la creación como el alta de una
// aprobación son un único write condicional, así que de N llamadas
// concurrentes exactamente una gana sin locks del lado cliente.
//
// Layout de keys (prefijo configurable):
//
//	{p}:pending:{vault:domain}          hash fp      -> JSON del registro base
//	{p}:appr:{vault:domain}:{fp}        hash identity -> JSON de la aprobación
//	{p}:order:{vault:domain}:{fp}       list identity  (orden de llegada)
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
	"github.com/dropDatabas3/covenant/internal/identity"
)

type Store struct {
	client *rdb.Client
	prefix string
}

var _ core.Repository = (*Store)(nil)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func Open(ctx context.Context, opts Options) (*Store, error) {
	client := rdb.NewClient(&rdb.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "covenant"
	}
	return &Store{client: client, prefix: prefix}, nil
}

// record es la parte fija de una PendingAction (las aprobaciones viven
// aparte para poder usar HSETNX por identidad).
type record struct {
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Action      action.Action           `json:"action"`
	Proposer    identity.Address        `json:"proposer"`
	CreatedAt   time.Time               `json:"created_at"`
}

func (s *Store) pendingKey(key core.Key) string {
	return fmt.Sprintf("%s:pending:%s", s.prefix, key)
}

func (s *Store) apprKey(key core.Key, fp fingerprint.Fingerprint) string {
	return fmt.Sprintf("%s:appr:%s:%s", s.prefix, key, fp)
}

func (s *Store) orderKey(key core.Key, fp fingerprint.Fingerprint) string {
	return fmt.Sprintf("%s:order:%s:%s", s.prefix, key, fp)
}

func (s *Store) Create(ctx context.Context, key core.Key, p *core.PendingAction) (*core.PendingAction, bool, error) {
	rec := record{
		Fingerprint: p.Fingerprint,
		Action:      p.Action,
		Proposer:    p.Proposer,
		CreatedAt:   p.CreatedAt,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, false, err
	}

	created, err := s.client.HSetNX(ctx, s.pendingKey(key), p.Fingerprint.String(), raw).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: create: %w", err)
	}
	if !created {
		existing, err := s.load(ctx, key, p.Fingerprint)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	// Ganamos la creación: registrar las aprobaciones que vinieron con la
	// propuesta (la del proposer).
	for _, a := range p.Approvals {
		if err := s.putApproval(ctx, key, p.Fingerprint, a); err != nil && err != core.ErrConflict {
			return nil, false, err
		}
	}
	stored, err := s.load(ctx, key, p.Fingerprint)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func (s *Store) AddApproval(ctx context.Context, key core.Key, fp fingerprint.Fingerprint, a core.Approval) (*core.PendingAction, error) {
	exists, err := s.client.HExists(ctx, s.pendingKey(key), fp.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: approval lookup: %w", err)
	}
	if !exists {
		return nil, core.ErrNotFound
	}
	if err := s.putApproval(ctx, key, fp, a); err != nil {
		return nil, err
	}
	return s.load(ctx, key, fp)
}

// putApproval es el write condicional: HSETNX decide la carrera y recién el
// ganador agrega la identidad a la lista de orden de llegada.
func (s *Store) putApproval(ctx context.Context, key core.Key, fp fingerprint.Fingerprint, a core.Approval) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	won, err := s.client.HSetNX(ctx, s.apprKey(key, fp), a.Identity.String(), raw).Result()
	if err != nil {
		return fmt.Errorf("redis: put approval: %w", err)
	}
	if !won {
		return core.ErrConflict
	}
	if err := s.client.RPush(ctx, s.orderKey(key, fp), a.Identity.String()).Err(); err != nil {
		return fmt.Errorf("redis: approval order: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key core.Key, fp fingerprint.Fingerprint) (*core.PendingAction, error) {
	return s.load(ctx, key, fp)
}

func (s *Store) List(ctx context.Context, key core.Key) ([]*core.PendingAction, error) {
	fields, err := s.client.HKeys(ctx, s.pendingKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list: %w", err)
	}
	// HKEYS no garantiza orden; el contrato pide fingerprint ascendente.
	sort.Strings(fields)

	out := make([]*core.PendingAction, 0, len(fields))
	for _, f := range fields {
		fp, err := fingerprint.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("redis: corrupt field %q: %w", f, err)
		}
		p, err := s.load(ctx, key, fp)
		if err != nil {
			if err == core.ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) load(ctx context.Context, key core.Key, fp fingerprint.Fingerprint) (*core.PendingAction, error) {
	raw, err := s.client.HGet(ctx, s.pendingKey(key), fp.String()).Result()
	if err == rdb.Nil {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load: %w", err)
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("redis: corrupt record %s: %w", fp, err)
	}

	ids, err := s.client.LRange(ctx, s.orderKey(key, fp), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: approval order: %w", err)
	}

	p := &core.PendingAction{
		Fingerprint: rec.Fingerprint,
		Action:      rec.Action,
		Proposer:    rec.Proposer,
		CreatedAt:   rec.CreatedAt,
		Approvals:   make([]core.Approval, 0, len(ids)),
	}
	for _, id := range ids {
		rawAppr, err := s.client.HGet(ctx, s.apprKey(key, fp), id).Result()
		if err == rdb.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis: approval %s: %w", id, err)
		}
		var a core.Approval
		if err := json.Unmarshal([]byte(rawAppr), &a); err != nil {
			return nil, fmt.Errorf("redis: corrupt approval %s: %w", id, err)
		}
		p.Approvals = append(p.Approvals, a)
	}
	return p, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Store) Close() error { return s.client.Close() }
