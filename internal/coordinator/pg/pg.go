// Package pg implementa el Repository sobre Postgres (pgx). Las dos carreras
// del contrato se resuelven con ON CONFLICT DO NOTHING sobre las primary
// keys (vault, domain, fingerprint) y (vault, domain, fingerprint, identity):
// cero filas afectadas significa que otro llegó primero.
package pg

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
	"github.com/dropDatabas3/covenant/internal/identity"
	migrations "github.com/dropDatabas3/covenant/migrations/postgres"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ core.Repository = (*Store)(nil)

type Options struct {
	DSN             string
	MaxConns        int32
	ConnMaxLifetime string
}

func Open(ctx context.Context, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.ConnMaxLifetime != "" {
		d, err := time.ParseDuration(opts.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("pg: conn_max_lifetime: %w", err)
		}
		cfg.MaxConnLifetime = d
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// migrate aplica el schema embebido. Todas las sentencias son idempotentes
// (IF NOT EXISTS), así que correr en cada arranque es seguro.
func (s *Store) migrate(ctx context.Context) error {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("pg: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("pg: read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("pg: apply migration %s: %w", name, err)
		}
	}
	return nil
}

// Pool expone el pool para el collector de métricas.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Create(ctx context.Context, key core.Key, p *core.PendingAction) (*core.PendingAction, bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO pending_actions (vault, domain, fingerprint, proposer, action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (vault, domain, fingerprint) DO NOTHING`,
		key.Vault.String(), int64(key.Domain), p.Fingerprint.String(),
		p.Proposer.String(), p.Action, p.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("pg: create: %w", err)
	}
	created := tag.RowsAffected() > 0

	if created {
		for _, a := range p.Approvals {
			if _, err := s.insertApproval(ctx, key, p.Fingerprint, a); err != nil {
				return nil, false, err
			}
		}
	}
	stored, err := s.Get(ctx, key, p.Fingerprint)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Store) AddApproval(ctx context.Context, key core.Key, fp fingerprint.Fingerprint, a core.Approval) (*core.PendingAction, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pending_actions
			WHERE vault = $1 AND domain = $2 AND fingerprint = $3
		)`,
		key.Vault.String(), int64(key.Domain), fp.String(),
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("pg: approval lookup: %w", err)
	}
	if !exists {
		return nil, core.ErrNotFound
	}

	won, err := s.insertApproval(ctx, key, fp, a)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, core.ErrConflict
	}
	return s.Get(ctx, key, fp)
}

func (s *Store) insertApproval(ctx context.Context, key core.Key, fp fingerprint.Fingerprint, a core.Approval) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO approvals (vault, domain, fingerprint, identity, signature, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (vault, domain, fingerprint, identity) DO NOTHING`,
		key.Vault.String(), int64(key.Domain), fp.String(),
		a.Identity.String(), a.Signature, a.SubmittedAt,
	)
	if err != nil {
		return false, fmt.Errorf("pg: insert approval: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Get(ctx context.Context, key core.Key, fp fingerprint.Fingerprint) (*core.PendingAction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT fingerprint, proposer, action, created_at
		FROM pending_actions
		WHERE vault = $1 AND domain = $2 AND fingerprint = $3`,
		key.Vault.String(), int64(key.Domain), fp.String(),
	)
	p, err := scanPending(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("pg: get: %w", err)
	}

	if err := s.loadApprovals(ctx, key, []*core.PendingAction{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) List(ctx context.Context, key core.Key) ([]*core.PendingAction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT fingerprint, proposer, action, created_at
		FROM pending_actions
		WHERE vault = $1 AND domain = $2
		ORDER BY fingerprint ASC`,
		key.Vault.String(), int64(key.Domain),
	)
	if err != nil {
		return nil, fmt.Errorf("pg: list: %w", err)
	}
	defer rows.Close()

	out := make([]*core.PendingAction, 0)
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("pg: list scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg: list rows: %w", err)
	}
	if err := s.loadApprovals(ctx, key, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) loadApprovals(ctx context.Context, key core.Key, pending []*core.PendingAction) error {
	if len(pending) == 0 {
		return nil
	}
	byFP := make(map[string]*core.PendingAction, len(pending))
	for _, p := range pending {
		byFP[p.Fingerprint.String()] = p
	}

	rows, err := s.pool.Query(ctx, `
		SELECT fingerprint, identity, signature, submitted_at
		FROM approvals
		WHERE vault = $1 AND domain = $2
		ORDER BY seq ASC`,
		key.Vault.String(), int64(key.Domain),
	)
	if err != nil {
		return fmt.Errorf("pg: approvals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fpStr, idStr string
			sigBytes     []byte
			submitted    time.Time
		)
		if err := rows.Scan(&fpStr, &idStr, &sigBytes, &submitted); err != nil {
			return fmt.Errorf("pg: approvals scan: %w", err)
		}
		p, ok := byFP[fpStr]
		if !ok {
			continue
		}
		id, err := identity.Parse(idStr)
		if err != nil {
			return fmt.Errorf("pg: corrupt identity %q: %w", idStr, err)
		}
		p.Approvals = append(p.Approvals, core.Approval{
			Identity:    id,
			Signature:   sigBytes,
			SubmittedAt: submitted,
		})
	}
	return rows.Err()
}

func scanPending(row pgx.Row) (*core.PendingAction, error) {
	var (
		fpStr, proposerStr string
		act                action.Action
		createdAt          time.Time
	)
	if err := row.Scan(&fpStr, &proposerStr, &act, &createdAt); err != nil {
		return nil, err
	}
	fp, err := fingerprint.Parse(fpStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt fingerprint %q: %w", fpStr, err)
	}
	proposer, err := identity.Parse(proposerStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt proposer %q: %w", proposerStr, err)
	}
	return &core.PendingAction{
		Fingerprint: fp,
		Action:      act,
		Proposer:    proposer,
		CreatedAt:   createdAt,
	}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
