// Package coordinator implementa el servicio de recolección de aprobaciones.
// Guarda y deduplica; no ejecuta nada y no consulta membership: esa autoridad
// vive en el ledger externo. El admit/reject del verifier que se expone por
// HTTP es consultivo para clientes, nunca un capability token.
package coordinator

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
	"github.com/dropDatabas3/covenant/internal/identity"
	"github.com/dropDatabas3/covenant/internal/ledger"
	"github.com/dropDatabas3/covenant/internal/metrics"
	"github.com/dropDatabas3/covenant/internal/observability/logger"
	"github.com/dropDatabas3/covenant/internal/sig"
)

// Notifier recibe el aviso de propuesta creada (email u otro canal).
// Best-effort: un fallo de notificación nunca afecta la propuesta.
type Notifier interface {
	ProposalCreated(ctx context.Context, key core.Key, p *core.PendingAction)
}

// seqHintTTL acota cuánto vive el snapshot cacheado del contador del ledger.
// Es solo para marcar "outdated" en listados; nunca es autoritativo.
const seqHintTTL = 2 * time.Second

type Service struct {
	repo     core.Repository
	reader   ledger.Reader
	notifier Notifier
	seqCache *gocache.Cache
	log      *zap.Logger
}

type Option func(*Service)

// WithLedgerReader habilita el hint de sequence (campo outdated en listados).
func WithLedgerReader(r ledger.Reader) Option {
	return func(s *Service) { s.reader = r }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func New(repo core.Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		seqCache: gocache.New(seqHintTTL, time.Minute),
		log:      logger.Named("coordinator"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Propose registra una acción nueva bajo su fingerprint. El fingerprint se
// calcula siempre acá, nunca se confía en uno provisto por el cliente. Si ya
// existe una entrada para ese fingerprint se devuelve tal cual con
// created=false: creación idempotente, sin pisar nada.
//
// No valida firma ni membership: eso es trabajo del Quorum Verifier al
// momento de ejecutar.
func (s *Service) Propose(ctx context.Context, key core.Key, a action.Action, proposer core.Approval) (*core.PendingAction, bool, error) {
	if err := a.Validate(); err != nil {
		metrics.ProposalsTotal.WithLabelValues("invalid").Inc()
		return nil, false, fmt.Errorf("%w: %v", core.ErrInvalid, err)
	}
	if err := validateApproval(proposer); err != nil {
		metrics.ProposalsTotal.WithLabelValues("invalid").Inc()
		return nil, false, err
	}
	if key.Vault.IsZero() {
		metrics.ProposalsTotal.WithLabelValues("invalid").Inc()
		return nil, false, fmt.Errorf("%w: zero vault", core.ErrInvalid)
	}

	fp := fingerprint.Compute(key.Vault, key.Domain, a)
	now := time.Now().UTC()
	proposer.SubmittedAt = now

	p := &core.PendingAction{
		Fingerprint: fp,
		Action:      a.Clone(),
		Proposer:    proposer.Identity,
		Approvals:   []core.Approval{proposer},
		CreatedAt:   now,
	}

	stored, created, err := s.repo.Create(ctx, key, p)
	if err != nil {
		return nil, false, err
	}

	if created {
		metrics.ProposalsTotal.WithLabelValues("created").Inc()
		s.log.Info("proposal created",
			zap.String("vault", key.Vault.String()),
			zap.Uint64("domain", key.Domain),
			zap.String("fingerprint", fp.String()),
			zap.String("proposer", proposer.Identity.String()),
		)
		if s.notifier != nil {
			go s.notifier.ProposalCreated(context.WithoutCancel(ctx), key, stored.Clone())
		}
	} else {
		metrics.ProposalsTotal.WithLabelValues("duplicate").Inc()
	}
	return stored, created, nil
}

// Approve agrega la aprobación de una identidad a una acción pendiente.
// Segunda submission de la misma identidad declarada: core.ErrConflict, se
// rechaza y no se reemplaza (las aprobaciones solo se acumulan).
func (s *Service) Approve(ctx context.Context, key core.Key, fp fingerprint.Fingerprint, a core.Approval) (*core.PendingAction, error) {
	if err := validateApproval(a); err != nil {
		metrics.ApprovalsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	a.SubmittedAt = time.Now().UTC()

	stored, err := s.repo.AddApproval(ctx, key, fp, a)
	switch {
	case err == nil:
		metrics.ApprovalsTotal.WithLabelValues("accepted").Inc()
		s.log.Info("approval recorded",
			zap.String("vault", key.Vault.String()),
			zap.Uint64("domain", key.Domain),
			zap.String("fingerprint", fp.String()),
			zap.String("identity", a.Identity.String()),
			zap.Int("total", len(stored.Approvals)),
		)
	case err == core.ErrConflict:
		metrics.ApprovalsTotal.WithLabelValues("conflict").Inc()
	case err == core.ErrNotFound:
		metrics.ApprovalsTotal.WithLabelValues("not_found").Inc()
	}
	return stored, err
}

// List devuelve el snapshot de acciones pendientes de la key.
func (s *Service) List(ctx context.Context, key core.Key) ([]*core.PendingAction, error) {
	return s.repo.List(ctx, key)
}

// Get devuelve una acción pendiente puntual.
func (s *Service) Get(ctx context.Context, key core.Key, fp fingerprint.Fingerprint) (*core.PendingAction, error) {
	return s.repo.Get(ctx, key, fp)
}

// SequenceHint devuelve el último contador conocido del vault, cacheado unos
// segundos. ok=false cuando no hay ledger configurado o la lectura falló.
// Los clientes lo usan para marcar propuestas desactualizadas; la seguridad
// no depende de este valor (el ledger re-chequea al ejecutar).
func (s *Service) SequenceHint(ctx context.Context, vault identity.Address) (uint64, bool) {
	if s.reader == nil {
		return 0, false
	}
	cacheKey := vault.String()
	if v, ok := s.seqCache.Get(cacheKey); ok {
		return v.(uint64), true
	}
	seq, err := s.reader.Sequence(ctx, vault)
	if err != nil {
		s.log.Debug("sequence hint unavailable", zap.String("vault", cacheKey), zap.Error(err))
		return 0, false
	}
	s.seqCache.Set(cacheKey, seq, seqHintTTL)
	return seq, true
}

func validateApproval(a core.Approval) error {
	if a.Identity.IsZero() {
		return fmt.Errorf("%w: zero identity", core.ErrInvalid)
	}
	if len(a.Signature) == 0 {
		return fmt.Errorf("%w: empty signature", core.ErrInvalid)
	}
	// Solo forma, no validez criptográfica: el largo correcto se chequea
	// para devolver bad-request temprano en vez de un batch roto después.
	if len(a.Signature) != sig.Length {
		return fmt.Errorf("%w: signature must be %d bytes, got %d", core.ErrInvalid, sig.Length, len(a.Signature))
	}
	return nil
}
