package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/covenant/internal/coordinator"
	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
	"github.com/dropDatabas3/covenant/internal/identity"
	"github.com/dropDatabas3/covenant/internal/ledger"
	"github.com/dropDatabas3/covenant/internal/metrics"
	"github.com/dropDatabas3/covenant/internal/quorum"
)

// Handler concentra las dependencias de los endpoints. El ledger es opcional:
// sin él, /verify y /execute responden 503 y los listados no marcan outdated.
type Handler struct {
	svc *coordinator.Service
	led ledger.Ledger
}

func NewHandler(svc *coordinator.Service, led ledger.Ledger) *Handler {
	return &Handler{svc: svc, led: led}
}

func (h *Handler) routeKey(w http.ResponseWriter, r *http.Request) (core.Key, bool) {
	vault, err := identity.Parse(chi.URLParam(r, "vault"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid vault address")
		return core.Key{}, false
	}
	domain, err := strconv.ParseUint(chi.URLParam(r, "domain"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid domain")
		return core.Key{}, false
	}
	return core.Key{Vault: vault, Domain: domain}, true
}

func (h *Handler) routeFingerprint(w http.ResponseWriter, r *http.Request) (fingerprint.Fingerprint, bool) {
	fp, err := fingerprint.Parse(chi.URLParam(r, "fingerprint"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid fingerprint")
		return fingerprint.Fingerprint{}, false
	}
	return fp, true
}

// Propose maneja POST /v1/vaults/{vault}/{domain}/actions.
// Idempotente por fingerprint: re-proponer la misma acción devuelve la
// entrada existente con created=false, siempre 200.
func (h *Handler) Propose(w http.ResponseWriter, r *http.Request) {
	key, ok := h.routeKey(w, r)
	if !ok {
		return
	}
	var req proposeRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	rawSig, err := decodeSignature(req.Signature)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	pending, created, err := h.svc.Propose(r.Context(), key, req.Action, core.Approval{
		Identity:  req.Proposer,
		Signature: rawSig,
	})
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, proposeResponse{
		Created: created,
		Pending: toPendingDTO(pending, h.outdated(r.Context(), key, pending)),
	})
}

// Approve maneja POST /v1/vaults/{vault}/{domain}/actions/{fingerprint}/approvals.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	key, ok := h.routeKey(w, r)
	if !ok {
		return
	}
	fp, ok := h.routeFingerprint(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	rawSig, err := decodeSignature(req.Signature)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	pending, err := h.svc.Approve(r.Context(), key, fp, core.Approval{
		Identity:  req.Identity,
		Signature: rawSig,
	})
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toPendingDTO(pending, h.outdated(r.Context(), key, pending)))
}

// List maneja GET /v1/vaults/{vault}/{domain}/actions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	key, ok := h.routeKey(w, r)
	if !ok {
		return
	}
	pendings, err := h.svc.List(r.Context(), key)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	seq, haveSeq := h.svc.SequenceHint(r.Context(), key.Vault)
	resp := listResponse{
		Vault:   key.Vault,
		Domain:  key.Domain,
		Pending: make([]pendingDTO, len(pendings)),
	}
	for i, p := range pendings {
		var outdated *bool
		if haveSeq {
			stale := p.Action.Sequence < seq
			outdated = &stale
		}
		resp.Pending[i] = toPendingDTO(p, outdated)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Get maneja GET /v1/vaults/{vault}/{domain}/actions/{fingerprint}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := h.routeKey(w, r)
	if !ok {
		return
	}
	fp, ok := h.routeFingerprint(w, r)
	if !ok {
		return
	}
	pending, err := h.svc.Get(r.Context(), key, fp)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toPendingDTO(pending, h.outdated(r.Context(), key, pending)))
}

// Verify maneja POST /v1/vaults/{vault}/{domain}/verify. Corre el quorum
// check contra la membership vigente y devuelve admit/reject con el motivo.
// Consultivo: el ledger re-verifica siempre al ejecutar.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	key, ok := h.routeKey(w, r)
	if !ok {
		return
	}
	if h.led == nil {
		WriteError(w, http.StatusServiceUnavailable, "no_ledger", "no ledger configured")
		return
	}
	var req verifyRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if err := req.Action.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	sigs, err := decodeSignatures(req.Signatures)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	m, err := h.led.Membership(r.Context(), key.Vault)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	fp := fingerprint.Compute(key.Vault, key.Domain, req.Action)
	resp := verifyResponse{
		Fingerprint: fp.String(),
		Approvals:   len(sigs),
	}
	if _, verr := quorum.Verify(fp, m, sigs); verr != nil {
		metrics.VerificationsTotal.WithLabelValues("rejected").Inc()
		resp.Reason = verr.Error()
	} else {
		metrics.VerificationsTotal.WithLabelValues("admitted").Inc()
		resp.Admitted = true
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Execute maneja POST /v1/vaults/{vault}/{domain}/execute: reenvía la acción
// y las firmas al ledger, que verifica quorum y sequence por su cuenta.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	key, ok := h.routeKey(w, r)
	if !ok {
		return
	}
	if h.led == nil {
		WriteError(w, http.StatusServiceUnavailable, "no_ledger", "no ledger configured")
		return
	}
	var req executeRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if err := req.Action.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	sigs, err := decodeSignatures(req.Signatures)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	fp := fingerprint.Compute(key.Vault, key.Domain, req.Action)
	if err := h.led.Execute(r.Context(), key.Vault, key.Domain, req.Action, sigs); err != nil {
		writeLedgerError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, executeResponse{
		Fingerprint: fp.String(),
		Executed:    true,
		Sequence:    req.Action.Sequence,
	})
}

// Healthz responde vivo siempre que el proceso atienda.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz chequea el backend de persistencia.
func (h *Handler) Readyz(pinger interface {
	Ping(ctx context.Context) error
}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pinger.Ping(r.Context()); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (h *Handler) outdated(ctx context.Context, key core.Key, p *core.PendingAction) *bool {
	seq, ok := h.svc.SequenceHint(ctx, key.Vault)
	if !ok {
		return nil
	}
	stale := p.Action.Sequence < seq
	return &stale
}

func writeCoordinatorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, core.ErrConflict):
		WriteError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, core.ErrInvalid):
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "storage failure")
	}
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrUnknownVault):
		WriteError(w, http.StatusNotFound, "unknown_vault", err.Error())
	case errors.Is(err, ledger.ErrStaleSequence):
		WriteError(w, http.StatusConflict, "stale_sequence", err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		WriteError(w, http.StatusConflict, "insufficient_funds", err.Error())
	case errors.Is(err, quorum.ErrInsufficientApprovals),
		errors.Is(err, quorum.ErrUnknownSigner),
		errors.Is(err, quorum.ErrUnorderedOrDuplicate),
		errors.Is(err, quorum.ErrSignatureRecovery):
		WriteError(w, http.StatusForbidden, "quorum_rejected", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "ledger failure")
	}
}
