// Package metrics define los contadores Prometheus del dominio. Viven en un
// package propio para evitar ciclos de import entre coordinator, ledger,
// cluster y HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ProposalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "covenant_proposals_total",
		Help: "Propuestas recibidas por resultado (created|duplicate|invalid)",
	}, []string{"result"})

	ApprovalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "covenant_approvals_total",
		Help: "Aprobaciones recibidas por resultado (accepted|conflict|not_found|invalid)",
	}, []string{"result"})

	VerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "covenant_verifications_total",
		Help: "Corridas consultivas del quorum verifier por resultado",
	}, []string{"result"})

	ExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "covenant_executions_total",
		Help: "Ejecuciones contra el ledger por resultado (applied|rejected|stale|failed)",
	}, []string{"result"})
)

// Register registra los contadores del dominio en el registry dado (o el
// default si es nil), ignorando duplicados.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		ProposalsTotal, ApprovalsTotal, VerificationsTotal, ExecutionsTotal,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
