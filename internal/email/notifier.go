package email

import (
	"bytes"
	"context"
	"text/template"

	"go.uber.org/zap"

	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	"github.com/dropDatabas3/covenant/internal/observability/logger"
)

var proposalText = template.Must(template.New("proposal").Parse(
	`Nueva acción propuesta en el vault {{.Vault}} (dominio {{.Domain}}).

Fingerprint: {{.Fingerprint}}
Proponente:  {{.Proposer}}
Sequence:    {{.Sequence}}
Target:      {{.Target}}
Amount:      {{.Amount}}

Revisá la acción y, si corresponde, agregá tu firma.
`))

// Notifier implementa coordinator.Notifier sobre un Sender. Los destinatarios
// vienen de config; el coordinator no conoce direcciones de correo de nadie.
type Notifier struct {
	sender     Sender
	recipients []string
	log        *zap.Logger
}

func NewNotifier(sender Sender, recipients []string) *Notifier {
	return &Notifier{
		sender:     sender,
		recipients: recipients,
		log:        logger.Named("email"),
	}
}

func (n *Notifier) ProposalCreated(ctx context.Context, key core.Key, p *core.PendingAction) {
	if n.sender == nil || len(n.recipients) == 0 {
		return
	}

	data := struct {
		Vault, Fingerprint, Proposer, Target, Amount string
		Domain, Sequence                             uint64
	}{
		Vault:       key.Vault.String(),
		Domain:      key.Domain,
		Fingerprint: p.Fingerprint.String(),
		Proposer:    p.Proposer.String(),
		Sequence:    p.Action.Sequence,
		Target:      p.Action.Target.String(),
		Amount:      p.Action.Amount.String(),
	}

	var body bytes.Buffer
	if err := proposalText.Execute(&body, data); err != nil {
		n.log.Error("template failed", logger.Err(err))
		return
	}

	subject := "[covenant] nueva propuesta " + data.Fingerprint[:10] + "…"
	for _, to := range n.recipients {
		if ctx.Err() != nil {
			return
		}
		if err := n.sender.Send(to, subject, "", body.String()); err != nil {
			n.log.Warn("proposal notification failed",
				zap.String("to", to),
				logger.Fingerprint(data.Fingerprint),
				logger.Err(err),
			)
		}
	}
}
