package signal

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/kat-co/vala"

	"github.com/trezcool/prepcards/core"
)

const flaggedTemplate = "signal_flagged"

// FlaggedEmailData is the template data of the flag notification email.
type FlaggedEmailData struct {
	Signals []Signal
}

// EmailNotifier emails newly flagged signals to the curriculum reviewers.
type EmailNotifier struct {
	mailSvc core.EmailService
	to      []mail.Address
}

func NewEmailNotifier(mailSvc core.EmailService, to []mail.Address) *EmailNotifier {
	vala.BeginValidation().Validate(
		vala.IsNotNil(mailSvc, "mailSvc"),
	).CheckAndPanic()
	return &EmailNotifier{mailSvc: mailSvc, to: to}
}

func (n *EmailNotifier) NotifyFlagged(_ context.Context, signals []Signal) error {
	if len(n.to) == 0 || len(signals) == 0 {
		return nil
	}
	n.mailSvc.SendMessages(&core.EmailMessage{
		To:           n.to,
		Subject:      fmt.Sprintf("%d prep card signal(s) flagged for review", len(signals)),
		TemplateName: flaggedTemplate,
		TemplateData: FlaggedEmailData{Signals: signals},
	})
	return nil
}
