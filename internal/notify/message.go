// Package notify prepares the warranty reminder: the message text, the
// mailto: URI handed to the local mail client, and the simulated send.
package notify

import (
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/tphummel/service_report/internal/warranty"
)

var messageTmpl = template.Must(template.New("message").Parse(`Assunto: {{.Subject}}

Olá,

Este é um lembrete automático do sistema TechMaintain.

Informamos que a garantia do serviço realizado em seu console (ID: {{.ServiceID}}) vencerá em {{.Expiration}}.

Situação atual: Garantia Ativa.
Por favor, verifique o estado do equipamento. Caso note qualquer anomalia, entre em contato conosco antes do vencimento.

Atenciosamente,
Equipe Técnica`))

// Subject returns the e-mail subject for serviceID.
func Subject(serviceID string) string {
	return fmt.Sprintf("Aviso de Garantia - Serviço ID: %s", serviceID)
}

// RenderMessage returns the reminder text for a service. The due date is the
// expiration of warranty.NewWindow(start, durationMonths), so it always
// matches the warranty widget.
func RenderMessage(serviceID string, start time.Time, durationMonths int) string {
	w := warranty.NewWindow(start, durationMonths)

	var b strings.Builder
	// The template only references string fields; Execute cannot fail.
	_ = messageTmpl.Execute(&b, struct {
		Subject    string
		ServiceID  string
		Expiration string
	}{
		Subject:    Subject(serviceID),
		ServiceID:  serviceID,
		Expiration: warranty.FormatDate(w.Expiration()),
	})
	return b.String()
}

// MailtoURI builds a mailto: link addressed to every recipient with cc,
// subject and body as percent-encoded query fields. Spaces are encoded as
// %20 since mail clients do not decode '+'.
func MailtoURI(to []string, cc, subject, body string) string {
	var b strings.Builder
	b.WriteString("mailto:")
	b.WriteString(strings.Join(to, ","))

	sep := "?"
	add := func(key, value string) {
		if value == "" {
			return
		}
		b.WriteString(sep)
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(encodeComponent(value))
		sep = "&"
	}
	add("cc", cc)
	add("subject", subject)
	add("body", body)
	return b.String()
}

func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
