package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"priceregistry/internal/collector"
	"priceregistry/internal/components/assert"
	"priceregistry/internal/components/telemetry"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("priceregistry.notify")

const report_mailer_send = "mailer.send"

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
}

func (c SmtpConfig) enabled() bool {
	return c.Server != "" && len(c.To) > 0
}

// Mailer sends a summary of failed years. With no server or recipients
// configured it only logs.
type Mailer struct {
	config SmtpConfig
	tel    telemetry.API
	send   func(mail *email.Email) error
}

func NewMailer(config SmtpConfig, tel telemetry.API) Mailer {
	assert.NotNil(tel)

	m := Mailer{
		config: config,
		tel:    telemetry.NewScopedAPI("notify", tel),
	}
	m.send = m.sendSmtp
	return m
}

func (m Mailer) sendSmtp(mail *email.Email) error {
	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", m.config.EmailAddress, m.config.Password, m.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		return mail.Send(addr, nil)
	}
	return err
}

func compose(from string, to []string, results []collector.YearResult) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Price Registry <%s>", from)
	mail.To = to
	mail.Subject = fmt.Sprintf("Price registry: %d year(s) failed", len(results))

	var body strings.Builder
	body.WriteString("The following years could not be collected and will be retried on the next run.\n\n")
	for _, r := range results {
		fmt.Fprintf(&body, "%d: %v\n", r.Year, r.Err)
	}
	mail.Text = []byte(body.String())
	return mail
}

func (m Mailer) SendFailures(ctx context.Context, results []collector.YearResult) error {
	if len(results) == 0 {
		return nil
	}
	if !m.config.enabled() {
		m.tel.ReportDebug("smtp not configured, skipping failure summary", "failed", len(results))
		return nil
	}

	_, span := tracer.Start(ctx, "SendFailures")
	defer span.End()

	err := m.send(compose(m.config.EmailAddress, m.config.To, results))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		m.tel.ReportBroken(report_mailer_send, err)
		return err
	}
	return nil
}
