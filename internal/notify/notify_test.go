package notify

import (
	"context"
	"errors"
	"testing"

	"priceregistry/internal/collector"
	"priceregistry/internal/components/telemetry/teltest"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/require"
)

func TestSendFailures(t *testing.T) {
	mailer := NewMailer(SmtpConfig{
		Server:       "localhost",
		Port:         1025,
		EmailAddress: "collector@example.com",
		To:           []string{"ops@example.com"},
	}, teltest.NewRecorder(t))

	var sent []*email.Email
	mailer.send = func(mail *email.Email) error {
		sent = append(sent, mail)
		return nil
	}

	err := mailer.SendFailures(context.Background(), []collector.YearResult{
		{Year: 2015, Err: &collector.YearError{Year: 2015, Region: "70017", Err: errors.New("status 500")}},
	})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.Equal(t, "Price Registry <collector@example.com>", sent[0].From)
	require.Equal(t, []string{"ops@example.com"}, sent[0].To)
	require.Equal(t, "Price registry: 1 year(s) failed", sent[0].Subject)
	require.Contains(t, string(sent[0].Text), "2015: year 2015 region 70017: status 500")
}

func TestSendFailuresDisabled(t *testing.T) {
	mailer := NewMailer(SmtpConfig{}, teltest.NewRecorder(t))
	mailer.send = func(*email.Email) error {
		t.Fatal("unexpected send")
		return nil
	}

	err := mailer.SendFailures(context.Background(), []collector.YearResult{{Year: 2015, Err: errors.New("x")}})
	require.NoError(t, err)
}

func TestSendFailuresError(t *testing.T) {
	tel := teltest.NewRecorder(t)
	mailer := NewMailer(SmtpConfig{Server: "localhost", To: []string{"ops@example.com"}}, tel)
	mailer.send = func(*email.Email) error {
		return errors.New("connection refused")
	}

	err := mailer.SendFailures(context.Background(), []collector.YearResult{{Year: 2015, Err: errors.New("x")}})
	require.Error(t, err)
	require.Len(t, tel.Broken(report_mailer_send), 1)
}
