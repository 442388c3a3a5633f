package email

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"elimu_backend/internal/config"
)

// Provider sends transactional mail. Receipt mail is best-effort: a send
// failure never fails the payment path.
type Provider interface {
	Send(to, subject, body string) error
	SendPaymentReceipt(to, tier string, amount int64, currency, receipt string) error
}

type SMTPProvider struct {
	cfg *config.Config
}

func NewSMTPProvider(cfg *config.Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(p.cfg.Email.FromEmail, p.cfg.Email.FromName))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(
		p.cfg.Email.SMTPHost,
		p.cfg.Email.SMTPPort,
		p.cfg.Email.SMTPUsername,
		p.cfg.Email.SMTPPassword,
	)

	return d.DialAndSend(m)
}

func (p *SMTPProvider) SendPaymentReceipt(to, tier string, amount int64, currency, receipt string) error {
	subject := "Payment received"
	body := fmt.Sprintf(
		"<p>We received your payment of %s %d for the <b>%s</b> plan.</p><p>Receipt: %s</p>",
		currency, amount, tier, receipt,
	)
	return p.Send(to, subject, body)
}
