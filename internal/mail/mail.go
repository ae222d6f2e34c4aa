package mail

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/sazardev/hrauth/internal/config"
)

// Sender delivers transactional mail (verification links, password resets).
type Sender interface {
	Send(to string, subject string, htmlBody string) error
}

type smtpSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(cfg config.SMTPConfig) Sender {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &smtpSender{dialer: dialer, from: cfg.From}
}

func (s *smtpSender) Send(to string, subject string, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// NullSender drops mail. Used when SMTP is disabled (development, tests).
type NullSender struct{}

func (NullSender) Send(string, string, string) error { return nil }

// New picks the sender backend from config.
func New(cfg config.SMTPConfig) Sender {
	if !cfg.Enabled {
		return NullSender{}
	}
	return NewSMTPSender(cfg)
}
