package mail

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"
)

// Mailer sends one plain-text message. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(to []string, subject, body string) error
}

// Config holds SMTP transport settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// SMTP is the gomail-backed Mailer. Each Send dials a fresh connection;
// delivery volume here is low enough that pooling is not worth carrying.
type SMTP struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTP builds a Mailer from transport settings.
func NewSMTP(cfg Config) (*SMTP, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("mail: host and from are required")
	}
	return &SMTP{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}, nil
}

func (s *SMTP) Send(to []string, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
