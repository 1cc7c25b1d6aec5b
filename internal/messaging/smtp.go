package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPMessenger struct {
	renderer *Renderer
	dialer   mailSender
	from     string
	fromName string
}

func NewSMTPMessenger(cfg SMTPConfig, renderer *Renderer) *SMTPMessenger {
	return &SMTPMessenger{
		renderer: renderer,
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.From,
		fromName: cfg.FromName,
	}
}

func (s *SMTPMessenger) Send(ctx context.Context, address, templateID string, data map[string]any) error {
	msg, err := s.renderer.Render(address, templateID, data)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return smtpError(err)
	}
}

// smtpError turns permanent 5xx replies into rejections.
func smtpError(err error) error {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return Reject(fmt.Sprintf("smtp %d", tpErr.Code), err)
	}
	return fmt.Errorf("smtp send: %w", err)
}
