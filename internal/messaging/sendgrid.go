package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type SendGridMessenger struct {
	key      string
	from     *sgmail.Email
	renderer *Renderer
	api      func(rest.Request) (*rest.Response, error)
}

func NewSendGridMessenger(key, fromName, fromEmail string, renderer *Renderer) *SendGridMessenger {
	return &SendGridMessenger{
		key:      key,
		from:     sgmail.NewEmail(fromName, fromEmail),
		renderer: renderer,
		api:      sendgrid.API,
	}
}

func (s *SendGridMessenger) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail("", msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	return m
}

func (s *SendGridMessenger) Send(ctx context.Context, address, templateID string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.renderer.Render(address, templateID, data)
	if err != nil {
		return err
	}

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := s.api(req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return Reject(fmt.Sprintf("sendgrid status %d", res.StatusCode), errors.New(res.Body))
	}
	return nil
}
