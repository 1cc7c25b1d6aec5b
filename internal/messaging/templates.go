package messaging

import (
	"bytes"
	"errors"
	"fmt"
	htmltmpl "html/template"
	texttmpl "text/template"

	"gradebook_service/internal/domain"
)

var ErrUnknownTemplate = errors.New("unknown template")

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type templateSet struct {
	subject *texttmpl.Template
	text    *texttmpl.Template
	html    *htmltmpl.Template
}

type Renderer struct {
	prefix    string
	templates map[string]templateSet
}

var builtin = map[string][3]string{
	domain.TemplateAssignmentSubmission: {
		`Assignment Submitted: {{.title}}`,
		`{{.student_name}} has submitted "{{.title}}".
Submitted at: {{.submitted_at}}`,
		`<p><strong>{{.student_name}}</strong> has submitted <em>{{.title}}</em>.</p>
<p>Submitted at: {{.submitted_at}}</p>`,
	},
	domain.TemplateGradeNotification: {
		`Grade Posted: {{.title}}`,
		`Hello {{.recipient_name}},

{{.student_name}} received the grade {{.grade}} for "{{.title}}".{{if .comment}}
Teacher comment: {{.comment}}{{end}}`,
		`<p>Hello {{.recipient_name}},</p>
<p><strong>{{.student_name}}</strong> received the grade <strong>{{.grade}}</strong> for <em>{{.title}}</em>.</p>
{{if .comment}}<p>Teacher comment: {{.comment}}</p>{{end}}`,
	},
}

// NewRenderer parses the built-in templates. appName prefixes every subject.
func NewRenderer(appName string) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]templateSet, len(builtin))}
	if appName != "" {
		r.prefix = "[" + appName + "] "
	}

	for id, src := range builtin {
		subject, err := texttmpl.New(id + ".subject").Option("missingkey=zero").Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("parsing %s subject: %w", id, err)
		}
		text, err := texttmpl.New(id + ".txt").Option("missingkey=zero").Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("parsing %s text: %w", id, err)
		}
		html, err := htmltmpl.New(id + ".html").Option("missingkey=zero").Parse(src[2])
		if err != nil {
			return nil, fmt.Errorf("parsing %s html: %w", id, err)
		}
		r.templates[id] = templateSet{subject: subject, text: text, html: html}
	}
	return r, nil
}

func MustRenderer(appName string) *Renderer {
	r, err := NewRenderer(appName)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Renderer) Render(address, templateID string, data map[string]any) (Message, error) {
	set, ok := r.templates[templateID]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}

	var subject, text, html bytes.Buffer
	if err := set.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("rendering subject: %w", err)
	}
	if err := set.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("rendering text: %w", err)
	}
	if err := set.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("rendering html: %w", err)
	}

	return Message{
		To:      address,
		Subject: r.prefix + subject.String(),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
