package email

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

// Service handles email composition and sending.
type Service struct {
	sender      Sender
	fromAddress string
	fromName    string
	html        *htmltemplate.Template
	text        *texttemplate.Template
}

func templateFuncs() map[string]any {
	return map[string]any{
		"dollars": func(cents int64) string {
			sign := ""
			if cents < 0 {
				sign = "-"
				cents = -cents
			}
			return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
		},
		"date": func(t time.Time) string {
			return t.Format("January 2, 2006")
		},
	}
}

// NewService creates a new email service.
func NewService(sender Sender, fromAddress, fromName string) (*Service, error) {
	html := htmltemplate.New("email").Funcs(templateFuncs())
	text := texttemplate.New("email").Funcs(templateFuncs())

	for name, body := range map[string]string{
		"billing_notice": billingNoticeHTML,
		"overdue_notice": overdueNoticeHTML,
	} {
		if _, err := html.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("failed to parse %s html template: %w", name, err)
		}
	}
	for name, body := range map[string]string{
		"billing_notice": billingNoticeText,
		"overdue_notice": overdueNoticeText,
	} {
		if _, err := text.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("failed to parse %s text template: %w", name, err)
		}
	}

	return &Service{
		sender:      sender,
		fromAddress: fromAddress,
		fromName:    fromName,
		html:        html,
		text:        text,
	}, nil
}

// SendBillingNotice sends a new-charge notification.
func (s *Service) SendBillingNotice(ctx context.Context, data BillingNoticeEmail) error {
	return s.send(ctx, []string{data.Email}, data)
}

// SendOverdueNotice sends an overdue-balance notification.
func (s *Service) SendOverdueNotice(ctx context.Context, data OverdueNoticeEmail) error {
	return s.send(ctx, []string{data.Email}, data)
}

func (s *Service) send(ctx context.Context, to []string, data EmailTemplate) error {
	htmlBody, textBody, err := s.render(data.TemplateName(), data)
	if err != nil {
		return fmt.Errorf("failed to render %s template: %w", data.TemplateName(), err)
	}

	msg := &Email{
		To:       to,
		From:     fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress),
		Subject:  data.Subject(),
		HTMLBody: htmlBody,
		TextBody: textBody,
	}

	if _, err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s email: %w", data.TemplateName(), err)
	}
	return nil
}

func (s *Service) render(name string, data any) (string, string, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := s.html.ExecuteTemplate(&htmlBuf, name, data); err != nil {
		return "", "", err
	}
	if err := s.text.ExecuteTemplate(&textBuf, name, data); err != nil {
		return "", "", err
	}
	return htmlBuf.String(), textBuf.String(), nil
}
