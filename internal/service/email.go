package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Message is a plain-text email.
type Message struct {
	Subject string
	Body    string
}

// Mailer delivers a message to one destination address.
type Mailer interface {
	Send(ctx context.Context, destination string, msg Message) error
}

// ResendMailer sends through the Resend API.
type ResendMailer struct {
	client    *resend.Client
	fromEmail string
}

func NewResendMailer(apiKey, fromEmail string) *ResendMailer {
	return &ResendMailer{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
	}
}

func (m *ResendMailer) Send(ctx context.Context, destination string, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    m.fromEmail,
		To:      []string{destination},
		Subject: msg.Subject,
		Text:    msg.Body,
	}

	_, err := m.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them (development only).
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, destination string, msg Message) error {
	slog.InfoContext(ctx, "email sent (dev mode)", "to", destination, "subject", msg.Subject, "body", msg.Body)
	return nil
}

type EmailService struct {
	mailer  Mailer
	appName string
}

func NewEmailService(mailer Mailer, appName string) *EmailService {
	return &EmailService{
		mailer:  mailer,
		appName: appName,
	}
}

func (s *EmailService) SendPasswordResetEmail(ctx context.Context, email, resetURL, name string) error {
	subject, body := passwordResetEmailTemplate(name, resetURL, s.appName)

	err := s.mailer.Send(ctx, email, Message{Subject: subject, Body: body})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "email sent", "type", "password_reset", "to", email)
	return nil
}

func (s *EmailService) SendPasswordChangedEmail(ctx context.Context, email, name string) error {
	subject, body := passwordChangedEmailTemplate(name, s.appName)

	err := s.mailer.Send(ctx, email, Message{Subject: subject, Body: body})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "email sent", "type", "password_changed", "to", email)
	return nil
}
