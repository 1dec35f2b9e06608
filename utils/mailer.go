package utils

import (
	"fmt"

	"github.com/resend/resend-go/v2"
)

// MailerInterface sends transactional mail. Tests substitute a mock.
type MailerInterface interface {
	SendPasswordReset(toEmail, resetURL string) error
}

// ResendMailer delivers mail through the Resend API.
type ResendMailer struct {
	client *resend.Client
	sender string
}

func NewResendMailer(apiKey, sender string) *ResendMailer {
	return &ResendMailer{
		client: resend.NewClient(apiKey),
		sender: sender,
	}
}

func (m *ResendMailer) SendPasswordReset(toEmail, resetURL string) error {
	params := &resend.SendEmailRequest{
		From:    m.sender,
		To:      []string{toEmail},
		Subject: "Reset Your Password",
		Html: fmt.Sprintf(
			`<p>We received a request to reset your password.</p>`+
				`<p><a href="%s">Click here to choose a new password.</a></p>`+
				`<p>The link expires in one hour. If you did not ask for this, you can ignore this email.</p>`,
			resetURL,
		),
	}

	if _, err := m.client.Emails.Send(params); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}
	return nil
}
