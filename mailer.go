package identity

import (
	"context"
	"fmt"
)

// MailSubject returns the purpose-specific subject line
func MailSubject(purpose ChallengePurpose) string {
	switch purpose {
	case PurposeEmailVerification:
		return "Verify Your Email Address"
	case PurposePasswordReset:
		return "Reset Your Password"
	case PurposeEmailChange:
		return "Verify Your New Email Address"
	default:
		return "Verification Code"
	}
}

// MailBody renders the purpose-specific message with the code and its
// lifetime interpolated
func MailBody(purpose ChallengePurpose, code string, expiryMinutes int) string {
	switch purpose {
	case PurposeEmailVerification:
		return fmt.Sprintf(
			"Welcome! Please use the following code to verify your email address:\n\n"+
				"Verification Code: %s\n\n"+
				"This code will expire in %d minutes.\n\n"+
				"If you didn't create an account, please ignore this email.",
			code, expiryMinutes,
		)
	case PurposePasswordReset:
		return fmt.Sprintf(
			"You requested to reset your password. Please use the following code:\n\n"+
				"Reset Code: %s\n\n"+
				"This code will expire in %d minutes.\n\n"+
				"If you didn't request this, please ignore this email.",
			code, expiryMinutes,
		)
	default:
		return fmt.Sprintf(
			"Your verification code is: %s\n\n"+
				"This code will expire in %d minutes.",
			code, expiryMinutes,
		)
	}
}

// MailBodyEmailChange renders the email-change message delivered to the new
// address; it references the address being replaced
func MailBodyEmailChange(code, oldEmail string, expiryMinutes int) string {
	return fmt.Sprintf(
		"You requested to change your email address from %s.\n\n"+
			"Please use the following code to verify your new email address:\n\n"+
			"Verification Code: %s\n\n"+
			"This code will expire in %d minutes.\n\n"+
			"If you didn't request this change, please ignore this email.",
		oldEmail, code, expiryMinutes,
	)
}

// LogMailer is a development Mailer that writes messages to the logger
// instead of delivering them. Hosts supply a real gateway in production.
type LogMailer struct {
	logger Logger
}

// NewLogMailer returns a Mailer backed by the given logger
func NewLogMailer(logger Logger) *LogMailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.Info("====== SENDING EMAIL NOTIFICATION =======")
	m.logger.Info("to: %s", to)
	m.logger.Info("subject: %s", subject)
	m.logger.Info("%s", body)
	return nil
}

var _ Mailer = (*LogMailer)(nil)
