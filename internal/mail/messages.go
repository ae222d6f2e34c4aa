package mail

import "fmt"

func VerifyEmailSubject() string { return "Verify your email address" }

func VerifyEmailBody(baseURL, token string) string {
	return fmt.Sprintf(
		`<p>Welcome! Confirm your email address by posting the token below to %s/api/v1/auth/verify-email.</p><pre>%s</pre>`,
		baseURL, token)
}

func PasswordResetSubject() string { return "Password reset requested" }

func PasswordResetBody(baseURL, token string) string {
	return fmt.Sprintf(
		`<p>A password reset was requested for your account. Use the token below at %s/api/v1/auth/password-reset/confirm. It expires shortly and works once.</p><pre>%s</pre><p>If you did not request this, ignore this mail.</p>`,
		baseURL, token)
}
