package service

import "fmt"

func greeting(name string) string {
	if name == "" {
		return "Hi,"
	}
	return fmt.Sprintf("Hi %s,", name)
}

func passwordResetEmailTemplate(name, resetURL, appName string) (string, string) {
	subject := fmt.Sprintf("Reset your password for %s", appName)
	body := fmt.Sprintf(`%s

You requested to reset your password. Choose a new one here:
%s

This link expires in 1 hour and can only be used once.

If you didn't request this, you can safely ignore this email. Your password won't be changed.

Best,
The %s Team`, greeting(name), resetURL, appName)

	return subject, body
}

func passwordChangedEmailTemplate(name, appName string) (string, string) {
	subject := fmt.Sprintf("Your %s password was changed", appName)
	body := fmt.Sprintf(`%s

The password for your account was just changed.

If this wasn't you, reset your password immediately and contact our support team.

Best,
The %s Team`, greeting(name), appName)

	return subject, body
}
