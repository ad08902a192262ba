package auth

import "log"

// CodeSender delivers a one-time code to an identifier (email or phone).
// Used only on the new-account path.
type CodeSender interface {
	SendCode(identifier, code string) error
}

// LogSender writes codes to the process log. It stands in for a real
// delivery channel in development.
type LogSender struct{}

func (LogSender) SendCode(identifier, code string) error {
	log.Printf("auth: one-time code for %s: %s", identifier, code)
	return nil
}
