package mail

import (
	"context"
	"fmt"
)

// OTPSubject is the subject line of one-time password emails
const OTPSubject = "Authentication Code [TheFall]"

// OTPBody renders the one-time password email body
func OTPBody(username string, code int) string {
	return fmt.Sprintf("Hello %s\nYour One Time Password is: %06d\nThis code will expire in 5 minutes.", username, code)
}

// SendOTP emails a one-time password to the user
func SendOTP(ctx context.Context, s Sender, username, email string, code int) error {
	if email == "" {
		return ErrNoRecipient
	}
	return s.Send(ctx, email, OTPSubject, OTPBody(username, code))
}
