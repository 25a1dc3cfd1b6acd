package types

import "context"

// EmailSender is the external collaborator that actually delivers mail
// (SMTP is explicitly out of scope; production wiring is Resend). The
// poll engine core only depends on this interface.
type EmailSender interface {
	SendVoterConfirmation(ctx context.Context, to string, data VoterConfirmationEmail) error
	SendExpiryReminder(ctx context.Context, to string, data ExpiryReminderEmail) error
}

// VoterConfirmationEmail is the template data for the email a voter
// receives after casting votes on a poll (§4.5), carrying the
// voter_edit_token link so they can return to edit or withdraw.
type VoterConfirmationEmail struct {
	PollTitle   string
	PublicURL   string
	EditURL     string
	VoterName   string
}

// ExpiryReminderEmail is the template data for the reminder sent to a
// poll's participants as it approaches its expiry (§4.8).
type ExpiryReminderEmail struct {
	PollTitle string
	PublicURL string
	ExpiresAt string
}
