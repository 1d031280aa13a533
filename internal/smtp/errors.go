package smtp

import "errors"

// Every error below aborts the send immediately; nothing is retried. The
// raw server reply is wrapped into the returned error for diagnostics, but
// callers should surface only a generic delivery failure to end users.
var (
	ErrGreetingRejected        = errors.New("server rejected connection greeting")
	ErrInsecureDeliveryRefused = errors.New("server does not offer STARTTLS and insecure delivery is not allowed")
	ErrStartTLSRejected        = errors.New("server rejected STARTTLS")
	ErrAuthenticationRejected  = errors.New("authentication rejected")
	ErrSenderRejected          = errors.New("sender rejected")
	ErrRecipientRejected       = errors.New("recipient rejected")
	ErrDataPhaseRejected       = errors.New("DATA command rejected")
	ErrMessageRejected         = errors.New("message rejected")
)
