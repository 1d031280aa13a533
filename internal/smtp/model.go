package smtp

import (
	"crypto/tls"
	"net"
	"time"
)

// Config describes one outbound connection. It is fully populated by the
// caller before Send; the client itself reads no ambient configuration.
type Config struct {
	Host string
	Port int

	// ImplicitTLS opens the connection encrypted from the first byte.
	// Forced when Port is 465 regardless of this flag.
	ImplicitTLS bool

	// AllowInsecure permits delivery over plaintext when the server does
	// not advertise STARTTLS. When false, such servers are refused.
	AllowInsecure bool

	// Credentials for AUTH LOGIN. Empty Username disables authentication.
	Username string
	Password string

	// ClientName is the identity announced in EHLO. Defaults to
	// "localhost" when empty.
	ClientName string

	// DKIMDomain and DKIMSelector enable DKIM signing when a private key
	// has been loaded with LoadDKIMPrivateKey.
	DKIMDomain   string
	DKIMSelector string

	// Timeout bounds the dial and, once connected, the whole session via
	// an absolute connection deadline. Zero means no timeout.
	Timeout time.Duration

	// TLSConfig overrides the TLS client configuration for both implicit
	// TLS and STARTTLS. ServerName defaults to Host.
	TLSConfig *tls.Config

	// DialFunc overrides the transport dialer. Used by tests.
	DialFunc func(network, addr string) (net.Conn, error)
}

// Mail is the content of one send: envelope sender, recipients and the
// message fields handed to the builder. At least one of TextBody and
// HTMLBody must be set.
type Mail struct {
	From     string
	FromName string
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
}
