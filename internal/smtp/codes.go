package smtp

// Reply codes the client checks for at each step of the transaction.
const (
	CodeServiceReady   = "220" // greeting and STARTTLS go-ahead
	CodeOK             = "250" // EHLO, MAIL FROM, RCPT TO, message accepted
	CodeAuthContinue   = "334" // AUTH LOGIN username/password prompts
	CodeAuthSuccess    = "235"
	CodeStartMailInput = "354" // DATA accepted, send the message
)

// The conventional port for implicit-TLS submission; connecting to it
// forces an encrypted transport regardless of configuration.
const implicitTLSPort = 465
