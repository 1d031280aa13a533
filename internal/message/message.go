// Package message assembles RFC 5322 messages for transmission inside an
// SMTP DATA block. Assembly is pure: no I/O, no shared state.
package message

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OliverSchlueter/goutils/idgen"
	"github.com/google/uuid"
)

// ErrNoBody is returned when neither a plain-text nor an HTML body is
// supplied. An empty message is almost certainly a caller bug.
var ErrNoBody = errors.New("message has no body")

// Message holds the inputs for one outbound message. Header-bound fields
// (From, FromName, To, Subject) may originate from external callers and
// are sanitized during rendering.
type Message struct {
	From     string
	FromName string
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
}

// Render assembles the full message: headers, body part(s), CRLF line
// endings throughout. The result is not dot-stuffed and carries no
// SMTP-level terminator; see DotStuff.
func (m Message) Render() (string, error) {
	if m.TextBody == "" && m.HTMLBody == "" {
		return "", ErrNoBody
	}

	from := sanitizeHeader(m.From)
	fromHeader := from
	if name := sanitizeHeader(m.FromName); name != "" {
		fromHeader = fmt.Sprintf("%q <%s>", name, from)
	}

	to := make([]string, 0, len(m.To))
	for _, rcpt := range m.To {
		to = append(to, sanitizeHeader(rcpt))
	}

	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", fromHeader)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(m.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", idgen.GenerateID(20), domain)
	b.WriteString("MIME-Version: 1.0\r\n")

	text := normalizeCRLF(m.TextBody)
	html := normalizeCRLF(m.HTMLBody)

	switch {
	case text != "" && html != "":
		// Random boundary; a collision with body content is negligible.
		boundary := "b-" + uuid.New().String()
		fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
		b.WriteString("\r\n")

		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(text)
		b.WriteString("\r\n")

		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(html)
		b.WriteString("\r\n")

		fmt.Fprintf(&b, "--%s--", boundary)
	case html != "":
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		b.WriteString("\r\n")
		b.WriteString(html)
	default:
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		b.WriteString("\r\n")
		b.WriteString(text)
	}

	return b.String(), nil
}

// DotStuff doubles the leading dot of every line that starts with one, so
// the body can never contain the bare termination sequence (RFC 5321
// §4.5.2). Applied exactly once, as the final step before transmission.
func DotStuff(s string) string {
	if strings.HasPrefix(s, ".") {
		s = "." + s
	}
	return strings.ReplaceAll(s, "\r\n.", "\r\n..")
}

// sanitizeHeader neutralizes header injection: embedded CR and LF are
// removed and the value is trimmed.
func sanitizeHeader(v string) string {
	v = strings.NewReplacer("\r", "", "\n", "").Replace(v)
	return strings.TrimSpace(v)
}

// normalizeCRLF rewrites any mix of line endings to CRLF.
func normalizeCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
