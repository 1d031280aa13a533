// Package smtp implements the outbound mail client used for password-reset
// notifications: a single-connection SMTP session with opportunistic
// STARTTLS, AUTH LOGIN and an RFC 5321 envelope transaction.
package smtp

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/wanderplan/mailer/internal/message"
)

// Send performs one complete delivery: it builds the message, opens a
// connection, drives the SMTP transaction and closes the connection before
// returning, on every path. Nothing is retried; the first unexpected reply
// or transport error aborts the send.
func Send(cfg Config, m Mail) error {
	msg, err := message.Message{
		From:     m.From,
		FromName: m.FromName,
		To:       m.To,
		Subject:  m.Subject,
		TextBody: m.TextBody,
		HTMLBody: m.HTMLBody,
	}.Render()
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	// Sign before dot-stuffing: the receiver verifies the de-stuffed text.
	if dkimPrivateKey != nil && cfg.DKIMDomain != "" {
		signed, err := signMessage(msg, cfg)
		if err != nil {
			return fmt.Errorf("failed to sign message: %w", err)
		}
		msg = signed
	}

	return send(cfg, m, message.DotStuff(msg))
}

func send(cfg Config, m Mail, payload string) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	encrypted := cfg.ImplicitTLS || cfg.Port == implicitTLSPort

	conn, err := dial(cfg, addr, encrypted)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server %s: %w", addr, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("Failed to close connection", sloki.WrapError(err))
		}
	}()

	if cfg.Timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(cfg.Timeout)); err != nil {
			return fmt.Errorf("failed to set connection deadline: %w", err)
		}
	}

	reader := newReplyReader(conn)
	writer := bufio.NewWriter(conn)

	clientName := cfg.ClientName
	if clientName == "" {
		clientName = "localhost"
	}

	// 1. Read server greeting
	reply, err := reader.readReply()
	if err != nil {
		return fmt.Errorf("failed to read server greeting: %w", err)
	}
	if !reply.HasCode(CodeServiceReady) {
		return fmt.Errorf("%w: %s", ErrGreetingRejected, reply.Text)
	}

	// 2. Send EHLO and capture capabilities
	reply, err = ehlo(reader, writer, clientName)
	if err != nil {
		return err
	}

	// 3. Upgrade with STARTTLS when the connection is still plaintext
	if !encrypted {
		if strings.Contains(strings.ToUpper(reply.Text), "STARTTLS") {
			if err := writeLine(writer, "STARTTLS"); err != nil {
				return err
			}
			r, err := reader.readReply()
			if err != nil {
				return fmt.Errorf("STARTTLS command failed: %w", err)
			}
			if !r.HasCode(CodeServiceReady) {
				return fmt.Errorf("%w: %s", ErrStartTLSRejected, r.Text)
			}

			tlsConn := tls.Client(conn, clientTLSConfig(cfg))
			if err := tlsConn.Handshake(); err != nil {
				return fmt.Errorf("TLS handshake failed: %w", err)
			}

			// Same connection, new framing. The plaintext reader and its
			// buffer are invalid now, and so are the pre-upgrade
			// capabilities (RFC 3207), hence the fresh reader and EHLO.
			conn = tlsConn
			reader = newReplyReader(tlsConn)
			writer = bufio.NewWriter(tlsConn)

			reply, err = ehlo(reader, writer, clientName)
			if err != nil {
				return err
			}
		} else if !cfg.AllowInsecure {
			return ErrInsecureDeliveryRefused
		}
	}

	// 4. Authenticate when credentials are configured. The capability text
	// consulted here is from the most recent EHLO, so after a STARTTLS
	// upgrade it reflects the encrypted session.
	if cfg.Username != "" {
		if !strings.Contains(strings.ToUpper(reply.Text), "AUTH") {
			slog.Warn("Server does not advertise AUTH, attempting AUTH LOGIN anyway",
				slog.String("host", cfg.Host))
		}
		if err := authLogin(reader, writer, cfg.Username, cfg.Password); err != nil {
			return err
		}
	}

	// 5. MAIL FROM
	if err := writeLine(writer, fmt.Sprintf("MAIL FROM:<%s>", sanitizeAddress(m.From))); err != nil {
		return err
	}
	reply, err = reader.readReply()
	if err != nil {
		return fmt.Errorf("MAIL FROM command failed: %w", err)
	}
	if !reply.HasCode(CodeOK) {
		return fmt.Errorf("%w: %s", ErrSenderRejected, reply.Text)
	}

	// 6. RCPT TO, one recipient at a time; the reply stream is strictly
	// ordered, so the next recipient is only sent once this one resolved.
	for _, rcpt := range m.To {
		if err := writeLine(writer, fmt.Sprintf("RCPT TO:<%s>", sanitizeAddress(rcpt))); err != nil {
			return err
		}
		reply, err = reader.readReply()
		if err != nil {
			return fmt.Errorf("RCPT TO command failed for %s: %w", rcpt, err)
		}
		if !reply.HasCode(CodeOK) {
			return fmt.Errorf("%w <%s>: %s", ErrRecipientRejected, rcpt, reply.Text)
		}
	}

	// 7. DATA
	if err := writeLine(writer, "DATA"); err != nil {
		return err
	}
	reply, err = reader.readReply()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if !reply.HasCode(CodeStartMailInput) {
		return fmt.Errorf("%w: %s", ErrDataPhaseRejected, reply.Text)
	}

	// 8. Message payload, terminated by CRLF.CRLF
	if err := writeRaw(writer, payload+"\r\n.\r\n"); err != nil {
		return err
	}
	reply, err = reader.readReply()
	if err != nil {
		return fmt.Errorf("email data submission failed: %w", err)
	}
	if !reply.HasCode(CodeOK) {
		return fmt.Errorf("%w: %s", ErrMessageRejected, reply.Text)
	}

	// 9. QUIT is best-effort; the message is already accepted.
	if err := writeLine(writer, "QUIT"); err == nil {
		if _, err := reader.readReply(); err != nil {
			slog.Debug("QUIT reply not received", sloki.WrapError(err))
		}
	}

	slog.Info("Email sent successfully",
		slog.String("host", cfg.Host),
		slog.Int("recipients", len(m.To)))
	return nil
}

func dial(cfg Config, addr string, encrypted bool) (net.Conn, error) {
	dialFunc := cfg.DialFunc
	if dialFunc == nil {
		dialFunc = func(network, address string) (net.Conn, error) {
			if cfg.Timeout > 0 {
				return net.DialTimeout(network, address, cfg.Timeout)
			}
			return net.Dial(network, address)
		}
	}

	conn, err := dialFunc("tcp", addr)
	if err != nil {
		return nil, err
	}

	if encrypted {
		tlsConn := tls.Client(conn, clientTLSConfig(cfg))
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		return tlsConn, nil
	}

	return conn, nil
}

func clientTLSConfig(cfg Config) *tls.Config {
	c := &tls.Config{}
	if cfg.TLSConfig != nil {
		c = cfg.TLSConfig.Clone()
	}
	if c.ServerName == "" {
		c.ServerName = cfg.Host
	}
	return c
}

func ehlo(reader *replyReader, writer *bufio.Writer, clientName string) (Reply, error) {
	if err := writeLine(writer, "EHLO "+clientName); err != nil {
		return Reply{}, err
	}

	reply, err := reader.readReply()
	if err != nil {
		return Reply{}, fmt.Errorf("EHLO command failed: %w", err)
	}
	if !reply.HasCode(CodeOK) {
		return Reply{}, fmt.Errorf("EHLO command failed: %s", reply.Text)
	}

	return reply, nil
}

func authLogin(reader *replyReader, writer *bufio.Writer, username, password string) error {
	if err := writeLine(writer, "AUTH LOGIN"); err != nil {
		return err
	}
	reply, err := reader.readReply()
	if err != nil {
		return fmt.Errorf("AUTH LOGIN command failed: %w", err)
	}
	if !reply.HasCode(CodeAuthContinue) {
		return fmt.Errorf("%w: %s", ErrAuthenticationRejected, reply.Text)
	}

	// Credentials are written without going through writeLine so they
	// never hit the debug log.
	user := base64.StdEncoding.EncodeToString([]byte(username))
	if err := writeRaw(writer, user+"\r\n"); err != nil {
		return err
	}
	reply, err = reader.readReply()
	if err != nil {
		return fmt.Errorf("AUTH LOGIN username step failed: %w", err)
	}
	if !reply.HasCode(CodeAuthContinue) {
		return fmt.Errorf("%w: %s", ErrAuthenticationRejected, reply.Text)
	}

	pass := base64.StdEncoding.EncodeToString([]byte(password))
	if err := writeRaw(writer, pass+"\r\n"); err != nil {
		return err
	}
	reply, err = reader.readReply()
	if err != nil {
		return fmt.Errorf("AUTH LOGIN password step failed: %w", err)
	}
	if !reply.HasCode(CodeAuthSuccess) {
		return fmt.Errorf("%w: %s", ErrAuthenticationRejected, reply.Text)
	}

	return nil
}

// sanitizeAddress strips characters that would break out of the envelope
// command: CR, LF, angle brackets and surrounding whitespace.
func sanitizeAddress(addr string) string {
	addr = strings.NewReplacer("\r", "", "\n", "", "<", "", ">", "").Replace(addr)
	return strings.TrimSpace(addr)
}
