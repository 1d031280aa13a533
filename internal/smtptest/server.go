// Package smtptest provides a loopback SMTP server for exercising the
// client end-to-end: plaintext delivery, STARTTLS upgrades, AUTH LOGIN
// acceptance and rejection, and capture of the received message.
package smtptest

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"sync"
)

const (
	statusServiceReady   = "220 %s SMTP service ready"
	statusReadyStarting  = "220 Ready to start TLS"
	statusConnClosed     = "221 %s closing connection"
	statusAuthSuccess    = "235 Authentication successful"
	statusOK             = "250 OK"
	statusGreeting       = "250-%s greets %s"
	statusAuthUsername   = "334 VXNlcm5hbWU6" // base64 "Username:"
	statusAuthPassword   = "334 UGFzc3dvcmQ6" // base64 "Password:"
	statusStartMailInput = "354 Start mail input; end with <CRLF>.<CRLF>"
	statusBadCommand     = "500 Unrecognized command"
	statusAuthFailed     = "535 Authentication failed"
)

// ReceivedMail is one message accepted by the server.
type ReceivedMail struct {
	From          string
	To            []string
	Data          string // de-stuffed DATA payload, lines joined with \n
	TLS           bool
	Authenticated bool
}

// Server is a scriptable loopback SMTP server. Configure the exported
// fields before Start; they must not change afterwards.
type Server struct {
	Hostname string

	// TLSConfig enables STARTTLS (advertised in EHLO) or, with
	// ImplicitTLS, wraps the listener itself.
	TLSConfig   *tls.Config
	ImplicitTLS bool

	// Username and Password are the credentials accepted by AUTH LOGIN.
	Username string
	Password string

	// RejectPassword makes the AUTH LOGIN password step answer 535
	// regardless of the credentials.
	RejectPassword bool

	listener net.Listener

	mu       sync.Mutex
	ehlos    int
	messages []ReceivedMail
}

// Start listens on an ephemeral loopback port and serves connections until
// Close is called.
func (s *Server) Start() error {
	if s.Hostname == "" {
		s.Hostname = "localhost"
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	if s.ImplicitTLS {
		listener = tls.NewListener(listener, s.TLSConfig)
	}
	s.listener = listener

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go s.handle(conn)
		}
	}()

	return nil
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Port returns the listening port.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Close stops the listener. In-flight connections are abandoned.
func (s *Server) Close() {
	s.listener.Close()
}

// EhloCount returns how many EHLO commands the server has received across
// all connections, counting pre- and post-STARTTLS greetings separately.
func (s *Server) EhloCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ehlos
}

// Messages returns the messages accepted so far.
func (s *Server) Messages() []ReceivedMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ReceivedMail, len(s.messages))
	copy(out, s.messages)
	return out
}

type session struct {
	tlsActive     bool
	authenticated bool
	from          string
	to            []string
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	sess := &session{tlsActive: s.ImplicitTLS}
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	writeLine(w, fmt.Sprintf(statusServiceReady, s.Hostname))

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "EHLO"):
			s.mu.Lock()
			s.ehlos++
			s.mu.Unlock()

			client := strings.TrimSpace(line[4:])
			writeLine(w, fmt.Sprintf(statusGreeting, s.Hostname, client))
			if s.TLSConfig != nil && !sess.tlsActive {
				writeLine(w, "250-STARTTLS")
			}
			writeLine(w, "250-AUTH LOGIN")
			writeLine(w, statusOK)

		case upper == "STARTTLS":
			if s.TLSConfig == nil || sess.tlsActive {
				writeLine(w, statusBadCommand)
				continue
			}
			writeLine(w, statusReadyStarting)

			tlsConn := tls.Server(conn, s.TLSConfig)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			r = bufio.NewReader(tlsConn)
			w = bufio.NewWriter(tlsConn)
			sess.tlsActive = true

		case upper == "AUTH LOGIN":
			if s.authLogin(sess, r, w) {
				sess.authenticated = true
			}

		case strings.HasPrefix(upper, "MAIL FROM:"):
			sess.from = trimAddress(line[len("MAIL FROM:"):])
			writeLine(w, statusOK)

		case strings.HasPrefix(upper, "RCPT TO:"):
			sess.to = append(sess.to, trimAddress(line[len("RCPT TO:"):]))
			writeLine(w, statusOK)

		case upper == "DATA":
			writeLine(w, statusStartMailInput)
			data, err := readData(r)
			if err != nil {
				return
			}
			s.mu.Lock()
			s.messages = append(s.messages, ReceivedMail{
				From:          sess.from,
				To:            sess.to,
				Data:          data,
				TLS:           sess.tlsActive,
				Authenticated: sess.authenticated,
			})
			s.mu.Unlock()
			sess.from = ""
			sess.to = nil
			writeLine(w, statusOK)

		case upper == "QUIT":
			writeLine(w, fmt.Sprintf(statusConnClosed, s.Hostname))
			return

		default:
			writeLine(w, statusBadCommand)
		}
	}
}

// authLogin runs the 334/334/235 exchange and reports whether the client
// authenticated successfully.
func (s *Server) authLogin(sess *session, r *bufio.Reader, w *bufio.Writer) bool {
	writeLine(w, statusAuthUsername)
	userLine, err := r.ReadString('\n')
	if err != nil {
		return false
	}
	user, err := base64.StdEncoding.DecodeString(strings.TrimRight(userLine, "\r\n"))
	if err != nil {
		writeLine(w, statusAuthFailed)
		return false
	}

	writeLine(w, statusAuthPassword)
	passLine, err := r.ReadString('\n')
	if err != nil {
		return false
	}
	pass, err := base64.StdEncoding.DecodeString(strings.TrimRight(passLine, "\r\n"))
	if err != nil {
		writeLine(w, statusAuthFailed)
		return false
	}

	if s.RejectPassword || string(user) != s.Username || string(pass) != s.Password {
		writeLine(w, statusAuthFailed)
		return false
	}

	writeLine(w, statusAuthSuccess)
	return true
}

// readData consumes the DATA payload up to the terminating dot line,
// removing transport dot-stuffing.
func readData(r *bufio.Reader) (string, error) {
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "." {
			return strings.Join(lines, "\n"), nil
		}
		if strings.HasPrefix(line, ".") {
			line = line[1:]
		}
		lines = append(lines, line)
	}
}

func writeLine(w *bufio.Writer, line string) {
	w.WriteString(line + "\r\n")
	w.Flush()
}

func trimAddress(s string) string {
	return strings.Trim(strings.TrimSpace(s), "<>")
}
