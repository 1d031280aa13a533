package smtp

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Reply is one complete SMTP server reply, possibly spanning multiple lines.
type Reply struct {
	// Code is the three-digit status code, taken from the first three
	// characters of the first line.
	Code string
	// Text is every line of the reply joined with "\n", CRLF stripped.
	Text string
}

// HasCode reports whether the reply carries the given three-digit code.
func (r Reply) HasCode(code string) bool {
	return r.Code == code
}

// replyReader turns the CRLF-delimited line stream from the server into
// complete Reply values. It is bound to a single connection and is not
// reusable after the first read error; after a STARTTLS upgrade a new
// reader must be constructed on the upgraded stream.
//
// Reads are blocking. The session issues one command, waits for its reply,
// then issues the next, so at most one read is ever outstanding and replies
// match commands by arrival order alone.
type replyReader struct {
	r *bufio.Reader
}

func newReplyReader(r io.Reader) *replyReader {
	return &replyReader{r: bufio.NewReader(r)}
}

// readReply blocks until the next complete reply is available. A reply is
// complete when a line's fourth character is a space; continuation lines
// carry a hyphen there instead. Lines shorter than four characters are
// tolerated as continuations.
func (rr *replyReader) readReply() (Reply, error) {
	var lines []string
	for {
		line, err := rr.r.ReadString('\n')
		if err != nil {
			return Reply{}, fmt.Errorf("failed to read response: %w", err)
		}

		slog.Debug("S: " + strings.TrimRight(line, "\r\n"))

		line = strings.TrimRight(line, "\r\n")
		lines = append(lines, line)

		if len(line) >= 4 && line[3] == ' ' {
			break
		}
	}

	text := strings.Join(lines, "\n")
	code := ""
	if len(lines[0]) >= 3 {
		code = lines[0][:3]
	}

	return Reply{Code: code, Text: text}, nil
}
