package smtp

import (
	"bufio"
	"fmt"
	"log/slog"
)

// writeLine sends one command line, appending CRLF, and flushes it to the
// transport. A failed write or flush is fatal to the session and is
// returned to the caller; no retries happen at this layer.
func writeLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line + "\r\n"); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}

	slog.Debug("C: " + line)
	return nil
}

// writeRaw sends pre-formatted data as-is (used for the DATA payload, which
// already carries its own CRLF line endings).
func writeRaw(w *bufio.Writer, data string) error {
	if _, err := w.WriteString(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}
