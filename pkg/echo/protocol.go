package echo

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// QuitCommand ends a session.
const QuitCommand = "quit"

// ByeReply is the response to QuitCommand.
const ByeReply = "OK bye\n"

// DecodeLine strips trailing '\r' and '\n' bytes and decodes the rest as
// UTF-8, replacing each invalid sequence with U+FFFD.
func DecodeLine(raw []byte) string {
	trimmed := bytes.TrimRight(raw, "\r\n")
	// The UTF-8 decoder substitutes U+FFFD and never fails
	decoded, _ := unicode.UTF8.NewDecoder().Bytes(trimmed)
	return string(decoded)
}

// IsQuit reports whether text asks to end the session.
func IsQuit(text string) bool {
	return strings.ToLower(strings.TrimSpace(text)) == QuitCommand
}

// EchoReply returns the response line for text.
func EchoReply(text string) string {
	return "OK " + text + "\n"
}

// Reply returns the response for a decoded request line and whether the
// session ends after sending it.
func Reply(text string) (string, bool) {
	if IsQuit(text) {
		return ByeReply, true
	}
	return EchoReply(text), false
}

// Terminate appends '\n' to line when missing.
func Terminate(line string) string {
	if strings.HasSuffix(line, "\n") {
		return line
	}
	return line + "\n"
}
