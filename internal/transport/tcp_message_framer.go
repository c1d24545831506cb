package transport

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/zurustar/chitko/internal/parser"
)

// DefaultMaxMessageSize bounds a single framed message, headers plus body.
const DefaultMaxMessageSize = 64 * 1024

// ErrMessageTooLarge is returned when a message, or the unterminated header
// block being collected, exceeds the framer's size limit. The stream cannot be
// resynchronised after it.
var ErrMessageTooLarge = errors.New("message size limit exceeded")

var (
	doubleCRLF = []byte("\r\n\r\n")
	crlf       = []byte("\r\n")
)

// TCPMessageFramer splits a TCP byte stream into SIP messages. It keeps the
// bytes of an incomplete message between calls, so one message may arrive in
// any number of reads and one read may carry several messages.
type TCPMessageFramer struct {
	buffer         []byte
	maxMessageSize int
}

// NewTCPMessageFramer creates a new TCP message framer
func NewTCPMessageFramer() *TCPMessageFramer {
	return NewTCPMessageFramerWithLimit(DefaultMaxMessageSize)
}

// NewTCPMessageFramerWithLimit creates a framer that rejects messages larger
// than maxMessageSize bytes.
func NewTCPMessageFramerWithLimit(maxMessageSize int) *TCPMessageFramer {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &TCPMessageFramer{
		buffer:         make([]byte, 0, 4096),
		maxMessageSize: maxMessageSize,
	}
}

// FrameMessage appends data to the buffer and returns every complete message
// now available, in arrival order. Messages returned before an error are still
// valid and should be processed.
func (f *TCPMessageFramer) FrameMessage(data []byte) ([][]byte, error) {
	f.buffer = append(f.buffer, data...)

	var messages [][]byte
	for {
		f.skipKeepAlives()

		message, consumed, err := f.extractMessage()
		if err != nil {
			return messages, err
		}
		if message == nil {
			break
		}
		messages = append(messages, message)
		f.consume(consumed)
	}
	return messages, nil
}

// extractMessage returns the first complete message in the buffer, or nil when
// more data is needed.
func (f *TCPMessageFramer) extractMessage() ([]byte, int, error) {
	headerEnd := bytes.Index(f.buffer, doubleCRLF)
	if headerEnd == -1 {
		if len(f.buffer) > f.maxMessageSize {
			return nil, 0, fmt.Errorf("%w: unterminated header block of %d bytes, max=%d",
				ErrMessageTooLarge, len(f.buffer), f.maxMessageSize)
		}
		return nil, 0, nil
	}
	bodyStart := headerEnd + len(doubleCRLF)

	contentLength, ok := contentLengthOf(f.buffer[:headerEnd])
	if !ok {
		// Hand the header block over on its own; the parser reports the bad
		// Content-Length and the connection answers 400.
		return f.copyOut(bodyStart), bodyStart, nil
	}

	messageLength := bodyStart + contentLength
	if messageLength > f.maxMessageSize {
		return nil, 0, fmt.Errorf("%w: size=%d, max=%d", ErrMessageTooLarge, messageLength, f.maxMessageSize)
	}
	if len(f.buffer) < messageLength {
		return nil, 0, nil
	}
	return f.copyOut(messageLength), messageLength, nil
}

// skipKeepAlives drops CRLF pairs in front of the next message. Clients send
// them as keep-alive pings between requests (RFC 5626 section 4.4.1).
func (f *TCPMessageFramer) skipKeepAlives() {
	n := 0
	for bytes.HasPrefix(f.buffer[n:], crlf) {
		n += len(crlf)
	}
	if n > 0 {
		f.consume(n)
	}
}

func (f *TCPMessageFramer) copyOut(n int) []byte {
	message := make([]byte, n)
	copy(message, f.buffer[:n])
	return message
}

func (f *TCPMessageFramer) consume(n int) {
	remaining := copy(f.buffer, f.buffer[n:])
	f.buffer = f.buffer[:remaining]
}

// contentLengthOf finds the Content-Length of a header block. The request line
// is skipped, names match case-insensitively including the compact form "l",
// and the last occurrence wins. A missing header means no body; ok is false
// when the value is not a non-negative integer.
func contentLengthOf(headerBlock []byte) (int, bool) {
	lines := strings.Split(string(headerBlock), "\r\n")
	value, found := "", false
	for _, line := range lines[1:] {
		name, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if strings.EqualFold(name, parser.HeaderContentLength) || strings.EqualFold(name, "l") {
			value, found = v, true
		}
	}
	if !found {
		return 0, true
	}
	n, err := parser.ParseContentLength(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetBufferSize returns the number of buffered bytes not yet framed.
func (f *TCPMessageFramer) GetBufferSize() int {
	return len(f.buffer)
}

// GetLimit returns the message size limit.
func (f *TCPMessageFramer) GetLimit() int {
	return f.maxMessageSize
}
