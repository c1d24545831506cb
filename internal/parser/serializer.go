package parser

import (
	"bytes"
)

// Serialize converts a response to wire format: status line, headers in
// insertion order, a blank line, then the body if present.
func Serialize(resp *Response) []byte {
	var buffer bytes.Buffer

	buffer.WriteString(resp.StatusLine())
	buffer.WriteString(crlf)

	writeHeaders(&buffer, resp.Headers)
	buffer.WriteString(crlf)

	if resp.Body != nil {
		buffer.WriteString(*resp.Body)
	}
	return buffer.Bytes()
}

// SerializeMessage converts a request to wire format using the same layout.
func SerializeMessage(msg *Message) []byte {
	var buffer bytes.Buffer

	buffer.WriteString(msg.Method.String())
	buffer.WriteByte(' ')
	buffer.WriteString(msg.RequestURI)
	if msg.Version != "" {
		buffer.WriteByte(' ')
		buffer.WriteString(msg.Version)
	}
	buffer.WriteString(crlf)

	writeHeaders(&buffer, msg.Headers)
	buffer.WriteString(crlf)

	if msg.Body != nil {
		buffer.WriteString(*msg.Body)
	}
	return buffer.Bytes()
}

func writeHeaders(buffer *bytes.Buffer, headers *Headers) {
	headers.Each(func(name, value string) {
		buffer.WriteString(name)
		buffer.WriteString(nameValueSep)
		buffer.WriteString(value)
		buffer.WriteString(crlf)
	})
}
