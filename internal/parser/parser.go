package parser

import (
	"strconv"
	"strings"
)

const (
	crlf          = "\r\n"
	headerBodySep = "\r\n\r\n"
	nameValueSep  = ": "
)

// Parser implements the MessageParser interface
type Parser struct {
	// MaxHeaders bounds the number of header lines accepted in one message.
	// Zero means no limit.
	MaxHeaders int
}

// NewParser creates a new SIP message parser
func NewParser() *Parser {
	return &Parser{}
}

// NewParserWithLimits creates a parser that rejects messages with more than
// maxHeaders header lines.
func NewParserWithLimits(maxHeaders int) *Parser {
	return &Parser{MaxHeaders: maxHeaders}
}

// Parse parses a request with the default parser.
func Parse(data []byte) (*Message, error) {
	return defaultParser.Parse(data)
}

// ParseResponse parses a response with the default parser.
func ParseResponse(data []byte) (*Response, error) {
	return defaultParser.ParseResponse(data)
}

var defaultParser = NewParser()

// Parse parses a SIP request from raw bytes.
//
// The input is split on the first blank line into a header block and a body.
// The first line of the header block is the request line and its first token
// is the method; every following line must be "Name: Value". Failures are
// returned as *ParseError and never panic: the input is untrusted network data.
func (p *Parser) Parse(data []byte) (*Message, error) {
	startLine, headers, body, err := p.parseFrame(data)
	if err != nil {
		return nil, err
	}

	msg := &Message{Headers: headers, Body: body}
	if err := p.parseRequestLine(startLine, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ParseResponse parses a SIP response. The status line must read
// "SIP/2.0 SP code SP reason"; the reason phrase may contain spaces and may
// be empty. Headers and body follow the same rules as Parse.
func (p *Parser) ParseResponse(data []byte) (*Response, error) {
	startLine, headers, body, err := p.parseFrame(data)
	if err != nil {
		return nil, err
	}

	resp := &Response{Headers: headers, Body: body}
	if err := parseStatusLine(startLine, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// parseFrame splits a message into its start line, headers and body.
func (p *Parser) parseFrame(data []byte) (string, *Headers, *string, error) {
	raw := string(data)

	// RFC 3261 section 7.5: empty lines before the start line are ignored.
	for strings.HasPrefix(raw, crlf) {
		raw = raw[len(crlf):]
	}

	headerBlock, body, hasSep := strings.Cut(raw, headerBodySep)
	if !hasSep {
		// Without a blank line the whole input is headers; tolerate one
		// dangling CRLF after the last header.
		headerBlock = strings.TrimSuffix(headerBlock, crlf)
	}
	if headerBlock == "" {
		return "", nil, nil, emptyMessage()
	}

	lines := strings.Split(headerBlock, crlf)
	if len(lines) == 0 || lines[0] == "" {
		return "", nil, nil, emptyMessage()
	}

	headerLines := lines[1:]
	if p.MaxHeaders > 0 && len(headerLines) > p.MaxHeaders {
		return "", nil, nil, malformedHeader("too many headers: " + strconv.Itoa(len(headerLines)))
	}
	headers := NewHeaders()
	for _, line := range headerLines {
		if err := p.parseHeader(line, headers); err != nil {
			return "", nil, nil, err
		}
	}

	if err := validateContentLength(headers); err != nil {
		return "", nil, nil, err
	}

	if hasSep && body != "" {
		return lines[0], headers, &body, nil
	}
	return lines[0], headers, nil, nil
}

// parseRequestLine fills method, request URI and version from the first line.
func (p *Parser) parseRequestLine(line string, msg *Message) error {
	if line[0] == ' ' || line[0] == '\t' {
		return malformedRequestLine(line)
	}
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return malformedRequestLine(line)
	}

	msg.Method = ParseMethod(parts[0])
	msg.RequestURI = parts[1]
	if len(parts) >= 3 {
		msg.Version = parts[2]
	}
	return nil
}

// parseStatusLine fills status code and reason phrase. The line is split on
// single spaces so the reason phrase comes back exactly as written.
func parseStatusLine(line string, resp *Response) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || parts[0] != SIPVersion || len(parts[1]) != 3 {
		return malformedStatusLine(line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || !IsValidStatusCode(code) {
		return malformedStatusLine(line)
	}
	resp.StatusCode = code
	resp.ReasonPhrase = parts[2]
	return nil
}

// parseHeader splits one header line on the first ": ".
func (p *Parser) parseHeader(line string, headers *Headers) error {
	name, value, ok := strings.Cut(line, nameValueSep)
	if !ok {
		return malformedHeader(line)
	}
	// Folded continuation lines are not supported; a name that starts with
	// whitespace is one of them.
	if strings.TrimSpace(name) == "" || name[0] == ' ' || name[0] == '\t' {
		return malformedHeader(line)
	}
	headers.Set(name, value)
	return nil
}

// validateContentLength rejects a Content-Length that is not a non-negative
// decimal integer.
func validateContentLength(headers *Headers) error {
	value, ok := headers.Lookup(HeaderContentLength)
	if !ok {
		return nil
	}
	if _, err := ParseContentLength(value); err != nil {
		return malformedHeader(HeaderContentLength + nameValueSep + value)
	}
	return nil
}

// ParseContentLength parses a Content-Length header value.
func ParseContentLength(value string) (int, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 31)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
