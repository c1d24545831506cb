package parser

import (
	"fmt"
	"strconv"
)

// Status codes this server emits or is likely to.
const (
	StatusTrying  = 100
	StatusRinging = 180

	StatusOK = 200

	StatusBadRequest          = 400
	StatusUnauthorized        = 401
	StatusForbidden           = 403
	StatusNotFound            = 404
	StatusMethodNotAllowed    = 405
	StatusRequestTimeout      = 408
	StatusMessageTooLarge     = 513
	StatusServerInternalError = 500
	StatusNotImplemented      = 501
	StatusServiceUnavailable  = 503
	StatusVersionNotSupported = 505
)

var reasonPhrases = map[int]string{
	StatusTrying:              "Trying",
	StatusRinging:             "Ringing",
	StatusOK:                  "OK",
	StatusBadRequest:          "Bad Request",
	StatusUnauthorized:        "Unauthorized",
	StatusForbidden:           "Forbidden",
	StatusNotFound:            "Not Found",
	StatusMethodNotAllowed:    "Method Not Allowed",
	StatusRequestTimeout:      "Request Timeout",
	StatusMessageTooLarge:     "Message Too Large",
	StatusServerInternalError: "Server Internal Error",
	StatusNotImplemented:      "Not Implemented",
	StatusServiceUnavailable:  "Service Unavailable",
	StatusVersionNotSupported: "Version Not Supported",
}

// SIP Version
const SIPVersion = "SIP/2.0"

// Common SIP Headers
const (
	HeaderVia                = "Via"
	HeaderFrom               = "From"
	HeaderTo                 = "To"
	HeaderCallID             = "Call-ID"
	HeaderCSeq               = "CSeq"
	HeaderMaxForwards        = "Max-Forwards"
	HeaderContact            = "Contact"
	HeaderExpires            = "Expires"
	HeaderContentType        = "Content-Type"
	HeaderContentLength      = "Content-Length"
	HeaderUserAgent          = "User-Agent"
	HeaderServer             = "Server"
	HeaderAllow              = "Allow"
	HeaderSupported          = "Supported"
	HeaderSubject            = "Subject"
	HeaderWWWAuthenticate    = "WWW-Authenticate"
	HeaderAuthorization      = "Authorization"
	HeaderProxyAuthorization = "Proxy-Authorization"
)

// Message is a parsed SIP request.
type Message struct {
	Method     Method
	RequestURI string
	Version    string
	Headers    *Headers
	// Body is nil when the message has no body.
	Body *string
}

// NewMessage creates a request with an empty header set.
func NewMessage(method Method, requestURI string) *Message {
	return &Message{
		Method:     method,
		RequestURI: requestURI,
		Version:    SIPVersion,
		Headers:    NewHeaders(),
	}
}

// Header returns a header value using case-insensitive lookup.
func (m *Message) Header(name string) string {
	v, _ := m.Headers.Lookup(name)
	return v
}

// HasBody reports whether the message carries a body.
func (m *Message) HasBody() bool {
	return m.Body != nil
}

// BodyString returns the body, or "" when absent.
func (m *Message) BodyString() string {
	if m.Body == nil {
		return ""
	}
	return *m.Body
}

// Response is a SIP response produced by the server.
type Response struct {
	StatusCode   int
	ReasonPhrase string
	Headers      *Headers
	// Body is nil when the response has no body.
	Body *string
}

// NewResponse creates a response with an empty header set.
func NewResponse(statusCode int, reasonPhrase string) *Response {
	return &Response{
		StatusCode:   statusCode,
		ReasonPhrase: reasonPhrase,
		Headers:      NewHeaders(),
	}
}

// NewResponseFor creates a response using the standard reason phrase.
func NewResponseFor(statusCode int) *Response {
	return NewResponse(statusCode, GetReasonPhraseForCode(statusCode))
}

// WithBody sets the response body and returns the response.
func (r *Response) WithBody(body string) *Response {
	r.Body = &body
	return r
}

// StatusLine returns the status line without the trailing CRLF.
func (r *Response) StatusLine() string {
	return SIPVersion + " " + strconv.Itoa(r.StatusCode) + " " + r.ReasonPhrase
}

// String returns the wire form of the response.
func (r *Response) String() string {
	return string(Serialize(r))
}

// GetReasonPhraseForCode returns the standard reason phrase for a status code
func GetReasonPhraseForCode(code int) string {
	if phrase, ok := reasonPhrases[code]; ok {
		return phrase
	}
	return fmt.Sprintf("Unknown Status Code %d", code)
}

// IsValidStatusCode reports whether code is in the 1xx to 6xx range.
func IsValidStatusCode(code int) bool {
	return code >= 100 && code <= 699
}
