package parser

// MessageParser defines the interface for parsing SIP requests
type MessageParser interface {
	Parse(data []byte) (*Message, error)
}
