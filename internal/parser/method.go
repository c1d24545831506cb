package parser

import (
	"sort"
	"strings"
)

// MethodKind identifies a SIP request method known to this server.
// KindOther is used for every extension method token that is not listed here.
type MethodKind int

const (
	KindOther MethodKind = iota
	KindREGISTER
	KindINVITE
	KindACK
	KindBYE
	KindCANCEL
	KindOPTIONS
	KindINFO
	KindPRACK
	KindUPDATE
	KindSUBSCRIBE
	KindNOTIFY
	KindREFER
	KindMESSAGE
	KindPUBLISH
)

// SIP Methods
const (
	MethodINVITE    = "INVITE"
	MethodACK       = "ACK"
	MethodBYE       = "BYE"
	MethodCANCEL    = "CANCEL"
	MethodREGISTER  = "REGISTER"
	MethodOPTIONS   = "OPTIONS"
	MethodINFO      = "INFO"
	MethodPRACK     = "PRACK"
	MethodUPDATE    = "UPDATE"
	MethodSUBSCRIBE = "SUBSCRIBE"
	MethodNOTIFY    = "NOTIFY"
	MethodREFER     = "REFER"
	MethodMESSAGE   = "MESSAGE"
	MethodPUBLISH   = "PUBLISH"
)

var methodKinds = map[string]MethodKind{
	MethodREGISTER:  KindREGISTER,
	MethodINVITE:    KindINVITE,
	MethodACK:       KindACK,
	MethodBYE:       KindBYE,
	MethodCANCEL:    KindCANCEL,
	MethodOPTIONS:   KindOPTIONS,
	MethodINFO:      KindINFO,
	MethodPRACK:     KindPRACK,
	MethodUPDATE:    KindUPDATE,
	MethodSUBSCRIBE: KindSUBSCRIBE,
	MethodNOTIFY:    KindNOTIFY,
	MethodREFER:     KindREFER,
	MethodMESSAGE:   KindMESSAGE,
	MethodPUBLISH:   KindPUBLISH,
}

// Method is a request method: one of the known kinds, or KindOther together
// with the token exactly as it appeared on the request line.
type Method struct {
	Kind  MethodKind
	token string
}

// ParseMethod maps a request line token to a Method.
// Method names are case-sensitive (RFC 3261 section 7.1), so "register" is an
// extension method, not REGISTER. Unknown tokens are never an error.
func ParseMethod(token string) Method {
	if kind, ok := methodKinds[token]; ok {
		return Method{Kind: kind, token: token}
	}
	return Method{Kind: KindOther, token: token}
}

// OtherMethod returns the extension method with the given token.
func OtherMethod(token string) Method {
	return Method{Kind: KindOther, token: token}
}

// String returns the method token.
func (m Method) String() string {
	return m.token
}

// Is reports whether the method is of the given kind.
func (m Method) Is(kind MethodKind) bool {
	return m.Kind == kind
}

// IsOther reports whether the method is an extension method.
func (m Method) IsOther() bool {
	return m.Kind == KindOther
}

// MethodSet is the configurable set of methods the server advertises as
// supported. It is open: any token can be added, including extension methods.
// Membership never affects parsing.
type MethodSet struct {
	names map[string]struct{}
}

// NewMethodSet creates a set holding the given method tokens.
func NewMethodSet(names ...string) *MethodSet {
	s := &MethodSet{names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		s.Add(name)
	}
	return s
}

// DefaultMethodSet returns the methods supported when nothing is configured.
func DefaultMethodSet() *MethodSet {
	return NewMethodSet(MethodREGISTER, MethodINVITE, MethodACK, MethodBYE, MethodCANCEL, MethodOPTIONS)
}

// Add adds a method token to the set. Blank tokens are ignored.
func (s *MethodSet) Add(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	s.names[name] = struct{}{}
}

// Contains reports whether the method is in the set.
func (s *MethodSet) Contains(m Method) bool {
	if s == nil {
		return false
	}
	_, ok := s.names[m.String()]
	return ok
}

// Names returns the tokens in the set, sorted.
func (s *MethodSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of methods in the set.
func (s *MethodSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}
