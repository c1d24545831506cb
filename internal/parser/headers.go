package parser

import "strings"

// compactForms maps SIP compact header names (RFC 3261 section 7.3.3) to their
// full form.
var compactForms = map[string]string{
	"i": HeaderCallID,
	"m": HeaderContact,
	"l": HeaderContentLength,
	"c": HeaderContentType,
	"f": HeaderFrom,
	"s": HeaderSubject,
	"k": HeaderSupported,
	"t": HeaderTo,
	"v": HeaderVia,
}

// Header is a single name/value pair as it appeared on the wire.
type Header struct {
	Name  string
	Value string
}

// String returns the header line without the trailing CRLF.
func (h Header) String() string {
	return h.Name + ": " + h.Value
}

// Headers is a header container that keeps insertion order.
// Names are stored exactly as received; Get matches them exactly, Lookup
// matches them case-insensitively. Setting a name that is already present
// replaces its value in place, so the last occurrence wins while the position
// of the first one is kept.
type Headers struct {
	entries []Header
	index   map[string]int
}

// NewHeaders creates an empty header container.
func NewHeaders() *Headers {
	return &Headers{index: make(map[string]int)}
}

// Set stores a header value.
func (h *Headers) Set(name, value string) {
	if h.index == nil {
		h.index = make(map[string]int)
	}
	if i, ok := h.index[name]; ok {
		h.entries[i].Value = value
		return
	}
	h.index[name] = len(h.entries)
	h.entries = append(h.entries, Header{Name: name, Value: value})
}

// Get returns the value stored under exactly this name.
func (h *Headers) Get(name string) (string, bool) {
	if h == nil {
		return "", false
	}
	if i, ok := h.index[name]; ok {
		return h.entries[i].Value, true
	}
	return "", false
}

// Lookup finds a header by case-insensitive name. Compact forms are treated
// as aliases of their full names, in both directions.
func (h *Headers) Lookup(name string) (string, bool) {
	if h == nil {
		return "", false
	}
	if v, ok := h.Get(name); ok {
		return v, true
	}
	want := canonicalName(name)
	// Walk backwards so the most recently set spelling wins when a message
	// carries the same header under different cases.
	for i := len(h.entries) - 1; i >= 0; i-- {
		if canonicalName(h.entries[i].Name) == want {
			return h.entries[i].Value, true
		}
	}
	return "", false
}

// Has reports whether a header is present, compared case-insensitively.
func (h *Headers) Has(name string) bool {
	_, ok := h.Lookup(name)
	return ok
}

// Del removes the header stored under exactly this name.
func (h *Headers) Del(name string) {
	i, ok := h.index[name]
	if !ok {
		return
	}
	h.entries = append(h.entries[:i], h.entries[i+1:]...)
	delete(h.index, name)
	for j := i; j < len(h.entries); j++ {
		h.index[h.entries[j].Name] = j
	}
}

// Len returns the number of distinct header names.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// Names returns the header names in insertion order.
func (h *Headers) Names() []string {
	if h == nil {
		return nil
	}
	names := make([]string, len(h.entries))
	for i, e := range h.entries {
		names[i] = e.Name
	}
	return names
}

// Each calls fn for every header in insertion order.
func (h *Headers) Each(fn func(name, value string)) {
	if h == nil {
		return
	}
	for _, e := range h.entries {
		fn(e.Name, e.Value)
	}
}

// All returns a copy of the headers in insertion order.
func (h *Headers) All() []Header {
	if h == nil {
		return nil
	}
	out := make([]Header, len(h.entries))
	copy(out, h.entries)
	return out
}

// Clone returns a deep copy that preserves order.
func (h *Headers) Clone() *Headers {
	clone := NewHeaders()
	h.Each(clone.Set)
	return clone
}

// Equal reports whether both containers hold the same names and values,
// ignoring order.
func (h *Headers) Equal(other *Headers) bool {
	if h.Len() != other.Len() {
		return false
	}
	for _, e := range h.All() {
		v, ok := other.Get(e.Name)
		if !ok || v != e.Value {
			return false
		}
	}
	return true
}

func canonicalName(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if full, ok := compactForms[lower]; ok {
		return strings.ToLower(full)
	}
	return lower
}
