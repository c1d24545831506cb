package handlers

import (
	"strings"

	"github.com/zurustar/chitko/internal/parser"
)

// OptionsHandler answers OPTIONS with 200 OK and an Allow header listing the
// configured methods.
type OptionsHandler struct {
	methods *parser.MethodSet
}

// NewOptionsHandler creates an OPTIONS handler advertising methods.
func NewOptionsHandler(methods *parser.MethodSet) *OptionsHandler {
	if methods == nil {
		methods = parser.DefaultMethodSet()
	}
	return &OptionsHandler{methods: methods}
}

// CanHandle returns true if this handler can process the given method
func (h *OptionsHandler) CanHandle(method parser.Method) bool {
	return method.Is(parser.KindOPTIONS)
}

// HandleRequest echoes the request headers, minus any Content-Length, and
// appends Allow and Content-Length: 0.
func (h *OptionsHandler) HandleRequest(req *parser.Message) *parser.Response {
	response := parser.NewResponseFor(parser.StatusOK)
	req.Headers.Each(func(name, value string) {
		if isContentLength(name) {
			return
		}
		response.Headers.Set(name, value)
	})
	response.Headers.Set(parser.HeaderAllow, strings.Join(h.methods.Names(), ", "))
	response.Headers.Set(parser.HeaderContentLength, "0")
	return response
}

func isContentLength(name string) bool {
	return strings.EqualFold(name, parser.HeaderContentLength) || strings.EqualFold(name, "l")
}
