package handlers

import (
	"github.com/zurustar/chitko/internal/parser"
)

// MethodHandler defines the interface for handling specific SIP methods.
// HandleRequest returns nil when the request gets no automatic response.
type MethodHandler interface {
	HandleRequest(req *parser.Message) *parser.Response
	CanHandle(method parser.Method) bool
}

// HandlerManager defines the interface for managing method handlers
type HandlerManager interface {
	RegisterHandler(handler MethodHandler)
	HandleRequest(req *parser.Message) *parser.Response
	GetSupportedMethods() []string
}
