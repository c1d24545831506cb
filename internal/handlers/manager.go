package handlers

import (
	"sync"

	"github.com/zurustar/chitko/internal/parser"
)

// knownMethods is the order GetSupportedMethods reports methods in.
var knownMethods = []string{
	parser.MethodREGISTER,
	parser.MethodINVITE,
	parser.MethodACK,
	parser.MethodBYE,
	parser.MethodCANCEL,
	parser.MethodOPTIONS,
	parser.MethodINFO,
	parser.MethodPRACK,
	parser.MethodUPDATE,
	parser.MethodSUBSCRIBE,
	parser.MethodNOTIFY,
	parser.MethodREFER,
	parser.MethodMESSAGE,
	parser.MethodPUBLISH,
}

// Manager implements the HandlerManager interface
type Manager struct {
	mu       sync.RWMutex
	handlers []MethodHandler
}

// NewManager creates a new handler manager
func NewManager() *Manager {
	return &Manager{
		handlers: make([]MethodHandler, 0),
	}
}

// RegisterHandler registers a method handler. Handlers are consulted in
// registration order.
func (m *Manager) RegisterHandler(handler MethodHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// HandleRequest routes the request to the first handler that accepts its
// method. Methods without a handler get no response.
func (m *Manager) HandleRequest(req *parser.Message) *parser.Response {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, handler := range m.handlers {
		if handler.CanHandle(req.Method) {
			return handler.HandleRequest(req)
		}
	}
	return nil
}

// GetSupportedMethods returns the known methods some handler accepts.
func (m *Manager) GetSupportedMethods() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	supported := make([]string, 0, len(knownMethods))
	for _, name := range knownMethods {
		method := parser.ParseMethod(name)
		for _, handler := range m.handlers {
			if handler.CanHandle(method) {
				supported = append(supported, name)
				break
			}
		}
	}
	return supported
}
