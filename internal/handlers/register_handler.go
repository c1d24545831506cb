package handlers

import (
	"strings"

	"github.com/zurustar/chitko/internal/logging"
	"github.com/zurustar/chitko/internal/parser"
)

// RegisterHandler challenges REGISTER requests that carry no credentials.
// Credentials are only checked for presence; they are never verified.
type RegisterHandler struct {
	logger logging.Logger
}

// NewRegisterHandler creates a new register handler
func NewRegisterHandler(logger logging.Logger) *RegisterHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RegisterHandler{logger: logger}
}

// CanHandle returns true if this handler can process the given method
func (h *RegisterHandler) CanHandle(method parser.Method) bool {
	return method.Is(parser.KindREGISTER)
}

// HandleRequest returns nil when an Authorization header is present, whatever
// its value. Otherwise it returns 401 Unauthorized carrying a copy of the
// request headers in request order, and no body. An echoed Content-Length is
// rewritten to 0 so the reply frames correctly on a stream.
func (h *RegisterHandler) HandleRequest(req *parser.Message) *parser.Response {
	from, _ := req.Headers.Lookup(parser.HeaderFrom)
	h.logger.Info("REGISTER received", logging.StringField("from", from))

	if req.Headers.Has(parser.HeaderAuthorization) {
		h.logger.Debug("REGISTER carries credentials, no automatic response",
			logging.StringField("from", from))
		return nil
	}

	response := parser.NewResponseFor(parser.StatusUnauthorized)
	response.Headers = req.Headers.Clone()
	zeroContentLength(response.Headers)
	return response
}

func zeroContentLength(headers *parser.Headers) {
	var names []string
	headers.Each(func(name, _ string) {
		if strings.EqualFold(name, parser.HeaderContentLength) || strings.EqualFold(name, "l") {
			names = append(names, name)
		}
	})
	for _, name := range names {
		headers.Set(name, "0")
	}
}
