package handlers

import (
	"net"

	"github.com/zurustar/chitko/internal/logging"
	"github.com/zurustar/chitko/internal/metrics"
	"github.com/zurustar/chitko/internal/parser"
)

// otherMethodLabel is the metrics label for methods outside the supported set.
const otherMethodLabel = "OTHER"

// TransportAdapter turns one framed message into the bytes to write back:
// parse, dispatch to the handler manager, serialize.
type TransportAdapter struct {
	handlerManager HandlerManager
	parser         parser.MessageParser
	methods        *parser.MethodSet
	metrics        metrics.Recorder
	logger         logging.Logger
}

// AdapterOption configures optional collaborators of a TransportAdapter.
type AdapterOption func(*TransportAdapter)

// WithMethodSet sets the methods counted under their own metrics label.
func WithMethodSet(methods *parser.MethodSet) AdapterOption {
	return func(ta *TransportAdapter) { ta.methods = methods }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder metrics.Recorder) AdapterOption {
	return func(ta *TransportAdapter) { ta.metrics = recorder }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) AdapterOption {
	return func(ta *TransportAdapter) { ta.logger = logger }
}

// NewTransportAdapter creates a new transport adapter
func NewTransportAdapter(handlerManager HandlerManager, p parser.MessageParser, opts ...AdapterOption) *TransportAdapter {
	ta := &TransportAdapter{
		handlerManager: handlerManager,
		parser:         p,
		methods:        parser.DefaultMethodSet(),
		metrics:        metrics.NopRecorder{},
		logger:         logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(ta)
	}
	return ta
}

// HandleMessage implements the transport.MessageHandler interface.
// A message that fails to parse is answered with 400 Bad Request whatever its
// method. A nil reply means nothing is written back.
func (ta *TransportAdapter) HandleMessage(data []byte, remote net.Addr) ([]byte, error) {
	msg, err := ta.parser.Parse(data)
	if err != nil {
		kind := parser.ErrorKindOf(err)
		ta.metrics.ParseError(kind.String())
		ta.logger.Warn("Failed to parse SIP message",
			logging.AddressField("remote_addr", addrString(remote)),
			logging.StringField("kind", kind.String()),
			logging.ErrorField(err))
		return ta.reply(parser.NewResponseFor(parser.StatusBadRequest), remote), nil
	}

	ta.metrics.RequestReceived(ta.methodLabel(msg.Method))
	ta.logger.Debug("Received SIP request",
		logging.MethodField(msg.Method.String()),
		logging.StringField("request_uri", msg.RequestURI),
		logging.AddressField("remote_addr", addrString(remote)))

	response := ta.handlerManager.HandleRequest(msg)
	if response == nil {
		return nil, nil
	}
	return ta.reply(response, remote), nil
}

func (ta *TransportAdapter) reply(response *parser.Response, remote net.Addr) []byte {
	ta.metrics.ResponseSent(response.StatusCode)
	ta.logger.Debug("Sending SIP response",
		logging.StatusField(response.StatusCode),
		logging.AddressField("remote_addr", addrString(remote)))
	return parser.Serialize(response)
}

func (ta *TransportAdapter) methodLabel(method parser.Method) string {
	if ta.methods.Contains(method) {
		return method.String()
	}
	return otherMethodLabel
}

// GetSupportedMethods returns the list of supported SIP methods
func (ta *TransportAdapter) GetSupportedMethods() []string {
	return ta.handlerManager.GetSupportedMethods()
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
