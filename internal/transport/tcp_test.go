package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zurustar/chitko/internal/logging"
	"github.com/zurustar/chitko/internal/parser"
)

var _ Transport = (*TCPTransport)(nil)

// echoHandler answers every request with 200 OK carrying its CSeq, and
// every unparsable message with 400.
func echoHandler() MessageHandler {
	return MessageHandlerFunc(func(data []byte, _ net.Addr) ([]byte, error) {
		msg, err := parser.Parse(data)
		if err != nil {
			return parser.Serialize(parser.NewResponseFor(parser.StatusBadRequest)), nil
		}
		resp := parser.NewResponseFor(parser.StatusOK)
		resp.Headers.Set("CSeq", msg.Header("CSeq"))
		resp.Headers.Set("Content-Length", "0")
		return parser.Serialize(resp), nil
	})
}

func testConfig() *TCPConfig {
	cfg := DefaultTCPConfig()
	cfg.ReadTimeout = 5 * time.Second
	cfg.WriteTimeout = time.Second
	cfg.ShutdownGrace = 2 * time.Second
	return cfg
}

func startTransport(t *testing.T, cfg *TCPConfig, handler MessageHandler) *TCPTransport {
	t.Helper()

	tr := NewTCPTransport(cfg)
	tr.RegisterHandler(handler)
	require.NoError(t, tr.Start("127.0.0.1:0"))
	t.Cleanup(func() {
		assert.NoError(t, tr.Stop())
	})
	return tr
}

func dial(t *testing.T, tr *TCPTransport) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("tcp", tr.LocalAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn, bufio.NewReader(conn)
}

func request(method string, cseq int, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s sip:registrar.example.com SIP/2.0\r\n", method)
	b.WriteString("Via: SIP/2.0/TCP client.example.com;branch=z9hG4bK776\r\n")
	b.WriteString("From: <sip:alice@example.com>;tag=1928\r\n")
	b.WriteString("To: <sip:alice@example.com>\r\n")
	b.WriteString("Call-ID: a84b4c76e66710\r\n")
	fmt.Fprintf(&b, "CSeq: %d %s\r\n", cseq, method)
	fmt.Fprintf(&b, "Content-Length: %d\r\n\r\n", len(body))
	b.WriteString(body)
	return b.String()
}

// readResponse reads one header-only response and returns its status line
// and headers.
func readResponse(t *testing.T, r *bufio.Reader) (string, map[string]string) {
	t.Helper()

	status, err := r.ReadString('\n')
	require.NoError(t, err)
	headers := make(map[string]string)
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, _ := strings.Cut(line, ":")
		headers[name] = strings.TrimSpace(value)
	}
	return strings.TrimRight(status, "\r\n"), headers
}

func assertClosed(t *testing.T, r *bufio.Reader) {
	t.Helper()
	_, err := r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTCPTransport_StartRequiresHandler(t *testing.T) {
	tr := NewTCPTransport(testConfig())
	err := tr.Start("127.0.0.1:0")
	require.Error(t, err)
	assert.False(t, tr.IsRunning())
	assert.Nil(t, tr.LocalAddr())
}

func TestTCPTransport_StartTwice(t *testing.T) {
	tr := startTransport(t, testConfig(), echoHandler())
	assert.True(t, tr.IsRunning())
	assert.Error(t, tr.Start("127.0.0.1:0"))
}

func TestTCPTransport_StopIsIdempotent(t *testing.T) {
	tr := NewTCPTransport(testConfig())
	tr.RegisterHandler(echoHandler())
	require.NoError(t, tr.Start("127.0.0.1:0"))
	require.NoError(t, tr.Stop())
	require.NoError(t, tr.Stop())
	assert.False(t, tr.IsRunning())
}

func TestTCPTransport_SingleRequest(t *testing.T) {
	tr := startTransport(t, testConfig(), echoHandler())
	conn, r := dial(t, tr)

	_, err := conn.Write([]byte(request("REGISTER", 1, "")))
	require.NoError(t, err)

	status, headers := readResponse(t, r)
	assert.Equal(t, "SIP/2.0 200 OK", status)
	assert.Equal(t, "1 REGISTER", headers["CSeq"])
}

func TestTCPTransport_PipelinedRequests(t *testing.T) {
	tr := startTransport(t, testConfig(), echoHandler())
	conn, r := dial(t, tr)

	_, err := conn.Write([]byte(request("REGISTER", 1, "") + request("OPTIONS", 2, "") + request("BYE", 3, "")))
	require.NoError(t, err)

	for i, want := range []string{"1 REGISTER", "2 OPTIONS", "3 BYE"} {
		status, headers := readResponse(t, r)
		assert.Equal(t, "SIP/2.0 200 OK", status, "response %d", i)
		assert.Equal(t, want, headers["CSeq"], "responses must keep request order")
	}
}

func TestTCPTransport_FragmentedRequest(t *testing.T) {
	tr := startTransport(t, testConfig(), echoHandler())
	conn, r := dial(t, tr)

	body := "v=0\r\no=alice 1 1 IN IP4 192.0.2.1\r\n"
	msg := request("INVITE", 7, body)
	for _, chunk := range []string{msg[:5], msg[5:40], msg[40 : len(msg)-3], msg[len(msg)-3:]} {
		_, err := conn.Write([]byte(chunk))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	status, headers := readResponse(t, r)
	assert.Equal(t, "SIP/2.0 200 OK", status)
	assert.Equal(t, "7 INVITE", headers["CSeq"])
}

func TestTCPTransport_KeepAlivesAreIgnored(t *testing.T) {
	tr := startTransport(t, testConfig(), echoHandler())
	conn, r := dial(t, tr)

	_, err := conn.Write([]byte("\r\n\r\n\r\n\r\n" + request("OPTIONS", 4, "")))
	require.NoError(t, err)

	status, headers := readResponse(t, r)
	assert.Equal(t, "SIP/2.0 200 OK", status)
	assert.Equal(t, "4 OPTIONS", headers["CSeq"])
}

func TestTCPTransport_MalformedContentLengthKeepsConnection(t *testing.T) {
	tr := startTransport(t, testConfig(), echoHandler())
	conn, r := dial(t, tr)

	bad := "MESSAGE sip:bob@example.com SIP/2.0\r\nCSeq: 1 MESSAGE\r\nContent-Length: abc\r\n\r\n"
	_, err := conn.Write([]byte(bad))
	require.NoError(t, err)

	status, _ := readResponse(t, r)
	assert.Equal(t, "SIP/2.0 400 Bad Request", status)

	_, err = conn.Write([]byte(request("REGISTER", 2, "")))
	require.NoError(t, err)
	status, headers := readResponse(t, r)
	assert.Equal(t, "SIP/2.0 200 OK", status)
	assert.Equal(t, "2 REGISTER", headers["CSeq"])
}

func TestTCPTransport_OversizedMessage(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessageSize = 1024
	tr := startTransport(t, cfg, echoHandler())
	conn, r := dial(t, tr)

	_, err := conn.Write([]byte(request("MESSAGE", 1, strings.Repeat("x", 1500))))
	require.NoError(t, err)

	status, _ := readResponse(t, r)
	assert.Equal(t, "SIP/2.0 513 Message Too Large", status)
	assertClosed(t, r)
}

func TestTCPTransport_IdleTimeout(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := testConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	cfg.Logger = logging.NewZapLogger(zap.New(core))
	tr := startTransport(t, cfg, echoHandler())
	_, r := dial(t, tr)

	start := time.Now()
	assertClosed(t, r)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Closing idle connection").Len() == 1
	}, time.Second, 10*time.Millisecond)
	entry := logs.FilterMessage("Closing idle connection").All()[0]
	assert.Contains(t, entry.ContextMap(), "conn_id")
	assert.Contains(t, entry.ContextMap(), "remote_addr")
}

func TestTCPTransport_PeerCloseIsNotAnError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := testConfig()
	cfg.Logger = logging.NewZapLogger(zap.New(core))
	tr := startTransport(t, cfg, echoHandler())

	conn, r := dial(t, tr)
	_, err := conn.Write([]byte(request("REGISTER", 1, "")))
	require.NoError(t, err)
	readResponse(t, r)
	require.Equal(t, 1, tr.GetConnectionManager().GetConnectionCount())

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return tr.GetConnectionManager().GetConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("Peer closed connection").Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestTCPTransport_MaxConnections(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	tr := startTransport(t, cfg, echoHandler())

	first, r1 := dial(t, tr)
	_, err := first.Write([]byte(request("REGISTER", 1, "")))
	require.NoError(t, err)
	status, _ := readResponse(t, r1)
	require.Equal(t, "SIP/2.0 200 OK", status)

	second, r2 := dial(t, tr)
	_, err = second.Write([]byte(request("REGISTER", 2, "")))
	require.NoError(t, err)

	require.NoError(t, second.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err = r2.ReadByte()
	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "second connection must wait, got %v", err)

	require.NoError(t, first.Close())
	require.NoError(t, second.SetReadDeadline(time.Now().Add(5*time.Second)))
	status, headers := readResponse(t, r2)
	assert.Equal(t, "SIP/2.0 200 OK", status)
	assert.Equal(t, "2 REGISTER", headers["CSeq"])
}

func TestTCPTransport_StopWithIdleConnection(t *testing.T) {
	cfg := testConfig()
	cfg.ReadTimeout = 0
	tr := NewTCPTransport(cfg)
	tr.RegisterHandler(echoHandler())
	require.NoError(t, tr.Start("127.0.0.1:0"))

	_, r := dial(t, tr)
	require.Eventually(t, func() bool {
		return tr.GetConnectionManager().GetConnectionCount() == 1
	}, time.Second, 5*time.Millisecond)

	start := time.Now()
	require.NoError(t, tr.Stop())
	assert.Less(t, time.Since(start), cfg.ShutdownGrace)
	assert.Equal(t, 0, tr.GetConnectionManager().GetConnectionCount())
	assertClosed(t, r)
}

func TestTCPTransport_HandlerPanicClosesOnlyThatConnection(t *testing.T) {
	echo := echoHandler()
	handler := MessageHandlerFunc(func(data []byte, remote net.Addr) ([]byte, error) {
		if strings.HasPrefix(string(data), "BYE") {
			panic("boom")
		}
		return echo.HandleMessage(data, remote)
	})
	tr := startTransport(t, testConfig(), handler)

	conn, r := dial(t, tr)
	_, err := conn.Write([]byte(request("BYE", 1, "")))
	require.NoError(t, err)
	assertClosed(t, r)

	conn2, r2 := dial(t, tr)
	_, err = conn2.Write([]byte(request("REGISTER", 2, "")))
	require.NoError(t, err)
	status, _ := readResponse(t, r2)
	assert.Equal(t, "SIP/2.0 200 OK", status)
}

func TestTCPTransport_HandlerErrorClosesConnection(t *testing.T) {
	handler := MessageHandlerFunc(func([]byte, net.Addr) ([]byte, error) {
		return nil, errors.New("handler failed")
	})
	tr := startTransport(t, testConfig(), handler)

	conn, r := dial(t, tr)
	_, err := conn.Write([]byte(request("REGISTER", 1, "")))
	require.NoError(t, err)
	assertClosed(t, r)
}

func TestTCPTransport_NilReplyWritesNothing(t *testing.T) {
	echo := echoHandler()
	handler := MessageHandlerFunc(func(data []byte, remote net.Addr) ([]byte, error) {
		if strings.HasPrefix(string(data), "ACK") {
			return nil, nil
		}
		return echo.HandleMessage(data, remote)
	})
	tr := startTransport(t, testConfig(), handler)

	conn, r := dial(t, tr)
	_, err := conn.Write([]byte(request("ACK", 1, "") + request("REGISTER", 2, "")))
	require.NoError(t, err)

	status, headers := readResponse(t, r)
	assert.Equal(t, "SIP/2.0 200 OK", status)
	assert.Equal(t, "2 REGISTER", headers["CSeq"])
}
