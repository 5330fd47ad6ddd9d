package emulator

import (
	// Go Internal Packages
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	// Local Packages
	metrics "termbridge/metrics"
	models "termbridge/models"
	protocol "termbridge/protocol"
	filestore "termbridge/repositories/filestore"
	dispatch "termbridge/services/dispatch"

	// External Packages
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := filestore.Open(path, zap.NewNop(), metrics.New("test"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	processor := dispatch.NewProcessor(zap.NewNop(), store, metrics.New("test"),
		dispatch.Delays{Min: time.Millisecond, Max: 2 * time.Millisecond})
	srv := NewServer(zap.NewNop(), processor, metrics.New("test"))
	require.NoError(t, srv.Start(0))
	t.Cleanup(srv.Stop)
	return srv
}

// termClient speaks the framed wire protocol against a live server.
type termClient struct {
	t     *testing.T
	conn  net.Conn
	dec   *protocol.Decoder
	buf   []byte
	queue []protocol.Frame
}

func dialTerminal(t *testing.T, srv *Server) *termClient {
	t.Helper()
	_, port, err := net.SplitHostPort(srv.Addr().String())
	require.NoError(t, err)
	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", port))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &termClient{t: t, conn: conn, dec: &protocol.Decoder{}, buf: make([]byte, 4096)}
}

func (c *termClient) send(v any) {
	c.t.Helper()
	frame, err := protocol.EncodeFrame(v)
	require.NoError(c.t, err)
	_, err = c.conn.Write(frame)
	require.NoError(c.t, err)
}

func (c *termClient) sendCommand(command string, payload any) {
	c.t.Helper()
	env, err := models.NewCommandEnvelope(command, "1", "000042", payload)
	require.NoError(c.t, err)
	c.send(env)
}

// next blocks for the next complete frame and decodes it.
func (c *termClient) next() models.ResponseEnvelope {
	c.t.Helper()
	for {
		if len(c.queue) > 0 {
			frame := c.queue[0]
			c.queue = c.queue[1:]
			require.NoError(c.t, frame.Err)
			var env models.ResponseEnvelope
			require.NoError(c.t, json.Unmarshal(frame.JSON, &env))
			return env
		}
		require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, err := c.conn.Read(c.buf)
		require.NoError(c.t, err)
		c.queue = append(c.queue, c.dec.Feed(c.buf[:n])...)
	}
}

// expectSilence asserts nothing arrives within d.
func (c *termClient) expectSilence(d time.Duration) {
	c.t.Helper()
	require.Empty(c.t, c.queue)
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(d)))
	_, err := c.conn.Read(c.buf)
	var nerr net.Error
	require.ErrorAs(c.t, err, &nerr)
	require.True(c.t, nerr.Timeout())
}

func TestServerWelcomesAndAnswersPing(t *testing.T) {
	srv := startServer(t)
	c := dialTerminal(t, srv)

	welcome := c.next()
	require.Equal(t, models.MessageREADY, welcome.Message)
	require.Equal(t, "SystemReady", welcome.Data.Response)

	c.sendCommand("Ping", nil)
	require.Equal(t, models.MessageACK, c.next().Message)

	final := c.next()
	require.Equal(t, models.MessageMSG, final.Message)
	require.Equal(t, "Ping", final.Data.Response)
	require.Equal(t, "000042", final.Data.RequestID)
	require.Equal(t, models.ResultSuccess, final.Data.CmdResult.Result)
}

func TestServerRunsSaleConversation(t *testing.T) {
	srv := startServer(t)
	c := dialTerminal(t, srv)
	c.next() // welcome

	c.sendCommand("Sale", &models.CommandPayload{
		Transaction: &models.TransactionBlock{BaseAmount: "12.00", CardNumber: "4111111111111111"},
	})

	require.Equal(t, models.MessageACK, c.next().Message)

	progress := c.next()
	require.Equal(t, models.MessageDSP, progress.Message)
	require.Equal(t, "PROCESSING", progress.Data.Display)

	final := c.next()
	require.Equal(t, models.MessageMSG, final.Message)
	require.Equal(t, "00", final.Data.Host.ResponseCode)
	require.Equal(t, "12.00", final.Data.Transaction.TotalAmount)

	// Exactly one final per command.
	c.expectSilence(100 * time.Millisecond)
}

func TestServerHandlesSequentialCommands(t *testing.T) {
	srv := startServer(t)
	c := dialTerminal(t, srv)
	c.next() // welcome

	c.sendCommand("Ping", nil)
	require.Equal(t, models.MessageACK, c.next().Message)
	require.Equal(t, models.MessageMSG, c.next().Message)

	// The link stays usable for the next command.
	c.sendCommand("BatchInquiry", nil)
	require.Equal(t, models.MessageACK, c.next().Message)
	final := c.next()
	require.Equal(t, models.MessageMSG, final.Message)
	require.NotNil(t, final.Data.Batch)
	require.True(t, final.Data.Batch.IsOpen)
}

func TestServerIgnoresInboundAcks(t *testing.T) {
	srv := startServer(t)
	c := dialTerminal(t, srv)
	c.next() // welcome

	c.send(models.AckEnvelope())
	c.expectSilence(100 * time.Millisecond)

	c.sendCommand("Ping", nil)
	require.Equal(t, models.MessageACK, c.next().Message)
	require.Equal(t, models.MessageMSG, c.next().Message)
}

func TestServerIgnoresFramesWithoutCommand(t *testing.T) {
	srv := startServer(t)
	c := dialTerminal(t, srv)
	c.next() // welcome

	c.send(models.RequestEnvelope{Message: models.MessageMSG})
	c.expectSilence(100 * time.Millisecond)
}

func TestServerSurvivesMalformedFrame(t *testing.T) {
	srv := startServer(t)
	c := dialTerminal(t, srv)
	c.next() // welcome

	_, err := c.conn.Write([]byte{protocol.STX, protocol.LF, '{', '"', 'x', protocol.LF, protocol.ETX, protocol.LF})
	require.NoError(t, err)
	c.expectSilence(100 * time.Millisecond)

	// The decoder resynchronized; the next command goes through.
	c.sendCommand("Ping", nil)
	require.Equal(t, models.MessageACK, c.next().Message)
	require.Equal(t, models.MessageMSG, c.next().Message)
}

func TestServerStopClosesConnections(t *testing.T) {
	srv := startServer(t)
	c := dialTerminal(t, srv)
	c.next() // welcome

	srv.Stop()

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var err error
	for err == nil {
		_, err = c.conn.Read(c.buf)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		t.Fatal("connection still open after Stop")
	}
}
