// Package client implements the gateway WebSocket client: connection
// lifecycle, the connect handshake, request/response correlation, and event
// delivery.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/perchlabs/perch/internal/common/errors"
	"github.com/perchlabs/perch/internal/common/logger"
	"github.com/perchlabs/perch/internal/gateway/auth"
	"github.com/perchlabs/perch/pkg/gateway/protocol"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateOpen           State = "open"
	StateAuthenticating State = "authenticating"
	StateReady          State = "ready"
)

const (
	// fastRetryDelay is used when the next attempt has a concrete reason to
	// succeed (next URL candidate, rotated client id).
	fastRetryDelay = 150 * time.Millisecond

	defaultHandshakeDelay = 650 * time.Millisecond

	closeCodeNormal     = 1000
	closeCodeAuthFailed = 4008
)

// Callbacks are invoked from the client's read loop goroutine. They must not
// block; long work should be handed off.
type Callbacks struct {
	// OnHello fires once per successful handshake with the hello payload.
	OnHello func(hello *protocol.HelloOk)

	// OnEvent receives every event frame except connect.challenge, in
	// arrival order, gaps included.
	OnEvent func(frame *protocol.Frame)

	// OnClose fires when an established connection is lost, before the
	// reconnect timer is armed.
	OnClose func(code int, reason string)

	// OnGap fires when the event sequence skips.
	OnGap func(gap Gap)
}

// Options configures a Client.
type Options struct {
	// URL is the configured gateway endpoint; candidates are derived from
	// it when it has no explicit path.
	URL string

	ClientID          string
	ClientIDFallbacks []string

	// HandshakeDelay is how long to wait after the socket opens for a
	// connect.challenge before sending connect unprompted.
	HandshakeDelay time.Duration

	BackoffInitial time.Duration
	BackoffFactor  float64
	BackoffMax     time.Duration

	Transport Transport
	Auth      *auth.Negotiator
	Logger    *logger.Logger
	Callbacks Callbacks
}

// Client maintains a single logical gateway connection across reconnects.
// Requests are accepted only while the handshake has completed; everything
// pending is rejected exactly once when the connection drops.
type Client struct {
	opts Options
	log  *logger.Logger

	registry  *requestRegistry
	sequencer *eventSequencer

	writeMu sync.Mutex

	mu         sync.Mutex
	state      State
	stopped    bool
	generation uint64
	conn       Conn
	backoff    *backoff

	urls   []string
	urlIdx int
	ids    []string
	idIdx  int

	handshakeTimer *time.Timer
	reconnectTimer *time.Timer
}

// NewClient creates a client. Start must be called to begin connecting.
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.WithFields(zap.String("component", "gateway-client"))
	if opts.Transport == nil {
		opts.Transport = WebsocketTransport{}
	}
	if opts.HandshakeDelay <= 0 {
		opts.HandshakeDelay = defaultHandshakeDelay
	}
	c := &Client{
		opts:     opts,
		log:      log,
		registry: newRequestRegistry(log),
		state:    StateDisconnected,
		backoff:  newBackoff(opts.BackoffInitial, opts.BackoffFactor, opts.BackoffMax),
		urls:     DeriveURLCandidates(opts.URL),
		ids:      deriveClientIDCandidates(opts.ClientID, opts.ClientIDFallbacks),
	}
	c.sequencer = newEventSequencer(func(gap Gap) {
		c.log.Warn("event sequence gap",
			zap.Int64("expected", gap.Expected), zap.Int64("received", gap.Received))
		if cb := c.opts.Callbacks.OnGap; cb != nil {
			cb(gap)
		}
	})
	return c
}

// Start begins the connect loop. It returns immediately; connection progress
// is reported through callbacks.
func (c *Client) Start() {
	go c.connect()
}

// Stop tears the connection down and rejects everything pending. The client
// cannot be restarted.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.generation++
	c.state = StateDisconnected
	conn := c.conn
	c.conn = nil
	c.cancelTimersLocked()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(closeCodeNormal, "client stopped")
	}
	c.registry.rejectAll(apperrors.ErrClientStopped)
	c.log.Info("client stopped")
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Request sends a request and waits for its response. It fails synchronously
// with ErrNotConnected unless the handshake has completed; in-flight requests
// are rejected if the connection drops before the response arrives.
func (c *Client) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, apperrors.ErrClientStopped
	}
	if c.state != StateReady {
		c.mu.Unlock()
		return nil, apperrors.ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	return c.roundTrip(ctx, conn, method, params)
}

// roundTrip performs request/response correlation on a specific connection.
// The connect handshake uses it directly, before the client is Ready.
func (c *Client) roundTrip(ctx context.Context, conn Conn, method string, params interface{}) (json.RawMessage, error) {
	id := uuid.New().String()
	frame, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode request")
	}

	ch := c.registry.add(id)
	if err := c.writeFrame(conn, frame); err != nil {
		c.registry.remove(id)
		return nil, apperrors.Transport("failed to send request", err)
	}

	select {
	case res := <-ch:
		return res.payload, res.err
	case <-ctx.Done():
		c.registry.remove(id)
		return nil, ctx.Err()
	}
}

func (c *Client) writeFrame(conn Conn, frame *protocol.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(data)
}

// connect performs one dial attempt against the current URL candidate.
func (c *Client) connect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.generation++
	gen := c.generation
	c.state = StateConnecting
	url := c.urls[c.urlIdx]
	c.mu.Unlock()

	c.log.Debug("dialing gateway", zap.String("url", url))
	conn, err := c.opts.Transport.Dial(context.Background(), url)
	if err != nil {
		c.handleDialFailure(gen, url, err)
		return
	}

	c.mu.Lock()
	if c.stopped || c.generation != gen {
		c.mu.Unlock()
		_ = conn.Close(closeCodeNormal, "superseded")
		return
	}
	c.state = StateOpen
	c.conn = conn
	c.sequencer.reset()
	if c.opts.Auth != nil {
		c.opts.Auth.Reset()
	}
	// Give the server a beat to send connect.challenge; if it stays quiet
	// we initiate the handshake ourselves.
	c.handshakeTimer = time.AfterFunc(c.opts.HandshakeDelay, func() {
		c.beginHandshake(gen, "")
	})
	c.mu.Unlock()

	c.log.Info("gateway socket open", zap.String("url", url))
	go c.readLoop(gen, conn)
}

// handleDialFailure rotates to the next URL candidate with a short delay, or
// applies backoff once the full candidate cycle has failed.
func (c *Client) handleDialFailure(gen uint64, url string, err error) {
	c.mu.Lock()
	if c.stopped || c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.urlIdx++
	var delay time.Duration
	if c.urlIdx < len(c.urls) {
		delay = fastRetryDelay
	} else {
		c.urlIdx = 0
		delay = c.backoff.Next()
	}
	c.scheduleReconnectLocked(delay)
	c.mu.Unlock()

	c.log.Warn("gateway dial failed",
		zap.String("url", url), zap.Duration("retryIn", delay), zap.Error(err))
}

func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			code, reason := closeDetails(err)
			c.handleDisconnect(gen, code, reason)
			return
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			c.log.Warn("failed to decode frame", zap.Error(err))
			continue
		}

		switch {
		case frame.IsResponse():
			c.registry.resolve(frame)
		case frame.IsEvent():
			c.handleEvent(gen, frame)
		default:
			c.log.Debug("dropping unexpected frame", zap.String("type", frame.Type))
		}
	}
}

func (c *Client) handleEvent(gen uint64, frame *protocol.Frame) {
	c.sequencer.observe(frame.Seq)

	if frame.Event == protocol.EventConnectChallenge {
		var challenge protocol.ChallengePayload
		if err := frame.ParsePayload(&challenge); err != nil {
			c.log.Warn("failed to parse connect challenge", zap.Error(err))
			return
		}
		c.beginHandshake(gen, challenge.Nonce)
		return
	}

	if cb := c.opts.Callbacks.OnEvent; cb != nil {
		cb(frame)
	}
}

// beginHandshake sends the connect request once per connection, whether the
// trigger was the debounce timer or a server challenge. The negotiator latch
// collapses the race between the two.
func (c *Client) beginHandshake(gen uint64, nonce string) {
	c.mu.Lock()
	if c.stopped || c.generation != gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	if c.opts.Auth == nil || !c.opts.Auth.TryBegin() {
		c.mu.Unlock()
		return
	}
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
		c.handshakeTimer = nil
	}
	c.state = StateAuthenticating
	conn := c.conn
	clientID := c.ids[c.idIdx]
	c.mu.Unlock()

	params, err := c.opts.Auth.BuildParams(clientID, nonce)
	if err != nil {
		c.log.Error("failed to build connect params", zap.Error(err))
		c.failHandshake(gen, conn, "connect setup failed")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		payload, err := c.roundTrip(ctx, conn, protocol.MethodConnect, params)
		if err != nil {
			c.handshakeRejected(gen, conn, err)
			return
		}

		var hello protocol.HelloOk
		if err := json.Unmarshal(payload, &hello); err != nil {
			c.log.Error("failed to parse hello payload", zap.Error(err))
			c.failHandshake(gen, conn, "malformed hello")
			return
		}
		c.handshakeSucceeded(gen, &hello)
	}()
}

func (c *Client) handshakeSucceeded(gen uint64, hello *protocol.HelloOk) {
	c.mu.Lock()
	if c.stopped || c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.state = StateReady
	c.backoff.Reset()
	c.urlIdx = 0
	c.idIdx = 0
	c.mu.Unlock()

	if c.opts.Auth != nil {
		c.opts.Auth.HandleSuccess(hello)
	}
	c.log.Info("gateway handshake complete",
		zap.Int("protocol", hello.Protocol))
	if cb := c.opts.Callbacks.OnHello; cb != nil {
		cb(hello)
	}
}

// handshakeRejected handles a failed connect round trip. Only an ok:false
// verdict from the gateway evicts a stale cached token and closes with the
// auth code; a connection lost or timed out mid-handshake says nothing about
// the credentials, so it rides the ordinary reconnect path untouched.
func (c *Client) handshakeRejected(gen uint64, conn Conn, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code == apperrors.ErrCodeTransport || appErr.Code == apperrors.ErrCodeStopped {
		c.log.Warn("handshake attempt aborted", zap.Error(err))
		var closeErr *apperrors.CloseError
		if !errors.As(err, &closeErr) {
			// Read loop is still alive, closing the socket hands
			// control to its disconnect handling.
			_ = conn.Close(closeCodeNormal, "handshake aborted")
		}
		return
	}
	if c.opts.Auth != nil && c.opts.Auth.HandleFailure() {
		c.log.Warn("handshake rejected with cached token, next attempt uses configured credentials",
			zap.Error(err))
	} else {
		c.log.Error("gateway handshake rejected", zap.Error(err))
	}
	_ = conn.Close(closeCodeAuthFailed, auth.TruncateReason(err.Error()))
}

func (c *Client) failHandshake(gen uint64, conn Conn, reason string) {
	_ = conn.Close(closeCodeAuthFailed, auth.TruncateReason(reason))
}

// handleDisconnect runs when the read loop exits. It rejects pending
// requests, reports the close, and arms the reconnect timer.
func (c *Client) handleDisconnect(gen uint64, code int, reason string) {
	c.mu.Lock()
	if c.stopped || c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.conn = nil
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
		c.handshakeTimer = nil
	}

	var delay time.Duration
	switch {
	case isClientIDCollision(reason) && len(c.ids) > 1:
		c.idIdx = (c.idIdx + 1) % len(c.ids)
		delay = fastRetryDelay
		c.log.Warn("client id rejected as connected, rotating",
			zap.String("nextId", c.ids[c.idIdx]))
	default:
		delay = c.backoff.Next()
	}
	c.scheduleReconnectLocked(delay)
	c.mu.Unlock()

	c.registry.rejectAll(&apperrors.CloseError{StatusCode: code, Reason: reason})

	c.log.Warn("gateway connection closed",
		zap.Int("code", code), zap.String("reason", reason), zap.Duration("retryIn", delay))
	if cb := c.opts.Callbacks.OnClose; cb != nil {
		cb(code, reason)
	}
}

func (c *Client) scheduleReconnectLocked(delay time.Duration) {
	if c.stopped {
		return
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(delay, c.connect)
}

func (c *Client) cancelTimersLocked() {
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
		c.handshakeTimer = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}
