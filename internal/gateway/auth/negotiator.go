package auth

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/perchlabs/perch/internal/common/logger"
	"github.com/perchlabs/perch/pkg/gateway/protocol"
)

// CloseReasonLimit caps the reason string carried on an auth failure close
// frame. Gateways truncate anything longer, so we do it client-side.
const CloseReasonLimit = 120

// Options configures a Negotiator. Devices and Tokens may be nil, which
// disables device identity and token caching respectively.
type Options struct {
	Role     string
	Scopes   []string
	Token    string
	Password string

	ClientVersion string
	Platform      string
	Mode          string
	InstanceID    string
	UserAgent     string
	Locale        string
	Caps          []string

	Devices DeviceStore
	Tokens  TokenCache
	Logger  *logger.Logger
}

// Negotiator assembles connect parameters and tracks the outcome of a single
// handshake attempt. One negotiator lives for the lifetime of the client;
// Reset is called at the start of each connection attempt.
type Negotiator struct {
	opts Options
	log  *logger.Logger

	sent             bool
	fallbackEligible bool
	deviceID         string
	sentRole         string
}

func NewNegotiator(opts Options) *Negotiator {
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	if opts.Role == "" {
		opts.Role = "operator"
	}
	if opts.Mode == "" {
		opts.Mode = protocol.ClientModeCLI
	}
	return &Negotiator{opts: opts, log: log.WithFields(zap.String("component", "auth"))}
}

// TryBegin latches the handshake for the current connection. It returns false
// if a connect request is already in flight, which collapses the debounce
// timer and the challenge event into a single handshake.
func (n *Negotiator) TryBegin() bool {
	if n.sent {
		return false
	}
	n.sent = true
	return true
}

// Reset clears the handshake latch for a fresh connection.
func (n *Negotiator) Reset() {
	n.sent = false
	n.fallbackEligible = false
	n.deviceID = ""
	n.sentRole = ""
}

// BuildParams assembles the connect request parameters. nonce is the
// challenge nonce when the handshake was triggered by a connect.challenge
// event, empty otherwise.
func (n *Negotiator) BuildParams(clientID, nonce string) (*protocol.ConnectParams, error) {
	now := time.Now().UnixMilli()
	params := &protocol.ConnectParams{
		MinProtocol: protocol.ProtocolVersion,
		MaxProtocol: protocol.ProtocolVersion,
		Client: protocol.ClientInfo{
			ID:         clientID,
			Version:    n.opts.ClientVersion,
			Platform:   n.opts.Platform,
			Mode:       n.opts.Mode,
			InstanceID: n.opts.InstanceID,
		},
		Role:      n.opts.Role,
		Scopes:    n.opts.Scopes,
		Caps:      n.opts.Caps,
		UserAgent: n.opts.UserAgent,
		Locale:    n.opts.Locale,
	}

	token := n.opts.Token
	n.fallbackEligible = false
	n.deviceID = ""
	n.sentRole = n.opts.Role

	var identity DeviceIdentity
	if n.opts.Devices != nil {
		id, err := n.opts.Devices.LoadOrCreate()
		if err != nil {
			return nil, err
		}
		identity = id
		n.deviceID = id.ID()
	}

	if identity != nil && n.opts.Tokens != nil {
		if cached, ok := n.opts.Tokens.Load(n.deviceID, n.opts.Role); ok && cached.Token != "" {
			// A cached device token wins over the configured one. If
			// both exist we can retry with the configured token after
			// a rejection.
			if token != "" {
				n.fallbackEligible = true
			}
			token = cached.Token
		}
	}

	if identity != nil {
		sig, err := identity.Sign(signingPayload(n.deviceID, clientID, n.opts.Mode, n.opts.Role, n.opts.Scopes, now, token, nonce))
		if err != nil {
			return nil, err
		}
		params.Device = &protocol.DeviceInfo{
			ID:        n.deviceID,
			PublicKey: identity.PublicKey(),
			Signature: sig,
			SignedAt:  now,
			Nonce:     nonce,
		}
	}

	if token != "" || n.opts.Password != "" {
		params.Auth = &protocol.AuthInfo{Token: token, Password: n.opts.Password}
	}
	return params, nil
}

// signingPayload builds the canonical byte string covered by the device
// signature. Field order must match the gateway's verifier exactly.
func signingPayload(deviceID, clientID, mode, role string, scopes []string, signedAt int64, token, nonce string) []byte {
	tok := token
	if tok == "" {
		tok = "null"
	}
	parts := []string{
		deviceID,
		clientID,
		mode,
		role,
		strings.Join(scopes, ","),
		strconv.FormatInt(signedAt, 10),
		tok,
	}
	if nonce != "" {
		parts = append(parts, nonce)
	}
	return []byte(strings.Join(parts, "|"))
}

// HandleSuccess records a gateway-issued device token, keyed by the role the
// gateway actually granted.
func (n *Negotiator) HandleSuccess(hello *protocol.HelloOk) {
	n.fallbackEligible = false
	if hello == nil || hello.Auth == nil || hello.Auth.DeviceToken == "" {
		return
	}
	if n.opts.Tokens == nil || n.deviceID == "" {
		return
	}
	role := hello.Auth.Role
	if role == "" {
		role = n.sentRole
	}
	tok := CachedToken{
		Token:    hello.Auth.DeviceToken,
		Scopes:   hello.Auth.Scopes,
		IssuedAt: time.Now(),
	}
	if err := n.opts.Tokens.Store(n.deviceID, role, tok); err != nil {
		n.log.WithError(err).Warn("failed to cache device token")
	}
}

// HandleFailure reacts to a handshake rejection. When the rejected attempt
// used a cached token and a configured token exists, the stale cache entry is
// evicted and the caller should retry immediately. Returns true in that case.
func (n *Negotiator) HandleFailure() bool {
	if !n.fallbackEligible {
		return false
	}
	n.fallbackEligible = false
	if n.opts.Tokens != nil && n.deviceID != "" {
		if err := n.opts.Tokens.Clear(n.deviceID, n.sentRole); err != nil {
			n.log.WithError(err).Warn("failed to evict cached device token")
		}
	}
	return true
}

// TruncateReason trims a close reason to the limit the gateway accepts.
func TruncateReason(reason string) string {
	if len(reason) <= CloseReasonLimit {
		return reason
	}
	return reason[:CloseReasonLimit]
}
