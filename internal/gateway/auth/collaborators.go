package auth

import "time"

// DeviceIdentity is a stable local device identity backed by an asymmetric
// keypair. Creation and persistence are owned by the store; the negotiator
// only reads and signs.
type DeviceIdentity interface {
	// ID returns the stable device identifier.
	ID() string

	// PublicKey returns the base64-encoded public key.
	PublicKey() string

	// Sign signs the canonical handshake payload and returns the
	// base64-encoded signature.
	Sign(payload []byte) (string, error)
}

// DeviceStore loads or creates the local device identity. A nil store means
// no secure signing capability is available and the negotiator falls back to
// shared-token/password auth only.
type DeviceStore interface {
	LoadOrCreate() (DeviceIdentity, error)
}

// CachedToken is a gateway-issued device token cached between connections.
type CachedToken struct {
	Token    string    `json:"token"`
	Scopes   []string  `json:"scopes,omitempty"`
	IssuedAt time.Time `json:"issuedAt"`
}

// TokenCache stores device tokens keyed by (deviceID, role).
type TokenCache interface {
	Load(deviceID, role string) (CachedToken, bool)
	Store(deviceID, role string, tok CachedToken) error
	Clear(deviceID, role string) error
}
