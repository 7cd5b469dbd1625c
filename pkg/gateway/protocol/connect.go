package protocol

// Client modes.
const (
	ClientModeUI      = "ui"
	ClientModeCLI     = "cli"
	ClientModeBackend = "backend"
)

// ConnectParams is the params object of the "connect" request.
type ConnectParams struct {
	MinProtocol int         `json:"minProtocol"`
	MaxProtocol int         `json:"maxProtocol"`
	Client      ClientInfo  `json:"client"`
	Role        string      `json:"role"`
	Scopes      []string    `json:"scopes"`
	Device      *DeviceInfo `json:"device,omitempty"`
	Caps        []string    `json:"caps"`
	Auth        *AuthInfo   `json:"auth,omitempty"`
	UserAgent   string      `json:"userAgent,omitempty"`
	Locale      string      `json:"locale,omitempty"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	ID         string `json:"id"`
	Version    string `json:"version"`
	Platform   string `json:"platform"`
	Mode       string `json:"mode"`
	InstanceID string `json:"instanceId,omitempty"`
}

// DeviceInfo is the device-signed identity block. Signature covers the
// canonical payload built by the auth negotiator, including the challenge
// nonce when the server issued one.
type DeviceInfo struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	SignedAt  int64  `json:"signedAt"`
	Nonce     string `json:"nonce,omitempty"`
}

// AuthInfo carries shared-secret credentials.
type AuthInfo struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOk is the payload of a successful connect response.
type HelloOk struct {
	Protocol int         `json:"protocol"`
	Server   *ServerInfo `json:"server,omitempty"`
	Features *Features   `json:"features,omitempty"`
	Snapshot interface{} `json:"snapshot,omitempty"`
	Auth     *AuthResult `json:"auth,omitempty"`
	Policy   *PolicyInfo `json:"policy,omitempty"`
}

// ServerInfo describes the gateway build serving this connection.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Host    string `json:"host,omitempty"`
	ConnID  string `json:"connId"`
}

// Features lists the methods and events this gateway supports.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// AuthResult is the server's view of the authenticated session, including
// a freshly issued device token when device auth succeeded.
type AuthResult struct {
	DeviceToken string   `json:"deviceToken,omitempty"`
	Role        string   `json:"role,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
	IssuedAtMs  int64    `json:"issuedAtMs,omitempty"`
}

// PolicyInfo contains connection policy limits.
type PolicyInfo struct {
	TickIntervalMs   int `json:"tickIntervalMs,omitempty"`
	MaxPayload       int `json:"maxPayload,omitempty"`
	MaxBufferedBytes int `json:"maxBufferedBytes,omitempty"`
}

// ChallengePayload is the connect.challenge event payload.
type ChallengePayload struct {
	Nonce string `json:"nonce"`
	TS    int64  `json:"ts,omitempty"`
}
