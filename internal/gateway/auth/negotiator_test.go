package auth

import (
	"strconv"
	"strings"
	"testing"

	"github.com/perchlabs/perch/pkg/gateway/protocol"
)

type fakeIdentity struct {
	id         string
	lastSigned []byte
}

func (f *fakeIdentity) ID() string        { return f.id }
func (f *fakeIdentity) PublicKey() string { return "pub-" + f.id }
func (f *fakeIdentity) Sign(payload []byte) (string, error) {
	f.lastSigned = payload
	return "sig-" + f.id, nil
}

type fakeDeviceStore struct {
	identity *fakeIdentity
}

func (f *fakeDeviceStore) LoadOrCreate() (DeviceIdentity, error) {
	return f.identity, nil
}

type fakeTokenCache struct {
	tokens map[string]CachedToken
}

func newFakeTokenCache() *fakeTokenCache {
	return &fakeTokenCache{tokens: make(map[string]CachedToken)}
}

func (f *fakeTokenCache) Load(deviceID, role string) (CachedToken, bool) {
	tok, ok := f.tokens[deviceID+":"+role]
	return tok, ok
}

func (f *fakeTokenCache) Store(deviceID, role string, tok CachedToken) error {
	f.tokens[deviceID+":"+role] = tok
	return nil
}

func (f *fakeTokenCache) Clear(deviceID, role string) error {
	delete(f.tokens, deviceID+":"+role)
	return nil
}

func newTestNegotiator(cache TokenCache, configuredToken string) (*Negotiator, *fakeIdentity) {
	id := &fakeIdentity{id: "dev-1"}
	return NewNegotiator(Options{
		Role:    "operator",
		Scopes:  []string{"operator.read", "operator.write"},
		Token:   configuredToken,
		Mode:    protocol.ClientModeCLI,
		Devices: &fakeDeviceStore{identity: id},
		Tokens:  cache,
	}), id
}

func TestBuildParamsDeviceBlock(t *testing.T) {
	n, id := newTestNegotiator(newFakeTokenCache(), "cfg-token")

	params, err := n.BuildParams("perch", "nonce-1")
	if err != nil {
		t.Fatalf("BuildParams failed: %v", err)
	}

	if params.MinProtocol != 3 || params.MaxProtocol != 3 {
		t.Errorf("protocol bounds = %d/%d", params.MinProtocol, params.MaxProtocol)
	}
	if params.Device == nil {
		t.Fatal("expected device block")
	}
	if params.Device.ID != "dev-1" || params.Device.PublicKey != "pub-dev-1" {
		t.Errorf("device block = %+v", params.Device)
	}
	if params.Device.Nonce != "nonce-1" {
		t.Errorf("device nonce = %q", params.Device.Nonce)
	}
	if params.Device.Signature != "sig-dev-1" {
		t.Errorf("signature = %q", params.Device.Signature)
	}
	if params.Auth == nil || params.Auth.Token != "cfg-token" {
		t.Errorf("auth block = %+v", params.Auth)
	}

	// Canonical signing payload: pipe-joined, nonce last.
	parts := strings.Split(string(id.lastSigned), "|")
	if len(parts) != 8 {
		t.Fatalf("signing payload has %d parts: %q", len(parts), id.lastSigned)
	}
	if parts[0] != "dev-1" || parts[1] != "perch" || parts[2] != "cli" || parts[3] != "operator" {
		t.Errorf("payload head = %v", parts[:4])
	}
	if parts[4] != "operator.read,operator.write" {
		t.Errorf("scopes part = %q", parts[4])
	}
	if _, err := strconv.ParseInt(parts[5], 10, 64); err != nil {
		t.Errorf("signedAt part not numeric: %q", parts[5])
	}
	if parts[6] != "cfg-token" || parts[7] != "nonce-1" {
		t.Errorf("payload tail = %v", parts[6:])
	}
}

func TestBuildParamsNoNonceOmitted(t *testing.T) {
	n, id := newTestNegotiator(newFakeTokenCache(), "")

	params, err := n.BuildParams("perch", "")
	if err != nil {
		t.Fatalf("BuildParams failed: %v", err)
	}
	if params.Device.Nonce != "" {
		t.Errorf("nonce = %q, want empty", params.Device.Nonce)
	}
	if params.Auth != nil {
		t.Errorf("auth block should be absent without credentials, got %+v", params.Auth)
	}

	parts := strings.Split(string(id.lastSigned), "|")
	if len(parts) != 7 {
		t.Fatalf("signing payload has %d parts without nonce: %q", len(parts), id.lastSigned)
	}
	if parts[6] != "null" {
		t.Errorf("token part = %q, want null", parts[6])
	}
}

func TestBuildParamsNoDeviceStore(t *testing.T) {
	n := NewNegotiator(Options{Role: "operator", Token: "cfg-token"})

	params, err := n.BuildParams("perch", "")
	if err != nil {
		t.Fatalf("BuildParams failed: %v", err)
	}
	if params.Device != nil {
		t.Error("expected no device block without a store")
	}
	if params.Auth == nil || params.Auth.Token != "cfg-token" {
		t.Errorf("auth block = %+v", params.Auth)
	}
}

func TestCachedTokenPreferred(t *testing.T) {
	cache := newFakeTokenCache()
	_ = cache.Store("dev-1", "operator", CachedToken{Token: "cached-token"})
	n, _ := newTestNegotiator(cache, "cfg-token")

	params, err := n.BuildParams("perch", "")
	if err != nil {
		t.Fatalf("BuildParams failed: %v", err)
	}
	if params.Auth.Token != "cached-token" {
		t.Errorf("auth token = %q, want cached-token", params.Auth.Token)
	}
}

func TestHandleFailureEvictsCachedToken(t *testing.T) {
	cache := newFakeTokenCache()
	_ = cache.Store("dev-1", "operator", CachedToken{Token: "stale"})
	n, _ := newTestNegotiator(cache, "cfg-token")

	if _, err := n.BuildParams("perch", ""); err != nil {
		t.Fatalf("BuildParams failed: %v", err)
	}

	if !n.HandleFailure() {
		t.Fatal("expected retry after eviction")
	}
	if _, ok := cache.Load("dev-1", "operator"); ok {
		t.Error("stale token not evicted")
	}

	// A second failure has nothing left to fall back to.
	if n.HandleFailure() {
		t.Error("retry signaled without fallback eligibility")
	}
}

func TestHandleFailureNotEligibleWithoutConfiguredToken(t *testing.T) {
	cache := newFakeTokenCache()
	_ = cache.Store("dev-1", "operator", CachedToken{Token: "cached"})
	n, _ := newTestNegotiator(cache, "")

	if _, err := n.BuildParams("perch", ""); err != nil {
		t.Fatalf("BuildParams failed: %v", err)
	}
	if n.HandleFailure() {
		t.Error("eviction retry signaled with no configured fallback")
	}
	if _, ok := cache.Load("dev-1", "operator"); !ok {
		t.Error("token evicted despite no fallback credential")
	}
}

func TestHandleSuccessCachesIssuedToken(t *testing.T) {
	cache := newFakeTokenCache()
	n, _ := newTestNegotiator(cache, "cfg-token")

	if _, err := n.BuildParams("perch", ""); err != nil {
		t.Fatalf("BuildParams failed: %v", err)
	}
	n.HandleSuccess(&protocol.HelloOk{
		Auth: &protocol.AuthResult{
			DeviceToken: "issued",
			Role:        "admin",
			Scopes:      []string{"admin.all"},
		},
	})

	tok, ok := cache.Load("dev-1", "admin")
	if !ok {
		t.Fatal("issued token not cached under returned role")
	}
	if tok.Token != "issued" || len(tok.Scopes) != 1 {
		t.Errorf("cached token = %+v", tok)
	}
}

func TestHandleSuccessFallsBackToRequestedRole(t *testing.T) {
	cache := newFakeTokenCache()
	n, _ := newTestNegotiator(cache, "")

	if _, err := n.BuildParams("perch", ""); err != nil {
		t.Fatalf("BuildParams failed: %v", err)
	}
	n.HandleSuccess(&protocol.HelloOk{
		Auth: &protocol.AuthResult{DeviceToken: "issued"},
	})

	if _, ok := cache.Load("dev-1", "operator"); !ok {
		t.Error("issued token not cached under requested role")
	}
}

func TestHandshakeLatch(t *testing.T) {
	n, _ := newTestNegotiator(newFakeTokenCache(), "")

	if !n.TryBegin() {
		t.Fatal("first TryBegin should succeed")
	}
	if n.TryBegin() {
		t.Fatal("second TryBegin should be latched")
	}
	n.Reset()
	if !n.TryBegin() {
		t.Fatal("TryBegin after Reset should succeed")
	}
}

func TestTruncateReason(t *testing.T) {
	long := strings.Repeat("x", 300)
	if got := TruncateReason(long); len(got) != CloseReasonLimit {
		t.Errorf("truncated length = %d, want %d", len(got), CloseReasonLimit)
	}
	if got := TruncateReason("short"); got != "short" {
		t.Errorf("short reason modified: %q", got)
	}
}
