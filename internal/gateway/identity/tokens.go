package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/perchlabs/perch/internal/gateway/auth"
)

func tokenKey(deviceID, role string) string {
	return deviceID + ":" + role
}

// MemoryTokenCache keeps device tokens in process memory. Mostly useful for
// tests and short-lived sessions.
type MemoryTokenCache struct {
	mu     sync.Mutex
	tokens map[string]auth.CachedToken
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{tokens: make(map[string]auth.CachedToken)}
}

func (c *MemoryTokenCache) Load(deviceID, role string) (auth.CachedToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.tokens[tokenKey(deviceID, role)]
	return tok, ok
}

func (c *MemoryTokenCache) Store(deviceID, role string, tok auth.CachedToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[tokenKey(deviceID, role)] = tok
	return nil
}

func (c *MemoryTokenCache) Clear(deviceID, role string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, tokenKey(deviceID, role))
	return nil
}

// FileTokenCache persists device tokens as a single JSON file keyed by
// device and role, so reconnects across process restarts can skip
// re-authentication.
type FileTokenCache struct {
	mu   sync.Mutex
	path string
}

// NewFileTokenCache creates a cache backed by the given file path.
func NewFileTokenCache(path string) *FileTokenCache {
	return &FileTokenCache{path: path}
}

// DefaultTokenCache stores tokens under ~/.perch/tokens.json.
func DefaultTokenCache() (*FileTokenCache, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return NewFileTokenCache(filepath.Join(home, ".perch", "tokens.json")), nil
}

func (c *FileTokenCache) Load(deviceID, role string) (auth.CachedToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tokens, err := c.read()
	if err != nil {
		return auth.CachedToken{}, false
	}
	tok, ok := tokens[tokenKey(deviceID, role)]
	return tok, ok
}

func (c *FileTokenCache) Store(deviceID, role string, tok auth.CachedToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tokens, err := c.read()
	if err != nil {
		return err
	}
	tokens[tokenKey(deviceID, role)] = tok
	return c.write(tokens)
}

func (c *FileTokenCache) Clear(deviceID, role string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tokens, err := c.read()
	if err != nil {
		return err
	}
	key := tokenKey(deviceID, role)
	if _, ok := tokens[key]; !ok {
		return nil
	}
	delete(tokens, key)
	return c.write(tokens)
}

func (c *FileTokenCache) read() (map[string]auth.CachedToken, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]auth.CachedToken), nil
		}
		return nil, fmt.Errorf("failed to read token cache: %w", err)
	}
	tokens := make(map[string]auth.CachedToken)
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token cache: %w", err)
	}
	return tokens, nil
}

func (c *FileTokenCache) write(tokens map[string]auth.CachedToken) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token cache directory: %w", err)
	}
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token cache: %w", err)
	}
	return nil
}
