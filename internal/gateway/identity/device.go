package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/perchlabs/perch/internal/gateway/auth"
)

// deviceRecord is the on-disk representation of a device identity.
type deviceRecord struct {
	ID         string    `json:"id"`
	PublicKey  string    `json:"publicKey"`
	PrivateKey string    `json:"privateKey"`
	CreatedAt  time.Time `json:"createdAt"`
}

// FileDeviceStore persists a single ed25519 device identity as a JSON file.
// The first LoadOrCreate generates the keypair; later calls reuse it.
type FileDeviceStore struct {
	path string
}

// NewFileDeviceStore creates a store backed by the given file path.
func NewFileDeviceStore(path string) *FileDeviceStore {
	return &FileDeviceStore{path: path}
}

// DefaultDeviceStore stores the identity under ~/.perch/device.json.
func DefaultDeviceStore() (*FileDeviceStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return NewFileDeviceStore(filepath.Join(home, ".perch", "device.json")), nil
}

// LoadOrCreate reads the persisted identity, generating and saving a new one
// if the file does not exist.
func (s *FileDeviceStore) LoadOrCreate() (auth.DeviceIdentity, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		var rec deviceRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse device identity: %w", err)
		}
		return identityFromRecord(rec)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read device identity: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate device key: %w", err)
	}
	rec := deviceRecord{
		ID:         uuid.New().String(),
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
		CreatedAt:  time.Now(),
	}
	if err := s.save(rec); err != nil {
		return nil, err
	}
	return &deviceIdentity{id: rec.ID, publicKey: rec.PublicKey, privateKey: priv}, nil
}

func (s *FileDeviceStore) save(rec deviceRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode device identity: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write device identity: %w", err)
	}
	return nil
}

func identityFromRecord(rec deviceRecord) (auth.DeviceIdentity, error) {
	raw, err := base64.StdEncoding.DecodeString(rec.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode device private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid device private key length: %d", len(raw))
	}
	return &deviceIdentity{
		id:         rec.ID,
		publicKey:  rec.PublicKey,
		privateKey: ed25519.PrivateKey(raw),
	}, nil
}

type deviceIdentity struct {
	id         string
	publicKey  string
	privateKey ed25519.PrivateKey
}

func (d *deviceIdentity) ID() string        { return d.id }
func (d *deviceIdentity) PublicKey() string { return d.publicKey }

func (d *deviceIdentity) Sign(payload []byte) (string, error) {
	sig := ed25519.Sign(d.privateKey, payload)
	return base64.StdEncoding.EncodeToString(sig), nil
}
