package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// API key errors
var (
	ErrInvalidAPIKey  = errors.New("invalid API key")
	ErrRevokedAPIKey  = errors.New("API key has been revoked")
	ErrExpiredAPIKey  = errors.New("API key has expired")
	ErrAPIKeyNotFound = errors.New("API key not found")
)

const keyPrefix = "vk_"

// APIKey describes a key. Key holds the secret only in the values returned
// by Generate and Register; elsewhere it is the masked hint.
type APIKey struct {
	Key       string     `json:"key"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// APIKeyManager keeps keys in memory indexed by their SHA-256 digest
type APIKeyManager struct {
	mu   sync.Mutex
	keys map[string]*APIKey
	now  func() time.Time
}

// NewAPIKeyManager creates an empty manager
func NewAPIKeyManager() *APIKeyManager {
	return &APIKeyManager{
		keys: make(map[string]*APIKey),
		now:  time.Now,
	}
}

func digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func mask(key string) string {
	if len(key) <= len(keyPrefix)+4 {
		return keyPrefix + "****"
	}
	return key[:len(keyPrefix)+4] + "****"
}

// Generate creates a random key for userID
func (m *APIKeyManager) Generate(userID, name string, expiresAt *time.Time) (*APIKey, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return m.Register(keyPrefix+base64.RawURLEncoding.EncodeToString(buf), userID, name, expiresAt)
}

// Register adds a key issued elsewhere, such as one read from configuration
func (m *APIKeyManager) Register(key, userID, name string, expiresAt *time.Time) (*APIKey, error) {
	if key == "" || userID == "" {
		return nil, fmt.Errorf("%w: key and user are required", ErrInvalidAPIKey)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d := digest(key)
	if _, exists := m.keys[d]; exists {
		return nil, fmt.Errorf("API key %q already registered", name)
	}
	stored := &APIKey{
		Key:       mask(key),
		UserID:    userID,
		Name:      name,
		CreatedAt: m.now(),
		ExpiresAt: expiresAt,
	}
	m.keys[d] = stored

	issued := *stored
	issued.Key = key
	return &issued, nil
}

// Verify checks key and records its use
func (m *APIKeyManager) Verify(key string) (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	apiKey, exists := m.keys[digest(key)]
	if !exists {
		return nil, ErrInvalidAPIKey
	}
	if apiKey.Revoked {
		return nil, ErrRevokedAPIKey
	}
	now := m.now()
	if apiKey.ExpiresAt != nil && now.After(*apiKey.ExpiresAt) {
		return nil, ErrExpiredAPIKey
	}
	apiKey.LastUsed = &now

	c := *apiKey
	return &c, nil
}

// Revoke marks key as revoked; it stays listed
func (m *APIKeyManager) Revoke(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	apiKey, exists := m.keys[digest(key)]
	if !exists {
		return ErrAPIKeyNotFound
	}
	apiKey.Revoked = true
	return nil
}

// Delete forgets key
func (m *APIKeyManager) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := digest(key)
	if _, exists := m.keys[d]; !exists {
		return ErrAPIKeyNotFound
	}
	delete(m.keys, d)
	return nil
}

// List returns the keys of userID, oldest first, with masked secrets
func (m *APIKeyManager) List(userID string) []*APIKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []*APIKey
	for _, apiKey := range m.keys {
		if apiKey.UserID == userID {
			c := *apiKey
			keys = append(keys, &c)
		}
	}
	slices.SortFunc(keys, func(a, b *APIKey) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return keys
}

// Count returns the number of keys that are not revoked
func (m *APIKeyManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, apiKey := range m.keys {
		if !apiKey.Revoked {
			count++
		}
	}
	return count
}
