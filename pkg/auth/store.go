package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// DotenvTokenKey is the dotenv key the token pair is persisted under
const DotenvTokenKey = "HAZMATE_OAUTH_TOKEN"

// TokenStore is the interface for persisting the OAuth token pair between runs
type TokenStore interface {
	// Store saves the credential
	Store(cred *Credential) error

	// Retrieve gets the stored credential
	Retrieve() (*Credential, error)

	// Delete removes the stored credential
	Delete() error

	// Exists checks if a credential is stored
	Exists() bool
}

// Manager handles token storage with fallback mechanisms
type Manager struct {
	stores []TokenStore
}

// NewManager creates a token manager with the available storage backends:
// system keyring first, encrypted file next, dotenv file last.
func NewManager(dotenvPath string) (*Manager, error) {
	var stores []TokenStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "token.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewDotenvStore(dotenvPath))
	stores = append(stores, &EnvStore{})

	return &Manager{stores: stores}, nil
}

// Store saves the credential using the first store that accepts it
func (m *Manager) Store(cred *Credential) error {
	if cred == nil || cred.AccessToken == "" {
		return ErrInvalidCredentials
	}

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(cred); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credential: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets the credential from the first store that has one
func (m *Manager) Retrieve() (*Credential, error) {
	for _, store := range m.stores {
		if cred, err := store.Retrieve(); err == nil && cred != nil {
			return cred, nil
		}
	}
	return nil, ErrCredentialsNotFound
}

// Delete removes the credential from every store
func (m *Manager) Delete() error {
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(); err != nil && err != ErrCredentialsNotFound && err != ErrStoreUnavailable {
			lastErr = err
		}
	}
	return lastErr
}

// Exists checks if any store holds a credential
func (m *Manager) Exists() bool {
	for _, store := range m.stores {
		if store.Exists() {
			return true
		}
	}
	return false
}

// getConfigDir returns the hazmate config directory, creating it if needed
func getConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "hazmate")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// DotenvStore persists the token pair as a JSON value in a dotenv file,
// mirroring how the collector's .env is managed for the OAuth client settings.
type DotenvStore struct {
	path string
	mu   sync.Mutex
}

// NewDotenvStore creates a dotenv-backed token store
func NewDotenvStore(path string) *DotenvStore {
	if path == "" {
		path = ".env"
	}
	return &DotenvStore{path: path}
}

// Store writes the credential into the dotenv file, preserving other keys
func (d *DotenvStore) Store(cred *Credential) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cred == nil || cred.AccessToken == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	env, err := godotenv.Read(d.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read dotenv file: %w", err)
		}
		env = make(map[string]string)
	}

	env[DotenvTokenKey] = string(data)

	if err := godotenv.Write(env, d.path); err != nil {
		return fmt.Errorf("failed to write dotenv file: %w", err)
	}

	return nil
}

// Retrieve reads the credential from the dotenv file
func (d *DotenvStore) Retrieve() (*Credential, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	env, err := godotenv.Read(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to read dotenv file: %w", err)
	}

	raw, ok := env[DotenvTokenKey]
	if !ok || raw == "" {
		return nil, ErrCredentialsNotFound
	}

	var cred Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	return &cred, nil
}

// Delete removes the token key from the dotenv file
func (d *DotenvStore) Delete() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	env, err := godotenv.Read(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read dotenv file: %w", err)
	}

	delete(env, DotenvTokenKey)

	if err := godotenv.Write(env, d.path); err != nil {
		return fmt.Errorf("failed to write dotenv file: %w", err)
	}

	return nil
}

// Exists checks if the dotenv file holds a token
func (d *DotenvStore) Exists() bool {
	cred, err := d.Retrieve()
	return err == nil && cred != nil
}

// EnvStore reads the token pair from the process environment. Read-only;
// kept last in the manager cascade for environments where writing any file
// is off the table (CI, containers with injected secrets).
type EnvStore struct{}

// Store is not supported; the environment cannot be written back
func (e *EnvStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve reads the credential from the environment
func (e *EnvStore) Retrieve() (*Credential, error) {
	raw := os.Getenv(DotenvTokenKey)
	if raw == "" {
		return nil, ErrCredentialsNotFound
	}

	var cred Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential from environment: %w", err)
	}

	return &cred, nil
}

// Delete is not supported
func (e *EnvStore) Delete() error {
	return ErrStoreUnavailable
}

// Exists checks if the environment holds a token
func (e *EnvStore) Exists() bool {
	return os.Getenv(DotenvTokenKey) != ""
}

// MockStore is an in-memory token store for testing
type MockStore struct {
	mu   sync.Mutex
	cred *Credential

	// StoreErr, when set, is returned by Store
	StoreErr error
	// StoreCalls counts Store invocations
	StoreCalls int
}

// NewMockStore creates an empty in-memory store
func NewMockStore() *MockStore {
	return &MockStore{}
}

// Store saves the credential in memory
func (m *MockStore) Store(cred *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StoreCalls++
	if m.StoreErr != nil {
		return m.StoreErr
	}
	if cred == nil || cred.AccessToken == "" {
		return ErrInvalidCredentials
	}

	clone := *cred
	m.cred = &clone
	return nil
}

// Retrieve returns the stored credential
func (m *MockStore) Retrieve() (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred == nil {
		return nil, ErrCredentialsNotFound
	}
	clone := *m.cred
	return &clone, nil
}

// Delete clears the stored credential
func (m *MockStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cred = nil
	return nil
}

// Exists checks if a credential is stored
func (m *MockStore) Exists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cred != nil
}

// ExpiresAtFromNow converts a token lifetime in seconds into an absolute
// expiry timestamp
func ExpiresAtFromNow(expiresInSeconds int, now time.Time) time.Time {
	return now.Add(time.Duration(expiresInSeconds) * time.Second)
}
