package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNeedsUnlock reports that no wrapped key was found for the requested
// identity. It is a recoverable state: the caller should prompt for key
// generation or a password unlock, not abort.
var ErrNeedsUnlock = errors.New("no wrapped key on this device: unlock required")

// VaultStore persists password-wrapped private keys on the local device,
// keyed by user id. Each entry may also be resolvable through an email alias,
// bridging the gap between pre-verification (email only) and post-verification
// (stable user id) identity. Nothing in here ever leaves the device.
type VaultStore struct {
	dir string

	mu      sync.RWMutex
	aliases map[string]string // email -> user id
}

type vaultEntry struct {
	UserID string      `json:"userId"`
	Email  string      `json:"email,omitempty"`
	Key    *WrappedKey `json:"key"`
}

// NewVaultStore opens (creating if needed) a vault directory and loads the
// email alias index from the entries already present.
func NewVaultStore(dir string) (*VaultStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}

	vs := &VaultStore{
		dir:     dir,
		aliases: make(map[string]string),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read vault directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var ve vaultEntry
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil || json.Unmarshal(data, &ve) != nil {
			continue // unreadable entry, skip rather than block startup
		}
		if ve.Email != "" {
			vs.aliases[ve.Email] = ve.UserID
		}
	}

	return vs, nil
}

// Put stores a wrapped key for the user, optionally registering an email
// alias so the key stays resolvable across the verification boundary.
func (vs *VaultStore) Put(userID, email string, wk *WrappedKey) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	if wk == nil {
		return errors.New("wrapped key is required")
	}

	data, err := json.Marshal(vaultEntry{UserID: userID, Email: email, Key: wk})
	if err != nil {
		return fmt.Errorf("marshal vault entry: %w", err)
	}
	if err := os.WriteFile(vs.path(userID), data, 0o600); err != nil {
		return fmt.Errorf("write vault entry: %w", err)
	}

	if email != "" {
		vs.mu.Lock()
		vs.aliases[email] = userID
		vs.mu.Unlock()
	}
	return nil
}

// Get looks up a wrapped key by user id or email alias. A missing entry is
// the ErrNeedsUnlock state, not a hard failure.
func (vs *VaultStore) Get(idOrEmail string) (*WrappedKey, error) {
	userID := idOrEmail

	vs.mu.RLock()
	if alias, ok := vs.aliases[idOrEmail]; ok {
		userID = alias
	}
	vs.mu.RUnlock()

	data, err := os.ReadFile(vs.path(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNeedsUnlock
		}
		return nil, fmt.Errorf("read vault entry: %w", err)
	}

	var ve vaultEntry
	if err := json.Unmarshal(data, &ve); err != nil {
		return nil, fmt.Errorf("decode vault entry: %w", err)
	}
	return ve.Key, nil
}

// Delete removes the wrapped key for a user id, e.g. on logout-and-forget.
func (vs *VaultStore) Delete(userID string) error {
	if err := os.Remove(vs.path(userID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete vault entry: %w", err)
	}

	vs.mu.Lock()
	for email, id := range vs.aliases {
		if id == userID {
			delete(vs.aliases, email)
		}
	}
	vs.mu.Unlock()
	return nil
}

// Has reports whether a wrapped key exists for the id or email alias.
func (vs *VaultStore) Has(idOrEmail string) bool {
	_, err := vs.Get(idOrEmail)
	return err == nil
}

func (vs *VaultStore) path(userID string) string {
	// user ids are hex object ids or uuids; keep the name filesystem-safe anyway
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, userID)
	return filepath.Join(vs.dir, safe+".json")
}
