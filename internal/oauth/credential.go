package oauth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Credential is the persisted OAuth state for one operator.
//
// The file lives at a fixed path with owner-only permissions. CloudID is the
// tenant routing identifier discovered once per credential; it is stable for
// the credential's lifetime and cached here to avoid re-discovery.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	CloudID      string    `json:"cloud_id,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// expirySkew keeps us from presenting a token that expires mid-request.
const expirySkew = 30 * time.Second

// Valid reports whether the credential can be used as-is.
func (c *Credential) Valid() bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(expirySkew).Before(c.Expiry)
}

// loadCredential reads a credential file. A missing file returns
// ErrNoCredential; a corrupt file is an error, not silently ignored,
// since it may hold a refresh token the operator wants back.
func loadCredential(path string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to parse credential file %s: %w", path, err)
	}

	return &cred, nil
}

// saveCredential writes the credential atomically with owner-only
// permissions. A temp file in the same directory is renamed over the target
// so a crash can never leave a partial file visible.
func saveCredential(path string, cred *Credential) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set credential permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp credential file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace credential file: %w", err)
	}

	return nil
}

// removeCredential deletes the credential file. Missing files are fine.
func removeCredential(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}
