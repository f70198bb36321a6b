// Credential store persistence.
//
// Credentials live in the XDG data directory:
//
//	$XDG_DATA_HOME/packlate/credentials.json  (default: ~/.local/share/packlate/)
//
// The file is a flat JSON list of credential records and is written
// with 0600 permissions (owner read/write only). The pipeline itself
// never touches this file; only the CLI key-management commands and
// program startup do.

package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	dataDirName = "packlate"
	fileName    = "credentials.json"
)

// dataDir returns the XDG data directory for packlate. Respects
// $XDG_DATA_HOME, falling back to ~/.local/share.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the credentials file path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// LoadStore reads the persisted credential list. Returns an empty list
// if the file doesn't exist or is invalid.
func LoadStore() []*Credential {
	path, err := filePath()
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var creds []*Credential
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil
	}
	return creds
}

// SaveStore writes the credential list to disk with 0600 permissions.
func SaveStore(creds []*Credential) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Store operations
// ---------------------------------------------------------------------------

// AddToStore appends a new active credential with a fresh id and
// persists the store. Returns the stored credential.
func AddToStore(provider, model, key, baseURL string) (*Credential, error) {
	cred := &Credential{
		ID:       uuid.NewString(),
		Provider: provider,
		Model:    model,
		Key:      key,
		BaseURL:  baseURL,
		Active:   true,
	}
	creds := LoadStore()
	creds = append(creds, cred)
	if err := SaveStore(creds); err != nil {
		return nil, err
	}
	return cred, nil
}

// RemoveFromStore deletes the credential with the given id (or id
// prefix, when unambiguous) and persists the store. Reports whether
// anything was removed.
func RemoveFromStore(id string) (bool, error) {
	creds := LoadStore()

	matches := 0
	for _, c := range creds {
		if c.ID == id || strings.HasPrefix(c.ID, id) {
			matches++
		}
	}
	if matches == 0 {
		return false, nil
	}
	if matches > 1 {
		return false, fmt.Errorf("id prefix %q matches %d credentials", id, matches)
	}

	var kept []*Credential
	for _, c := range creds {
		if c.ID == id || strings.HasPrefix(c.ID, id) {
			continue
		}
		kept = append(kept, c)
	}
	return true, SaveStore(kept)
}

// MaskKey returns a masked version of a secret for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
