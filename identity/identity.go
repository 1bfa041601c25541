// Package identity persists the anonymous voter id for this installation.
// There are no accounts: identity is a random id generated once and reused
// for the lifetime of the profile.
package identity

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PlaceholderVoterID is returned when the local store is unavailable.
const PlaceholderVoterID = "local-voter"

const voterIDFile = "voter_id"

// GetOrCreateVoterID returns the persisted voter id, generating and storing
// a random one on first call. When the config dir cannot be used it falls
// back to the fixed placeholder.
func GetOrCreateVoterID() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return PlaceholderVoterID
	}
	return getOrCreate(filepath.Join(dir, "vh-board", voterIDFile))
}

func getOrCreate(path string) string {
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return PlaceholderVoterID
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return PlaceholderVoterID
	}
	return id
}
