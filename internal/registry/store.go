package registry

import (
	"encoding/json"
	"os"

	"copytraderv1/internal/model"
)

// Store persists the full account collection as a whole.
type Store interface {
	Load() ([]model.Account, error)
	Save([]model.Account) error
}

// FileStore keeps accounts in a JSON array on disk, the same shape the
// accounts config file has always had. Array order is significant: it
// is the iteration order the registry preserves.
type FileStore struct {
	Path string
}

func (s *FileStore) Load() ([]model.Account, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	var accounts []model.Account
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *FileStore) Save(accounts []model.Account) error {
	raw, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, raw, 0o644)
}
