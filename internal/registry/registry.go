// Package registry owns the in-memory account set and its persistence.
// All mutation goes through the registry; other components only read
// snapshots, so a reader can never observe a half-updated account.
package registry

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"copytraderv1/internal/model"
)

// Registry is the authoritative owner of account state.
type Registry struct {
	mu       sync.RWMutex
	store    Store
	accounts map[string]model.Account
	order    []string // account ids in config-file order
}

// New creates an empty registry backed by the given store.
func New(store Store) *Registry {
	return &Registry{
		store:    store,
		accounts: make(map[string]model.Account),
	}
}

// Load reads all accounts from the store. On read failure the in-memory
// set is left empty and a ConfigLoadError is returned; the caller may
// continue with no accounts. More than one primary is a hard
// configuration error and also leaves the set empty.
func (r *Registry) Load() error {
	accounts, err := r.store.Load()
	if err != nil {
		r.mu.Lock()
		r.accounts = make(map[string]model.Account)
		r.order = nil
		r.mu.Unlock()
		return &model.ConfigLoadError{Path: r.storePath(), Err: err}
	}

	primaries := 0
	byID := make(map[string]model.Account, len(accounts))
	order := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Primary {
			primaries++
		}
		if _, dup := byID[acc.AccountID]; dup {
			continue
		}
		byID[acc.AccountID] = acc
		order = append(order, acc.AccountID)
	}
	if primaries > 1 {
		return model.ErrMultiplePrimaries
	}

	r.mu.Lock()
	r.accounts = byID
	r.order = order
	r.mu.Unlock()

	log.Infof("[registry] loaded %d accounts", len(order))
	return nil
}

// Save writes the full in-memory set back to the store. Failure is
// logged and surfaced as a PersistenceError but never rolls back the
// in-memory mutation that triggered it.
func (r *Registry) Save() error {
	r.mu.RLock()
	accounts := r.snapshotLocked()
	r.mu.RUnlock()

	if err := r.store.Save(accounts); err != nil {
		log.Errorf("[registry] save failed: %v", err)
		return &model.PersistenceError{Path: r.storePath(), Err: err}
	}
	return nil
}

// Get returns a snapshot of one account.
func (r *Registry) Get(id string) (model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[id]
	if !ok {
		return model.Account{}, model.ErrAccountNotFound
	}
	return acc, nil
}

// All returns snapshots of every account in config-file order.
func (r *Registry) All() []model.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Primary returns the account flagged primary, if any.
func (r *Registry) Primary() (model.Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if acc := r.accounts[id]; acc.Primary {
			return acc, true
		}
	}
	return model.Account{}, false
}

// SetSessionToken updates an account's session token fields, then
// persists write-through. The token swap is atomic with respect to
// concurrent readers; a save failure does not undo it.
func (r *Registry) SetSessionToken(id, accessToken, requestToken string) error {
	r.mu.Lock()
	acc, ok := r.accounts[id]
	if !ok {
		r.mu.Unlock()
		return model.ErrAccountNotFound
	}
	acc.AccessToken = accessToken
	acc.RequestToken = requestToken
	r.accounts[id] = acc
	r.mu.Unlock()

	return r.Save()
}

// snapshotLocked copies accounts in stored order. Caller holds r.mu.
func (r *Registry) snapshotLocked() []model.Account {
	out := make([]model.Account, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.accounts[id])
	}
	return out
}

func (r *Registry) storePath() string {
	if fs, ok := r.store.(*FileStore); ok {
		return fs.Path
	}
	return ""
}
