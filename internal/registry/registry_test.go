package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"copytraderv1/internal/model"
)

const sampleConfig = `[
  {"account_id": "A1", "api_key": "k1", "secret_api_key": "s1", "primary": true, "ps_multiplier": 1.0},
  {"account_id": "A2", "api_key": "k2", "secret_api_key": "s2", "primary": false, "ps_multiplier": 2.0},
  {"account_id": "A3", "api_key": "k3", "secret_api_key": "s3", "primary": false, "ps_multiplier": 0.5}
]`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts_config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRegistry_LoadAndGet(t *testing.T) {
	r := New(&FileStore{Path: writeConfig(t, sampleConfig)})
	if err := r.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	acc, err := r.Get("A2")
	if err != nil {
		t.Fatalf("get A2: %v", err)
	}
	if acc.ScaleFactor != 2.0 {
		t.Errorf("expected scale_factor=2.0, got %v", acc.ScaleFactor)
	}
	if acc.Primary {
		t.Error("A2 should not be primary")
	}

	if _, err := r.Get("A9"); !errors.Is(err, model.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestRegistry_PreservesFileOrder(t *testing.T) {
	r := New(&FileStore{Path: writeConfig(t, sampleConfig)})
	if err := r.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	all := r.All()
	want := []string{"A1", "A2", "A3"}
	if len(all) != len(want) {
		t.Fatalf("expected %d accounts, got %d", len(want), len(all))
	}
	for i, id := range want {
		if all[i].AccountID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, all[i].AccountID)
		}
	}
}

func TestRegistry_Primary(t *testing.T) {
	r := New(&FileStore{Path: writeConfig(t, sampleConfig)})
	if err := r.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	primary, ok := r.Primary()
	if !ok {
		t.Fatal("expected a primary account")
	}
	if primary.AccountID != "A1" {
		t.Errorf("expected primary A1, got %s", primary.AccountID)
	}
}

func TestRegistry_LoadFailureLeavesEmptySet(t *testing.T) {
	r := New(&FileStore{Path: filepath.Join(t.TempDir(), "missing.json")})
	err := r.Load()

	var cle *model.ConfigLoadError
	if !errors.As(err, &cle) {
		t.Fatalf("expected ConfigLoadError, got %v", err)
	}
	if len(r.All()) != 0 {
		t.Errorf("expected empty account set, got %d", len(r.All()))
	}
	if _, ok := r.Primary(); ok {
		t.Error("expected no primary after failed load")
	}
}

func TestRegistry_MultiplePrimariesRejected(t *testing.T) {
	cfg := `[
	  {"account_id": "A1", "api_key": "k1", "secret_api_key": "s1", "primary": true},
	  {"account_id": "A2", "api_key": "k2", "secret_api_key": "s2", "primary": true}
	]`
	r := New(&FileStore{Path: writeConfig(t, cfg)})
	if err := r.Load(); !errors.Is(err, model.ErrMultiplePrimaries) {
		t.Fatalf("expected ErrMultiplePrimaries, got %v", err)
	}
}

func TestRegistry_SetSessionTokenPersists(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	r := New(&FileStore{Path: path})
	if err := r.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := r.SetSessionToken("A2", "tok-123", "req-456"); err != nil {
		t.Fatalf("set session token: %v", err)
	}

	acc, _ := r.Get("A2")
	if acc.AccessToken != "tok-123" || acc.RequestToken != "req-456" {
		t.Errorf("token not updated in memory: %+v", acc)
	}

	// A fresh registry over the same file must see the new token.
	r2 := New(&FileStore{Path: path})
	if err := r2.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	acc2, _ := r2.Get("A2")
	if acc2.AccessToken != "tok-123" {
		t.Errorf("token not persisted, got %q", acc2.AccessToken)
	}
}

type failingStore struct{ loaded []model.Account }

func (s *failingStore) Load() ([]model.Account, error) { return s.loaded, nil }
func (s *failingStore) Save([]model.Account) error     { return errors.New("disk full") }

func TestRegistry_SaveFailureKeepsMutation(t *testing.T) {
	store := &failingStore{loaded: []model.Account{
		{AccountID: "A1", Primary: true},
	}}
	r := New(store)
	if err := r.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	err := r.SetSessionToken("A1", "tok", "req")
	var pe *model.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}

	// In-memory state stays authoritative.
	acc, _ := r.Get("A1")
	if acc.AccessToken != "tok" {
		t.Errorf("mutation rolled back, got %q", acc.AccessToken)
	}
}
