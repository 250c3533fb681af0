// Package security provides credential management, log redaction, the
// approval audit trail, and input limits for engine-supplied payloads.
package security

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
)

// ErrMissingCredential is returned when a required credential is absent
// from the environment.
var ErrMissingCredential = errors.New("missing credential")

// CredentialStore is a thread-safe store for sensitive credentials.
// It is the single source of truth for secrets at runtime: the engine key
// and every tool server key are read from the environment once, here.
type CredentialStore struct {
	mu     sync.RWMutex
	creds  map[string]string
	lookup func(string) (string, bool)
}

// NewCredentialStore creates an empty credential store that reads the
// process environment.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		creds:  make(map[string]string),
		lookup: os.LookupEnv,
	}
}

// NewCredentialStoreWithLookup is NewCredentialStore with an injectable
// environment lookup, for tests.
func NewCredentialStoreWithLookup(lookup func(string) (string, bool)) *CredentialStore {
	s := NewCredentialStore()
	s.lookup = lookup
	return s
}

// Set stores a credential. If a credential with the same name already exists,
// it is overwritten.
func (s *CredentialStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[name] = value
}

// Get returns the credential value and true, or "" and false if not found.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.creds[name]
	return v, ok
}

// Has returns true if a credential with the given name exists.
func (s *CredentialStore) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.creds[name]
	return ok
}

// LoadEnv copies each named variable from the environment into the store.
// Unset and blank variables are skipped. It returns the names that were
// loaded.
func (s *CredentialStore) LoadEnv(names ...string) []string {
	var loaded []string
	for _, name := range names {
		v, ok := s.lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		s.Set(name, v)
		loaded = append(loaded, name)
	}
	return loaded
}

// Require returns an error wrapping ErrMissingCredential that lists every
// name not present in the store.
func (s *CredentialStore) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if v, ok := s.Get(name); !ok || v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
}

// Names returns a sorted list of all credential names.
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Values returns all credential values. Order is not guaranteed.
// This is intended for registering values with a Redactor.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make([]string, 0, len(s.creds))
	for _, v := range s.creds {
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}

// Len returns the number of stored credentials.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}
