package testutil

import "sync"

// MemoryCredentialStore is an in-memory session.Store for tests.
type MemoryCredentialStore struct {
	stateMutex sync.Mutex
	credential string
}

// NewMemoryCredentialStore creates an empty MemoryCredentialStore.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

// Load returns the stored credential.
func (store *MemoryCredentialStore) Load() (string, error) {
	store.stateMutex.Lock()
	defer store.stateMutex.Unlock()
	return store.credential, nil
}

// Save replaces the stored credential.
func (store *MemoryCredentialStore) Save(credential string) error {
	store.stateMutex.Lock()
	defer store.stateMutex.Unlock()
	store.credential = credential
	return nil
}

// Clear removes the stored credential.
func (store *MemoryCredentialStore) Clear() error {
	store.stateMutex.Lock()
	defer store.stateMutex.Unlock()
	store.credential = ""
	return nil
}
