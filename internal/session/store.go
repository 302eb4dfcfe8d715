package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	credentialFileName           = "credential"
	stateDirectoryPermissions    = 0o700
	credentialFilePermissions    = 0o600
	errorMessageMissingStateDir  = "session: missing state directory"
	errorMessageWriteCredential  = "session: write credential"
	errorMessageReadCredential   = "session: read credential"
	errorMessageRemoveCredential = "session: remove credential"
)

// ErrMissingStateDirectory indicates the credential store was configured
// without a state directory.
var ErrMissingStateDirectory = errors.New(errorMessageMissingStateDir)

// Store persists the single bearer credential of the operator session. It is
// the process-wide analogue of the browser's one localStorage key.
type Store interface {
	Load() (string, error)
	Save(credential string) error
	Clear() error
}

// FileStore keeps the credential in a single file under the console state
// directory.
type FileStore struct {
	stateDirectory string
}

// NewFileStore creates a FileStore rooted at the provided state directory.
func NewFileStore(stateDirectory string) (*FileStore, error) {
	trimmedDirectory := strings.TrimSpace(stateDirectory)
	if trimmedDirectory == "" {
		return nil, ErrMissingStateDirectory
	}
	return &FileStore{stateDirectory: trimmedDirectory}, nil
}

func (store *FileStore) credentialPath() string {
	return filepath.Join(store.stateDirectory, credentialFileName)
}

// Load returns the persisted credential, or the empty string when none is stored.
func (store *FileStore) Load() (string, error) {
	contents, readErr := os.ReadFile(store.credentialPath())
	if readErr != nil {
		if errors.Is(readErr, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("%s: %w", errorMessageReadCredential, readErr)
	}
	return strings.TrimSpace(string(contents)), nil
}

// Save persists the credential, creating the state directory on demand.
func (store *FileStore) Save(credential string) error {
	if mkdirErr := os.MkdirAll(store.stateDirectory, stateDirectoryPermissions); mkdirErr != nil {
		return fmt.Errorf("%s: %w", errorMessageWriteCredential, mkdirErr)
	}
	if writeErr := os.WriteFile(store.credentialPath(), []byte(credential), credentialFilePermissions); writeErr != nil {
		return fmt.Errorf("%s: %w", errorMessageWriteCredential, writeErr)
	}
	return nil
}

// Clear removes the persisted credential. Clearing an absent credential is not
// an error.
func (store *FileStore) Clear() error {
	removeErr := os.Remove(store.credentialPath())
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", errorMessageRemoveCredential, removeErr)
	}
	return nil
}
