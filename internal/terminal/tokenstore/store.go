// Package tokenstore persists the device credential and employee session of a terminal.
package tokenstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the credential file inside the state directory
const FileName = "credentials.yaml"

const currentVersion = 1

var (
	// ErrNotFound means nothing is stored; a fresh terminal starts this way.
	ErrNotFound = errors.New("no credential stored")
	// ErrUnsupportedVersion means the file was written by a newer terminal.
	ErrUnsupportedVersion = errors.New("unsupported credential file version")
	// ErrCorrupt means the file exists but cannot be decoded.
	ErrCorrupt = errors.New("corrupt credential file")
)

// Credential binds the terminal to a store
type Credential struct {
	Token        string    `yaml:"token"`
	DeviceID     string    `yaml:"device_id"`
	StoreID      string    `yaml:"store_id"`
	StoreName    string    `yaml:"store_name"`
	Role         string    `yaml:"role"`
	TenantMode   string    `yaml:"tenant_mode"`
	DeviceName   string    `yaml:"device_name"`
	PairedAt     time.Time `yaml:"paired_at"`
	LastActiveAt time.Time `yaml:"last_active_at,omitempty"`
}

// EmployeeSession is the employee logged in on this terminal
type EmployeeSession struct {
	EmployeeID string    `yaml:"employee_id"`
	Name       string    `yaml:"name"`
	Role       string    `yaml:"role"`
	StoreID    string    `yaml:"store_id"`
	TenantID   string    `yaml:"tenant_id"`
	Token      string    `yaml:"token"`
	ExpiresAt  time.Time `yaml:"expires_at,omitempty"`
}

type document struct {
	Version  int              `yaml:"version"`
	Device   *Credential      `yaml:"device,omitempty"`
	Employee *EmployeeSession `yaml:"employee,omitempty"`
}

// Store is a file-backed token store. Every write replaces the whole file atomically.
type Store struct {
	mu   sync.Mutex
	path string
}

// Open returns a store in dir, creating the directory if needed
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{path: filepath.Join(dir, FileName)}, nil
}

// Path returns the credential file location
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored credential or ErrNotFound
func (s *Store) Load() (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return Credential{}, err
	}
	if doc.Device == nil || doc.Device.Token == "" {
		return Credential{}, ErrNotFound
	}
	return *doc.Device, nil
}

// Save stores c. Saving a credential with a different token than the stored one drops the
// employee session, so a fresh pairing never inherits a previous login.
func (s *Store) Save(c Credential) error {
	if c.Token == "" {
		return errors.New("credential token is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	// An unreadable file is replaced by the new credential.
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrUnsupportedVersion) && !errors.Is(err, ErrCorrupt) {
		return err
	}
	if doc.Device == nil || doc.Device.Token != c.Token {
		doc.Employee = nil
	}
	doc.Device = &c
	return s.write(doc)
}

// SaveEmployee stores the employee session next to the current credential
func (s *Store) SaveEmployee(e EmployeeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if doc.Device == nil {
		return ErrNotFound
	}
	doc.Employee = &e
	return s.write(doc)
}

// LoadEmployee returns the stored employee session or ErrNotFound
func (s *Store) LoadEmployee() (EmployeeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return EmployeeSession{}, err
	}
	if doc.Device == nil || doc.Employee == nil {
		return EmployeeSession{}, ErrNotFound
	}
	return *doc.Employee, nil
}

// ClearEmployee removes the employee session; the credential stays
func (s *Store) ClearEmployee() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if doc.Employee == nil {
		return nil
	}
	doc.Employee = nil
	return s.write(doc)
}

// Clear removes credential and employee session together. Clearing an empty store is a no-op.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

func (s *Store) read() (document, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return document{Version: currentVersion}, ErrNotFound
	}
	if err != nil {
		return document{}, fmt.Errorf("read credential file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return document{Version: currentVersion}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Version != currentVersion {
		return document{Version: currentVersion}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}
	return doc, nil
}

func (s *Store) write(doc document) error {
	doc.Version = currentVersion
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode credential file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+FileName+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}
