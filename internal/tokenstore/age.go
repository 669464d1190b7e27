// Package tokenstore holds folder access tokens encrypted at rest.
package tokenstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"filippo.io/age"

	"tidy-go/internal/config"
	"tidy-go/internal/tidy"
)

const fileSuffix = ".age"

// PassphraseFunc supplies the passphrase protecting the identity file.
type PassphraseFunc func() (string, error)

// scryptWorkFactor overrides age's default scrypt cost when positive.
var scryptWorkFactor int

// AgeStore implements tidy.TokenStore with one age-encrypted file per key.
//
// The X25519 identity lives at identityPath, optionally wrapped with a
// scrypt passphrase. It is generated on first write.
type AgeStore struct {
	dir                 string
	identityPath        string
	passphraseProtected bool
	passphrase          PassphraseFunc

	mu       sync.Mutex
	identity *age.X25519Identity
}

var _ tidy.TokenStore = (*AgeStore)(nil)

// NewAgeStore creates an AgeStore from configuration. passphrase is only
// consulted when the identity is passphrase protected.
func NewAgeStore(cfg config.TokensConfig, passphrase PassphraseFunc) *AgeStore {
	return &AgeStore{
		dir:                 cfg.Dir,
		identityPath:        cfg.IdentityPath,
		passphraseProtected: cfg.PassphraseProtected,
		passphrase:          passphrase,
	}
}

// IsConfigured reports whether the identity file exists.
func (s *AgeStore) IsConfigured() bool {
	_, err := os.Stat(s.identityPath)
	return err == nil
}

// Setup generates a new identity and writes it to the identity path.
// An empty passphrase stores the identity in plaintext with 0600 permissions.
func (s *AgeStore) Setup(passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setupLocked(passphrase)
}

func (s *AgeStore) setupLocked(passphrase string) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.identityPath), 0700); err != nil {
		return fmt.Errorf("creating identity directory: %w", err)
	}

	f, err := os.OpenFile(s.identityPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	defer f.Close()

	var w io.WriteCloser = nopWriteCloser{f}
	if passphrase != "" {
		recipient, err := age.NewScryptRecipient(passphrase)
		if err != nil {
			return fmt.Errorf("creating scrypt recipient: %w", err)
		}
		if scryptWorkFactor > 0 {
			recipient.SetWorkFactor(scryptWorkFactor)
		}
		if w, err = age.Encrypt(f, recipient); err != nil {
			return fmt.Errorf("creating encrypted writer: %w", err)
		}
	}

	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing identity: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing identity: %w", err)
	}

	s.identity = identity
	return nil
}

// unlock returns the identity, loading or creating it on first use.
func (s *AgeStore) unlock() (*age.X25519Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity != nil {
		return s.identity, nil
	}

	passphrase := ""
	if s.passphraseProtected {
		if s.passphrase == nil {
			return nil, fmt.Errorf("identity is passphrase protected but no passphrase source is set")
		}
		p, err := s.passphrase()
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		passphrase = p
	}

	data, err := os.ReadFile(s.identityPath)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.setupLocked(passphrase); err != nil {
			return nil, err
		}
		return s.identity, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	if passphrase != "" {
		scrypt, err := age.NewScryptIdentity(passphrase)
		if err != nil {
			return nil, fmt.Errorf("creating scrypt identity: %w", err)
		}
		r, err := age.Decrypt(bytes.NewReader(data), scrypt)
		if err != nil {
			return nil, fmt.Errorf("decrypting identity: %w", err)
		}
		if data, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("reading decrypted identity: %w", err)
		}
	}

	identity, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	s.identity = identity
	return identity, nil
}

func (s *AgeStore) keyPath(key string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileSuffix)
}

// Save encrypts data to the store identity and writes it atomically.
func (s *AgeStore) Save(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("token key is required")
	}
	identity, err := s.unlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".token-*")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	w, err := age.Encrypt(tmp, identity.Recipient())
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("encrypting token: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing token: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing token: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.keyPath(key)); err != nil {
		return fmt.Errorf("storing token %s: %w", key, err)
	}
	return nil
}

// Load decrypts the token for key. It returns nil, nil when the key is absent.
func (s *AgeStore) Load(ctx context.Context, key string) ([]byte, error) {
	f, err := os.Open(s.keyPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening token %s: %w", key, err)
	}
	defer f.Close()

	identity, err := s.unlock()
	if err != nil {
		return nil, err
	}

	r, err := age.Decrypt(f, identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting token %s: %w", key, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading token %s: %w", key, err)
	}
	return data, nil
}

func (s *AgeStore) Delete(ctx context.Context, key string) error {
	if err := os.Remove(s.keyPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting token %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in sorted order.
func (s *AgeStore) Keys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}

	var keys []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), fileSuffix)
		if !ok || e.IsDir() {
			continue
		}
		key, err := base64.RawURLEncoding.DecodeString(name)
		if err != nil {
			continue
		}
		keys = append(keys, string(key))
	}
	sort.Strings(keys)
	return keys, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
