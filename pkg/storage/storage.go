// Package storage keeps opaque blobs at rest. EncryptedFile seals each blob
// with XChaCha20-Poly1305 under a key stretched from a passphrase with
// Argon2id and replaces the file atomically.
package storage

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/bastiangx/kanaserve/internal/utils"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrNotFound is returned by Load when nothing was saved yet.
	ErrNotFound = errors.New("storage: not found")
	// ErrDecrypt is returned when the blob fails authentication.
	ErrDecrypt = errors.New("storage: decrypt failed")
	// ErrFormat is returned for files that are not sealed blobs.
	ErrFormat = errors.New("storage: unknown format")
)

var magic = []byte("KSH1")

const saltSize = 16

// KeyParams tunes the Argon2id key derivation.
type KeyParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultKeyParams is used when EncryptedFile.Params is zero.
var DefaultKeyParams = KeyParams{Time: 1, Memory: 64 * 1024, Threads: 4}

// EncryptedFile stores one sealed blob at Path.
type EncryptedFile struct {
	Path   string
	Params KeyParams

	passphrase []byte

	mu   sync.Mutex
	salt []byte
	key  []byte
}

func NewEncryptedFile(path, passphrase string) *EncryptedFile {
	return &EncryptedFile{Path: path, passphrase: []byte(passphrase)}
}

func (f *EncryptedFile) params() KeyParams {
	p := f.Params
	if p.Time == 0 {
		p.Time = DefaultKeyParams.Time
	}
	if p.Memory == 0 {
		p.Memory = DefaultKeyParams.Memory
	}
	if p.Threads == 0 {
		p.Threads = DefaultKeyParams.Threads
	}
	return p
}

// deriveKey caches the key for the last salt seen.
func (f *EncryptedFile) deriveKey(salt []byte) []byte {
	if f.key != nil && bytes.Equal(f.salt, salt) {
		return f.key
	}
	p := f.params()
	f.salt = bytes.Clone(salt)
	f.key = argon2.IDKey(f.passphrase, salt, p.Time, p.Memory, p.Threads, chacha20poly1305.KeySize)
	return f.key
}

// Save seals data and writes it through a temp file and rename.
func (f *EncryptedFile) Save(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	salt := f.salt
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("generate salt: %w", err)
		}
	}
	aead, err := chacha20poly1305.NewX(f.deriveKey(salt))
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, len(magic)+saltSize+len(nonce)+len(data)+aead.Overhead())
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, data, magic)

	if err := utils.WriteFileAtomic(f.Path, out, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	return nil
}

// Load reads and opens the blob. A missing file is ErrNotFound.
func (f *EncryptedFile) Load() ([]byte, error) {
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	header := len(magic) + saltSize + chacha20poly1305.NonceSizeX
	if len(raw) < header || !bytes.Equal(raw[:len(magic)], magic) {
		return nil, ErrFormat
	}
	salt := raw[len(magic) : len(magic)+saltSize]
	nonce := raw[len(magic)+saltSize : header]
	aead, err := chacha20poly1305.NewX(f.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	data, err := aead.Open(nil, nonce, raw[header:], magic)
	if err != nil {
		return nil, ErrDecrypt
	}
	return data, nil
}

// Remove deletes the file. A missing file is not an error.
func (f *EncryptedFile) Remove() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Memory keeps the blob in process. Tests and --no-persist runs use it.
type Memory struct {
	mu    sync.Mutex
	data  []byte
	saved bool
	saves int
	fail  error
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.data = bytes.Clone(data)
	m.saved = true
	m.saves++
	return nil
}

func (m *Memory) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	if !m.saved {
		return nil, ErrNotFound
	}
	return bytes.Clone(m.data), nil
}

// Saves counts successful Save calls.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// FailWith makes every later call return err. A nil err clears the failure.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}
