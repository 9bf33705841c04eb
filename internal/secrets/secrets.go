// Package secrets stores provider and channel credentials encrypted at
// rest. Values are sealed with AES-256-GCM under a master key kept in
// the OS keyring, falling back to a key file for headless hosts.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	storeFileName = "secrets.enc"
	keyFileName   = "master.key"

	keyringService = "faultline"
	keyringUser    = "master-key"

	storeAAD = "faultline-secrets-v1"
)

// Names the config loader reads back out of the store. Unknown names are
// stored but never consulted.
const (
	NameAnthropicKey  = "anthropic_api_key"
	NameOpenAIKey     = "openai_api_key"
	NameOpenRouterKey = "openrouter_api_key"
	NameSlackBotToken = "slack_bot_token"
	NameSlackAppToken = "slack_app_token"
	NameFixToken      = "fix_token"
	NameAPIToken      = "api_token"
)

// KnownNames returns the secret names the daemon consults, sorted.
func KnownNames() []string {
	return []string{
		NameAnthropicKey,
		NameAPIToken,
		NameFixToken,
		NameOpenAIKey,
		NameOpenRouterKey,
		NameSlackBotToken,
		NameSlackAppToken,
	}
}

// envelope is the on-disk form of the sealed store.
type envelope struct {
	Version    string `json:"version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Store is a sealed name/value credential store rooted in a data
// directory. The zero value is not usable; construct with NewStore.
type Store struct {
	Dir string
}

// NewStore returns a store rooted at dir, typically the daemon data dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Path returns the sealed store file location.
func (s *Store) Path() string {
	return filepath.Join(s.Dir, storeFileName)
}

// Exists reports whether a sealed store file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Load decrypts and returns all stored secrets. A missing store file
// yields an empty map, not an error.
func (s *Store) Load() (map[string]string, error) {
	data, err := os.ReadFile(s.Path())
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	key, err := masterKey(s.Dir)
	if err != nil {
		return nil, err
	}
	return unseal(key, data)
}

// Set stores a secret under name, creating the store and master key on
// first use.
func (s *Store) Set(name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("empty secret name")
	}
	kv, err := s.Load()
	if err != nil {
		return err
	}
	kv[name] = value
	return s.save(kv)
}

// Unset removes a secret. Removing a name that is not stored is an error
// so typos surface.
func (s *Store) Unset(name string) error {
	kv, err := s.Load()
	if err != nil {
		return err
	}
	if _, ok := kv[name]; !ok {
		return fmt.Errorf("no secret named %q", name)
	}
	delete(kv, name)
	return s.save(kv)
}

// Names returns the stored secret names, sorted.
func (s *Store) Names() ([]string, error) {
	kv, err := s.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(kv))
	for name := range kv {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) save(kv map[string]string) error {
	key, err := masterKey(s.Dir)
	if err != nil {
		return err
	}
	data, err := seal(key, kv)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.Path(), data, 0o600)
}

// seal encrypts the secret map into an envelope document.
func seal(key []byte, kv map[string]string) ([]byte, error) {
	plain, err := json.Marshal(kv)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, plain, []byte(storeAAD))
	doc := envelope{
		Version:    "v1",
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(ciphertext),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// unseal decrypts an envelope document back into the secret map.
func unseal(key, data []byte) (map[string]string, error) {
	var doc envelope
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("sealed store is not an envelope: %w", err)
	}
	if doc.Version != "v1" {
		return nil, fmt.Errorf("unsupported sealed store version: %q", doc.Version)
	}
	nonce, err := base64.RawStdEncoding.DecodeString(strings.TrimSpace(doc.Nonce))
	if err != nil {
		return nil, err
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(strings.TrimSpace(doc.Ciphertext))
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, []byte(storeAAD))
	if err != nil {
		return nil, fmt.Errorf("decrypt sealed store: %w", err)
	}
	kv := map[string]string{}
	if err := json.Unmarshal(plain, &kv); err != nil {
		return nil, err
	}
	return kv, nil
}

// masterKey returns the 32-byte AES key for the store, creating one on
// first use. FAULTLINE_MASTER_KEY overrides every backend;
// FAULTLINE_KEY_BACKEND pins one of keyring or file.
func masterKey(dir string) ([]byte, error) {
	if raw := strings.TrimSpace(os.Getenv("FAULTLINE_MASTER_KEY")); raw != "" {
		key, err := decodeKey(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid FAULTLINE_MASTER_KEY: %w", err)
		}
		return key, nil
	}
	switch keyBackend() {
	case "keyring":
		return keyringMasterKey()
	case "file":
		return fileMasterKey(dir)
	default:
		if key, err := keyringMasterKey(); err == nil {
			return key, nil
		}
		return fileMasterKey(dir)
	}
}

func keyBackend() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("FAULTLINE_KEY_BACKEND")))
	switch v {
	case "keyring", "file":
		return v
	default:
		return "auto"
	}
}

func keyringMasterKey() ([]byte, error) {
	val, err := keyring.Get(keyringService, keyringUser)
	if err == nil {
		return decodeKey(val)
	}
	key, err := newKey()
	if err != nil {
		return nil, err
	}
	encoded := base64.RawStdEncoding.EncodeToString(key)
	if err := keyring.Set(keyringService, keyringUser, encoded); err != nil {
		return nil, err
	}
	return key, nil
}

func fileMasterKey(dir string) ([]byte, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, keyFileName)
	if data, err := os.ReadFile(path); err == nil {
		return decodeKey(strings.TrimSpace(string(data)))
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	key, err := newKey()
	if err != nil {
		return nil, err
	}
	encoded := base64.RawStdEncoding.EncodeToString(key)
	if err := os.WriteFile(path, []byte(encoded+"\n"), 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

func newKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func decodeKey(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	decoded := make([]byte, base64.RawStdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.RawStdEncoding.Decode(decoded, []byte(trimmed))
	if err != nil {
		return nil, err
	}
	if n != 32 {
		return nil, fmt.Errorf("master key is %d bytes, want 32", n)
	}
	return decoded[:n], nil
}
