package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func useFileBackend(t *testing.T) *Store {
	t.Helper()
	t.Setenv("FAULTLINE_KEY_BACKEND", "file")
	t.Setenv("FAULTLINE_MASTER_KEY", "")
	return NewStore(t.TempDir())
}

func TestStoreRoundTrip(t *testing.T) {
	st := useFileBackend(t)

	if st.Exists() {
		t.Fatal("store should not exist before first Set")
	}
	if err := st.Set(NameAnthropicKey, "sk-ant-test"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := st.Set(NameSlackBotToken, "xoxb-test"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !st.Exists() {
		t.Fatal("store file missing after Set")
	}

	// A fresh Store must read the same values via the persisted key file.
	again := NewStore(st.Dir)
	kv, err := again.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if kv[NameAnthropicKey] != "sk-ant-test" || kv[NameSlackBotToken] != "xoxb-test" {
		t.Fatalf("unexpected values: %v", kv)
	}

	names, err := again.Names()
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) != 2 || names[0] != NameAnthropicKey || names[1] != NameSlackBotToken {
		t.Fatalf("unexpected names: %v", names)
	}

	if err := again.Unset(NameSlackBotToken); err != nil {
		t.Fatalf("Unset: %v", err)
	}
	if err := again.Unset(NameSlackBotToken); err == nil {
		t.Fatal("expected error unsetting a missing name")
	}
	kv, err = again.Load()
	if err != nil {
		t.Fatalf("Load after Unset: %v", err)
	}
	if _, ok := kv[NameSlackBotToken]; ok {
		t.Fatal("unset secret still present")
	}
}

func TestLoadMissingStore(t *testing.T) {
	st := useFileBackend(t)
	kv, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(kv) != 0 {
		t.Fatalf("expected empty map, got %v", kv)
	}
}

func TestMasterKeyEnvOverride(t *testing.T) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FAULTLINE_MASTER_KEY", base64.RawStdEncoding.EncodeToString(raw))
	st := NewStore(t.TempDir())

	if err := st.Set(NameFixToken, "ghp_test"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	kv, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if kv[NameFixToken] != "ghp_test" {
		t.Fatalf("unexpected value: %q", kv[NameFixToken])
	}

	// No key material may land on disk when the env key is in use.
	if _, err := os.Stat(filepath.Join(st.Dir, keyFileName)); !os.IsNotExist(err) {
		t.Fatal("key file written despite FAULTLINE_MASTER_KEY")
	}
}

func TestLoadRejectsTamper(t *testing.T) {
	st := useFileBackend(t)
	if err := st.Set(NameAPIToken, "token-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, err := os.ReadFile(st.Path())
	if err != nil {
		t.Fatal(err)
	}
	var doc envelope
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	flip := byte('A')
	if doc.Ciphertext[0] == 'A' {
		flip = 'B'
	}
	doc.Ciphertext = string(flip) + doc.Ciphertext[1:]
	tampered, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(st.Path(), tampered, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := st.Load(); err == nil || !strings.Contains(err.Error(), "decrypt") {
		t.Fatalf("expected decrypt error, got %v", err)
	}
}

func TestDecodeKeyRejectsWrongLength(t *testing.T) {
	short := base64.RawStdEncoding.EncodeToString(make([]byte, 16))
	if _, err := decodeKey(short); err == nil {
		t.Fatal("expected error for 16-byte key")
	}
}
