package configsvc

import (
	"context"
	"testing"

	"github.com/consultd/consultd/internal/model"
)

type fakeBackend struct {
	rows map[string]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{rows: make(map[string]string)}
}

func (f *fakeBackend) ListConfig(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(f.rows))
	for k, v := range f.rows {
		out[k] = v
	}
	return out, nil
}

func (f *fakeBackend) SetConfigValue(ctx context.Context, key, value string) error {
	f.rows[key] = value
	return nil
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ct, err := Encrypt("sk-super-secret-123")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if pt != "sk-super-secret-123" {
		t.Fatalf("round trip mismatch: got %q", pt)
	}
}

func TestMask(t *testing.T) {
	if got := Mask("sk-abcd1234"); got != "••••••••1234" {
		t.Fatalf("unexpected mask: %q", got)
	}
	if got := Mask("ab"); got != "••••••••" {
		t.Fatalf("unexpected mask for short secret: %q", got)
	}
}

func TestGetReturnsDefaults(t *testing.T) {
	svc := New(newFakeBackend(), nil)
	cfg, err := svc.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.DefaultModel != "deepseek-reasoner" || cfg.MaxMessages != 5 || cfg.RequestTimeout != 180000 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestUpdateRejectsEmptyPatch(t *testing.T) {
	svc := New(newFakeBackend(), nil)
	_, err := svc.Update(context.Background(), Patch{})
	if err == nil {
		t.Fatal("expected error for empty patch")
	}
}

func TestUpdateRejectsOutOfRangeMaxMessages(t *testing.T) {
	svc := New(newFakeBackend(), nil)
	tooHigh := 51
	_, err := svc.Update(context.Background(), Patch{MaxMessages: &tooHigh})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestUpdatePersistsAndEncryptsProviderKey(t *testing.T) {
	backend := newFakeBackend()
	var broadcast interface{}
	svc := New(backend, func(payload interface{}) { broadcast = payload })

	defaultModel := "deepseek-chat"
	_, err := svc.Update(context.Background(), Patch{
		DefaultModel: &defaultModel,
		Providers: map[string]model.ProviderConfig{
			"deepseek": {Enabled: true, APIKey: "sk-test-key-9999"},
		},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, ok := backend.rows[keyProviders]; !ok {
		t.Fatal("expected providers row to be persisted")
	}
	if broadcast == nil {
		t.Fatal("expected config:updated broadcast")
	}

	cfg, err := svc.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.Providers["deepseek"].APIKey != "sk-test-key-9999" {
		t.Fatalf("expected decrypted key on internal Get, got %q", cfg.Providers["deepseek"].APIKey)
	}

	masked := Masked(cfg)
	if masked.Providers["deepseek"].APIKey == "sk-test-key-9999" {
		t.Fatal("expected masked key to differ from plaintext")
	}
}
