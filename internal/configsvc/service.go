// Package configsvc owns the DB-resident, schema-validated application
// config: default model, message caps, request timeouts, and per-provider
// credentials (encrypted at rest).
package configsvc

import (
	"context"
	"encoding/json"

	"github.com/consultd/consultd/internal/apierr"
	"github.com/consultd/consultd/internal/model"
)

const (
	keyDefaultModel   = "defaultModel"
	keyMaxMessages    = "maxMessages"
	keyRequestTimeout = "requestTimeout"
	keyAutoOpenWebUI  = "autoOpenWebUI"
	keyProviders      = "providers"
)

var defaults = model.EffectiveConfig{
	DefaultModel:   "deepseek-reasoner",
	MaxMessages:    5,
	RequestTimeout: 180000,
	AutoOpenWebUI:  false,
	Providers: map[string]model.ProviderConfig{
		"deepseek": {Enabled: false},
		"openai":   {Enabled: false},
	},
}

// Backend is the subset of store.Store the config service needs; kept as
// an interface so tests can fake it without an on-disk database.
type Backend interface {
	ListConfig(ctx context.Context) (map[string]string, error)
	SetConfigValue(ctx context.Context, key, value string) error
}

// Notifier broadcasts config:updated after a successful patch. Matches
// eventhub.Hub's Broadcast signature loosely enough to avoid a direct
// import cycle; callers pass hub.Broadcast bound to the hub's EventType.
type Notifier func(payload interface{})

// Service composes stored overrides over the fixed defaults and validates
// every write against the fixed schema.
type Service struct {
	store  Backend
	notify Notifier
}

// New builds a Service. notify may be nil (no broadcast, e.g. in tests).
func New(store Backend, notify Notifier) *Service {
	return &Service{store: store, notify: notify}
}

// Get returns the effective config: defaults overridden by whatever has
// been persisted, with provider API keys decrypted for internal callers
// (the REST layer is responsible for masking before returning to a client).
func (s *Service) Get(ctx context.Context) (model.EffectiveConfig, error) {
	cfg := defaults
	cfg.Providers = cloneProviders(defaults.Providers)

	rows, err := s.store.ListConfig(ctx)
	if err != nil {
		return model.EffectiveConfig{}, apierr.Wrap(apierr.Internal, err, "load config")
	}

	if v, ok := rows[keyDefaultModel]; ok {
		cfg.DefaultModel = v
	}
	if v, ok := rows[keyMaxMessages]; ok {
		var n int
		if err := json.Unmarshal([]byte(v), &n); err == nil {
			cfg.MaxMessages = n
		}
	}
	if v, ok := rows[keyRequestTimeout]; ok {
		var n int
		if err := json.Unmarshal([]byte(v), &n); err == nil {
			cfg.RequestTimeout = n
		}
	}
	if v, ok := rows[keyAutoOpenWebUI]; ok {
		var b bool
		if err := json.Unmarshal([]byte(v), &b); err == nil {
			cfg.AutoOpenWebUI = b
		}
	}
	if v, ok := rows[keyProviders]; ok {
		var stored map[string]storedProvider
		if err := json.Unmarshal([]byte(v), &stored); err == nil {
			for name, p := range stored {
				apiKey := ""
				if p.APIKeyCiphertext != "" {
					decrypted, err := Decrypt(p.APIKeyCiphertext)
					if err == nil {
						apiKey = decrypted
					}
				}
				cfg.Providers[name] = model.ProviderConfig{
					Enabled: p.Enabled,
					APIKey:  apiKey,
					BaseURL: p.BaseURL,
				}
			}
		}
	}

	return cfg, nil
}

// storedProvider is the on-disk shape of one provider's config row:
// the API key is ciphertext, never plaintext.
type storedProvider struct {
	Enabled          bool   `json:"enabled"`
	APIKeyCiphertext string `json:"apiKeyCiphertext,omitempty"`
	BaseURL          string `json:"baseUrl,omitempty"`
}

// Patch is the input to Update: any subset of fields, nil meaning
// "leave unchanged." Providers is keyed by provider name.
type Patch struct {
	DefaultModel   *string
	MaxMessages    *int
	RequestTimeout *int
	AutoOpenWebUI  *bool
	Providers      map[string]model.ProviderConfig
}

// Update validates and applies patch, encrypting any provider API keys
// before persisting, then broadcasts config:updated.
func (s *Service) Update(ctx context.Context, patch Patch) (model.EffectiveConfig, error) {
	if patch.DefaultModel == nil && patch.MaxMessages == nil && patch.RequestTimeout == nil &&
		patch.AutoOpenWebUI == nil && patch.Providers == nil {
		return model.EffectiveConfig{}, apierr.New(apierr.ValidationError, "empty patch")
	}

	if patch.MaxMessages != nil && (*patch.MaxMessages < 1 || *patch.MaxMessages > 50) {
		return model.EffectiveConfig{}, apierr.WithField(apierr.ValidationError, "maxMessages", "must be in [1, 50]")
	}
	if patch.RequestTimeout != nil && (*patch.RequestTimeout < 30000 || *patch.RequestTimeout > 600000) {
		return model.EffectiveConfig{}, apierr.WithField(apierr.ValidationError, "requestTimeout", "must be in [30000, 600000] ms")
	}

	if patch.DefaultModel != nil {
		if err := s.store.SetConfigValue(ctx, keyDefaultModel, *patch.DefaultModel); err != nil {
			return model.EffectiveConfig{}, apierr.Wrap(apierr.Internal, err, "persist defaultModel")
		}
	}
	if patch.MaxMessages != nil {
		if err := s.setJSON(ctx, keyMaxMessages, *patch.MaxMessages); err != nil {
			return model.EffectiveConfig{}, err
		}
	}
	if patch.RequestTimeout != nil {
		if err := s.setJSON(ctx, keyRequestTimeout, *patch.RequestTimeout); err != nil {
			return model.EffectiveConfig{}, err
		}
	}
	if patch.AutoOpenWebUI != nil {
		if err := s.setJSON(ctx, keyAutoOpenWebUI, *patch.AutoOpenWebUI); err != nil {
			return model.EffectiveConfig{}, err
		}
	}
	if patch.Providers != nil {
		current, err := s.Get(ctx)
		if err != nil {
			return model.EffectiveConfig{}, err
		}
		stored := make(map[string]storedProvider, len(current.Providers))
		for name, existing := range current.Providers {
			sp := storedProvider{Enabled: existing.Enabled, BaseURL: existing.BaseURL}
			if existing.APIKey != "" {
				ct, err := Encrypt(existing.APIKey)
				if err != nil {
					return model.EffectiveConfig{}, apierr.Wrap(apierr.Internal, err, "encrypt api key")
				}
				sp.APIKeyCiphertext = ct
			}
			stored[name] = sp
		}
		for name, p := range patch.Providers {
			sp := stored[name]
			sp.Enabled = p.Enabled
			sp.BaseURL = p.BaseURL
			if p.APIKey != "" {
				ct, err := Encrypt(p.APIKey)
				if err != nil {
					return model.EffectiveConfig{}, apierr.Wrap(apierr.Internal, err, "encrypt api key")
				}
				sp.APIKeyCiphertext = ct
			}
			stored[name] = sp
		}
		data, err := json.Marshal(stored)
		if err != nil {
			return model.EffectiveConfig{}, apierr.Wrap(apierr.Internal, err, "marshal providers")
		}
		if err := s.store.SetConfigValue(ctx, keyProviders, string(data)); err != nil {
			return model.EffectiveConfig{}, apierr.Wrap(apierr.Internal, err, "persist providers")
		}
	}

	updated, err := s.Get(ctx)
	if err != nil {
		return model.EffectiveConfig{}, err
	}

	if s.notify != nil {
		s.notify(Masked(updated))
	}

	return updated, nil
}

func (s *Service) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apierr.Wrap(apierr.Internal, err, "marshal "+key)
	}
	if err := s.store.SetConfigValue(ctx, key, string(data)); err != nil {
		return apierr.Wrap(apierr.Internal, err, "persist "+key)
	}
	return nil
}

func cloneProviders(in map[string]model.ProviderConfig) map[string]model.ProviderConfig {
	out := make(map[string]model.ProviderConfig, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Masked returns a copy of cfg with every provider API key replaced by
// its masked display form, safe to hand to a REST caller.
func Masked(cfg model.EffectiveConfig) model.EffectiveConfig {
	out := cfg
	out.Providers = make(map[string]model.ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		masked := p
		if p.APIKey != "" {
			masked.APIKey = Mask(p.APIKey)
		}
		out.Providers[name] = masked
	}
	return out
}
