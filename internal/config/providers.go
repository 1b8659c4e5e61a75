package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ProviderKey is one credential in a provider's key ring.
type ProviderKey struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// KeyRing holds every configured API key for one provider plus the id of the
// key currently in use.
type KeyRing struct {
	Provider    string
	Keys        []ProviderKey
	ActiveKeyID string
}

// Active returns the key selected by ActiveKeyID, falling back to the first
// configured key.
func (r KeyRing) Active() (ProviderKey, bool) {
	if len(r.Keys) == 0 {
		return ProviderKey{}, false
	}
	if r.ActiveKeyID != "" {
		for _, k := range r.Keys {
			if k.ID == r.ActiveKeyID {
				return k, true
			}
		}
	}
	return r.Keys[0], true
}

const (
	keyRingSuffix   = "_API_KEYS"
	activeSuffix    = "_ACTIVE_API_KEY_ID"
	legacyKeySuffix = "_API_KEY"
)

// resolveProviderKeys builds the key ring map from an environment snapshot.
//
// For every provider P three variables participate:
//   - P_API_KEYS: JSON array, either of {id,key} objects or of bare strings
//   - P_ACTIVE_API_KEY_ID: id of the ring entry to use
//   - P_API_KEY: legacy single key, folded in as id "default" when the ring
//     does not already carry it
func resolveProviderKeys(env map[string]string) (map[string]KeyRing, error) {
	rings := map[string]KeyRing{}

	for name, value := range env {
		if !strings.HasSuffix(name, keyRingSuffix) || value == "" {
			continue
		}
		provider := normalizeProvider(strings.TrimSuffix(name, keyRingSuffix))
		if provider == "" {
			continue
		}
		keys, err := parseKeyRing(value)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		ring := rings[provider]
		ring.Provider = provider
		ring.Keys = keys
		rings[provider] = ring
	}

	for name, value := range env {
		if !strings.HasSuffix(name, activeSuffix) || value == "" {
			continue
		}
		provider := normalizeProvider(strings.TrimSuffix(name, activeSuffix))
		if provider == "" {
			continue
		}
		ring := rings[provider]
		ring.Provider = provider
		ring.ActiveKeyID = value
		rings[provider] = ring
	}

	for name, value := range env {
		if !strings.HasSuffix(name, legacyKeySuffix) || value == "" {
			continue
		}
		provider := normalizeProvider(strings.TrimSuffix(name, legacyKeySuffix))
		if provider == "" {
			continue
		}
		ring := rings[provider]
		ring.Provider = provider
		if !ringHasKey(ring, "default") {
			ring.Keys = append(ring.Keys, ProviderKey{ID: "default", Key: value})
		}
		rings[provider] = ring
	}

	return rings, nil
}

func parseKeyRing(raw string) ([]ProviderKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	var objects []ProviderKey
	if err := json.Unmarshal([]byte(trimmed), &objects); err == nil {
		var keys []ProviderKey
		for i, k := range objects {
			if k.Key == "" {
				continue
			}
			if k.ID == "" {
				k.ID = fmt.Sprintf("key-%d", i+1)
			}
			keys = append(keys, k)
		}
		if len(keys) > 0 {
			return keys, nil
		}
	}

	var plain []string
	if err := json.Unmarshal([]byte(trimmed), &plain); err == nil {
		var keys []ProviderKey
		for i, k := range plain {
			if k == "" {
				continue
			}
			keys = append(keys, ProviderKey{ID: fmt.Sprintf("key-%d", i+1), Key: k})
		}
		return keys, nil
	}

	return nil, fmt.Errorf("expected JSON array of keys")
}

func ringHasKey(ring KeyRing, id string) bool {
	for _, k := range ring.Keys {
		if k.ID == id {
			return true
		}
	}
	return false
}

// normalizeProvider lowercases the env prefix. The rings map is a credential
// registry keyed by whatever prefix the operator used; provider adapters look
// up the names they know.
func normalizeProvider(prefix string) string {
	return strings.ToLower(strings.TrimSpace(prefix))
}

// ProviderNames lists configured providers in stable order.
func (c RuntimeConfig) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActiveKey returns the selected API key for a provider.
func (c RuntimeConfig) ActiveKey(provider string) (ProviderKey, bool) {
	ring, ok := c.Providers[strings.ToLower(provider)]
	if !ok {
		return ProviderKey{}, false
	}
	return ring.Active()
}
