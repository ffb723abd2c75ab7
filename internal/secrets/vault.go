// Package secrets holds the rotatable credentials of a running server and
// reloads them in place.
package secrets

import (
	"fmt"
	"strings"
	"sync"
)

// Keys read by the server. Both may change on reload.
const (
	LiteLLMMasterKey = "LITELLM_MASTER_KEY"
	APIKeyHashes     = "LLMANAGER_API_KEY_HASHES"
)

// Loader retrieves the current secret values.
type Loader func() (map[string]string, error)

// Vault holds secret values in memory and swaps them atomically on reload.
type Vault struct {
	mu       sync.RWMutex
	values   map[string]string
	loader   Loader
	onReload []func(*Vault)
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{values: vals, loader: loader}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// GetList splits a comma separated secret, dropping empty entries.
func (v *Vault) GetList(key string) []string {
	var out []string
	for _, s := range strings.Split(v.Get(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// OnReload registers fn to run after every successful reload.
func (v *Vault) OnReload(fn func(*Vault)) {
	v.mu.Lock()
	v.onReload = append(v.onReload, fn)
	v.mu.Unlock()
}

// Reload calls the loader and swaps in the new values. On error the
// existing values are kept and no callback runs.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	callbacks := append(([]func(*Vault))(nil), v.onReload...)
	v.mu.Unlock()

	for _, fn := range callbacks {
		fn(v)
	}
	return nil
}

// Redacted returns key's value masked for logs: the first two characters
// followed by ****, or only **** for values of four characters or less.
func (v *Vault) Redacted(key string) string {
	val := v.Get(key)
	switch {
	case val == "":
		return ""
	case len(val) <= 4:
		return "****"
	default:
		return val[:2] + "****"
	}
}
