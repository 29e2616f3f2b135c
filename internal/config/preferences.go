package config

import (
	"fmt"
	"sync"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const cellularKey = "preferences.use_cellular_data"

// PreferenceStore persists user preferences in the config file. It is kept
// apart from the cache store so clearing the cache never resets them.
type PreferenceStore struct {
	mu      sync.Mutex
	v       *viper.Viper
	persist bool
}

// NewPreferenceStore wraps a loaded viper instance. With persist false,
// changes stay in memory.
func NewPreferenceStore(v *viper.Viper, persist bool) *PreferenceStore {
	return &PreferenceStore{v: v, persist: persist}
}

// CellularAllowed reports whether media may stream over cellular. A value
// that is not a boolean is an error; callers decide how to fail.
func (p *PreferenceStore) CellularAllowed() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	allowed, err := cast.ToBoolE(p.v.Get(cellularKey))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", cellularKey, err)
	}
	return allowed, nil
}

// SetCellularAllowed stores the preference and writes that key alone to the
// config file.
func (p *PreferenceStore) SetCellularAllowed(allowed bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.v.Set(cellularKey, allowed)
	if !p.persist {
		return nil
	}
	return SaveSetting(p.v.ConfigFileUsed(), cellularKey, allowed)
}
