package kma

import (
	"context"
	"fmt"

	"github.com/couchcryptid/coil-condensation-monitor/internal/store"
)

// Keys are the service keys for the short-range and mid-range products.
// An empty key means the product is not configured.
type Keys struct {
	Short string
	Mid   string
}

// KeySource resolves the keys to use for a request.
type KeySource interface {
	Keys(ctx context.Context) (Keys, error)
}

// StaticKeys is a fixed KeySource.
type StaticKeys Keys

func (k StaticKeys) Keys(context.Context) (Keys, error) { return Keys(k), nil }

// SettingReader is the subset of store.Backend that StoredKeys reads.
type SettingReader interface {
	Setting(ctx context.Context, key string) (string, bool, error)
}

// StoredKeys prefers keys saved in settings and falls back to the environment.
type StoredKeys struct {
	settings SettingReader
	fallback Keys
}

// NewStoredKeys creates a settings-backed KeySource.
func NewStoredKeys(settings SettingReader, fallback Keys) *StoredKeys {
	return &StoredKeys{settings: settings, fallback: fallback}
}

func (k *StoredKeys) Keys(ctx context.Context) (Keys, error) {
	out := k.fallback
	short, ok, err := k.settings.Setting(ctx, store.SettingShortForecastKey)
	if err != nil {
		return Keys{}, fmt.Errorf("load short forecast key: %w", err)
	}
	if ok && short != "" {
		out.Short = short
	}
	mid, ok, err := k.settings.Setting(ctx, store.SettingMidForecastKey)
	if err != nil {
		return Keys{}, fmt.Errorf("load mid forecast key: %w", err)
	}
	if ok && mid != "" {
		out.Mid = mid
	}
	return out, nil
}
