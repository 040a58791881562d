package completion

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"coach-backend/internal/shared/telemetry"
)

// Rate is the USD price per 1,000 tokens.
type Rate struct {
	InputPer1K  float64 `mapstructure:"input"`
	OutputPer1K float64 `mapstructure:"output"`
}

// DefaultRates is the built-in price list.
func DefaultRates() map[string]Rate {
	return map[string]Rate{
		"gpt-3.5-turbo": {InputPer1K: 0.0015, OutputPer1K: 0.002},
		"gpt-4":         {InputPer1K: 0.03, OutputPer1K: 0.06},
		"gpt-4-turbo":   {InputPer1K: 0.01, OutputPer1K: 0.03},
	}
}

// RateTable maps model names to prices. It is safe for concurrent use and
// can be replaced at runtime.
type RateTable struct {
	mu    sync.RWMutex
	rates map[string]Rate
}

// NewRateTable copies rates into a new table. Nil means DefaultRates.
func NewRateTable(rates map[string]Rate) *RateTable {
	t := &RateTable{}
	if rates == nil {
		rates = DefaultRates()
	}
	t.Set(rates)
	return t
}

// Set replaces every rate.
func (t *RateTable) Set(rates map[string]Rate) {
	next := make(map[string]Rate, len(rates))
	for k, v := range rates {
		next[strings.ToLower(strings.TrimSpace(k))] = v
	}
	t.mu.Lock()
	t.rates = next
	t.mu.Unlock()
}

// Lookup returns the rate for model.
func (t *RateTable) Lookup(model string) (Rate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rates[strings.ToLower(strings.TrimSpace(model))]
	return r, ok
}

// Cost prices a call. Unknown models cost 0.
func (t *RateTable) Cost(model string, promptTokens, completionTokens int) float64 {
	r, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return float64(promptTokens)/1000*r.InputPer1K + float64(completionTokens)/1000*r.OutputPer1K
}

// LoadRateTable reads a rate file (yaml, json or toml) with a top-level
// "models" map and keeps the table in sync with later edits to the file.
// Entries in the file override the defaults; models absent from it keep
// their default price.
func LoadRateTable(path string) (*RateTable, error) {
	t := NewRateTable(nil)
	if strings.TrimSpace(path) == "" {
		return t, nil
	}

	// Model names contain dots, so the default key delimiter cannot be used.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	if err := t.reload(v); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if err := t.reload(v); err != nil {
			telemetry.Error("rates.reload_failed", map[string]any{"file": e.Name, "error": err})
			return
		}
		telemetry.Info("rates.reloaded", map[string]any{"file": e.Name})
	})
	v.WatchConfig()
	return t, nil
}

func (t *RateTable) reload(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read rate table: %w", err)
	}
	var fromFile map[string]Rate
	if err := v.UnmarshalKey("models", &fromFile); err != nil {
		return fmt.Errorf("decode rate table: %w", err)
	}
	merged := DefaultRates()
	for k, r := range fromFile {
		merged[k] = r
	}
	t.Set(merged)
	return nil
}
