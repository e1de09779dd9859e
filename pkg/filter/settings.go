package filter

import (
	"context"
	"encoding/json"
	"log/slog"

	"fieldtrack/pkg/store"
)

const settingsKey = "filter.settings"

// LoadSettings reads persisted settings from the state store. A missing or
// unparsable record falls back to defaults.
func LoadSettings(ctx context.Context, st store.StateStore) Settings {
	raw, ok := st.GetState(ctx, settingsKey)
	if !ok {
		return DefaultSettings()
	}

	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		slog.Warn("Filter: discarding corrupt persisted settings", "error", err)
		return DefaultSettings()
	}
	return s
}

// SaveSettings persists settings to the state store.
func SaveSettings(ctx context.Context, st store.StateStore, s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return st.SetState(ctx, settingsKey, string(data))
}
