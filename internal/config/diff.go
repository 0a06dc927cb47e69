package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TTSChanged is true when the primary TTS entry or any fallback changed.
	TTSChanged bool

	// RestartRequired lists top-level sections that changed but cannot be
	// applied without a restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.TTSChanged = true
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Audio, new.Audio) {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}

	return d
}
