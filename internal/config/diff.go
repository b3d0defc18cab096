package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	// QualityChanged is true when any quality tuning field changed.
	QualityChanged bool
	// NewQuality holds the new quality settings when QualityChanged is true.
	NewQuality QualityConfig

	// InsightsChanged is true when the insights pipeline toggles changed.
	InsightsChanged bool
	NewInsights     InsightsConfig

	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; provider and
// storage changes require one.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Quality != new.Quality {
		d.QualityChanged = true
		d.NewQuality = new.Quality
	}

	if old.Insights != new.Insights {
		d.InsightsChanged = true
		d.NewInsights = new.Insights
	}

	return d
}
