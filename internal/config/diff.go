package config

// ConfigDiff describes what changed between two configs. Hot-reloadable
// fields carry the new value; everything else is summarised in
// RestartRequired so the server can log what a reload could not apply.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ThresholdChanged bool
	NewThreshold     float64

	FrameLimitsChanged bool
	NewFrameMinWidth   int
	NewFrameMinHeight  int

	// RestartRequired lists changed sections that only take effect after a
	// restart (listen address, extractor, store).
	RestartRequired []string
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ThresholdChanged || d.FrameLimitsChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Match.AcceptThreshold != new.Match.AcceptThreshold {
		d.ThresholdChanged = true
		d.NewThreshold = new.Match.AcceptThreshold
	}

	if old.Gateway.FrameMinWidth != new.Gateway.FrameMinWidth ||
		old.Gateway.FrameMinHeight != new.Gateway.FrameMinHeight {
		d.FrameLimitsChanged = true
		d.NewFrameMinWidth = new.Gateway.FrameMinWidth
		d.NewFrameMinHeight = new.Gateway.FrameMinHeight
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.TLS != new.Server.TLS {
		if old.Server.TLS == nil || new.Server.TLS == nil || *old.Server.TLS != *new.Server.TLS {
			d.RestartRequired = append(d.RestartRequired, "server.tls")
		}
	}
	if old.Extractor != new.Extractor {
		d.RestartRequired = append(d.RestartRequired, "extractor")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Gateway.MaxImageBytes != new.Gateway.MaxImageBytes ||
		old.Gateway.FeedbackRate != new.Gateway.FeedbackRate ||
		old.Gateway.FeedbackBurst != new.Gateway.FeedbackBurst ||
		old.Gateway.IdleTimeoutSeconds != new.Gateway.IdleTimeoutSeconds {
		d.RestartRequired = append(d.RestartRequired, "gateway")
	}

	return d
}
