package config

import (
	"fmt"
)

// ResolverConfig tunes event accessor resolution.
type ResolverConfig struct {
	// PatternFallback enables the Remove/Off/Unsubscribe name scan for
	// events without a registered detach accessor. Defaults to true.
	PatternFallback *bool `json:"pattern_fallback"`
}

// SetDefaults applies sane defaults.
func (c *ResolverConfig) SetDefaults() {
	if c.PatternFallback == nil {
		v := true
		c.PatternFallback = &v
	}
}

// PatternFallbackEnabled reports the effective setting.
func (c ResolverConfig) PatternFallbackEnabled() bool {
	return c.PatternFallback == nil || *c.PatternFallback
}

// ListenerConfig holds subscription defaults.
type ListenerConfig struct {
	// ThrowOnFailure makes unresolvable events an error instead of a
	// logged no-op. Defaults to true.
	ThrowOnFailure *bool `json:"throw_on_failure"`
}

// SetDefaults applies sane defaults.
func (c *ListenerConfig) SetDefaults() {
	if c.ThrowOnFailure == nil {
		v := true
		c.ThrowOnFailure = &v
	}
}

// ThrowOnFailureEnabled reports the effective setting.
func (c ListenerConfig) ThrowOnFailureEnabled() bool {
	return c.ThrowOnFailure == nil || *c.ThrowOnFailure
}

// SoakConfig sizes the soak command.
type SoakConfig struct {
	// Listeners is the number of short lived targets per round.
	Listeners int `json:"listeners"`
	// Rounds is the number of subscribe, fire, collect cycles.
	Rounds int `json:"rounds"`
	// Fires is the number of firings per round.
	Fires int `json:"fires"`
}

// SetDefaults applies sane defaults.
func (c *SoakConfig) SetDefaults() {
	if c.Listeners == 0 {
		c.Listeners = 1000
	}
	if c.Rounds == 0 {
		c.Rounds = 10
	}
	if c.Fires == 0 {
		c.Fires = 5
	}
}

// Validate checks mandatory fields.
func (c SoakConfig) Validate() error {
	if c.Listeners < 0 || c.Rounds < 0 || c.Fires < 0 {
		return fmt.Errorf("soak: listeners, rounds and fires must be positive")
	}
	return nil
}
