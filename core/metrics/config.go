package metrics

import "github.com/kilianp07/weakevent/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks" yaml:"sinks"`
	// Addr is the listen address of the /metrics and /healthz endpoints.
	// Empty disables the HTTP server.
	Addr string `json:"addr" yaml:"addr"`
}
