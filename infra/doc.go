// Package infra contains technical adapters: the zerolog logger, the
// Prometheus and InfluxDB metrics sinks and the MQTT event source. These
// packages depend only on the interfaces defined in the core packages.
package infra
