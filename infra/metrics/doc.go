// Package metrics implements the metrics sinks: Prometheus, InfluxDB and the
// collector that drains the listener lifecycle bus into a sink. Importing it
// registers the "nop", "prometheus" and "influx" sink types.
package metrics
