// Package metrics defines the sinks weak listener activity is recorded to.
// A MetricsSink only has to record subscriptions; the optional recorder
// interfaces cover dispatches, detaches, subscribe failures, resolver cache
// statistics and soak run summaries. Sinks are built from configuration
// through the factory registry, which returns a MultiSink when several are
// configured.
package metrics
