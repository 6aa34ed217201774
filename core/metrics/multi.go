package metrics

// MultiSink fans records out to multiple sinks. Optional recorders are only
// forwarded to the sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSubscription forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordSubscription(ev SubscriptionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSubscription(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordSubscribeFailure forwards failed subscriptions.
func (m *MultiSink) RecordSubscribeFailure(ev SubscribeFailureEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SubscribeFailureRecorder); ok {
			if err := rec.RecordSubscribeFailure(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordDispatch forwards dispatches.
func (m *MultiSink) RecordDispatch(ev DispatchEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(DispatchRecorder); ok {
			if err := rec.RecordDispatch(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordDetach forwards detaches.
func (m *MultiSink) RecordDetach(ev DetachEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(DetachRecorder); ok {
			if err := rec.RecordDetach(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordCacheStats forwards cache snapshots.
func (m *MultiSink) RecordCacheStats(st CacheStats) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(CacheStatsRecorder); ok {
			if err := rec.RecordCacheStats(st); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSoakSummary forwards soak summaries.
func (m *MultiSink) RecordSoakSummary(sum SoakSummary) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SoakRecorder); ok {
			if err := rec.RecordSoakSummary(sum); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes the sinks that hold resources.
func (m *MultiSink) Close() { closeAll(m.Sinks) }
