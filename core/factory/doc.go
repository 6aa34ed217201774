// Package factory builds configured modules by type name. A ModuleConfig
// carries the type and its raw settings; the registered Factory decodes the
// settings with Decode, which accepts duration strings and loosely typed
// numbers as they come out of yaml, json or environment variables.
//
//	sinks := factory.NewRegistry[metrics.MetricsSink]()
//	_ = sinks.Register("influx", func(conf map[string]any) (metrics.MetricsSink, error) {
//		var c influxConfig
//		if err := factory.Decode(conf, &c); err != nil {
//			return nil, err
//		}
//		return newInfluxSink(c), nil
//	})
//	s, err := sinks.Create(factory.ModuleConfig{Type: "influx", Conf: map[string]any{"timeout": "5s"}})
package factory
