// Package metrics collects worker pool statistics.
//
// Metrics implements worker.Observer. Every callback updates both an
// in-process atomic counter (read through Snapshot) and a Prometheus
// collector registered on the Registerer given at construction.
//
// # Basic Usage
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewWithConfig(reg, metrics.DefaultConfig())
//
//	pool := worker.New(4, worker.WithObserver(m))
//	defer pool.Close()
//
//	snap := m.Snapshot()
//	fmt.Printf("Completed: %d, P99: %v\n", snap.Completed, snap.P99Duration)
//
// Serve reg with promhttp.HandlerFor to expose the collectors.
//
// # Thread Safety
//
// All operations are safe for concurrent use by workers and submitters.
package metrics
