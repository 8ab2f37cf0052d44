// Package metrics holds the Prometheus collectors for chronicle.
//
// Collectors live on a dedicated Registry rather than the global default so
// batch runs can export exactly what they did via WriteTextfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry collects every chronicle metric.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// Observation log
	ObservationsAppended = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_observations_appended_total",
			Help: "Observation rows inserted into the log",
		},
		[]string{"type"},
	)

	ObservationsDuplicate = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_observations_duplicate_total",
			Help: "Appended observations absorbed because an equivalent row existed",
		},
		[]string{"type"},
	)

	AppendDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chronicle_append_duration_seconds",
			Help:    "Append batch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
	)

	// Object store
	ObjectsInserted = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "chronicle_objects_inserted_total",
			Help: "New content-addressed objects written",
		},
	)

	KnownHashLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_known_hash_lookups_total",
			Help: "Known-hash cache lookups by result",
		},
		[]string{"result"}, // hit/miss
	)

	// Versions
	VersionsWritten = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_versions_written_total",
			Help: "Version rows written",
		},
		[]string{"type", "path"}, // path: incremental/rebuild
	)

	RebuildEntities = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_rebuild_entities_total",
			Help: "Entities rebuilt by result",
		},
		[]string{"type", "result"}, // result: ok/error
	)

	RebuildDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chronicle_rebuild_duration_seconds",
			Help:    "Rebuild duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 12), // 1ms to ~70min
		},
		[]string{"scope"}, // entity/all
	)

	// Queries
	QueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chronicle_query_duration_seconds",
			Help:    "Query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"view"}, // observations/versions
	)
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
