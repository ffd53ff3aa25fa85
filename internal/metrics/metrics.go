// Package metrics exposes the Prometheus collectors named in SPEC_FULL.md
// §7: record/row counts, per-phase duration, and error counts, each keyed
// by table mapper (and component/code for errors). Registered via
// promauto exactly as the teacher's internal/metrics package does, served
// over promhttp.Handler() when --metrics-addr is set.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// RecordsReadTotal counts records read from a source, by table mapper
	// and outcome ("ok", "skipped", "error").
	RecordsReadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sql_bulk_import_records_read_total",
			Help: "Total number of records read from a data source",
		},
		[]string{"table_mapper", "outcome"},
	)

	// RowsInsertedTotal counts rows that reached the staging table via
	// bulk insert, by table mapper.
	RowsInsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sql_bulk_import_rows_inserted_total",
			Help: "Total number of rows bulk-inserted into a staging table",
		},
		[]string{"table_mapper"},
	)

	// PhaseDuration times each C9 phase, by table mapper and phase name
	// (insert, update, merge, staging_create, staging_drop).
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sql_bulk_import_phase_duration_seconds",
			Help:    "Time spent in each import phase",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table_mapper", "phase"},
	)

	// ErrorsTotal counts reported apperr.Error occurrences, by component
	// and error code.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sql_bulk_import_errors_total",
			Help: "Total number of reported errors, by component and code",
		},
		[]string{"component", "code"},
	)
)

// Phase names used with PhaseDuration, matching SPEC_FULL.md §7.
const (
	PhaseInsert        = "insert"
	PhaseUpdate        = "update"
	PhaseMerge         = "merge"
	PhaseStagingCreate = "staging_create"
	PhaseStagingDrop   = "staging_drop"
)

// Outcome names used with RecordsReadTotal.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// RecordPhaseDuration observes how long phase took for tableMapper.
func RecordPhaseDuration(tableMapper, phase string, duration time.Duration) {
	PhaseDuration.WithLabelValues(tableMapper, phase).Observe(duration.Seconds())
}

// RecordError increments ErrorsTotal for component/code.
func RecordError(component, code string) {
	ErrorsTotal.WithLabelValues(component, code).Inc()
}

// Server wraps an http.Server exposing /metrics and /health, started only
// when the CLI's --metrics-addr flag is non-empty.
type Server struct {
	server *http.Server
	log    *logrus.Logger
}

// NewServer builds a metrics server bound to addr. It does not start
// listening until Start is called.
func NewServer(addr string, log *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{Addr: addr, Handler: mux},
		log:    log,
	}
}

// Start listens in the background; errors other than a clean shutdown are
// logged, not returned, matching the teacher's fire-and-forget HTTP server
// goroutine in internal/app/app.go.
func (s *Server) Start() {
	go func() {
		if s.log != nil {
			s.log.WithField("addr", s.server.Addr).Info("starting metrics server")
		}
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.log != nil {
				s.log.WithError(err).Error("metrics server error")
			}
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
