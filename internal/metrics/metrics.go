// Package metrics records export runs as Prometheus metrics on a dedicated
// registry.
package metrics

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name
const Namespace = "formexport"

// Run results
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultCancelled = "cancelled"
)

// Recorder holds the export metrics
type Recorder struct {
	registry *prometheus.Registry

	exportsTotal *prometheus.CounterVec
	rowsTotal    *prometheus.CounterVec
	bytesTotal   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// New creates a Recorder registered on a fresh registry together with the
// Go runtime and process collectors
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		exportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "exports_total",
			Help:      "Export runs by format and result.",
		}, []string{"format", "result"}),
		rowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rows_total",
			Help:      "Rows written to export sinks.",
		}, []string{"format"}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bytes_total",
			Help:      "Bytes written to export sinks.",
		}, []string{"format"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "export_duration_seconds",
			Help:      "Wall time of export runs.",
			// Exports range from sub-second headers to hour-long dumps
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"format"}),
	}

	r.registry.MustRegister(
		r.exportsTotal,
		r.rowsTotal,
		r.bytesTotal,
		r.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry holding the export metrics
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveExport records one finished run
func (r *Recorder) ObserveExport(format, result string, rows int, bytes int64, elapsed time.Duration) {
	r.exportsTotal.WithLabelValues(format, result).Inc()
	r.rowsTotal.WithLabelValues(format).Add(float64(rows))
	r.bytesTotal.WithLabelValues(format).Add(float64(bytes))
	r.duration.WithLabelValues(format).Observe(elapsed.Seconds())
}

// Handler returns the /metrics handler for the registry
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Serve exposes /metrics on addr until ctx is done. The listener is bound
// before Serve returns so that bind errors surface to the caller; the
// returned channel reports the server's exit error. errorLog may be nil.
func (r *Recorder) Serve(ctx context.Context, addr string, errorLog *log.Logger) (net.Addr, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second, ErrorLog: errorLog}

	done := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return ln.Addr(), done, nil
}
