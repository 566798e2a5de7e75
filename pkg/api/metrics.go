package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	duration *prometheus.HistogramVec
}

// newHTTPMetrics registers the request histogram and, when hub is set, a
// gauge of connected WebSocket clients read at scrape time.
func newHTTPMetrics(reg prometheus.Registerer, hub *Hub) *httpMetrics {
	f := promauto.With(reg)
	if hub != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "matchbook_ws_clients",
			Help: "Connected WebSocket clients",
		}, func() float64 { return float64(hub.ClientCount()) })
	}
	return &httpMetrics{
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "matchbook_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "path", "status"}),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// middleware records request latency labelled by route template, so
// per-instrument paths share one series.
func (m *httpMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		m.duration.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
