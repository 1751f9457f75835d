package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type httpCollector struct {
	requests *counterVec
	failures *counterVec
	duration *histogramVec
}

func newHTTPCollector() *httpCollector {
	return &httpCollector{
		requests: newCounterVec("agentvault_http_requests_total",
			"Total number of HTTP requests processed.", "route", "method", "code"),
		failures: newCounterVec("agentvault_http_request_errors_total",
			"Total number of HTTP requests that resulted in a server error.", "route", "method"),
		duration: newHistogramVec("agentvault_http_request_duration_seconds",
			"HTTP request duration in seconds.", "route", "method"),
	}
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle. route
// should be the router pattern, not the raw path.
func ObserveHTTPRequest(route, method string, status int, duration time.Duration) {
	c := defaultRegistry.http
	c.requests.inc(route, method, strconv.Itoa(status))
	if status >= http.StatusInternalServerError {
		c.failures.inc(route, method)
	}
	c.duration.observe(duration.Seconds(), route, method)
}

func (c *httpCollector) render(b *strings.Builder) {
	c.requests.render(b)
	c.failures.render(b)
	c.duration.render(b)
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = io.WriteString(w, Render())
	})
}

// StartServer serves /metrics on addr until ctx is cancelled.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
