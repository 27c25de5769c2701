package monitoring

import (
	"context"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tikit/realtime"
)

var (
	wsConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_total",
			Help: "Current number of registered websocket connections",
		},
	)

	wsAuthenticatedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_users_total",
			Help: "Current number of distinct authenticated users connected",
		},
	)

	wsRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_rooms_total",
			Help: "Current number of non-empty rooms",
		},
	)

	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Total tickets issued",
		},
		[]string{"event_id", "tier_id"},
	)

	redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_redemptions_total",
			Help: "Total redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

type Monitor struct {
	registry *realtime.Registry
	stopped  chan struct{}
}

func NewMonitor(ctx context.Context, registry *realtime.Registry) *Monitor {
	monitor := &Monitor{registry: registry, stopped: make(chan struct{})}
	go monitor.collectMetrics(ctx)
	return monitor
}

func (m *Monitor) collectMetrics(ctx context.Context) {
	defer close(m.stopped)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collectOnce()
		}
	}
}

func (m *Monitor) collectOnce() {
	stats := m.registry.Stats()
	wsConnections.Set(float64(stats.Connections))
	wsAuthenticatedUsers.Set(float64(stats.Users))
	wsRooms.Set(float64(stats.Rooms))
	goroutineCount.Set(float64(runtime.NumGoroutine()))
}

// Track ticket issuance
func (m *Monitor) TrackTicketIssued(eventID, tierID string) {
	ticketsIssued.WithLabelValues(eventID, tierID).Inc()
}

// Track redemption outcomes (success, rejected, error)
func (m *Monitor) TrackRedemption(outcome string) {
	redemptions.WithLabelValues(outcome).Inc()
}

// StartMetricsServer exposes /metrics and a liveness probe on its own
// port, kept off the public API listener.
func StartMetricsServer(ctx context.Context, port string) {
	e := echo.New()

	metricsHandler := promhttp.Handler()
	e.GET("/metrics", func(c echo.Context) error {
		metricsHandler.ServeHTTP(c.Response(), c.Request())
		return nil
	})
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	server := &http.Server{Addr: ":" + port, Handler: e}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("metrics server stopped: %v", err)
	}
}
