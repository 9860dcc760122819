package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Bendy545/charging-stations/internal/analytics"
	"github.com/Bendy545/charging-stations/internal/metrics"
	"github.com/Bendy545/charging-stations/internal/models"
	"github.com/Bendy545/charging-stations/internal/service"
)

// AnalyticsAPI the service operations exposed over HTTP.
type AnalyticsAPI interface {
	Dashboard(ctx context.Context, iv analytics.Interval) (*service.Report, error)
	StationReport(ctx context.Context, stationID int64, iv analytics.Interval) (*service.Report, error)
	Report(ctx context.Context, scope analytics.Scope, iv analytics.Interval) (*service.Report, error)
	Stations(ctx context.Context) ([]models.Station, error)
	Station(ctx context.Context, id int64) (models.Station, error)
	Consumption(ctx context.Context, scope analytics.Scope, iv analytics.Interval, limit int) ([]models.ConsumptionSample, error)
	Sessions(ctx context.Context, scope analytics.Scope, iv analytics.Interval, limit int) ([]models.ChargingSession, error)
	Losses(ctx context.Context, scope analytics.Scope, iv analytics.Interval) ([]models.LossRecord, error)
	Recalculate(ctx context.Context) (models.RecalculationResult, error)
	Health(ctx context.Context) error
}

// RouterConfig dependencies of the HTTP API.
type RouterConfig struct {
	Service     AnalyticsAPI
	Guard       *service.LatestGuard
	Metrics     *metrics.Metrics
	CORSOrigins []string
	Version     string
	Logger      *zap.Logger
}

// NewRouter builds the REST API.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Guard == nil {
		cfg.Guard = service.NewLatestGuard()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	h := &Handler{
		svc:     cfg.Service,
		guard:   cfg.Guard,
		version: cfg.Version,
		logger:  cfg.Logger,
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware(cfg.Logger), metricsMiddleware(cfg.Metrics))

	r.HandleFunc("/", h.Root).Methods(http.MethodGet).Name("root")
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet).Name("health")
	r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet).Name("metrics")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stations", h.ListStations).Methods(http.MethodGet).Name("stations")
	api.HandleFunc("/stations/{id}", h.GetStation).Methods(http.MethodGet).Name("station")
	api.HandleFunc("/consumption", h.ListConsumption).Methods(http.MethodGet).Name("consumption")
	api.HandleFunc("/sessions", h.ListSessions).Methods(http.MethodGet).Name("sessions")
	api.HandleFunc("/losses", h.ListLosses).Methods(http.MethodGet).Name("losses")
	api.HandleFunc("/losses/recalculate", h.Recalculate).Methods(http.MethodPost).Name("recalculate")
	api.HandleFunc("/analytics/dashboard", h.Dashboard).Methods(http.MethodGet).Name("dashboard")
	api.HandleFunc("/analytics/stations/{id}", h.StationAnalytics).Methods(http.MethodGet).Name("station_analytics")
	api.HandleFunc("/analytics/export.xlsx", h.ExportXLSX).Methods(http.MethodGet).Name("export")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, Fail("not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Fail("method not allowed"))
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", headerClientID, headerRequestID}),
		handlers.ExposedHeaders([]string{headerRequestID}),
		handlers.AllowCredentials(),
	)
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(cors(r))
}
