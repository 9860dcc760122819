package httpapi

import (
	"bytes"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/Bendy545/charging-stations/internal/analytics"
	"github.com/Bendy545/charging-stations/internal/export"
	"github.com/Bendy545/charging-stations/internal/service"
)

// Handler HTTP handlers over the analytics service
type Handler struct {
	svc     AnalyticsAPI
	guard   *service.LatestGuard
	version string
	logger  *zap.Logger
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, Fail(err.Error()))
}

// Root lists the available endpoints.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Charging Stations Loss Analytics API",
		"version": h.version,
		"endpoints": map[string]string{
			"health":      "/health",
			"stations":    "/api/stations",
			"consumption": "/api/consumption",
			"sessions":    "/api/sessions",
			"losses":      "/api/losses",
			"recalculate": "/api/losses/recalculate",
			"dashboard":   "/api/analytics/dashboard",
			"station":     "/api/analytics/stations/{id}",
			"export":      "/api/analytics/export.xlsx",
			"metrics":     "/metrics",
		},
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Health(r.Context()); err != nil {
		h.logger.Warn("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "connected",
	})
}

func (h *Handler) ListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.svc.Stations(r.Context())
	if err != nil {
		h.fail(w, r, "ListStations", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(stations))
}

func (h *Handler) GetStation(w http.ResponseWriter, r *http.Request) {
	id, err := stationIDFromPath(r)
	if err != nil {
		h.fail(w, r, "GetStation", err)
		return
	}
	st, err := h.svc.Station(r.Context(), id)
	if err != nil {
		h.fail(w, r, "GetStation", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(st))
}

// listParams parses the shared station_id/start_date/end_date/limit query.
func listParams(r *http.Request) (analytics.Scope, analytics.Interval, int, error) {
	scope, err := scopeFromQuery(r)
	if err != nil {
		return analytics.Scope{}, analytics.Interval{}, 0, err
	}
	iv, err := analytics.ParseInterval(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		return analytics.Scope{}, analytics.Interval{}, 0, err
	}
	limit, err := limitFromQuery(r)
	if err != nil {
		return analytics.Scope{}, analytics.Interval{}, 0, err
	}
	return scope, iv, limit, nil
}

func (h *Handler) ListConsumption(w http.ResponseWriter, r *http.Request) {
	scope, iv, limit, err := listParams(r)
	if err != nil {
		h.fail(w, r, "ListConsumption", err)
		return
	}
	samples, err := h.svc.Consumption(r.Context(), scope, iv, limit)
	if err != nil {
		h.fail(w, r, "ListConsumption", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(samples))
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	scope, iv, limit, err := listParams(r)
	if err != nil {
		h.fail(w, r, "ListSessions", err)
		return
	}
	sessions, err := h.svc.Sessions(r.Context(), scope, iv, limit)
	if err != nil {
		h.fail(w, r, "ListSessions", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(sessions))
}

func (h *Handler) ListLosses(w http.ResponseWriter, r *http.Request) {
	scope, iv, _, err := listParams(r)
	if err != nil {
		h.fail(w, r, "ListLosses", err)
		return
	}
	records, err := h.svc.Losses(r.Context(), scope, iv)
	if err != nil {
		h.fail(w, r, "ListLosses", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(records))
}

func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Recalculate(r.Context())
	if err != nil {
		h.fail(w, r, "Recalculate", err)
		return
	}
	msg := res.Message
	if msg == "" {
		msg = fmt.Sprintf("recalculated %d loss records", res.RecordsWritten)
	}
	writeJSON(w, http.StatusOK, OkMessage(res, msg))
}

// guarded runs build under the caller's last-request-wins ticket when the
// request carries X-Client-ID.
func (h *Handler) guarded(r *http.Request, view string, build func() (*service.Report, error)) (*service.Report, error) {
	client := r.Header.Get(headerClientID)
	if client == "" {
		return build()
	}
	ticket := h.guard.Begin(client + ":" + view)
	defer h.guard.Done(ticket)

	rep, err := build()
	if gerr := h.guard.Check(ticket); gerr != nil {
		return nil, gerr
	}
	return rep, err
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	iv, err := intervalFromQuery(r)
	if err != nil {
		h.fail(w, r, "Dashboard", err)
		return
	}
	rep, err := h.guarded(r, "dashboard", func() (*service.Report, error) {
		return h.svc.Dashboard(r.Context(), iv)
	})
	if err != nil {
		h.fail(w, r, "Dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(rep))
}

func (h *Handler) StationAnalytics(w http.ResponseWriter, r *http.Request) {
	id, err := stationIDFromPath(r)
	if err != nil {
		h.fail(w, r, "StationAnalytics", err)
		return
	}
	iv, err := intervalFromQuery(r)
	if err != nil {
		h.fail(w, r, "StationAnalytics", err)
		return
	}
	rep, err := h.guarded(r, "station", func() (*service.Report, error) {
		return h.svc.StationReport(r.Context(), id, iv)
	})
	if err != nil {
		h.fail(w, r, "StationAnalytics", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(rep))
}

func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromQuery(r)
	if err != nil {
		h.fail(w, r, "ExportXLSX", err)
		return
	}
	iv, err := intervalFromQuery(r)
	if err != nil {
		h.fail(w, r, "ExportXLSX", err)
		return
	}
	rep, err := h.svc.Report(r.Context(), scope, iv)
	if err != nil {
		h.fail(w, r, "ExportXLSX", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteReport(&buf, rep); err != nil {
		h.fail(w, r, "ExportXLSX", err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="loss-report-%s.xlsx"`, scope))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
