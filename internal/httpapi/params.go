package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Bendy545/charging-stations/internal/analytics"
)

// intervalFromQuery reads start_date/end_date, or month=YYYY-MM. Mixing
// month with explicit dates is rejected.
func intervalFromQuery(r *http.Request) (analytics.Interval, error) {
	q := r.URL.Query()
	start, end, month := q.Get("start_date"), q.Get("end_date"), strings.TrimSpace(q.Get("month"))
	if month != "" {
		if start != "" || end != "" {
			return analytics.Interval{}, &analytics.ValidationError{Field: "month", Message: "cannot be combined with start_date or end_date"}
		}
		return analytics.ParseMonth(month)
	}
	return analytics.ParseInterval(start, end)
}

func scopeFromQuery(r *http.Request) (analytics.Scope, error) {
	return analytics.ParseScope(r.URL.Query().Get("station_id"))
}

func limitFromQuery(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &analytics.ValidationError{Field: "limit", Message: fmt.Sprintf("%q is not a positive integer", raw)}
	}
	return n, nil
}

func stationIDFromPath(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &analytics.ValidationError{Field: "station_id", Message: fmt.Sprintf("%q is not a station id", raw)}
	}
	return id, nil
}
