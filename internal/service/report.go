package service

import (
	"time"

	"github.com/Bendy545/charging-stations/internal/analytics"
	"github.com/Bendy545/charging-stations/internal/models"
)

// Failure one record stream that could not be fetched.
type Failure struct {
	Stream string `json:"stream"`
	Error  string `json:"error"`
}

// Report the derived analytics of one scope and interval. The fleet
// dashboard and the station detail page both render it; Station is set
// only for a single-station scope.
type Report struct {
	Scope           string                    `json:"scope"`
	StartDate       *time.Time                `json:"start_date"`
	EndDate         *time.Time                `json:"end_date"`
	Station         *models.Station           `json:"station,omitempty"`
	Stations        []models.StationSummary   `json:"stations"`
	Summary         *models.SummaryStatistics `json:"summary"` // nil = no data
	DailySeries     []models.TimeSeriesPoint  `json:"daily_series"`
	SessionActivity []models.SessionActivity  `json:"session_activity"`
	SessionCount    int                       `json:"session_count"`
	PeakLossDay     *models.LossRecord        `json:"peak_loss_day"`
	Distribution    models.Distribution       `json:"distribution"`
	Partial         bool                      `json:"partial"`
	Failures        []Failure                 `json:"failures,omitempty"`
}

// buildReport runs every derivation over a resolution. Pure.
func buildReport(res *analytics.Resolution) *Report {
	summary := analytics.Summarize(res.LossRecords)
	rep := &Report{
		Scope:           res.Scope.String(),
		StartDate:       res.Interval.Start,
		EndDate:         res.Interval.End,
		Stations:        analytics.SummarizeByStation(res.Stations, res.LossRecords),
		Summary:         summary,
		DailySeries:     analytics.BuildDailySeries(res.LossRecords),
		SessionActivity: analytics.BuildSessionActivity(res.Sessions),
		SessionCount:    len(res.Sessions),
		Distribution:    analytics.EnergyDistribution(summary),
		Partial:         res.Partial(),
	}
	if !res.Scope.IsAll() && len(res.Stations) == 1 {
		st := res.Stations[0]
		rep.Station = &st
	}
	if peak, ok := analytics.PeakLossDay(res.LossRecords); ok {
		rep.PeakLossDay = &peak
	}
	for _, f := range res.Failures {
		rep.Failures = append(rep.Failures, Failure{Stream: string(f.Stream), Error: f.Err.Error()})
	}
	return rep
}
