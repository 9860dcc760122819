package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bendy545/charging-stations/internal/analytics"
	"github.com/Bendy545/charging-stations/internal/models"
	"github.com/Bendy545/charging-stations/internal/service"
)

func withSelection(t *testing.T, station, start, end, m string) {
	t.Helper()
	prev := [4]string{stationID, startDate, endDate, month}
	stationID, startDate, endDate, month = station, start, end, m
	t.Cleanup(func() {
		stationID, startDate, endDate, month = prev[0], prev[1], prev[2], prev[3]
	})
}

func TestSelection(t *testing.T) {
	t.Run("month", func(t *testing.T) {
		withSelection(t, "3", "", "", "2024-02")
		scope, iv, err := selection()
		require.NoError(t, err)
		id, ok := scope.StationID()
		assert.True(t, ok)
		assert.Equal(t, int64(3), id)
		assert.False(t, iv.IsUnbounded())
	})

	t.Run("all unbounded", func(t *testing.T) {
		withSelection(t, "all", "", "", "")
		scope, iv, err := selection()
		require.NoError(t, err)
		assert.True(t, scope.IsAll())
		assert.True(t, iv.IsUnbounded())
	})

	t.Run("month with dates", func(t *testing.T) {
		withSelection(t, "all", "2024-01-01", "", "2024-02")
		_, _, err := selection()
		assert.Error(t, err)
	})

	t.Run("bad station", func(t *testing.T) {
		withSelection(t, "abc", "", "", "")
		_, _, err := selection()
		assert.True(t, analytics.IsValidation(err))
	})
}

func TestPrintReport(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rep := &service.Report{
		Scope:   "1",
		Station: &models.Station{ID: 1, StationCode: "CS-01", StationName: "Depot"},
		Summary: &models.SummaryStatistics{
			RecordCount:         1,
			TotalConsumptionKWh: 100,
			TotalDeliveredKWh:   92,
			TotalLossKWh:        8,
			AvgLossPercentage:   8,
			Efficiency:          models.DefinedPercent(92),
		},
		DailySeries: []models.TimeSeriesPoint{{
			Date: "2024-03-01", Label: "03/01", Day: day,
			ConsumptionKWh: 100, DeliveredKWh: 92, LossKWh: 8, LossPercentage: 8, Records: 1,
		}},
		Failures: []service.Failure{{Stream: "sessions", Error: "timeout"}},
	}

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, rep))
	out := buf.String()
	assert.Contains(t, out, "CS-01 Depot")
	assert.Contains(t, out, "92.00")
	assert.Contains(t, out, "2024-03-01")
	assert.Contains(t, out, "sessions (timeout)")
}

func TestPrintReport_NoData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, &service.Report{Scope: "all"}))
	assert.Contains(t, buf.String(), "no data")
	assert.NotContains(t, buf.String(), "DATE")
}
