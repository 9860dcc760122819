package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bendy545/charging-stations/internal/analytics"
	"github.com/Bendy545/charging-stations/internal/models"
)

func TestBuildDailySeries_OrderedByDay(t *testing.T) {
	// storage returns newest first
	records := []models.LossRecord{
		lossRecord(1, 3, 100, 90),
		lossRecord(1, 1, 100, 80),
		lossRecord(1, 2, 100, 95),
	}

	points := analytics.BuildDailySeries(records)
	require.Len(t, points, 3)
	assert.Equal(t, "2025-03-01", points[0].Date)
	assert.Equal(t, "03/01", points[0].Label)
	assert.Equal(t, "2025-03-02", points[1].Date)
	assert.Equal(t, "2025-03-03", points[2].Date)
	assert.InDelta(t, 20, points[0].LossKWh, 1e-9)
	assert.InDelta(t, 20, points[0].LossPercentage, 1e-9)
}

func TestBuildDailySeries_OnePointPerDistinctDay(t *testing.T) {
	records := []models.LossRecord{
		lossRecord(1, 1, 100, 90),
		lossRecord(2, 1, 100, 70),
		lossRecord(1, 2, 0, 0),
	}
	// same calendar day at a different hour
	late := lossRecord(3, 2, 10, 5)
	late.PeriodStart = late.PeriodStart.Add(15 * time.Hour)
	records = append(records, late)

	points := analytics.BuildDailySeries(records)
	require.Len(t, points, 2)

	first := points[0]
	assert.Equal(t, 2, first.Records)
	assert.InDelta(t, 200, first.ConsumptionKWh, 1e-9)
	assert.InDelta(t, 40, first.LossKWh, 1e-9)
	assert.InDelta(t, 20, first.LossPercentage, 1e-9) // mean of 10 and 30

	second := points[1]
	assert.Equal(t, 2, second.Records)
	assert.InDelta(t, 25, second.LossPercentage, 1e-9) // mean of 0 and 50
}

func TestBuildDailySeries_Empty(t *testing.T) {
	points := analytics.BuildDailySeries(nil)
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestDailySeries_RestartableAndIdempotent(t *testing.T) {
	records := []models.LossRecord{
		lossRecord(1, 2, 100, 90),
		lossRecord(1, 1, 100, 80),
	}
	seq := analytics.DailySeries(records)

	var first, second []models.TimeSeriesPoint
	for p := range seq {
		first = append(first, p)
	}
	for p := range seq {
		second = append(second, p)
	}
	assert.Equal(t, first, second)
	assert.Equal(t, analytics.BuildDailySeries(records), analytics.BuildDailySeries(records))

	// stops early without panicking
	for range seq {
		break
	}
}

func TestBuildSessionActivity(t *testing.T) {
	end1 := time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC)
	end2 := time.Date(2025, 3, 2, 1, 30, 0, 0, time.UTC)
	sessions := []models.ChargingSession{
		// started on the 1st, finished on the 2nd
		{ID: 1, StationID: 1, StartDate: time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC), EndDate: &end2, TotalKWh: 20},
		{ID: 2, StationID: 1, StartDate: time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC), EndDate: &end1, TotalKWh: 12.5},
		{ID: 3, StationID: 1, StartDate: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), EndDate: &end1, TotalKWh: 7.5},
	}

	buckets := analytics.BuildSessionActivity(sessions)
	require.Len(t, buckets, 2)
	assert.Equal(t, "2025-03-01", buckets[0].Date)
	assert.Equal(t, 2, buckets[0].SessionCount)
	assert.InDelta(t, 20, buckets[0].TotalKWh, 1e-9)
	assert.Equal(t, "2025-03-02", buckets[1].Date)
	assert.Equal(t, 1, buckets[1].SessionCount)
}

func TestBuildSessionActivity_OpenSessionExcluded(t *testing.T) {
	sessions := []models.ChargingSession{
		{ID: 1, StationID: 1, StartDate: day(2025, 3, 1), EndDate: nil, TotalKWh: 5},
	}
	assert.Empty(t, analytics.BuildSessionActivity(sessions))
}
