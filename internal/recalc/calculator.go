package recalc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Bendy545/charging-stations/internal/models"
)

// Store the persistence the calculator reads from and writes to.
type Store interface {
	DailyDelivered(ctx context.Context) ([]models.DailyEnergy, error)
	DailyConsumption(ctx context.Context, from, to time.Time) ([]models.DailyEnergy, error)
	ReplaceLossRecords(ctx context.Context, records []models.LossRecord) error
}

// Calculator regenerates daily loss records from consumption and sessions.
type Calculator struct {
	store  Store
	logger *zap.Logger
}

// NewCalculator creates a calculator over store.
func NewCalculator(store Store, logger *zap.Logger) *Calculator {
	return &Calculator{store: store, logger: logger}
}

type stationDay struct {
	stationID int64
	day       time.Time
}

// RecalculateLosses rebuilds the loss table. Only days covered by finished
// sessions are considered; within that range every station-day with
// positive consumption gets a record, and delivered energy is the sum of
// sessions that ended on that day.
func (c *Calculator) RecalculateLosses(ctx context.Context) (models.RecalculationResult, error) {
	delivered, err := c.store.DailyDelivered(ctx)
	if err != nil {
		return models.RecalculationResult{}, fmt.Errorf("failed to load delivered energy: %w", err)
	}
	if len(delivered) == 0 {
		c.logger.Warn("No finished sessions, skipping loss recalculation")
		return models.RecalculationResult{Success: true, Skipped: true, Message: "no charging sessions found"}, nil
	}

	first, last := delivered[0].Day, delivered[0].Day
	deliveredBy := make(map[stationDay]float64, len(delivered))
	for _, d := range delivered {
		if d.Day.Before(first) {
			first = d.Day
		}
		if d.Day.After(last) {
			last = d.Day
		}
		deliveredBy[stationDay{d.StationID, d.Day}] += d.EnergyKWh
	}
	rangeEnd := last.AddDate(0, 0, 1)

	c.logger.Info("Recalculating losses",
		zap.Time("first_session_day", first),
		zap.Time("last_session_day", last),
		zap.Int("delivered_day_count", len(delivered)),
	)

	consumption, err := c.store.DailyConsumption(ctx, first, rangeEnd)
	if err != nil {
		return models.RecalculationResult{}, fmt.Errorf("failed to load consumption: %w", err)
	}

	records := make([]models.LossRecord, 0, len(consumption))
	stations := make(map[int64]struct{})
	for _, cons := range consumption {
		if cons.EnergyKWh <= 0 {
			continue
		}
		rec := models.NewLossRecord(
			cons.StationID,
			cons.Day,
			cons.Day.AddDate(0, 0, 1),
			cons.EnergyKWh,
			deliveredBy[stationDay{cons.StationID, cons.Day}],
		)
		records = append(records, rec)
		stations[cons.StationID] = struct{}{}
	}

	result := models.RecalculationResult{
		Success:        true,
		RangeStart:     &first,
		RangeEnd:       &rangeEnd,
		RecordsWritten: len(records),
		Stations:       len(stations),
	}
	if len(records) == 0 {
		// keep the existing rows rather than wiping them with nothing
		c.logger.Warn("No consumption inside the session range",
			zap.Time("first_session_day", first),
			zap.Time("last_session_day", last),
		)
		result.Skipped = true
		result.Message = "no consumption data for the session date range"
		return result, nil
	}

	if err := c.store.ReplaceLossRecords(ctx, records); err != nil {
		return models.RecalculationResult{}, fmt.Errorf("failed to store loss records: %w", err)
	}

	result.Message = fmt.Sprintf("recalculated %d loss records for %d stations", len(records), len(stations))
	c.logger.Info("Losses recalculated",
		zap.Int("record_count", len(records)),
		zap.Int("station_count", len(stations)),
	)
	return result, nil
}
