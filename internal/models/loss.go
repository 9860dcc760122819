package models

import (
	"math"
	"time"
)

// LossRecord precomputed loss for one station over one period (usually a day).
//
// LossKWh == TotalConsumptionKWh - TotalDeliveredKWh and LossPercentage is
// LossKWh / TotalConsumptionKWh * 100, or 0 when there was no consumption.
type LossRecord struct {
	ID                  int64      `json:"id"`
	StationID           int64      `json:"station_id"`
	PeriodStart         time.Time  `json:"period_start"`
	PeriodEnd           time.Time  `json:"period_end"`
	TotalConsumptionKWh float64    `json:"total_consumption_kwh"`
	TotalDeliveredKWh   float64    `json:"total_delivered_kwh"`
	LossKWh             float64    `json:"loss_kwh"`
	LossPercentage      float64    `json:"loss_percentage"`
	CalculatedAt        *time.Time `json:"calculated_at,omitempty"`

	StationCode string `json:"station_code,omitempty"`
	StationName string `json:"station_name,omitempty"`
}

// NewLossRecord builds a record for [start, end) and derives loss fields
// from consumption and delivered energy.
func NewLossRecord(stationID int64, start, end time.Time, consumption, delivered float64) LossRecord {
	loss := consumption - delivered
	return LossRecord{
		StationID:           stationID,
		PeriodStart:         start,
		PeriodEnd:           end,
		TotalConsumptionKWh: consumption,
		TotalDeliveredKWh:   delivered,
		LossKWh:             loss,
		LossPercentage:      LossPercentage(loss, consumption),
	}
}

// LossPercentage returns loss as a percentage of consumption, 0 when
// consumption is not positive.
func LossPercentage(loss, consumption float64) float64 {
	if consumption <= 0 || !Finite(loss) || !Finite(consumption) {
		return 0
	}
	return loss / consumption * 100
}

// SafeLossPercentage returns the stored percentage, or 0 when the record has
// no consumption or carries a non-finite value.
func (r LossRecord) SafeLossPercentage() float64 {
	if r.TotalConsumptionKWh == 0 || !Finite(r.LossPercentage) {
		return 0
	}
	return r.LossPercentage
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// RecalculationResult outcome of a loss recalculation run
type RecalculationResult struct {
	Success        bool       `json:"success"`
	Message        string     `json:"message,omitempty"`
	Skipped        bool       `json:"skipped,omitempty"` // no finished sessions to derive a range from
	RangeStart     *time.Time `json:"range_start,omitempty"`
	RangeEnd       *time.Time `json:"range_end,omitempty"`
	RecordsWritten int        `json:"records_written"`
	Stations       int        `json:"stations"`
}

// DailyEnergy energy summed per station per calendar day
type DailyEnergy struct {
	StationID int64
	Day       time.Time // 00:00 of the day
	EnergyKWh float64
	Samples   int
}
