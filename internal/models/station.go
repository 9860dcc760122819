package models

import "time"

// Station one charging installation
type Station struct {
	ID          int64      `json:"id"`
	StationCode string     `json:"station_code"`
	StationName string     `json:"station_name"`
	Location    *string    `json:"location,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// ConsumptionSample raw grid meter reading
type ConsumptionSample struct {
	ID               int64     `json:"id"`
	StationID        int64     `json:"station_id"`
	Timestamp        time.Time `json:"timestamp"`
	ActivePowerKWh   float64   `json:"active_power_kwh"`
	ReactivePowerKWh float64   `json:"reactive_power_kwh"`

	// joined from stations when available
	StationCode string `json:"station_code,omitempty"`
	StationName string `json:"station_name,omitempty"`
}

// ChargingSession one vehicle charging session
type ChargingSession struct {
	ID          int64      `json:"id"`
	StationID   int64      `json:"station_id"`
	ChargerName string     `json:"charger_name"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date"` // nil = session still open
	TotalKWh    float64    `json:"total_kwh"`
	StartCard   *string    `json:"start_card,omitempty"`

	StationCode string `json:"station_code,omitempty"`
	StationName string `json:"station_name,omitempty"`
}

// Finished reports whether the session has an end date.
func (s ChargingSession) Finished() bool {
	return s.EndDate != nil && !s.EndDate.IsZero()
}
