package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Bendy545/charging-stations/internal/models"
)

// flexFloat decodes a JSON number or a numeric string (DECIMAL columns are
// often serialized as strings). null decodes as 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexTime decodes RFC3339 or zone-less ISO timestamps; zone-less values
// are taken as UTC. null decodes as the zero time.
type flexTime struct {
	time.Time
}

var flexTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range flexTimeLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

func (t flexTime) ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

type stationDTO struct {
	ID          int64    `json:"id"`
	StationCode string   `json:"station_code"`
	StationName string   `json:"station_name"`
	Location    *string  `json:"location"`
	CreatedAt   flexTime `json:"created_at"`
}

func (d stationDTO) model() models.Station {
	return models.Station{
		ID:          d.ID,
		StationCode: d.StationCode,
		StationName: d.StationName,
		Location:    d.Location,
		CreatedAt:   d.CreatedAt.ptr(),
	}
}

type lossDTO struct {
	ID                  int64     `json:"id"`
	StationID           int64     `json:"station_id"`
	PeriodStart         flexTime  `json:"period_start"`
	PeriodEnd           flexTime  `json:"period_end"`
	TotalConsumptionKWh flexFloat `json:"total_consumption_kwh"`
	TotalDeliveredKWh   flexFloat `json:"total_delivered_kwh"`
	LossKWh             flexFloat `json:"loss_kwh"`
	LossPercentage      flexFloat `json:"loss_percentage"`
	CalculatedAt        flexTime  `json:"calculated_at"`
	StationCode         string    `json:"station_code"`
	StationName         string    `json:"station_name"`
}

func (d lossDTO) model() models.LossRecord {
	rec := models.LossRecord{
		ID:                  d.ID,
		StationID:           d.StationID,
		PeriodStart:         d.PeriodStart.Time,
		PeriodEnd:           d.PeriodEnd.Time,
		TotalConsumptionKWh: float64(d.TotalConsumptionKWh),
		TotalDeliveredKWh:   float64(d.TotalDeliveredKWh),
		LossKWh:             float64(d.LossKWh),
		LossPercentage:      float64(d.LossPercentage),
		CalculatedAt:        d.CalculatedAt.ptr(),
		StationCode:         d.StationCode,
		StationName:         d.StationName,
	}
	// daily rows may carry period_end == period_start
	if !rec.PeriodEnd.After(rec.PeriodStart) {
		rec.PeriodEnd = rec.PeriodStart.AddDate(0, 0, 1)
	}
	return rec
}

type sessionDTO struct {
	ID          int64     `json:"id"`
	StationID   int64     `json:"station_id"`
	ChargerName string    `json:"charger_name"`
	StartDate   flexTime  `json:"start_date"`
	EndDate     flexTime  `json:"end_date"`
	TotalKWh    flexFloat `json:"total_kwh"`
	StartCard   *string   `json:"start_card"`
	StationCode string    `json:"station_code"`
	StationName string    `json:"station_name"`
}

func (d sessionDTO) model() models.ChargingSession {
	s := models.ChargingSession{
		ID:          d.ID,
		StationID:   d.StationID,
		ChargerName: d.ChargerName,
		StartDate:   d.StartDate.Time,
		EndDate:     d.EndDate.ptr(),
		TotalKWh:    float64(d.TotalKWh),
		StationCode: d.StationCode,
		StationName: d.StationName,
	}
	if d.StartCard != nil && *d.StartCard != "" {
		s.StartCard = d.StartCard
	}
	return s
}

type consumptionDTO struct {
	ID               int64     `json:"id"`
	StationID        int64     `json:"station_id"`
	Timestamp        flexTime  `json:"timestamp"`
	ActivePowerKWh   flexFloat `json:"active_power_kwh"`
	ReactivePowerKWh flexFloat `json:"reactive_power_kwh"`
	StationCode      string    `json:"station_code"`
	StationName      string    `json:"station_name"`
}

func (d consumptionDTO) model() models.ConsumptionSample {
	return models.ConsumptionSample{
		ID:               d.ID,
		StationID:        d.StationID,
		Timestamp:        d.Timestamp.Time,
		ActivePowerKWh:   float64(d.ActivePowerKWh),
		ReactivePowerKWh: float64(d.ReactivePowerKWh),
		StationCode:      d.StationCode,
		StationName:      d.StationName,
	}
}
