package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// OptionalPercent a percentage that may be undefined (division by zero).
// It encodes as JSON null when undefined so NaN never reaches a client.
type OptionalPercent struct {
	Value   float64
	Defined bool
}

// DefinedPercent wraps a defined value.
func DefinedPercent(v float64) OptionalPercent {
	return OptionalPercent{Value: v, Defined: true}
}

// Get returns the value and whether it is defined.
func (p OptionalPercent) Get() (float64, bool) {
	return p.Value, p.Defined
}

// String renders the value with two decimals, or "n/a".
func (p OptionalPercent) String() string {
	if !p.Defined {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", p.Value)
}

func (p OptionalPercent) MarshalJSON() ([]byte, error) {
	if !p.Defined || !Finite(p.Value) {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

func (p *OptionalPercent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = OptionalPercent{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("failed to decode percentage: %w", err)
	}
	*p = DefinedPercent(v)
	return nil
}

// SummaryStatistics totals and averages over a set of loss records
type SummaryStatistics struct {
	RecordCount         int     `json:"record_count"`
	TotalConsumptionKWh float64 `json:"total_consumption_kwh"`
	TotalDeliveredKWh   float64 `json:"total_delivered_kwh"`
	TotalLossKWh        float64 `json:"total_loss_kwh"`

	// mean of each record's loss_percentage
	AvgLossPercentage float64 `json:"avg_loss_percentage"`
	// delivered / consumption * 100 over the totals
	Efficiency OptionalPercent `json:"efficiency_percentage"`
}

// TimeSeriesPoint one calendar day of a chart-ready loss series
type TimeSeriesPoint struct {
	Date           string    `json:"date"`  // YYYY-MM-DD
	Label          string    `json:"label"` // MM/dd
	Day            time.Time `json:"day"`
	ConsumptionKWh float64   `json:"consumption_kwh"`
	DeliveredKWh   float64   `json:"delivered_kwh"`
	LossKWh        float64   `json:"loss_kwh"`
	LossPercentage float64   `json:"loss_percentage"`
	Records        int       `json:"records"`
}

// SessionActivity sessions finished on one calendar day
type SessionActivity struct {
	Date         string    `json:"date"`
	Label        string    `json:"label"`
	Day          time.Time `json:"day"`
	SessionCount int       `json:"session_count"`
	TotalKWh     float64   `json:"total_kwh"`
}

// Distribution split of consumed energy into delivered and lost shares
type Distribution struct {
	DeliveredKWh     float64         `json:"delivered_kwh"`
	LossKWh          float64         `json:"loss_kwh"`
	DeliveredPercent OptionalPercent `json:"delivered_percentage"`
	LossPercent      OptionalPercent `json:"loss_percentage"`
}

// StationSummary per-station statistics for the fleet dashboard
type StationSummary struct {
	Station    Station            `json:"station"`
	Statistics *SummaryStatistics `json:"statistics"` // nil = no data in the interval
}
