package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/Bendy545/charging-stations/internal/models"
)

var hundred = decimal.NewFromInt(100)

// toDecimal converts a float, treating NaN and infinities as zero.
func toDecimal(v float64) decimal.Decimal {
	if !models.Finite(v) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// Summarize reduces loss records to summary statistics. It returns nil for
// an empty input so callers can render "no data" distinctly from zeros.
//
// Totals are accumulated in decimal so the result does not depend on input
// order. AvgLossPercentage is the mean of the per-record percentages, which
// is a different statistic from the totals-based Efficiency.
func Summarize(records []models.LossRecord) *models.SummaryStatistics {
	if len(records) == 0 {
		return nil
	}

	var consumption, delivered, loss, pct decimal.Decimal
	for _, r := range records {
		consumption = consumption.Add(toDecimal(r.TotalConsumptionKWh))
		delivered = delivered.Add(toDecimal(r.TotalDeliveredKWh))
		loss = loss.Add(toDecimal(r.LossKWh))
		pct = pct.Add(toDecimal(r.SafeLossPercentage()))
	}

	stats := &models.SummaryStatistics{
		RecordCount:         len(records),
		TotalConsumptionKWh: consumption.InexactFloat64(),
		TotalDeliveredKWh:   delivered.InexactFloat64(),
		TotalLossKWh:        loss.InexactFloat64(),
		AvgLossPercentage:   pct.Div(decimal.NewFromInt(int64(len(records)))).InexactFloat64(),
	}
	if !consumption.IsZero() {
		stats.Efficiency = models.DefinedPercent(delivered.Div(consumption).Mul(hundred).InexactFloat64())
	}
	return stats
}

// EnergyDistribution splits total consumption into delivered and lost
// shares. Both shares are undefined when nothing was consumed.
func EnergyDistribution(stats *models.SummaryStatistics) models.Distribution {
	if stats == nil {
		return models.Distribution{}
	}
	dist := models.Distribution{
		DeliveredKWh: stats.TotalDeliveredKWh,
		LossKWh:      stats.TotalLossKWh,
	}
	consumption := toDecimal(stats.TotalConsumptionKWh)
	if consumption.IsZero() {
		return dist
	}
	dist.DeliveredPercent = models.DefinedPercent(toDecimal(stats.TotalDeliveredKWh).Div(consumption).Mul(hundred).InexactFloat64())
	dist.LossPercent = models.DefinedPercent(toDecimal(stats.TotalLossKWh).Div(consumption).Mul(hundred).InexactFloat64())
	return dist
}

// PeakLossDay returns the record with the highest loss; the first one wins
// on ties. ok is false for an empty input.
func PeakLossDay(records []models.LossRecord) (peak models.LossRecord, ok bool) {
	for i, r := range records {
		if !models.Finite(r.LossKWh) {
			continue
		}
		if !ok || r.LossKWh > peak.LossKWh {
			peak, ok = records[i], true
		}
	}
	return peak, ok
}

// PartitionByStation groups records by station id in a single pass,
// preserving input order inside each group.
func PartitionByStation(records []models.LossRecord) map[int64][]models.LossRecord {
	parts := make(map[int64][]models.LossRecord)
	for _, r := range records {
		parts[r.StationID] = append(parts[r.StationID], r)
	}
	return parts
}

// SummarizeByStation returns one summary per station in station order.
// Stations without records get nil statistics.
func SummarizeByStation(stations []models.Station, records []models.LossRecord) []models.StationSummary {
	parts := PartitionByStation(records)
	out := make([]models.StationSummary, 0, len(stations))
	for _, st := range stations {
		out = append(out, models.StationSummary{
			Station:    st,
			Statistics: Summarize(parts[st.ID]),
		})
	}
	return out
}
