package analytics

import (
	"iter"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Bendy545/charging-stations/internal/models"
)

type dayBucket struct {
	day         time.Time
	consumption decimal.Decimal
	delivered   decimal.Decimal
	loss        decimal.Decimal
	pct         decimal.Decimal
	count       int
}

// DailySeries yields one point per calendar day of period_start, ascending.
// Records on the same day are summed; the day's loss percentage is the mean
// of their percentages. The sequence is recomputed from records on every
// iteration and holds no state between runs.
func DailySeries(records []models.LossRecord) iter.Seq[models.TimeSeriesPoint] {
	return func(yield func(models.TimeSeriesPoint) bool) {
		buckets := make(map[string]*dayBucket)
		order := make([]*dayBucket, 0)
		for _, r := range records {
			day := StartOfDay(r.PeriodStart)
			key := day.Format(dateLayout)
			b, ok := buckets[key]
			if !ok {
				b = &dayBucket{day: day}
				buckets[key] = b
				order = append(order, b)
			}
			b.consumption = b.consumption.Add(toDecimal(r.TotalConsumptionKWh))
			b.delivered = b.delivered.Add(toDecimal(r.TotalDeliveredKWh))
			b.loss = b.loss.Add(toDecimal(r.LossKWh))
			b.pct = b.pct.Add(toDecimal(r.SafeLossPercentage()))
			b.count++
		}
		slices.SortStableFunc(order, func(a, b *dayBucket) int {
			return a.day.Compare(b.day)
		})

		for _, b := range order {
			p := models.TimeSeriesPoint{
				Date:           b.day.Format(dateLayout),
				Label:          b.day.Format(labelLayout),
				Day:            b.day,
				ConsumptionKWh: b.consumption.InexactFloat64(),
				DeliveredKWh:   b.delivered.InexactFloat64(),
				LossKWh:        b.loss.InexactFloat64(),
				LossPercentage: b.pct.Div(decimal.NewFromInt(int64(b.count))).InexactFloat64(),
				Records:        b.count,
			}
			if !yield(p) {
				return
			}
		}
	}
}

// BuildDailySeries collects DailySeries into a slice.
func BuildDailySeries(records []models.LossRecord) []models.TimeSeriesPoint {
	points := slices.Collect(DailySeries(records))
	if points == nil {
		points = []models.TimeSeriesPoint{}
	}
	return points
}

type activityBucket struct {
	day   time.Time
	kwh   decimal.Decimal
	count int
}

// SessionActivity yields per-day session counts and energy, bucketed by the
// day each session ended. Open sessions are skipped. Ascending by day.
func SessionActivity(sessions []models.ChargingSession) iter.Seq[models.SessionActivity] {
	return func(yield func(models.SessionActivity) bool) {
		buckets := make(map[string]*activityBucket)
		order := make([]*activityBucket, 0)
		for _, s := range sessions {
			if !s.Finished() {
				continue
			}
			day := StartOfDay(*s.EndDate)
			key := day.Format(dateLayout)
			b, ok := buckets[key]
			if !ok {
				b = &activityBucket{day: day}
				buckets[key] = b
				order = append(order, b)
			}
			b.count++
			b.kwh = b.kwh.Add(toDecimal(s.TotalKWh))
		}
		slices.SortStableFunc(order, func(a, b *activityBucket) int {
			return a.day.Compare(b.day)
		})

		for _, b := range order {
			a := models.SessionActivity{
				Date:         b.day.Format(dateLayout),
				Label:        b.day.Format(labelLayout),
				Day:          b.day,
				SessionCount: b.count,
				TotalKWh:     b.kwh.InexactFloat64(),
			}
			if !yield(a) {
				return
			}
		}
	}
}

// BuildSessionActivity collects SessionActivity into a slice.
func BuildSessionActivity(sessions []models.ChargingSession) []models.SessionActivity {
	buckets := slices.Collect(SessionActivity(sessions))
	if buckets == nil {
		buckets = []models.SessionActivity{}
	}
	return buckets
}
