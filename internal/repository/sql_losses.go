package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Bendy545/charging-stations/internal/models"
)

const dayLayout = "2006-01-02"

// scanDailyEnergy reads (station_id, day, kwh, samples) rows produced by a
// GROUP BY station_id, day query.
func scanDailyEnergy(rows *sql.Rows, what string) ([]models.DailyEnergy, error) {
	out := []models.DailyEnergy{}
	for rows.Next() {
		var (
			d   models.DailyEnergy
			day string
			kwh sql.NullFloat64
		)
		if err := rows.Scan(&d.StationID, &day, &kwh, &d.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", what, err)
		}
		parsed, err := time.Parse(dayLayout, day)
		if err != nil {
			return nil, fmt.Errorf("invalid %s day %q: %w", what, day, err)
		}
		d.Day = parsed
		if kwh.Valid && models.Finite(kwh.Float64) {
			d.EnergyKWh = kwh.Float64
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", what, err)
	}
	return out, nil
}

// DailyDelivered sums session energy per station per day of end_date.
// Open sessions are ignored. Grouping happens in the database, so the
// result holds one row per station-day regardless of session count.
func (r *SQLRecordRepository) DailyDelivered(ctx context.Context) ([]models.DailyEnergy, error) {
	day := r.dialect.DayExpr("end_date")
	query := fmt.Sprintf(`
		SELECT station_id, %[1]s AS day, SUM(total_kwh), COUNT(*)
		FROM charging_sessions
		WHERE end_date IS NOT NULL
		GROUP BY station_id, %[1]s
		ORDER BY station_id, day
	`, day)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivered energy: %w", err)
	}
	defer rows.Close()
	return scanDailyEnergy(rows, "delivered energy")
}

// DailyConsumption sums active power per station per day for samples in
// [from, to), grouped in the database.
func (r *SQLRecordRepository) DailyConsumption(ctx context.Context, from, to time.Time) ([]models.DailyEnergy, error) {
	day := r.dialect.DayExpr("timestamp")
	query := fmt.Sprintf(`
		SELECT station_id, %[1]s AS day, SUM(active_power_kwh), COUNT(*)
		FROM power_consumption
		WHERE timestamp >= %[2]s AND timestamp < %[3]s
		GROUP BY station_id, %[1]s
		ORDER BY station_id, day
	`, day, r.dialect.Placeholder(1), r.dialect.Placeholder(2))

	rows, err := r.db.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query consumption energy: %w", err)
	}
	defer rows.Close()
	return scanDailyEnergy(rows, "consumption energy")
}

// ReplaceLossRecords swaps the whole loss table for records in one
// transaction.
func (r *SQLRecordRepository) ReplaceLossRecords(ctx context.Context, records []models.LossRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM loss_analysis"); err != nil {
		return fmt.Errorf("failed to clear loss records: %w", err)
	}

	p := r.dialect.Placeholder
	insert := fmt.Sprintf(`
		INSERT INTO loss_analysis
			(station_id, period_start, period_end, total_consumption_kwh,
			 total_delivered_kwh, loss_kwh, loss_percentage, calculated_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s)
	`, p(1), p(2), p(3), p(4), p(5), p(6), p(7), p(8))

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare loss insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.StationID,
			rec.PeriodStart.UTC(),
			rec.PeriodEnd.UTC(),
			rec.TotalConsumptionKWh,
			rec.TotalDeliveredKWh,
			rec.LossKWh,
			rec.LossPercentage,
			now,
		); err != nil {
			return fmt.Errorf("failed to insert loss record for station %d: %w", rec.StationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit loss records: %w", err)
	}
	r.logger.Info("Loss records replaced", zap.Int("record_count", len(records)))
	return nil
}
