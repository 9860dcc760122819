package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Bendy545/charging-stations/internal/database"
	"github.com/Bendy545/charging-stations/internal/models"
)

// SQLRecordRepository reads records from PostgreSQL or SQLite.
type SQLRecordRepository struct {
	db      *sql.DB
	dialect database.Dialect
	logger  *zap.Logger
}

// NewSQLRecordRepository creates a repository over db.
func NewSQLRecordRepository(db *sql.DB, dialect database.Dialect, logger *zap.Logger) *SQLRecordRepository {
	return &SQLRecordRepository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// where accumulates optional conditions with dialect placeholders.
type where struct {
	dialect database.Dialect
	conds   []string
	args    []any
}

// add appends cond, replacing every "?" with the next placeholder.
func (w *where) add(cond string, args ...any) {
	for _, a := range args {
		cond = strings.Replace(cond, "?", w.dialect.Placeholder(len(w.args)+1), 1)
		w.args = append(w.args, a)
	}
	w.conds = append(w.conds, cond)
}

func (w *where) next() string {
	return w.dialect.Placeholder(len(w.args) + 1)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func utc(t *time.Time) any {
	return t.UTC()
}

// GetStations returns all stations ordered by code.
func (r *SQLRecordRepository) GetStations(ctx context.Context) ([]models.Station, error) {
	query := `
		SELECT id, station_code, station_name, location, created_at
		FROM stations
		ORDER BY station_code
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	stations := []models.Station{}
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stations: %w", err)
	}
	return stations, nil
}

// GetStation returns one station or ErrStationNotFound.
func (r *SQLRecordRepository) GetStation(ctx context.Context, id int64) (models.Station, error) {
	query := `
		SELECT id, station_code, station_name, location, created_at
		FROM stations
		WHERE id = ` + r.dialect.Placeholder(1)

	st, err := scanStation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Station{}, fmt.Errorf("station %d: %w", id, ErrStationNotFound)
	}
	if err != nil {
		return models.Station{}, err
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner) (models.Station, error) {
	var (
		st        models.Station
		location  sql.NullString
		createdAt sql.NullTime
	)
	if err := row.Scan(&st.ID, &st.StationCode, &st.StationName, &location, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, err
		}
		return st, fmt.Errorf("failed to scan station: %w", err)
	}
	if location.Valid {
		st.Location = &location.String
	}
	if createdAt.Valid {
		st.CreatedAt = &createdAt.Time
	}
	return st, nil
}

// GetLossRecords returns loss rows whose period starts inside the window,
// newest first.
func (r *SQLRecordRepository) GetLossRecords(ctx context.Context, q LossQuery) ([]models.LossRecord, error) {
	w := &where{dialect: r.dialect}
	if q.StationID != nil {
		w.add("la.station_id = ?", *q.StationID)
	}
	if q.Start != nil {
		w.add("la.period_start >= ?", utc(q.Start))
	}
	if q.End != nil {
		// Deliberately period_start, not period_end as the upstream API
		// filters: End is end-of-day inclusive, and a daily row ends at the
		// next midnight, so period_end <= End would drop the last day.
		w.add("la.period_start <= ?", utc(q.End))
	}

	query := `
		SELECT la.id, la.station_id, la.period_start, la.period_end,
			la.total_consumption_kwh, la.total_delivered_kwh, la.loss_kwh, la.loss_percentage,
			la.calculated_at, s.station_code, s.station_name
		FROM loss_analysis la
		JOIN stations s ON la.station_id = s.id` + w.String() + `
		ORDER BY la.period_start DESC`

	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loss records: %w", err)
	}
	defer rows.Close()

	records := []models.LossRecord{}
	for rows.Next() {
		var (
			rec          models.LossRecord
			calculatedAt sql.NullTime
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.StationID,
			&rec.PeriodStart,
			&rec.PeriodEnd,
			&rec.TotalConsumptionKWh,
			&rec.TotalDeliveredKWh,
			&rec.LossKWh,
			&rec.LossPercentage,
			&calculatedAt,
			&rec.StationCode,
			&rec.StationName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan loss record: %w", err)
		}
		if calculatedAt.Valid {
			rec.CalculatedAt = &calculatedAt.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loss records: %w", err)
	}
	return records, nil
}

// GetSessions returns sessions selected by the overlap policy.
func (r *SQLRecordRepository) GetSessions(ctx context.Context, q SessionQuery) ([]models.ChargingSession, error) {
	w := &where{dialect: r.dialect}
	if q.StationID != nil {
		w.add("cs.station_id = ?", *q.StationID)
	}

	orderBy := "cs.end_date DESC"
	switch q.Overlap {
	case OverlapStarted:
		orderBy = "cs.start_date DESC"
		if q.Start != nil {
			w.add("cs.start_date >= ?", utc(q.Start))
		}
		if q.End != nil {
			w.add("cs.start_date <= ?", utc(q.End))
		}
	case OverlapAny:
		orderBy = "cs.start_date DESC"
		if q.End != nil {
			w.add("cs.start_date <= ?", utc(q.End))
		}
		if q.Start != nil {
			w.add("(cs.end_date IS NULL OR cs.end_date >= ?)", utc(q.Start))
		}
	default:
		if q.Start != nil {
			w.add("cs.end_date >= ?", utc(q.Start))
		}
		if q.End != nil {
			w.add("cs.end_date <= ?", utc(q.End))
		}
	}

	limitPH := w.next()
	args := append(w.args, limitOrDefault(q.Limit, DefaultSessionLimit))

	query := `
		SELECT cs.id, cs.station_id, cs.charger_name, cs.start_date, cs.end_date,
			cs.total_kwh, cs.start_card, s.station_code, s.station_name
		FROM charging_sessions cs
		JOIN stations s ON cs.station_id = s.id` + w.String() + `
		ORDER BY ` + orderBy + `, cs.id DESC
		LIMIT ` + limitPH

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.ChargingSession{}
	for rows.Next() {
		var (
			s         models.ChargingSession
			endDate   sql.NullTime
			startCard sql.NullString
		)
		if err := rows.Scan(
			&s.ID,
			&s.StationID,
			&s.ChargerName,
			&s.StartDate,
			&endDate,
			&s.TotalKWh,
			&startCard,
			&s.StationCode,
			&s.StationName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if endDate.Valid {
			s.EndDate = &endDate.Time
		}
		if startCard.Valid && startCard.String != "" {
			s.StartCard = &startCard.String
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// GetConsumption returns raw samples, newest first.
func (r *SQLRecordRepository) GetConsumption(ctx context.Context, q ConsumptionQuery) ([]models.ConsumptionSample, error) {
	w := &where{dialect: r.dialect}
	if q.StationID != nil {
		w.add("pc.station_id = ?", *q.StationID)
	}
	if q.Start != nil {
		w.add("pc.timestamp >= ?", utc(q.Start))
	}
	if q.End != nil {
		w.add("pc.timestamp <= ?", utc(q.End))
	}
	limitPH := w.next()
	args := append(w.args, limitOrDefault(q.Limit, DefaultConsumptionLimit))

	query := `
		SELECT pc.id, pc.station_id, pc.timestamp, pc.active_power_kwh, pc.reactive_power_kwh,
			s.station_code, s.station_name
		FROM power_consumption pc
		JOIN stations s ON pc.station_id = s.id` + w.String() + `
		ORDER BY pc.timestamp DESC
		LIMIT ` + limitPH

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query consumption: %w", err)
	}
	defer rows.Close()

	samples := []models.ConsumptionSample{}
	for rows.Next() {
		var s models.ConsumptionSample
		if err := rows.Scan(
			&s.ID,
			&s.StationID,
			&s.Timestamp,
			&s.ActivePowerKWh,
			&s.ReactivePowerKWh,
			&s.StationCode,
			&s.StationName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan consumption sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate consumption: %w", err)
	}
	return samples, nil
}

// Ping checks the connection.
func (r *SQLRecordRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
