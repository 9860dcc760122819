package repository

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Bendy545/charging-stations/internal/config"
	"github.com/Bendy545/charging-stations/internal/database"
	"github.com/Bendy545/charging-stations/internal/models"
)

// createTestDB opens a temp SQLite database with schema and a small seed:
// two stations, a few days of consumption, sessions and loss rows.
func createTestDB(t *testing.T) (*sql.DB, *SQLRecordRepository) {
	t.Helper()

	cfg := &config.DatabaseConfig{Driver: "sqlite3", Path: filepath.Join(t.TempDir(), "stations.db")}
	db, dialect, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	ctx := context.Background()
	require.NoError(t, database.EnsureSchema(ctx, db, dialect))

	exec := func(query string, args ...any) {
		_, err := db.ExecContext(ctx, query, args...)
		require.NoError(t, err)
	}

	exec(`INSERT INTO stations (id, station_code, station_name, location) VALUES (1, 'UR369', 'Station B', NULL)`)
	exec(`INSERT INTO stations (id, station_code, station_name, location) VALUES (2, 'UR368', 'Station A', 'Depot')`)

	for d := 1; d <= 3; d++ {
		for h := 0; h < 24; h += 6 {
			ts := time.Date(2025, 3, d, h, 0, 0, 0, time.UTC)
			exec(`INSERT INTO power_consumption (station_id, timestamp, active_power_kwh, reactive_power_kwh) VALUES (?, ?, ?, ?)`, 1, ts, 25.0, 1.0)
			exec(`INSERT INTO power_consumption (station_id, timestamp, active_power_kwh, reactive_power_kwh) VALUES (?, ?, ?, ?)`, 2, ts, 10.0, 0.5)
		}
	}

	session := func(stationID int64, start time.Time, end *time.Time, kwh float64) {
		var endArg any
		if end != nil {
			endArg = *end
		}
		exec(`INSERT INTO charging_sessions (station_id, charger_name, start_date, end_date, total_kwh, start_card) VALUES (?, ?, ?, ?, ?, ?)`,
			stationID, "charger", start, endArg, kwh, "CARD")
	}
	at := func(d, h int) *time.Time {
		v := time.Date(2025, 3, d, h, 0, 0, 0, time.UTC)
		return &v
	}
	session(1, *at(1, 8), at(1, 10), 60)
	session(1, *at(1, 23), at(2, 1), 30) // crosses midnight
	session(2, *at(2, 9), at(2, 11), 35)
	session(2, *at(3, 20), nil, 0) // still open

	return db, NewSQLRecordRepository(db, dialect, zap.NewNop())
}

func TestSQLite_StationsOrderedByCode(t *testing.T) {
	_, repo := createTestDB(t)
	ctx := context.Background()

	stations, err := repo.GetStations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, "UR368", stations[0].StationCode)
	require.NotNil(t, stations[0].Location)
	assert.NotNil(t, stations[0].CreatedAt)

	st, err := repo.GetStation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "UR369", st.StationCode)

	_, err = repo.GetStation(ctx, 3)
	assert.ErrorIs(t, err, ErrStationNotFound)
}

func TestSQLite_SessionPolicies(t *testing.T) {
	_, repo := createTestDB(t)
	ctx := context.Background()

	start := utcDay(2025, 3, 2)
	end := time.Date(2025, 3, 2, 23, 59, 59, 0, time.UTC)

	finished, err := repo.GetSessions(ctx, SessionQuery{Start: &start, End: &end, Overlap: OverlapFinished})
	require.NoError(t, err)
	assert.Len(t, finished, 2) // 1/23:00-2/01:00 and 2/09:00-2/11:00

	started, err := repo.GetSessions(ctx, SessionQuery{Start: &start, End: &end, Overlap: OverlapStarted})
	require.NoError(t, err)
	assert.Len(t, started, 1)

	overlapping, err := repo.GetSessions(ctx, SessionQuery{Start: &start, End: &end, Overlap: OverlapAny})
	require.NoError(t, err)
	assert.Len(t, overlapping, 2)

	stationID := int64(2)
	all, err := repo.GetSessions(ctx, SessionQuery{StationID: &stationID, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_ReplaceAndReadLossRecords(t *testing.T) {
	_, repo := createTestDB(t)
	ctx := context.Background()

	records := []models.LossRecord{
		models.NewLossRecord(1, utcDay(2025, 3, 1), utcDay(2025, 3, 2), 100, 60),
		models.NewLossRecord(1, utcDay(2025, 3, 2), utcDay(2025, 3, 3), 100, 30),
		models.NewLossRecord(2, utcDay(2025, 3, 2), utcDay(2025, 3, 3), 40, 35),
	}
	require.NoError(t, repo.ReplaceLossRecords(ctx, records))
	// replacing again must not duplicate rows
	require.NoError(t, repo.ReplaceLossRecords(ctx, records))

	all, err := repo.GetLossRecords(ctx, LossQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, utcDay(2025, 3, 2), all[0].PeriodStart) // newest first

	stationID := int64(1)
	start := utcDay(2025, 3, 2)
	end := time.Date(2025, 3, 2, 23, 59, 59, 0, time.UTC)
	one, err := repo.GetLossRecords(ctx, LossQuery{StationID: &stationID, Start: &start, End: &end})
	require.NoError(t, err)
	// the row ends at 03-03 00:00, after End, and is still selected
	require.Len(t, one, 1)
	assert.Equal(t, 70.0, one[0].LossKWh)
	assert.True(t, one[0].PeriodEnd.After(end))
	assert.Equal(t, "UR369", one[0].StationCode)
	assert.NotNil(t, one[0].CalculatedAt)
}

func TestSQLite_DailyConsumption(t *testing.T) {
	_, repo := createTestDB(t)

	daily, err := repo.DailyConsumption(context.Background(), utcDay(2025, 3, 1), utcDay(2025, 3, 3))
	require.NoError(t, err)
	require.Len(t, daily, 4) // 2 stations x 2 days

	byKey := make(map[string]float64)
	for _, d := range daily {
		byKey[fmt.Sprintf("%s/%d", d.Day.Format("2006-01-02"), d.StationID)] = d.EnergyKWh
	}
	assert.Equal(t, 100.0, byKey["2025-03-01/1"])
	assert.Equal(t, 40.0, byKey["2025-03-02/2"])
	assert.Equal(t, 4, daily[0].Samples)
}

func TestSQLite_DailyDelivered(t *testing.T) {
	_, repo := createTestDB(t)

	daily, err := repo.DailyDelivered(context.Background())
	require.NoError(t, err)
	// the open session has no day; the midnight-crossing one counts on its end day
	require.Len(t, daily, 3)
	assert.Equal(t, models.DailyEnergy{StationID: 1, Day: utcDay(2025, 3, 1), EnergyKWh: 60, Samples: 1}, daily[0])
	assert.Equal(t, models.DailyEnergy{StationID: 1, Day: utcDay(2025, 3, 2), EnergyKWh: 30, Samples: 1}, daily[1])
	assert.Equal(t, models.DailyEnergy{StationID: 2, Day: utcDay(2025, 3, 2), EnergyKWh: 35, Samples: 1}, daily[2])
}
