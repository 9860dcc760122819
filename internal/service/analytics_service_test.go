package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Bendy545/charging-stations/internal/analytics"
	"github.com/Bendy545/charging-stations/internal/cache"
	"github.com/Bendy545/charging-stations/internal/models"
	"github.com/Bendy545/charging-stations/internal/notify"
	"github.com/Bendy545/charging-stations/internal/repository"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func lossRecord(stationID int64, d time.Time, consumption, delivered float64) models.LossRecord {
	return models.NewLossRecord(stationID, d, d.AddDate(0, 0, 1), consumption, delivered)
}

// fakeRepo in-memory RecordRepository with per-stream errors and call counts
type fakeRepo struct {
	mu sync.Mutex

	stations []models.Station
	losses   []models.LossRecord
	sessions []models.ChargingSession
	samples  []models.ConsumptionSample

	stationsErr error
	lossErr     error
	sessionsErr error
	pingErr     error

	calls        map[string]int
	sessionQuery repository.SessionQuery
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		stations: []models.Station{
			{ID: 1, StationCode: "UR368", StationName: "Uherský Brod"},
			{ID: 2, StationCode: "ZL102", StationName: "Zlín"},
		},
		losses: []models.LossRecord{
			lossRecord(1, day(2025, 3, 2), 50, 46),
			lossRecord(1, day(2025, 3, 1), 100, 92),
			lossRecord(2, day(2025, 3, 1), 80, 70),
		},
		sessions: []models.ChargingSession{
			{ID: 10, StationID: 1, ChargerName: "A", StartDate: day(2025, 3, 1), EndDate: ptr(day(2025, 3, 1).Add(time.Hour)), TotalKWh: 20},
			{ID: 11, StationID: 2, ChargerName: "B", StartDate: day(2025, 3, 2), TotalKWh: 5},
		},
		calls: make(map[string]int),
	}
}

func ptr[T any](v T) *T { return &v }

func (f *fakeRepo) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeRepo) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRepo) GetStations(ctx context.Context) ([]models.Station, error) {
	f.count("stations")
	if f.stationsErr != nil {
		return nil, f.stationsErr
	}
	return f.stations, nil
}

func (f *fakeRepo) GetStation(ctx context.Context, id int64) (models.Station, error) {
	f.count("station")
	if f.stationsErr != nil {
		return models.Station{}, f.stationsErr
	}
	for _, st := range f.stations {
		if st.ID == id {
			return st, nil
		}
	}
	return models.Station{}, repository.ErrStationNotFound
}

func (f *fakeRepo) GetLossRecords(ctx context.Context, q repository.LossQuery) ([]models.LossRecord, error) {
	f.count("losses")
	if f.lossErr != nil {
		return nil, f.lossErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LossRecord
	for _, r := range f.losses {
		if q.StationID == nil || *q.StationID == r.StationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetSessions(ctx context.Context, q repository.SessionQuery) ([]models.ChargingSession, error) {
	f.count("sessions")
	f.mu.Lock()
	f.sessionQuery = q
	f.mu.Unlock()
	if f.sessionsErr != nil {
		return nil, f.sessionsErr
	}
	var out []models.ChargingSession
	for _, s := range f.sessions {
		if q.StationID == nil || *q.StationID == s.StationID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetConsumption(ctx context.Context, q repository.ConsumptionQuery) ([]models.ConsumptionSample, error) {
	f.count("consumption")
	return f.samples, nil
}

func (f *fakeRepo) Ping(ctx context.Context) error { return f.pingErr }

// MockRecalculator mock of repository.Recalculator
type MockRecalculator struct {
	mock.Mock
}

func (m *MockRecalculator) RecalculateLosses(ctx context.Context) (models.RecalculationResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.RecalculationResult), args.Error(1)
}

type recordingNotifier struct {
	events []notify.Event
	err    error
}

func (r *recordingNotifier) Publish(ctx context.Context, ev notify.Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingNotifier) Close() error { return nil }

func setupReportCache(t *testing.T) *cache.ReportCache {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewReportCache(cache.NewRedisKVStore(client), "test", time.Minute, nil, zap.NewNop())
}

func TestReport_Fleet(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAnalyticsService(repo, Options{}, zap.NewNop())

	rep, err := svc.Dashboard(context.Background(), analytics.Unbounded())
	require.NoError(t, err)

	assert.Equal(t, "all", rep.Scope)
	assert.False(t, rep.Partial)
	assert.Nil(t, rep.Station)
	require.NotNil(t, rep.Summary)
	assert.Equal(t, 3, rep.Summary.RecordCount)
	assert.InDelta(t, 230.0, rep.Summary.TotalConsumptionKWh, 1e-9)
	assert.InDelta(t, 22.0, rep.Summary.TotalLossKWh, 1e-9)

	require.Len(t, rep.Stations, 2)
	assert.Equal(t, 2, rep.Stations[0].Statistics.RecordCount)
	assert.Equal(t, 1, rep.Stations[1].Statistics.RecordCount)

	require.Len(t, rep.DailySeries, 2)
	assert.Equal(t, "2025-03-01", rep.DailySeries[0].Date)
	assert.Equal(t, "2025-03-02", rep.DailySeries[1].Date)

	// open session is counted but has no activity bucket
	assert.Equal(t, 2, rep.SessionCount)
	require.Len(t, rep.SessionActivity, 1)

	require.NotNil(t, rep.PeakLossDay)
	assert.Equal(t, int64(2), rep.PeakLossDay.StationID)

	assert.Equal(t, 1, repo.callCount("stations"))
	assert.Equal(t, 0, repo.callCount("station"))
	assert.Equal(t, repository.OverlapFinished, repo.sessionQuery.Overlap)
	assert.Equal(t, repository.DefaultSessionLimit, repo.sessionQuery.Limit)
}

func TestReport_SingleStation(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAnalyticsService(repo, Options{}, zap.NewNop())

	rep, err := svc.StationReport(context.Background(), 1, analytics.Unbounded())
	require.NoError(t, err)

	require.NotNil(t, rep.Station)
	assert.Equal(t, "UR368", rep.Station.StationCode)
	assert.Equal(t, 2, rep.Summary.RecordCount)
	assert.Equal(t, 1, repo.callCount("station"))
	assert.Equal(t, 0, repo.callCount("stations"))

	dist := rep.Distribution
	v, ok := dist.LossPercent.Get()
	require.True(t, ok)
	assert.InDelta(t, 8.0, v, 1e-9)
}

func TestReport_StationNotFound(t *testing.T) {
	svc := NewAnalyticsService(newFakeRepo(), Options{}, zap.NewNop())

	_, err := svc.StationReport(context.Background(), 99, analytics.Unbounded())
	assert.ErrorIs(t, err, repository.ErrStationNotFound)

	_, err = svc.StationReport(context.Background(), 0, analytics.Unbounded())
	assert.True(t, analytics.IsValidation(err))
}

func TestReport_ValidationBeforeFetch(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAnalyticsService(repo, Options{}, zap.NewNop())

	start, end := day(2025, 3, 5), day(2025, 3, 1)
	_, err := svc.Dashboard(context.Background(), analytics.Interval{Start: &start, End: &end})
	require.Error(t, err)
	assert.True(t, analytics.IsValidation(err))
	assert.Equal(t, 0, repo.callCount("stations"))
	assert.Equal(t, 0, repo.callCount("losses"))
	assert.Equal(t, 0, repo.callCount("sessions"))
}

func TestReport_PartialIsReturnedAndNotCached(t *testing.T) {
	repo := newFakeRepo()
	repo.sessionsErr = errors.New("upstream timeout")
	svc := NewAnalyticsService(repo, Options{Cache: setupReportCache(t)}, zap.NewNop())
	ctx := context.Background()

	rep, err := svc.Dashboard(ctx, analytics.Unbounded())
	require.NoError(t, err)
	assert.True(t, rep.Partial)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "sessions", rep.Failures[0].Stream)
	assert.NotNil(t, rep.Summary)
	assert.Empty(t, rep.SessionActivity)

	_, err = svc.Dashboard(ctx, analytics.Unbounded())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.callCount("losses"))
}

func TestReport_AllStreamsFailed(t *testing.T) {
	repo := newFakeRepo()
	repo.stationsErr = errors.New("down")
	repo.lossErr = errors.New("down")
	repo.sessionsErr = errors.New("down")
	svc := NewAnalyticsService(repo, Options{}, zap.NewNop())

	_, err := svc.Dashboard(context.Background(), analytics.Unbounded())
	require.Error(t, err)
	assert.ErrorIs(t, err, analytics.ErrDataUnavailable)
}

func TestReport_CompleteIsCached(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAnalyticsService(repo, Options{Cache: setupReportCache(t)}, zap.NewNop())
	ctx := context.Background()

	start, end := day(2025, 3, 1), analytics.EndOfDay(day(2025, 3, 31))
	iv := analytics.Interval{Start: &start, End: &end}

	first, err := svc.Dashboard(ctx, iv)
	require.NoError(t, err)
	second, err := svc.Dashboard(ctx, iv)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.callCount("losses"))
	assert.Equal(t, first.Summary.TotalLossKWh, second.Summary.TotalLossKWh)
	assert.Equal(t, first.DailySeries, second.DailySeries)

	// a different scope is a different entry
	_, err = svc.StationReport(ctx, 1, iv)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.callCount("losses"))

	require.NoError(t, svc.HandleEvent(ctx, notify.Event{Type: notify.EventLossesRecalculated}))
	_, err = svc.Dashboard(ctx, iv)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.callCount("losses"))
}

// recalcDuringFetchRepo serves the current loss rows once, then replaces them
// and invalidates the cache before returning, like a recalculation landing
// while a report is being built.
type recalcDuringFetchRepo struct {
	*fakeRepo
	onFetch func()
	once    sync.Once
}

func (r *recalcDuringFetchRepo) GetLossRecords(ctx context.Context, q repository.LossQuery) ([]models.LossRecord, error) {
	rows, err := r.fakeRepo.GetLossRecords(ctx, q)
	r.once.Do(r.onFetch)
	return rows, err
}

func TestReport_InvalidateDuringFetchIsNotLost(t *testing.T) {
	base := newFakeRepo()
	repo := &recalcDuringFetchRepo{fakeRepo: base}
	svc := NewAnalyticsService(repo, Options{Cache: setupReportCache(t)}, zap.NewNop())
	ctx := context.Background()

	repo.onFetch = func() {
		base.mu.Lock()
		base.losses = []models.LossRecord{lossRecord(1, day(2025, 3, 1), 1000, 900)}
		base.mu.Unlock()
		require.NoError(t, svc.InvalidateCache(ctx))
	}

	first, err := svc.Dashboard(ctx, analytics.Unbounded())
	require.NoError(t, err)
	assert.InDelta(t, 230.0, first.Summary.TotalConsumptionKWh, 1e-9)

	second, err := svc.Dashboard(ctx, analytics.Unbounded())
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, second.Summary.TotalConsumptionKWh, 1e-9)
	assert.Equal(t, 2, base.callCount("losses"))

	// the fresh report is cached under the new generation
	_, err = svc.Dashboard(ctx, analytics.Unbounded())
	require.NoError(t, err)
	assert.Equal(t, 2, base.callCount("losses"))
}

func TestRecalculate(t *testing.T) {
	repo := newFakeRepo()
	recalc := new(MockRecalculator)
	notifier := &recordingNotifier{}
	svc := NewAnalyticsService(repo, Options{
		Cache:        setupReportCache(t),
		Recalculator: recalc,
		Notifier:     notifier,
	}, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Dashboard(ctx, analytics.Unbounded())
	require.NoError(t, err)

	recalc.On("RecalculateLosses", mock.Anything).Return(models.RecalculationResult{
		Success:        true,
		RecordsWritten: 3,
		Stations:       2,
	}, nil).Once()

	res, err := svc.Recalculate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RecordsWritten)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, notify.EventLossesRecalculated, notifier.events[0].Type)
	recalc.AssertExpectations(t)

	_, err = svc.Dashboard(ctx, analytics.Unbounded())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.callCount("losses"))
}

func TestRecalculate_SkippedPublishesNothing(t *testing.T) {
	recalc := new(MockRecalculator)
	notifier := &recordingNotifier{}
	svc := NewAnalyticsService(newFakeRepo(), Options{Recalculator: recalc, Notifier: notifier}, zap.NewNop())

	recalc.On("RecalculateLosses", mock.Anything).Return(models.RecalculationResult{Success: true, Skipped: true}, nil)

	res, err := svc.Recalculate(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, notifier.events)
}

func TestRecalculate_Errors(t *testing.T) {
	svc := NewAnalyticsService(newFakeRepo(), Options{}, zap.NewNop())
	_, err := svc.Recalculate(context.Background())
	assert.ErrorIs(t, err, ErrRecalculationUnavailable)

	recalc := new(MockRecalculator)
	recalc.On("RecalculateLosses", mock.Anything).Return(models.RecalculationResult{}, errors.New("tx aborted"))
	notifier := &recordingNotifier{}
	svc = NewAnalyticsService(newFakeRepo(), Options{Recalculator: recalc, Notifier: notifier}, zap.NewNop())
	_, err = svc.Recalculate(context.Background())
	assert.ErrorContains(t, err, "tx aborted")
	assert.Empty(t, notifier.events)
}

func TestRecalculate_NotifyFailureIsNotFatal(t *testing.T) {
	recalc := new(MockRecalculator)
	recalc.On("RecalculateLosses", mock.Anything).Return(models.RecalculationResult{Success: true, RecordsWritten: 1}, nil)
	notifier := &recordingNotifier{err: errors.New("broker down")}
	svc := NewAnalyticsService(newFakeRepo(), Options{Recalculator: recalc, Notifier: notifier}, zap.NewNop())

	_, err := svc.Recalculate(context.Background())
	assert.NoError(t, err)
	assert.Len(t, notifier.events, 1)
}

func TestListings(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAnalyticsService(repo, Options{
		Resolver: analytics.ResolverOptions{SessionLimit: 50, SessionOverlap: repository.OverlapAny},
	}, zap.NewNop())
	ctx := context.Background()

	stations, err := svc.Stations(ctx)
	require.NoError(t, err)
	assert.Len(t, stations, 2)

	_, err = svc.Station(ctx, 42)
	assert.ErrorIs(t, err, repository.ErrStationNotFound)

	losses, err := svc.Losses(ctx, analytics.SingleStation(2), analytics.Unbounded())
	require.NoError(t, err)
	assert.Len(t, losses, 1)

	sessions, err := svc.Sessions(ctx, analytics.AllStations(), analytics.Unbounded(), 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Equal(t, 50, repo.sessionQuery.Limit)
	assert.Equal(t, repository.OverlapAny, repo.sessionQuery.Overlap)

	_, err = svc.Consumption(ctx, analytics.AllStations(), analytics.Unbounded(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.callCount("consumption"))

	assert.NoError(t, svc.Health(ctx))
	repo.pingErr = errors.New("connection refused")
	assert.Error(t, svc.Health(ctx))
}
