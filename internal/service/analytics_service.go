package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Bendy545/charging-stations/internal/analytics"
	"github.com/Bendy545/charging-stations/internal/cache"
	"github.com/Bendy545/charging-stations/internal/metrics"
	"github.com/Bendy545/charging-stations/internal/models"
	"github.com/Bendy545/charging-stations/internal/notify"
	"github.com/Bendy545/charging-stations/internal/repository"
)

const reportCacheKind = "report"

// ErrRecalculationUnavailable the configured record source cannot rebuild losses.
var ErrRecalculationUnavailable = errors.New("loss recalculation is not available for this record source")

// Options optional collaborators of the service. Nil members are disabled.
type Options struct {
	Resolver         analytics.ResolverOptions
	ConsumptionLimit int
	Cache            *cache.ReportCache
	Recalculator     repository.Recalculator
	Notifier         notify.Notifier
	Metrics          *metrics.Metrics
}

// AnalyticsService orchestrates one aggregation request: validate the
// interval, resolve the record streams, derive the views and cache complete
// results.
type AnalyticsService struct {
	repo             repository.RecordRepository
	resolver         *analytics.StationScopeResolver
	sessionLimit     int
	sessionOverlap   repository.SessionOverlap
	consumptionLimit int
	cache            *cache.ReportCache
	recalculator     repository.Recalculator
	notifier         notify.Notifier
	metrics          *metrics.Metrics
	logger           *zap.Logger
	now              func() time.Time
}

func NewAnalyticsService(repo repository.RecordRepository, opts Options, logger *zap.Logger) *AnalyticsService {
	if opts.Notifier == nil {
		opts.Notifier = notify.NopNotifier{}
	}
	if opts.ConsumptionLimit <= 0 {
		opts.ConsumptionLimit = repository.DefaultConsumptionLimit
	}
	src := &timedSource{RecordRepository: repo, metrics: opts.Metrics}
	resolver := analytics.NewStationScopeResolver(src, opts.Resolver, logger)

	limit := opts.Resolver.SessionLimit
	if limit <= 0 {
		limit = repository.DefaultSessionLimit
	}
	overlap := opts.Resolver.SessionOverlap
	if overlap == "" {
		overlap = repository.OverlapFinished
	}

	return &AnalyticsService{
		repo:             repo,
		resolver:         resolver,
		sessionLimit:     limit,
		sessionOverlap:   overlap,
		consumptionLimit: opts.ConsumptionLimit,
		cache:            opts.Cache,
		recalculator:     opts.Recalculator,
		notifier:         opts.Notifier,
		metrics:          opts.Metrics,
		logger:           logger,
		now:              time.Now,
	}
}

// Dashboard the fleet-wide report.
func (s *AnalyticsService) Dashboard(ctx context.Context, iv analytics.Interval) (*Report, error) {
	return s.Report(ctx, analytics.AllStations(), iv)
}

// StationReport the single-station report. Returns ErrStationNotFound when
// the station does not exist.
func (s *AnalyticsService) StationReport(ctx context.Context, stationID int64, iv analytics.Interval) (*Report, error) {
	if stationID <= 0 {
		return nil, &analytics.ValidationError{Field: "station_id", Message: "must be positive"}
	}
	return s.Report(ctx, analytics.SingleStation(stationID), iv)
}

// Report resolves scope within iv and derives every view. Stream failures
// produce a partial report; only when every stream failed is an error
// returned.
func (s *AnalyticsService) Report(ctx context.Context, scope analytics.Scope, iv analytics.Interval) (*Report, error) {
	iv, err := analytics.Normalize(iv.Start, iv.End)
	if err != nil {
		return nil, err
	}

	// generation observed before the fetch; -1 = cache unusable for this request
	gen := int64(-1)
	if s.cache != nil {
		var cached Report
		g, found, err := s.cache.Get(ctx, reportCacheKind, scope.String(), iv.Start, iv.End, &cached)
		switch {
		case err != nil:
			s.logger.Warn("Report cache read failed", zap.String("scope", scope.String()), zap.Error(err))
		case found:
			s.metrics.Aggregation(reportCacheKind, "cached")
			return &cached, nil
		default:
			gen = g
		}
	}

	res, err := s.resolver.Resolve(ctx, scope, iv)
	if err != nil {
		return nil, err
	}
	for _, f := range res.Failures {
		s.metrics.StreamFailure(string(f.Stream))
	}

	if f := res.FailureFor(analytics.StreamStations); f != nil && errors.Is(f.Err, repository.ErrStationNotFound) {
		s.metrics.Aggregation(reportCacheKind, "failed")
		return nil, fmt.Errorf("station %s: %w", scope, repository.ErrStationNotFound)
	}
	if len(res.Failures) == 3 {
		s.metrics.Aggregation(reportCacheKind, "failed")
		return nil, fmt.Errorf("failed to resolve %s: %w", scope, res.Err())
	}

	rep := buildReport(res)
	if rep.Partial {
		s.metrics.Aggregation(reportCacheKind, "partial")
		return rep, nil
	}
	s.metrics.Aggregation(reportCacheKind, "complete")

	if s.cache != nil && gen >= 0 {
		if err := s.cache.Set(ctx, gen, reportCacheKind, scope.String(), iv.Start, iv.End, rep); err != nil {
			s.logger.Warn("Report cache write failed", zap.String("scope", scope.String()), zap.Error(err))
		}
	}
	return rep, nil
}

// Stations all stations ordered by code.
func (s *AnalyticsService) Stations(ctx context.Context) ([]models.Station, error) {
	stations, err := s.repo.GetStations(ctx)
	if err != nil {
		return nil, unavailable("stations", err)
	}
	return stations, nil
}

func (s *AnalyticsService) Station(ctx context.Context, id int64) (models.Station, error) {
	if id <= 0 {
		return models.Station{}, &analytics.ValidationError{Field: "station_id", Message: "must be positive"}
	}
	st, err := s.repo.GetStation(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrStationNotFound) {
		return models.Station{}, unavailable("station", err)
	}
	return st, err
}

// Consumption raw consumption samples, newest first.
func (s *AnalyticsService) Consumption(ctx context.Context, scope analytics.Scope, iv analytics.Interval, limit int) ([]models.ConsumptionSample, error) {
	iv, err := analytics.Normalize(iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.consumptionLimit
	}
	id := scopeFilter(scope)
	samples, err := s.repo.GetConsumption(ctx, repository.ConsumptionQuery{
		StationID: id,
		Start:     iv.Start,
		End:       iv.End,
		Limit:     limit,
	})
	if err != nil {
		return nil, unavailable("consumption", err)
	}
	return samples, nil
}

// Sessions charging sessions under the configured overlap policy.
func (s *AnalyticsService) Sessions(ctx context.Context, scope analytics.Scope, iv analytics.Interval, limit int) ([]models.ChargingSession, error) {
	iv, err := analytics.Normalize(iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.sessionLimit
	}
	id := scopeFilter(scope)
	sessions, err := s.repo.GetSessions(ctx, repository.SessionQuery{
		StationID: id,
		Start:     iv.Start,
		End:       iv.End,
		Limit:     limit,
		Overlap:   s.sessionOverlap,
	})
	if err != nil {
		return nil, unavailable("sessions", err)
	}
	return sessions, nil
}

// Losses stored loss records, newest period first.
func (s *AnalyticsService) Losses(ctx context.Context, scope analytics.Scope, iv analytics.Interval) ([]models.LossRecord, error) {
	iv, err := analytics.Normalize(iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	id := scopeFilter(scope)
	records, err := s.repo.GetLossRecords(ctx, repository.LossQuery{StationID: id, Start: iv.Start, End: iv.End})
	if err != nil {
		return nil, unavailable("loss records", err)
	}
	return records, nil
}

// Recalculate rebuilds the loss records, then invalidates cached reports
// and announces the change. Cache and notification failures are logged
// only; the recalculation itself already succeeded.
func (s *AnalyticsService) Recalculate(ctx context.Context) (models.RecalculationResult, error) {
	if s.recalculator == nil {
		return models.RecalculationResult{}, ErrRecalculationUnavailable
	}

	res, err := s.recalculator.RecalculateLosses(ctx)
	if err != nil {
		s.metrics.Recalculation("failed", 0)
		return models.RecalculationResult{}, err
	}
	if res.Skipped {
		s.metrics.Recalculation("skipped", 0)
		return res, nil
	}
	s.metrics.Recalculation("written", res.RecordsWritten)

	if err := s.InvalidateCache(ctx); err != nil {
		s.logger.Warn("Failed to invalidate report cache", zap.Error(err))
	}
	ev := notify.NewRecalculatedEvent(res, s.now())
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish recalculation event", zap.String("event_id", ev.ID), zap.Error(err))
	}

	s.logger.Info("Loss records recalculated",
		zap.Int("records_written", res.RecordsWritten),
		zap.Int("station_count", res.Stations),
	)
	return res, nil
}

// InvalidateCache drops every cached report; no-op without a cache.
func (s *AnalyticsService) InvalidateCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

// HandleEvent reacts to notifications from other instances.
func (s *AnalyticsService) HandleEvent(ctx context.Context, ev notify.Event) error {
	switch ev.Type {
	case notify.EventLossesRecalculated:
		return s.InvalidateCache(ctx)
	default:
		s.logger.Debug("Ignoring event", zap.String("type", ev.Type), zap.String("event_id", ev.ID))
		return nil
	}
}

// Health pings the record source.
func (s *AnalyticsService) Health(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// unavailable marks a collaborator failure as ErrDataUnavailable.
func unavailable(what string, err error) error {
	return fmt.Errorf("failed to get %s: %w: %w", what, analytics.ErrDataUnavailable, err)
}

func scopeFilter(scope analytics.Scope) *int64 {
	id, ok := scope.StationID()
	if !ok {
		return nil
	}
	return &id
}

// timedSource records fetch latency per record stream.
type timedSource struct {
	repository.RecordRepository
	metrics *metrics.Metrics
}

func (t *timedSource) observe(stream analytics.Stream, start time.Time) {
	t.metrics.StreamFetch(string(stream), time.Since(start))
}

func (t *timedSource) GetStations(ctx context.Context) ([]models.Station, error) {
	defer t.observe(analytics.StreamStations, time.Now())
	return t.RecordRepository.GetStations(ctx)
}

func (t *timedSource) GetStation(ctx context.Context, id int64) (models.Station, error) {
	defer t.observe(analytics.StreamStations, time.Now())
	return t.RecordRepository.GetStation(ctx, id)
}

func (t *timedSource) GetLossRecords(ctx context.Context, q repository.LossQuery) ([]models.LossRecord, error) {
	defer t.observe(analytics.StreamLossRecords, time.Now())
	return t.RecordRepository.GetLossRecords(ctx, q)
}

func (t *timedSource) GetSessions(ctx context.Context, q repository.SessionQuery) ([]models.ChargingSession, error) {
	defer t.observe(analytics.StreamSessions, time.Now())
	return t.RecordRepository.GetSessions(ctx, q)
}
