package analytics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Bendy545/charging-stations/internal/models"
	"github.com/Bendy545/charging-stations/internal/repository"
)

// Scope either the whole fleet or a single station. The zero value is the
// fleet scope.
type Scope struct {
	single    bool
	stationID int64
}

// AllStations the fleet-wide scope.
func AllStations() Scope { return Scope{} }

// SingleStation a one-station scope. A non-positive id stays a single-station
// scope and is rejected by Resolve.
func SingleStation(id int64) Scope { return Scope{single: true, stationID: id} }

// IsAll reports whether the scope covers every station.
func (s Scope) IsAll() bool { return !s.single }

// StationID returns the station id and false for the fleet scope.
func (s Scope) StationID() (int64, bool) { return s.stationID, s.single }

func (s Scope) String() string {
	if s.IsAll() {
		return "all"
	}
	return strconv.FormatInt(s.stationID, 10)
}

func (s Scope) stationFilter() *int64 {
	if s.IsAll() {
		return nil
	}
	id := s.stationID
	return &id
}

// ParseScope accepts "", "all" or a positive station id.
func ParseScope(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "all") {
		return AllStations(), nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Scope{}, &ValidationError{Field: "station_id", Message: fmt.Sprintf("%q is not a station id", raw)}
	}
	return SingleStation(id), nil
}

// RecordSource the record streams the resolver reads.
type RecordSource interface {
	GetStations(ctx context.Context) ([]models.Station, error)
	GetStation(ctx context.Context, id int64) (models.Station, error)
	GetLossRecords(ctx context.Context, q repository.LossQuery) ([]models.LossRecord, error)
	GetSessions(ctx context.Context, q repository.SessionQuery) ([]models.ChargingSession, error)
}

// Resolution the three record streams for one scope and interval. A stream
// that failed is listed in Failures and its slice is left empty; the other
// streams are still returned.
type Resolution struct {
	Scope       Scope
	Interval    Interval
	Stations    []models.Station
	LossRecords []models.LossRecord
	Sessions    []models.ChargingSession
	Failures    []*StreamError
}

// Partial reports whether at least one stream failed.
func (r *Resolution) Partial() bool { return len(r.Failures) > 0 }

// Failed reports whether the given stream failed.
func (r *Resolution) Failed(stream Stream) bool {
	return r.FailureFor(stream) != nil
}

// FailureFor returns the failure of a stream, or nil.
func (r *Resolution) FailureFor(stream Stream) *StreamError {
	for _, f := range r.Failures {
		if f.Stream == stream {
			return f
		}
	}
	return nil
}

// Err joins all stream failures, nil when complete.
func (r *Resolution) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// ResolverOptions tune the session stream.
type ResolverOptions struct {
	SessionLimit   int
	SessionOverlap repository.SessionOverlap
}

// StationScopeResolver fetches the record streams of a scope concurrently.
type StationScopeResolver struct {
	source RecordSource
	opts   ResolverOptions
	logger *zap.Logger
}

// NewStationScopeResolver creates a resolver over source.
func NewStationScopeResolver(source RecordSource, opts ResolverOptions, logger *zap.Logger) *StationScopeResolver {
	if opts.SessionLimit <= 0 {
		opts.SessionLimit = repository.DefaultSessionLimit
	}
	if opts.SessionOverlap == "" {
		opts.SessionOverlap = repository.OverlapFinished
	}
	return &StationScopeResolver{source: source, opts: opts, logger: logger}
}

// Resolve fetches stations, loss records and sessions for scope within iv.
// Validation errors are returned before anything is fetched. Stream
// failures never abort the call; they are reported on the Resolution.
func (r *StationScopeResolver) Resolve(ctx context.Context, scope Scope, iv Interval) (*Resolution, error) {
	iv, err := Normalize(iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	if id, ok := scope.StationID(); ok && id <= 0 {
		return nil, &ValidationError{Field: "station_id", Message: "must be positive"}
	}

	res := &Resolution{
		Scope:       scope,
		Interval:    iv,
		Stations:    []models.Station{},
		LossRecords: []models.LossRecord{},
		Sessions:    []models.ChargingSession{},
	}

	var (
		wg          sync.WaitGroup
		stationsErr error
		lossErr     error
		sessionsErr error
		stations    []models.Station
		losses      []models.LossRecord
		sessions    []models.ChargingSession
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		stations, stationsErr = r.fetchStations(ctx, scope)
	}()
	go func() {
		defer wg.Done()
		losses, lossErr = r.source.GetLossRecords(ctx, repository.LossQuery{
			StationID: scope.stationFilter(),
			Start:     iv.Start,
			End:       iv.End,
		})
	}()
	go func() {
		defer wg.Done()
		sessions, sessionsErr = r.source.GetSessions(ctx, repository.SessionQuery{
			StationID: scope.stationFilter(),
			Start:     iv.Start,
			End:       iv.End,
			Limit:     r.opts.SessionLimit,
			Overlap:   r.opts.SessionOverlap,
		})
	}()
	wg.Wait()

	if stationsErr != nil {
		res.Failures = append(res.Failures, &StreamError{Stream: StreamStations, Err: stationsErr})
	} else if stations != nil {
		res.Stations = stations
	}
	if lossErr != nil {
		res.Failures = append(res.Failures, &StreamError{Stream: StreamLossRecords, Err: lossErr})
	} else {
		res.LossRecords = filterLosses(scope, losses)
	}
	if sessionsErr != nil {
		res.Failures = append(res.Failures, &StreamError{Stream: StreamSessions, Err: sessionsErr})
	} else {
		res.Sessions = filterSessions(scope, sessions)
	}

	if res.Partial() {
		r.logger.Warn("Scope resolved with failed streams",
			zap.String("scope", scope.String()),
			zap.String("interval", iv.String()),
			zap.Int("error_count", len(res.Failures)),
			zap.Error(res.Err()),
		)
	} else {
		r.logger.Debug("Scope resolved",
			zap.String("scope", scope.String()),
			zap.Int("station_count", len(res.Stations)),
			zap.Int("loss_record_count", len(res.LossRecords)),
			zap.Int("session_count", len(res.Sessions)),
		)
	}
	return res, nil
}

func (r *StationScopeResolver) fetchStations(ctx context.Context, scope Scope) ([]models.Station, error) {
	id, ok := scope.StationID()
	if !ok {
		return r.source.GetStations(ctx)
	}
	st, err := r.source.GetStation(ctx, id)
	if err != nil {
		return nil, err
	}
	return []models.Station{st}, nil
}

// filterLosses drops rows of other stations in case the source ignored the filter.
func filterLosses(scope Scope, in []models.LossRecord) []models.LossRecord {
	out := make([]models.LossRecord, 0, len(in))
	id, single := scope.StationID()
	for _, rec := range in {
		if single && rec.StationID != id {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func filterSessions(scope Scope, in []models.ChargingSession) []models.ChargingSession {
	out := make([]models.ChargingSession, 0, len(in))
	id, single := scope.StationID()
	for _, s := range in {
		if single && s.StationID != id {
			continue
		}
		out = append(out, s)
	}
	return out
}
