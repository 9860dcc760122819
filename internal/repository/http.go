package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Bendy545/charging-stations/internal/models"
)

const upstreamTimeLayout = "2006-01-02T15:04:05"

// apiResponse upstream JSON envelope
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// HTTPRecordRepository reads records from an upstream instance of the
// records API. Retries are handled by the resty client.
type HTTPRecordRepository struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPRecordRepository creates an upstream client.
func NewHTTPRecordRepository(baseURL string, timeout time.Duration, retries int, logger *zap.Logger) *HTTPRecordRepository {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode() >= 500)
		}).
		SetHeader("Accept", "application/json")

	return &HTTPRecordRepository{
		httpClient: client,
		logger:     logger,
	}
}

// call performs a request and unwraps the envelope into out.
func (r *HTTPRecordRepository) call(ctx context.Context, method, path string, params map[string]string, out any) (*apiResponse, error) {
	var envelope apiResponse
	resp, err := r.httpClient.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&envelope).
		SetError(&envelope).
		Execute(method, path)
	if err != nil {
		r.logger.Error("Upstream call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to call upstream %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("upstream %s returned status %d: %s", path, resp.StatusCode(), envelope.Error)
	}
	if !envelope.Success {
		return &envelope, fmt.Errorf("upstream %s error: %s", path, envelope.Error)
	}
	if out != nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return nil, fmt.Errorf("failed to decode upstream %s: %w", path, err)
		}
	}
	return &envelope, nil
}

func queryParams(stationID *int64, start, end *time.Time, limit int) map[string]string {
	params := make(map[string]string)
	if stationID != nil {
		params["station_id"] = strconv.FormatInt(*stationID, 10)
	}
	if start != nil {
		params["start_date"] = start.UTC().Format(upstreamTimeLayout)
	}
	if end != nil {
		params["end_date"] = end.UTC().Format(upstreamTimeLayout)
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	return params
}

func (r *HTTPRecordRepository) GetStations(ctx context.Context) ([]models.Station, error) {
	var rows []stationDTO
	if _, err := r.call(ctx, resty.MethodGet, "/api/stations", nil, &rows); err != nil {
		return nil, err
	}
	stations := make([]models.Station, 0, len(rows))
	for _, row := range rows {
		stations = append(stations, row.model())
	}
	return stations, nil
}

func (r *HTTPRecordRepository) GetStation(ctx context.Context, id int64) (models.Station, error) {
	var row stationDTO
	env, err := r.call(ctx, resty.MethodGet, "/api/stations/"+strconv.FormatInt(id, 10), nil, &row)
	if err != nil {
		if env != nil && strings.Contains(strings.ToLower(env.Error), "not found") {
			return models.Station{}, fmt.Errorf("station %d: %w", id, ErrStationNotFound)
		}
		return models.Station{}, err
	}
	return row.model(), nil
}

func (r *HTTPRecordRepository) GetLossRecords(ctx context.Context, q LossQuery) ([]models.LossRecord, error) {
	var rows []lossDTO
	if _, err := r.call(ctx, resty.MethodGet, "/api/losses", queryParams(q.StationID, q.Start, q.End, 0), &rows); err != nil {
		return nil, err
	}
	records := make([]models.LossRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.model())
	}
	return records, nil
}

// GetSessions queries the upstream, which filters by end time; other overlap
// policies are not expressible there and are rejected.
func (r *HTTPRecordRepository) GetSessions(ctx context.Context, q SessionQuery) ([]models.ChargingSession, error) {
	if q.Overlap != "" && q.Overlap != OverlapFinished {
		return nil, fmt.Errorf("upstream only supports the %q session policy, got %q", OverlapFinished, q.Overlap)
	}
	params := queryParams(q.StationID, q.Start, q.End, limitOrDefault(q.Limit, DefaultSessionLimit))
	var rows []sessionDTO
	if _, err := r.call(ctx, resty.MethodGet, "/api/sessions", params, &rows); err != nil {
		return nil, err
	}
	sessions := make([]models.ChargingSession, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.model())
	}
	return sessions, nil
}

func (r *HTTPRecordRepository) GetConsumption(ctx context.Context, q ConsumptionQuery) ([]models.ConsumptionSample, error) {
	params := queryParams(q.StationID, q.Start, q.End, limitOrDefault(q.Limit, DefaultConsumptionLimit))
	var rows []consumptionDTO
	if _, err := r.call(ctx, resty.MethodGet, "/api/consumption", params, &rows); err != nil {
		return nil, err
	}
	samples := make([]models.ConsumptionSample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, row.model())
	}
	return samples, nil
}

// RecalculateLosses triggers recalculation upstream.
func (r *HTTPRecordRepository) RecalculateLosses(ctx context.Context) (models.RecalculationResult, error) {
	env, err := r.call(ctx, resty.MethodPost, "/api/losses/recalculate", nil, nil)
	if err != nil {
		return models.RecalculationResult{Success: false, Message: err.Error()}, err
	}
	return models.RecalculationResult{Success: true, Message: env.Message}, nil
}

// Ping checks that the upstream answers its health endpoint.
func (r *HTTPRecordRepository) Ping(ctx context.Context) error {
	resp, err := r.httpClient.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("failed to reach upstream: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("upstream health returned status %d", resp.StatusCode())
	}
	return nil
}
