package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"github.com/Bendy545/charging-stations/internal/models"
)

// ConsumptionMeasurement measurement holding meter readings, tagged by
// station_id with active/reactive power fields.
const ConsumptionMeasurement = "power_consumption"

// InfluxConfig connection settings for the consumption bucket
type InfluxConfig struct {
	URL    string
	Org    string
	Token  string
	Bucket string
}

// InfluxConsumptionSource reads raw consumption samples from InfluxDB v2.
type InfluxConsumptionSource struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	bucket   string
	logger   *zap.Logger
}

// NewInfluxConsumptionSource connects and verifies the server health.
func NewInfluxConsumptionSource(ctx context.Context, cfg InfluxConfig, logger *zap.Logger) (*InfluxConsumptionSource, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	return &InfluxConsumptionSource{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		logger:   logger,
	}, nil
}

// GetConsumption returns samples newest first.
func (s *InfluxConsumptionSource) GetConsumption(ctx context.Context, q ConsumptionQuery) ([]models.ConsumptionSample, error) {
	flux := buildConsumptionFlux(s.bucket, q)

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("failed to query consumption from InfluxDB: %w", err)
	}
	defer result.Close()

	samples := []models.ConsumptionSample{}
	for result.Next() {
		rec := result.Record()
		sample, err := sampleFromValues(rec.Time(), rec.Values())
		if err != nil {
			s.logger.Warn("Skipping malformed consumption point", zap.Error(err))
			continue
		}
		samples = append(samples, sample)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read consumption from InfluxDB: %w", err)
	}
	return samples, nil
}

// Close releases the client.
func (s *InfluxConsumptionSource) Close() {
	s.client.Close()
}

func buildConsumptionFlux(bucket string, q ConsumptionQuery) string {
	start := "0"
	if q.Start != nil {
		start = q.Start.UTC().Format(time.RFC3339Nano)
	}
	stop := "now()"
	if q.End != nil {
		// range stop is exclusive
		stop = q.End.UTC().Add(time.Nanosecond).Format(time.RFC3339Nano)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", bucket)
	fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n", start, stop)
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %q)\n", ConsumptionMeasurement)
	if q.StationID != nil {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r.station_id == %q)\n", strconv.FormatInt(*q.StationID, 10))
	}
	b.WriteString("  |> pivot(rowKey: [\"_time\"], columnKey: [\"_field\"], valueColumn: \"_value\")\n")
	b.WriteString("  |> group()\n")
	b.WriteString("  |> sort(columns: [\"_time\"], desc: true)\n")
	fmt.Fprintf(&b, "  |> limit(n: %d)", limitOrDefault(q.Limit, DefaultConsumptionLimit))
	return b.String()
}

func sampleFromValues(ts time.Time, values map[string]interface{}) (models.ConsumptionSample, error) {
	sample := models.ConsumptionSample{Timestamp: ts}

	rawID, ok := values["station_id"].(string)
	if !ok {
		return sample, fmt.Errorf("point at %s has no station_id tag", ts.Format(time.RFC3339))
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return sample, fmt.Errorf("invalid station_id tag %q: %w", rawID, err)
	}
	sample.StationID = id
	sample.ActivePowerKWh = numeric(values["active_power_kwh"])
	sample.ReactivePowerKWh = numeric(values["reactive_power_kwh"])
	if code, ok := values["station_code"].(string); ok {
		sample.StationCode = code
	}
	return sample, nil
}

func numeric(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return 0
}
