package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bendy545/charging-stations/internal/models"
)

// ErrStationNotFound no station with the requested id
var ErrStationNotFound = errors.New("station not found")

const (
	DefaultSessionLimit     = 1000
	DefaultConsumptionLimit = 1000
)

// SessionOverlap decides which sessions belong to a time window.
type SessionOverlap string

const (
	// OverlapFinished keeps sessions whose end lies inside the window.
	OverlapFinished SessionOverlap = "finished"
	// OverlapStarted keeps sessions whose start lies inside the window.
	OverlapStarted SessionOverlap = "started"
	// OverlapAny keeps every session intersecting the window; open
	// sessions extend to +inf.
	OverlapAny SessionOverlap = "overlapping"
)

// ParseSessionOverlap parses a policy name; empty means OverlapFinished.
func ParseSessionOverlap(s string) (SessionOverlap, error) {
	switch SessionOverlap(s) {
	case "", OverlapFinished:
		return OverlapFinished, nil
	case OverlapStarted, OverlapAny:
		return SessionOverlap(s), nil
	}
	return "", fmt.Errorf("unknown session overlap policy %q", s)
}

// LossQuery selects loss records by station and period_start window.
type LossQuery struct {
	StationID *int64
	Start     *time.Time
	End       *time.Time
}

// SessionQuery selects charging sessions.
type SessionQuery struct {
	StationID *int64
	Start     *time.Time
	End       *time.Time
	Limit     int
	Overlap   SessionOverlap
}

// ConsumptionQuery selects raw consumption samples by timestamp.
type ConsumptionQuery struct {
	StationID *int64
	Start     *time.Time
	End       *time.Time
	Limit     int
}

// StationReader station lookups
type StationReader interface {
	GetStations(ctx context.Context) ([]models.Station, error)
	GetStation(ctx context.Context, id int64) (models.Station, error)
}

// ConsumptionSource supplies raw consumption samples.
type ConsumptionSource interface {
	GetConsumption(ctx context.Context, q ConsumptionQuery) ([]models.ConsumptionSample, error)
}

// RecordRepository the full record boundary consumed by the analytics layer.
type RecordRepository interface {
	StationReader
	ConsumptionSource
	GetLossRecords(ctx context.Context, q LossQuery) ([]models.LossRecord, error)
	GetSessions(ctx context.Context, q SessionQuery) ([]models.ChargingSession, error)
	Ping(ctx context.Context) error
}

// Recalculator regenerates persisted loss records.
type Recalculator interface {
	RecalculateLosses(ctx context.Context) (models.RecalculationResult, error)
}

// withConsumption overrides the consumption stream of a repository.
type withConsumption struct {
	RecordRepository
	consumption ConsumptionSource
}

func (w *withConsumption) GetConsumption(ctx context.Context, q ConsumptionQuery) ([]models.ConsumptionSample, error) {
	return w.consumption.GetConsumption(ctx, q)
}

// WithConsumptionSource serves consumption samples from src and every other
// stream from base.
func WithConsumptionSource(base RecordRepository, src ConsumptionSource) RecordRepository {
	if src == nil {
		return base
	}
	return &withConsumption{RecordRepository: base, consumption: src}
}

func limitOrDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
