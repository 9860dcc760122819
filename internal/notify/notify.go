package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Bendy545/charging-stations/internal/models"
)

// EventLossesRecalculated is published after loss records were replaced.
const EventLossesRecalculated = "losses.recalculated"

// Event notification payload shared by every transport
type Event struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	OccurredAt     time.Time `json:"occurred_at"`
	RecordsWritten int       `json:"records_written"`
	Stations       int       `json:"stations"`
	RangeStart     *string   `json:"range_start,omitempty"`
	RangeEnd       *string   `json:"range_end,omitempty"`
}

// NewRecalculatedEvent builds the event for a finished recalculation.
func NewRecalculatedEvent(res models.RecalculationResult, now time.Time) Event {
	ev := Event{
		ID:             uuid.NewString(),
		Type:           EventLossesRecalculated,
		OccurredAt:     now.UTC(),
		RecordsWritten: res.RecordsWritten,
		Stations:       res.Stations,
	}
	if res.RangeStart != nil {
		s := res.RangeStart.UTC().Format("2006-01-02")
		ev.RangeStart = &s
	}
	if res.RangeEnd != nil {
		s := res.RangeEnd.UTC().Format("2006-01-02")
		ev.RangeEnd = &s
	}
	return ev
}

// Encode JSON body used on the wire.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// DecodeEvent parses a wire body.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event without type")
	}
	return ev, nil
}

// Notifier publishes events to a transport.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Event) error { return nil }
func (NopNotifier) Close() error                        { return nil }
