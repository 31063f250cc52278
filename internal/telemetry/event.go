// Package telemetry emits gate decision events to pluggable sinks.
//
// Delivery is fire-and-forget: a slow or failing sink can drop events but
// must never slow down or fail a gate decision.
package telemetry

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/huddlechat/gatekit/internal/domain"
)

// Stage names which transition produced an event.
type Stage string

const (
	StageEvaluate Stage = "evaluate"
	StageCommit   Stage = "commit"
)

// Event is one gate transition. Field names and trigger reason values are a
// contract with the analytics pipeline.
type Event struct {
	Stage             Stage                `json:"stage"`
	UserID            uuid.UUID            `json:"user_id"`
	Feature           domain.FeatureKey    `json:"feature"`
	UserTier          domain.Tier          `json:"user_tier"`
	CurrentUsage      uint                 `json:"current_usage"`
	Limit             uint                 `json:"limit"`
	RemainingCooldown time.Duration        `json:"remaining_cooldown"`
	TriggerReason     domain.TriggerReason `json:"trigger_reason"`
	At                time.Time            `json:"at"`
}

// FromResult builds an event from a gate result.
func FromResult(stage Stage, userID uuid.UUID, r domain.GateResult, at time.Time) Event {
	return Event{
		Stage:             stage,
		UserID:            userID,
		Feature:           r.Feature,
		UserTier:          r.Tier,
		CurrentUsage:      r.CurrentUsage,
		Limit:             r.Limit,
		RemainingCooldown: r.RemainingCooldown,
		TriggerReason:     r.Reason,
		At:                at,
	}
}

// Sink receives events. Implementations must not block for long and must
// swallow their own failures.
type Sink interface {
	Record(e Event)
}

// Publisher is the producer-side surface of the pipeline. The gate engine
// publishes through this so it never sees sinks or queues.
type Publisher interface {
	Publish(e Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

// NopPublisher discards all events; useful for embedding the engine without
// a telemetry pipeline.
func NopPublisher() Publisher {
	return nopPublisher{}
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event)

func (f SinkFunc) Record(e Event) { f(e) }

// Multi fans one event out to several sinks.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			s.Record(e)
		}
	})
}

// NewLogSink records events as debug log lines.
func NewLogSink(logger *slog.Logger) Sink {
	return SinkFunc(func(e Event) {
		logger.Debug("gate event",
			"stage", string(e.Stage),
			"user_id", e.UserID,
			"feature", string(e.Feature),
			"user_tier", string(e.UserTier),
			"current_usage", e.CurrentUsage,
			"limit", e.Limit,
			"remaining_cooldown_s", int64(e.RemainingCooldown.Seconds()),
			"trigger_reason", string(e.TriggerReason),
		)
	})
}

// Recorder is a Sink that captures events for tests.
type Recorder struct {
	ch chan Event
}

// NewRecorder creates a Recorder buffering up to n events.
func NewRecorder(n int) *Recorder {
	return &Recorder{ch: make(chan Event, n)}
}

func (r *Recorder) Record(e Event) {
	select {
	case r.ch <- e:
	default:
	}
}

// Next waits for the next captured event.
func (r *Recorder) Next(timeout time.Duration) (Event, bool) {
	select {
	case e := <-r.ch:
		return e, true
	case <-time.After(timeout):
		return Event{}, false
	}
}
