// Package activitymap flattens guest lifecycle events into records for
// audit pipelines.
package activitymap

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	guest "github.com/goliatone/go-guest"
)

// MetadataKeyUsername holds the account username when the event has one.
const MetadataKeyUsername = "username"

const (
	Channel    = "guest"
	ObjectType = "user"

	defaultActorID = "system"
)

// Normalized is the flat record written for every guest event.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Mapper turns guest events into Normalized records.
type Mapper struct {
	actor string
	now   func() time.Time
}

// Option customizes a Mapper.
type Option func(*Mapper)

// WithActorFallback names the actor of events without a user id, such as
// sweeper runs.
func WithActorFallback(actorID string) Option {
	return func(m *Mapper) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			m.actor = actorID
		}
	}
}

// WithClock stamps events that arrive without OccurredAt.
func WithClock(now func() time.Time) Option {
	return func(m *Mapper) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMapper returns a Mapper with the given options applied.
func NewMapper(opts ...Option) Mapper {
	m := Mapper{actor: defaultActorID, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Normalize maps event with a Mapper built from opts.
func Normalize(event guest.ActivityEvent, opts ...Option) Normalized {
	return NewMapper(opts...).Map(event)
}

// Map converts event. The account the event is about is both object and,
// when known, actor.
func (m Mapper) Map(event guest.ActivityEvent) Normalized {
	userID := strings.TrimSpace(event.UserID)
	actor := userID
	if actor == "" {
		actor = m.actor
	}

	at := event.OccurredAt
	if at.IsZero() {
		at = m.now()
	}

	return Normalized{
		ActorID:    actor,
		Verb:       string(event.EventType),
		ObjectType: ObjectType,
		ObjectID:   userID,
		Channel:    Channel,
		Metadata:   eventMetadata(event),
		OccurredAt: at.UTC(),
	}
}

// eventMetadata copies event.Metadata; an explicit username entry wins
// over event.Username.
func eventMetadata(event guest.ActivityEvent) map[string]any {
	username := strings.TrimSpace(event.Username)
	if len(event.Metadata) == 0 && username == "" {
		return nil
	}

	out := make(map[string]any, len(event.Metadata)+1)
	if username != "" {
		out[MetadataKeyUsername] = username
	}
	for k, v := range event.Metadata {
		out[k] = v
	}
	return out
}

// JSONSink writes every event as one normalized JSON line.
type JSONSink struct {
	mapper Mapper

	mu  sync.Mutex
	enc *json.Encoder
}

var _ guest.ActivitySink = (*JSONSink)(nil)

// NewJSONSink returns a sink writing to w.
func NewJSONSink(w io.Writer, opts ...Option) *JSONSink {
	return &JSONSink{mapper: NewMapper(opts...), enc: json.NewEncoder(w)}
}

// Record implements guest.ActivitySink.
func (s *JSONSink) Record(_ context.Context, event guest.ActivityEvent) error {
	out := s.mapper.Map(event)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(out)
}
