package activitymap_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	guest "github.com/goliatone/go-guest"
	"github.com/goliatone/go-guest/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := guest.ActivityEvent{
		EventType: guest.ActivityEventGuestConverted,
		UserID:    "user-100",
		Username:  "alice",
		Metadata: map[string]any{
			"previous_username": "guest_abc",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "user-100" {
		t.Fatalf("expected actor_id user-100, got %q", out.ActorID)
	}
	if out.Verb != string(guest.ActivityEventGuestConverted) {
		t.Fatalf("expected verb %q, got %q", guest.ActivityEventGuestConverted, out.Verb)
	}
	if out.ObjectType != "user" {
		t.Fatalf("expected object_type user, got %q", out.ObjectType)
	}
	if out.ObjectID != "user-100" {
		t.Fatalf("expected object_id user-100, got %q", out.ObjectID)
	}
	if out.Channel != "guest" {
		t.Fatalf("expected channel guest, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["previous_username"] != "guest_abc" {
		t.Fatalf("expected metadata previous_username guest_abc, got %#v", out.Metadata["previous_username"])
	}
	if out.Metadata[activitymap.MetadataKeyUsername] != "alice" {
		t.Fatalf("expected metadata username alice, got %#v", out.Metadata[activitymap.MetadataKeyUsername])
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestMapperStampsUndatedEvents(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.FixedZone("CET", 3600))
	mapper := activitymap.NewMapper(activitymap.WithClock(func() time.Time { return fixed }))

	out := mapper.Map(guest.ActivityEvent{
		EventType: guest.ActivityEventGuestExpired,
		UserID:    "user-200",
		Username:  "guest_xyz",
		Metadata: map[string]any{
			"sweep_id":                      "sweep-1",
			activitymap.MetadataKeyUsername: "existing",
		},
	})

	if !out.OccurredAt.Equal(fixed) || out.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected occurred_at %v in UTC, got %v", fixed, out.OccurredAt)
	}
	if out.Metadata[activitymap.MetadataKeyUsername] != "existing" {
		t.Fatalf("expected existing username preserved, got %#v", out.Metadata[activitymap.MetadataKeyUsername])
	}
	if out.Metadata["sweep_id"] != "sweep-1" {
		t.Fatalf("expected sweep_id carried over, got %#v", out.Metadata["sweep_id"])
	}
}

func TestMapperOmitsEmptyMetadata(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(guest.ActivityEvent{EventType: guest.ActivityEventGuestCreated, UserID: "u9"})
	if out.Metadata != nil {
		t.Fatalf("expected no metadata, got %+v", out.Metadata)
	}
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  guest.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses user id when present",
			event:  guest.ActivityEvent{UserID: "user-2"},
			expect: "user-2",
		},
		{
			name:   "uses default fallback when user missing",
			event:  guest.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "uses configured fallback when user missing",
			event:  guest.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("sweeper")},
			expect: "sweeper",
		},
		{
			name:   "ignores blank fallback",
			event:  guest.ActivityEvent{UserID: "  "},
			opts:   []activitymap.Option{activitymap.WithActorFallback(" ")},
			expect: "system",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}

func TestJSONSinkWritesLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := activitymap.NewJSONSink(&buf)
	ctx := context.Background()

	events := []guest.ActivityEvent{
		{EventType: guest.ActivityEventGuestCreated, UserID: "u1", Username: "guest1", OccurredAt: time.Now()},
		{EventType: guest.ActivityEventGuestExpired, UserID: "u1", OccurredAt: time.Now()},
	}
	for _, e := range events {
		if err := sink.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var first activitymap.Normalized
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Verb != "guest.created" || first.ObjectID != "u1" {
		t.Fatalf("unexpected record %+v", first)
	}
}
