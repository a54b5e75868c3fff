package trace

import (
	"fmt"
	"testing"
	"time"
)

func TestBufferKeepsInsertionOrder(t *testing.T) {
	b := NewBuffer(5)
	b.Info("one")
	b.Warn("two")
	b.Success("three")

	events := b.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	want := []string{"one", "two", "three"}
	for i, ev := range events {
		if ev.Message != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], ev.Message)
		}
	}
	if events[1].Severity != SeverityWarning {
		t.Errorf("expected warning severity, got %s", events[1].Severity)
	}
}

func TestBufferEvictsOldest(t *testing.T) {
	b := NewBuffer(0)
	if b.Cap() != DefaultCapacity {
		t.Fatalf("expected default capacity %d, got %d", DefaultCapacity, b.Cap())
	}

	for i := 0; i < 120; i++ {
		b.Info(fmt.Sprintf("event-%d", i))
	}

	events := b.Events()
	if len(events) != DefaultCapacity {
		t.Fatalf("expected %d events, got %d", DefaultCapacity, len(events))
	}
	if events[0].Message != "event-70" {
		t.Errorf("expected oldest retained event-70, got %s", events[0].Message)
	}
	if events[len(events)-1].Message != "event-119" {
		t.Errorf("expected newest event-119, got %s", events[len(events)-1].Message)
	}
	if b.Len() != DefaultCapacity {
		t.Errorf("expected Len %d, got %d", DefaultCapacity, b.Len())
	}
}

func TestBufferFieldsAndTimestamp(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := NewBuffer(3)
	b.now = func() time.Time { return fixed }

	ev := b.Add(SeverityError, "provider failed", "provider", "openai", "dangling")
	if !ev.Time.Equal(fixed) {
		t.Errorf("expected fixed timestamp, got %v", ev.Time)
	}
	if ev.Fields["provider"] != "openai" {
		t.Errorf("expected provider field, got %v", ev.Fields)
	}
	if len(ev.Fields) != 1 {
		t.Errorf("odd trailing key should be dropped, got %v", ev.Fields)
	}
}

func TestSubscribe(t *testing.T) {
	b := NewBuffer(3)

	var got []string
	unsubscribe := b.Subscribe(func(ev Event) {
		got = append(got, ev.Message)
	})

	b.Info("a")
	b.Info("b")
	unsubscribe()
	b.Info("c")

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected subscriber deliveries: %v", got)
	}
}
