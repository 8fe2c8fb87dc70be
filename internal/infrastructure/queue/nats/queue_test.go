package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

func TestEventRoundTripAndLegacyPayload(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	payload, err := encodeEvent(submittedEvent{AnalysisID: "a-1", SubmittedAt: at})
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	event, err := decodeEvent(payload)
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	if event.AnalysisID != "a-1" || !event.SubmittedAt.Equal(at) {
		t.Fatalf("unexpected event: %+v", event)
	}

	legacy, err := decodeEvent([]byte(" a-2\n"))
	if err != nil || legacy.AnalysisID != "a-2" || !legacy.SubmittedAt.IsZero() {
		t.Fatalf("unexpected legacy decode: %+v, %v", legacy, err)
	}
}

func TestDecodeEventRejectsInvalid(t *testing.T) {
	for _, data := range []string{"", "   ", "{", `{"submitted_at":"2026-03-01T08:00:00Z"}`} {
		if _, err := decodeEvent([]byte(data)); err == nil {
			t.Fatalf("payload %q: expected error", data)
		}
	}
	if _, err := encodeEvent(submittedEvent{}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
		record    bool
	}{
		{err: context.Canceled, retryable: false, record: false},
		{err: fmt.Errorf("nats publish: %w", nats.ErrTimeout), retryable: true, record: true},
		{err: nats.ErrConnectionClosed, retryable: true, record: true},
		{err: errors.New("bad subject"), retryable: false, record: true},
	}
	for _, tc := range cases {
		got := classifyNATSError(tc.err)
		if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
			t.Fatalf("classify(%v) = %+v", tc.err, got)
		}
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	err := wrapTemporaryIfNeeded(fmt.Errorf("nats publish: %w", nats.ErrNoServers))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
	plain := errors.New("bad subject")
	if got := wrapTemporaryIfNeeded(plain); got != plain {
		t.Fatalf("expected original error, got %v", got)
	}
	if wrapTemporaryIfNeeded(nil) != nil {
		t.Fatalf("expected nil")
	}
}
