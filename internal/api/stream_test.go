package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/fade.report/internal/fade"
)

// openStream connects to /api/stream and consumes the greeting comment,
// returning a reader positioned at the first event.
func openStream(ctx context.Context, t *testing.T, url string) (*bufio.Reader, func()) {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/api/stream", nil)
	if err != nil {
		t.Fatalf("failed to build stream request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("stream status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		resp.Body.Close()
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		resp.Body.Close()
		t.Fatalf("failed to read greeting: %v", err)
	}
	if !strings.HasPrefix(line, ": connected") {
		resp.Body.Close()
		t.Fatalf("greeting = %q, want a connected comment", line)
	}

	return reader, func() { resp.Body.Close() }
}

// readEvent scans forward to the next data line and decodes it.
func readEvent(t *testing.T, reader *bufio.Reader) fade.VerdictEvent {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("failed to read event line: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		var ev fade.VerdictEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("failed to decode event %q: %v", payload, err)
		}
		return ev
	}
}

func TestStreamVerdicts(t *testing.T) {
	s, tracker := newTestServer(t)
	ts := httptest.NewServer(s.ServeMux())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reader, closeStream := openStream(ctx, t, ts.URL)
	defer closeStream()

	// The greeting is flushed after the subscription is registered, so an
	// observation now is guaranteed to reach this client.
	id := tracker.Register("cam-a")
	tracker.Observe(id, fade.FrameSample{
		Luminance:   0.42,
		Variance:    0.02,
		EdgeDensity: 0.11,
		CapturedAt:  100.0,
	})

	ev := readEvent(t, reader)
	if ev.Source != id || ev.Label != "cam-a" {
		t.Errorf("event source = %q/%q, want %q/cam-a", ev.Source, ev.Label, id)
	}
	if ev.Sample.Luminance != 0.42 {
		t.Errorf("event luminance = %g, want 0.42", ev.Sample.Luminance)
	}
	if ev.Verdict.Type != fade.VerdictNone {
		t.Errorf("event verdict = %q, want %q", ev.Verdict.Type, fade.VerdictNone)
	}
}

func TestStreamVerdictsPerFrame(t *testing.T) {
	s, tracker := newTestServer(t)
	ts := httptest.NewServer(s.ServeMux())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reader, closeStream := openStream(ctx, t, ts.URL)
	defer closeStream()

	id := tracker.Register("cam-a")
	for i := 0; i < 3; i++ {
		tracker.Observe(id, fade.FrameSample{
			Luminance:   0.5,
			Variance:    0.02,
			EdgeDensity: 0.11,
			CapturedAt:  100.0 + float64(i)/30.0,
		})
	}

	// Every observed frame produces one event, in order.
	for want := 0; want < 3; want++ {
		ev := readEvent(t, reader)
		if ev.Sample.SequenceIndex != want {
			t.Fatalf("event %d has sequence index %d", want, ev.Sample.SequenceIndex)
		}
	}
}
