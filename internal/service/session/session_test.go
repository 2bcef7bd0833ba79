package session

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"caption-ingress-service/internal/config"
	"caption-ingress-service/internal/events"
	"caption-ingress-service/internal/service/segment"
	"caption-ingress-service/internal/sink"
)

func testPublisher() *events.Publisher {
	return events.New(&events.Config{Enabled: false})
}

func testOptions(t *testing.T, meetingID string) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		MeetingID:   meetingID,
		Mode:        config.EmitModeSegments,
		Policy:      segment.DefaultPolicy(),
		DedupWindow: 2 * time.Second,
		Publisher:   testPublisher(),
		Fallback:    sink.NewFileSink(filepath.Join(dir, "captions.log")),
		DataDir:     dir,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestSession_CloseDrainsDrafts(t *testing.T) {
	s := New(testOptions(t, "meet-1"))

	now := time.Now()
	s.Submit("Alice", "Hello", now)
	s.Submit("Alice", "Hello world", now.Add(500*time.Millisecond))

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	transcript := s.Transcript()
	if len(transcript) != 1 {
		t.Fatalf("expected 1 utterance after drain, got %d: %+v", len(transcript), transcript)
	}
	if transcript[0].Speaker != "Alice" || transcript[0].Text != "Hello world" {
		t.Errorf("got %s: %q", transcript[0].Speaker, transcript[0].Text)
	}
}

func TestSession_EmptySpeakerBecomesUnknown(t *testing.T) {
	s := New(testOptions(t, "meet-1"))

	s.Submit("", "somebody said this", time.Now())
	s.Close()

	transcript := s.Transcript()
	if len(transcript) != 1 || transcript[0].Speaker != "Unknown" {
		t.Fatalf("expected one utterance from 'Unknown', got %+v", transcript)
	}
}

func TestSession_WhitespaceTextIgnored(t *testing.T) {
	s := New(testOptions(t, "meet-1"))

	s.Submit("Alice", "   ", time.Now())
	s.Close()

	if got := s.Transcript(); len(got) != 0 {
		t.Fatalf("whitespace-only caption must not emit, got %+v", got)
	}
}

func TestSession_IdleFlushEmitsWithoutClose(t *testing.T) {
	s := New(testOptions(t, "meet-1"))
	defer s.Close()

	// Timestamps in the past: the draft is already idle, so the next flush
	// tick emits it.
	s.Submit("Alice", "already idle text", time.Now().Add(-5*time.Second))

	ok := waitFor(t, 2*time.Second, func() bool {
		return len(s.Transcript()) == 1
	})
	if !ok {
		t.Fatalf("idle draft never flushed: %+v", s.Transcript())
	}
}

func TestSession_DeltaMode(t *testing.T) {
	opts := testOptions(t, "meet-1")
	opts.Mode = config.EmitModeDeltas
	opts.EmitInterval = 50 * time.Millisecond
	s := New(opts)
	defer s.Close()

	s.Submit("Alice", "The plan is", time.Now())
	waitFor(t, time.Second, func() bool { return len(s.Transcript()) >= 1 })

	s.Submit("Alice", "The plan is to ship", time.Now())
	ok := waitFor(t, time.Second, func() bool { return len(s.Transcript()) >= 2 })
	if !ok {
		t.Fatalf("expected 2 deltas, got %+v", s.Transcript())
	}

	transcript := s.Transcript()
	if transcript[0].Text != "The plan is" {
		t.Errorf("first delta = %q", transcript[0].Text)
	}
	if transcript[1].Text != "to ship" {
		t.Errorf("second delta = %q, want only the new suffix", transcript[1].Text)
	}
}

func TestSession_Subscribe(t *testing.T) {
	s := New(testOptions(t, "meet-1"))

	ch, cancel := s.Subscribe()
	defer cancel()

	s.Submit("Alice", "streamed line", time.Now())
	s.Close()

	var got []string
	for ev := range ch {
		got = append(got, ev.Text)
	}
	if len(got) != 1 || got[0] != "streamed line" {
		t.Fatalf("subscriber events = %v", got)
	}
}

func TestSession_SubmitAfterCloseIsNoop(t *testing.T) {
	s := New(testOptions(t, "meet-1"))
	s.Close()

	s.Submit("Alice", "too late", time.Now())
	if got := s.Transcript(); len(got) != 0 {
		t.Fatalf("submit after close must be ignored, got %+v", got)
	}
}

func TestSession_FallbackFileWrittenWithoutBackend(t *testing.T) {
	opts := testOptions(t, "meet-1")
	s := New(opts)

	s.Submit("Alice", "logged locally", time.Now())
	s.Close()

	data, err := os.ReadFile(opts.Fallback.Path())
	if err != nil {
		t.Fatalf("fallback file missing: %v", err)
	}
	if !strings.Contains(string(data), "Alice: logged locally") {
		t.Errorf("fallback file content = %q", data)
	}
}

func TestSession_BackendDelivery(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	opts := testOptions(t, "meet-1")
	opts.Backend = sink.NewHTTPSink(srv.URL, 2*time.Second)
	s := New(opts)

	s.Submit("Alice", "delivered upstream", time.Now())
	s.Close()

	if calls.Load() != 1 {
		t.Errorf("expected 1 backend call, got %d", calls.Load())
	}
	// Backend succeeded, so nothing goes to the fallback file.
	if _, err := os.Stat(opts.Fallback.Path()); !os.IsNotExist(err) {
		t.Error("fallback file should not exist when backend delivery succeeds")
	}
}

func TestSession_BackendFailureFallsBackToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := testOptions(t, "meet-1")
	opts.Backend = sink.NewHTTPSink(srv.URL, 2*time.Second)
	s := New(opts)

	s.Submit("Alice", "kept despite outage", time.Now())
	s.Close()

	data, err := os.ReadFile(opts.Fallback.Path())
	if err != nil {
		t.Fatalf("fallback file missing after backend failure: %v", err)
	}
	if !strings.Contains(string(data), "kept despite outage") {
		t.Errorf("fallback file content = %q", data)
	}
}

func TestSession_TranscriptFileWrittenOnClose(t *testing.T) {
	opts := testOptions(t, "meet-7")
	s := New(opts)

	s.Submit("Alice", "for the record", time.Now())
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(opts.DataDir, "transcript_meet-7_*.json"))
	if len(matches) != 1 {
		t.Fatalf("expected 1 transcript file, got %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"for the record"`) {
		t.Errorf("transcript content = %s", data)
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	s := New(testOptions(t, "meet-1"))
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
