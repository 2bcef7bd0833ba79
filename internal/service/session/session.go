// Package session coordinates the caption pipeline for one meeting: raw
// caption snapshots in, deduplicated utterance or delta events out.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"caption-ingress-service/internal/config"
	"caption-ingress-service/internal/events"
	"caption-ingress-service/internal/models"
	"caption-ingress-service/internal/observability/logging"
	"caption-ingress-service/internal/observability/metrics"
	"caption-ingress-service/internal/service/dedup"
	"caption-ingress-service/internal/service/delta"
	"caption-ingress-service/internal/service/segment"
	"caption-ingress-service/internal/sink"
)

const (
	// flushTick is how often the segmenter is polled for drafts that have
	// gone idle. Much smaller than the idle window so flush latency is
	// dominated by the window itself.
	flushTick = 250 * time.Millisecond

	// watchdogStall is how long without any caption before the session is
	// flagged as stalled.
	watchdogStall = 60 * time.Second

	emitBuffer = 256
)

// Options configures a new session.
type Options struct {
	MeetingID    string
	Mode         string // config.EmitModeSegments or config.EmitModeDeltas
	Policy       segment.Policy
	EmitInterval time.Duration
	DedupWindow  time.Duration
	Publisher    *events.Publisher
	Backend      sink.Sink
	Fallback     *sink.FileSink
	DataDir      string
}

// emission is one unit of text on its way downstream.
type emission struct {
	speaker string
	text    string
	ts      time.Time
	reason  string
	delta   bool
}

// Session runs the caption pipeline for one meeting. Captions enter through
// Submit; a single flush goroutine decides what is ready, and a single emit
// goroutine delivers it, so downstream ordering follows finalization order.
type Session struct {
	ID        string
	MeetingID string
	Mode      string
	StartedAt time.Time

	tracker *segment.Tracker
	deltas  *delta.Emitter
	gate    *dedup.Gate

	publisher *events.Publisher
	backend   sink.Sink
	fallback  *sink.FileSink
	dataDir   string
	interval  time.Duration

	log zerolog.Logger
	m   *metrics.Metrics

	mu            sync.Mutex
	lastCaptionAt time.Time
	stallLogged   bool
	transcript    []models.Utterance
	subscribers   map[chan models.UtteranceFinal]struct{}
	closed        bool

	emitCh   chan emission
	stopCh   chan struct{}
	runDone  chan struct{}
	emitDone chan struct{}
}

// New creates and starts a session.
func New(opts Options) *Session {
	id := "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	s := &Session{
		ID:          id,
		MeetingID:   opts.MeetingID,
		Mode:        opts.Mode,
		StartedAt:   time.Now(),
		gate:        dedup.NewGate(opts.DedupWindow),
		publisher:   opts.Publisher,
		backend:     opts.Backend,
		fallback:    opts.Fallback,
		dataDir:     opts.DataDir,
		interval:    opts.EmitInterval,
		log:         logging.WithSession(opts.MeetingID, id),
		m:           metrics.DefaultMetrics,
		subscribers: make(map[chan models.UtteranceFinal]struct{}),
		emitCh:      make(chan emission, emitBuffer),
		stopCh:      make(chan struct{}),
		runDone:     make(chan struct{}),
		emitDone:    make(chan struct{}),
	}

	if opts.Mode == config.EmitModeDeltas {
		s.deltas = delta.NewEmitter()
	} else {
		s.Mode = config.EmitModeSegments
		s.tracker = segment.NewTracker(opts.Policy)
	}

	s.m.RecordSessionStart()
	s.log.Info().Str("mode", s.Mode).Msg("Session started")

	go s.run()
	go s.emitLoop()
	return s
}

// Submit feeds one caption snapshot into the pipeline. An empty speaker is
// attributed to "Unknown"; whitespace-only text is counted and dropped.
func (s *Session) Submit(speaker, text string, ts time.Time) {
	if speaker == "" {
		speaker = "Unknown"
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.lastCaptionAt = ts
	s.stallLogged = false
	s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		s.m.RecordCaptionIgnored("empty_text")
		return
	}
	s.m.RecordCaptionReceived()

	if s.tracker != nil {
		s.tracker.Update(speaker, text, ts)
	} else {
		s.deltas.Observe(speaker, text, ts)
	}
}

// Subscribe registers a listener for emitted events. The returned cancel
// func is idempotent; the channel is closed on cancel or session close.
func (s *Session) Subscribe() (<-chan models.UtteranceFinal, func()) {
	ch := make(chan models.UtteranceFinal, 16)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// Transcript returns a copy of the utterances emitted so far.
func (s *Session) Transcript() []models.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Utterance, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// LastCaptionAt returns the timestamp of the most recent caption, zero if
// none arrived yet.
func (s *Session) LastCaptionAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCaptionAt
}

// Close stops the session, drains everything still buffered through the
// emit path, and writes the accumulated transcript to disk. Safe to call
// more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.runDone

	// Final drain: everything still held back by idle windows goes out now.
	now := time.Now()
	if s.tracker != nil {
		for _, seg := range s.tracker.Drain() {
			s.emitCh <- emission{seg.Speaker, seg.Text, seg.Timestamp, string(seg.Reason), false}
		}
	} else {
		for _, d := range s.deltas.Collect(now) {
			s.emitCh <- emission{d.Speaker, d.Text, d.Timestamp, "", true}
		}
	}
	close(s.emitCh)
	<-s.emitDone

	s.mu.Lock()
	for ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, ch)
	}
	s.mu.Unlock()

	s.m.RecordSessionEnd(time.Since(s.StartedAt).Seconds())
	s.log.Info().Int("utterances", len(s.Transcript())).Msg("Session closed")

	return s.writeTranscript(now)
}

func (s *Session) run() {
	defer close(s.runDone)

	tick := flushTick
	if s.deltas != nil && s.interval > 0 {
		tick = s.interval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.collect(now)
			s.checkWatchdog(now)
		}
	}
}

func (s *Session) collect(now time.Time) {
	if s.tracker != nil {
		for _, seg := range s.tracker.FlushReady(now) {
			s.emitCh <- emission{seg.Speaker, seg.Text, seg.Timestamp, string(seg.Reason), false}
		}
		s.m.SetActiveDrafts(s.tracker.ActiveDrafts())
		return
	}
	for _, d := range s.deltas.Collect(now) {
		s.emitCh <- emission{d.Speaker, d.Text, d.Timestamp, "", true}
	}
}

func (s *Session) checkWatchdog(now time.Time) {
	s.mu.Lock()
	stalled := !s.lastCaptionAt.IsZero() &&
		now.Sub(s.lastCaptionAt) > watchdogStall &&
		!s.stallLogged
	if stalled {
		s.stallLogged = true
	}
	last := s.lastCaptionAt
	s.mu.Unlock()

	if stalled {
		s.m.RecordWatchdogStall()
		s.log.Warn().
			Time("lastCaptionAt", last).
			Msg("No captions received recently, stream may be stalled")
	}
}

func (s *Session) emitLoop() {
	defer close(s.emitDone)
	for e := range s.emitCh {
		s.process(e)
	}
}

func (s *Session) process(e emission) {
	if !s.gate.Allow(e.speaker, e.text, time.Now()) {
		s.m.RecordDedupSuppressed()
		s.log.Debug().Str("speaker", e.speaker).Msg("Duplicate emission suppressed")
		return
	}

	eventType := "caption.utterance.final"
	if e.delta {
		eventType = "caption.delta"
	}
	ev := models.UtteranceFinal{
		EventType: eventType,
		MeetingID: s.MeetingID,
		SessionID: s.ID,
		Speaker:   e.speaker,
		Text:      e.text,
		Timestamp: e.ts.UnixMilli(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if e.delta {
		if err := s.publisher.PublishDelta(ctx, s.MeetingID, models.UtteranceDelta(ev)); err != nil {
			s.log.Error().Err(err).Msg("Failed to publish delta")
		}
		s.m.RecordDeltaEmitted()
	} else {
		if err := s.publisher.PublishUtterance(ctx, s.MeetingID, ev); err != nil {
			s.log.Error().Err(err).Msg("Failed to publish utterance")
		}
		s.m.RecordUtteranceEmitted()
		s.m.RecordSegmentCompleted(e.reason)
	}

	s.deliver(ctx, ev)

	s.mu.Lock()
	s.transcript = append(s.transcript, models.Utterance{
		Speaker:   e.speaker,
		Text:      e.text,
		Timestamp: e.ts,
	})
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default: // slow subscriber, drop rather than block the pipeline
		}
	}
	s.mu.Unlock()
}

// deliver sends the event to the backend, falling back to the local file so
// the line is never lost. With no backend configured the file is the
// primary sink.
func (s *Session) deliver(ctx context.Context, ev models.UtteranceFinal) {
	if s.backend != nil {
		err := s.backend.Deliver(ctx, ev)
		if err == nil {
			return
		}
		s.log.Warn().Err(err).Msg("Backend delivery failed, writing to fallback file")
		s.m.RecordSinkFallback()
	}
	if s.fallback != nil {
		if err := s.fallback.Deliver(ctx, ev); err != nil {
			s.log.Error().Err(err).Msg("Fallback file write failed")
		}
	}
}

func (s *Session) writeTranscript(endedAt time.Time) error {
	transcript := s.Transcript()
	if s.dataDir == "" || len(transcript) == 0 {
		return nil
	}

	record := models.Transcript{
		MeetingID:  s.MeetingID,
		SessionID:  s.ID,
		StartedAt:  s.StartedAt,
		EndedAt:    endedAt,
		Utterances: transcript,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(s.dataDir, fmt.Sprintf("transcript_%s_%s.json", s.MeetingID, s.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	s.log.Info().Str("path", path).Msg("Transcript written")
	return nil
}
