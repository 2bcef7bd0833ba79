package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"caption-ingress-service/internal/config"
	"caption-ingress-service/internal/events"
	"caption-ingress-service/internal/models"
	"caption-ingress-service/internal/service/segment"
	"caption-ingress-service/internal/sink"
)

// ErrSessionNotFound is returned when the referenced session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Info is the API-facing summary of a session.
type Info struct {
	ID            string    `json:"id"`
	MeetingID     string    `json:"meetingId"`
	Mode          string    `json:"mode"`
	StartedAt     time.Time `json:"startedAt"`
	LastCaptionAt time.Time `json:"lastCaptionAt,omitzero"`
	Utterances    int       `json:"utterances"`
}

// Manager owns all live sessions, one per meeting. Sessions are created
// lazily on the first caption for a meeting and share the publisher and
// sinks.
type Manager struct {
	cfg       *config.Configuration
	publisher *events.Publisher
	backend   sink.Sink
	fallback  *sink.FileSink

	mu         sync.Mutex
	byID       map[string]*Session
	byMeeting  map[string]*Session
	reaperStop chan struct{}
}

// NewManager creates a manager wired to the shared publisher and sinks.
func NewManager(cfg *config.Configuration, publisher *events.Publisher) *Manager {
	var backend sink.Sink
	if cfg.Sink.BackendURL != "" {
		backend = sink.NewHTTPSink(cfg.Sink.BackendURL, cfg.Sink.RequestTimeout)
	}

	return &Manager{
		cfg:       cfg,
		publisher: publisher,
		backend:   backend,
		fallback:  sink.NewFileSink(cfg.Sink.CaptionsLogPath),
		byID:      make(map[string]*Session),
		byMeeting: make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for a meeting, starting one if none
// exists.
func (m *Manager) GetOrCreate(meetingID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.byMeeting[meetingID]; ok {
		return s
	}

	mode := m.cfg.Emitter.Mode
	policy := segment.Policy{
		Idle:                m.cfg.Segmenter.Idle,
		MergeGap:            m.cfg.Segmenter.MergeGap,
		RevisionWindow:      m.cfg.Segmenter.RevisionWindow,
		ForceSplitGap:       m.cfg.Segmenter.ForceSplitGap,
		MaxSegment:          m.cfg.Segmenter.MaxSegment,
		Mode:                segment.ModeIncremental,
		SimilarityThreshold: m.cfg.Segmenter.SimilarityThreshold,
		TailWindow:          m.cfg.Segmenter.TailWindow,
	}
	if m.cfg.Segmenter.MergeConsecutive {
		policy.Mode = segment.ModeGrouped
	}

	s := New(Options{
		MeetingID:    meetingID,
		Mode:         mode,
		Policy:       policy,
		EmitInterval: m.cfg.Emitter.Interval,
		DedupWindow:  m.cfg.Emitter.DedupWindow,
		Publisher:    m.publisher,
		Backend:      m.backend,
		Fallback:     m.fallback,
		DataDir:      m.cfg.Service.DataDir,
	})
	m.byID[s.ID] = s
	m.byMeeting[meetingID] = s

	log.Info().Str("meetingId", meetingID).Str("sessionId", s.ID).Msg("Session created")
	return s
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	return s, ok
}

// List returns a summary of every live session, ordered by start time.
func (m *Manager) List() []Info {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.info())
	}
	return out
}

func (s *Session) info() Info {
	return Info{
		ID:            s.ID,
		MeetingID:     s.MeetingID,
		Mode:          s.Mode,
		StartedAt:     s.StartedAt,
		LastCaptionAt: s.LastCaptionAt(),
		Utterances:    len(s.Transcript()),
	}
}

// Close stops and removes the session with the given id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.byID[id]
	if ok {
		delete(m.byID, id)
		delete(m.byMeeting, s.MeetingID)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	return s.Close()
}

// ExpireIdle closes every session that has gone longer than ttl without a
// caption (measured from its start when none ever arrived) and returns the
// closed session ids. A zero ttl disables expiry.
func (m *Manager) ExpireIdle(now time.Time, ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	var stale []*Session
	for _, s := range m.byID {
		last := s.LastCaptionAt()
		if last.IsZero() {
			last = s.StartedAt
		}
		if now.Sub(last) > ttl {
			stale = append(stale, s)
			delete(m.byID, s.ID)
			delete(m.byMeeting, s.MeetingID)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(stale))
	for _, s := range stale {
		log.Info().Str("sessionId", s.ID).Str("meetingId", s.MeetingID).Msg("Closing idle session")
		if err := s.Close(); err != nil {
			log.Error().Err(err).Str("sessionId", s.ID).Msg("Error closing idle session")
		}
		ids = append(ids, s.ID)
	}
	return ids
}

// StartReaper runs idle expiry on the given interval until StopReaper is
// called.
func (m *Manager) StartReaper(interval time.Duration) {
	m.mu.Lock()
	if m.reaperStop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.reaperStop = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				m.ExpireIdle(now, m.cfg.Service.SessionTTL)
			}
		}
	}()
}

// StopReaper stops the idle-expiry loop.
func (m *Manager) StopReaper() {
	m.mu.Lock()
	if m.reaperStop != nil {
		close(m.reaperStop)
		m.reaperStop = nil
	}
	m.mu.Unlock()
}

// CloseAll stops every live session. Used on service shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		sessions = append(sessions, s)
	}
	m.byID = make(map[string]*Session)
	m.byMeeting = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Str("sessionId", s.ID).Msg("Error closing session")
		}
	}
}

// Transcripts returns the accumulated transcript of the session with the
// given id.
func (m *Manager) Transcript(id string) ([]models.Utterance, bool) {
	s, ok := m.Get(id)
	if !ok {
		return nil, false
	}
	return s.Transcript(), true
}
