// Package models defines the data structures for caption and utterance events.
package models

import "time"

// CaptionEvent is one raw snapshot of a speaker's currently displayed caption
// text, as reported by the UI-scraping collaborator. Events are not unique:
// the same speaker reports growing, shrinking and revised text repeatedly
// while they talk.
type CaptionEvent struct {
	Speaker    string
	Text       string
	ObservedAt time.Time
}

// Utterance is a finalized unit of transcript text attributed to a speaker.
// Immutable once emitted.
type Utterance struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// UtteranceFinal is the wire event published for a finalized utterance.
type UtteranceFinal struct {
	EventType string `json:"eventType"`
	MeetingID string `json:"meetingId"`
	SessionID string `json:"sessionId"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// UtteranceDelta is the wire event published for an incremental delta
// emission (the new suffix of a speaker's caption since the last emission).
type UtteranceDelta struct {
	EventType string `json:"eventType"`
	MeetingID string `json:"meetingId"`
	SessionID string `json:"sessionId"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}
