package models

import "time"

// Transcript is the accumulated record of a session, written to disk when
// the session closes.
type Transcript struct {
	MeetingID  string      `json:"meetingId"`
	SessionID  string      `json:"sessionId"`
	StartedAt  time.Time   `json:"startedAt"`
	EndedAt    time.Time   `json:"endedAt"`
	Utterances []Utterance `json:"utterances"`
}
