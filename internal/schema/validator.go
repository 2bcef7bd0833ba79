// Package schema validates inbound API payloads.
package schema

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxSpeakerBytes bounds the speaker name; Meet display names are far
	// shorter, anything larger is a malformed or hostile payload.
	MaxSpeakerBytes = 256

	// MaxTextBytes bounds a single caption snapshot.
	MaxTextBytes = 8192
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateCaption checks a caption snapshot payload. Empty text is valid:
// the pipeline ignores it, but the request itself is well-formed.
func (v *Validator) ValidateCaption(speaker, text string) error {
	if !utf8.ValidString(speaker) {
		return fmt.Errorf("speaker is not valid UTF-8")
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("text is not valid UTF-8")
	}
	if len(speaker) > MaxSpeakerBytes {
		return fmt.Errorf("speaker exceeds %d bytes", MaxSpeakerBytes)
	}
	if len(text) > MaxTextBytes {
		return fmt.Errorf("text exceeds %d bytes", MaxTextBytes)
	}
	return nil
}
