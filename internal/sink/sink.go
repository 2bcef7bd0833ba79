// Package sink delivers finalized utterances to the downstream backend,
// falling back to a local log file when delivery fails.
package sink

import (
	"context"

	"caption-ingress-service/internal/models"
)

// Sink delivers a finalized utterance downstream.
type Sink interface {
	Deliver(ctx context.Context, event models.UtteranceFinal) error
}
