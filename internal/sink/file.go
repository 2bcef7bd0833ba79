package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"caption-ingress-service/internal/models"
	"caption-ingress-service/internal/observability/metrics"
)

// FileSink appends utterances to a local log file, one line per utterance:
//
//	[HH:MM:SS] Speaker: text
//
// Used as the fallback when the backend is unreachable, so no transcript
// line is ever lost.
type FileSink struct {
	mu      sync.Mutex
	path    string
	metrics *metrics.Metrics
}

// NewFileSink creates a sink appending to the given path. Parent
// directories are created on first write.
func NewFileSink(path string) *FileSink {
	return &FileSink{
		path:    path,
		metrics: metrics.DefaultMetrics,
	}
}

// Deliver appends one formatted line.
func (s *FileSink) Deliver(ctx context.Context, event models.UtteranceFinal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.metrics.RecordSinkDelivery("file", err, 0)
		return err
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.metrics.RecordSinkDelivery("file", err, 0)
		return err
	}
	defer f.Close()

	ts := time.UnixMilli(event.Timestamp).UTC().Format("15:04:05")
	line := fmt.Sprintf("[%s] %s: %s\n", ts, event.Speaker, event.Text)
	if _, err := f.WriteString(line); err != nil {
		s.metrics.RecordSinkDelivery("file", err, 0)
		return err
	}

	s.metrics.RecordSinkDelivery("file", nil, 0)
	return nil
}

// Path returns the log file location.
func (s *FileSink) Path() string {
	return s.path
}
