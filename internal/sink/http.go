package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"caption-ingress-service/internal/models"
	"caption-ingress-service/internal/observability/metrics"
)

// HTTPSink POSTs utterance events as JSON to the backend captions endpoint.
type HTTPSink struct {
	url     string
	client  *http.Client
	metrics *metrics.Metrics
}

// NewHTTPSink creates a sink targeting the given URL. A zero timeout
// defaults to 5 seconds.
func NewHTTPSink(url string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSink{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		metrics: metrics.DefaultMetrics,
	}
}

// Deliver POSTs the event. Any non-2xx status is an error.
func (s *HTTPSink) Deliver(ctx context.Context, event models.UtteranceFinal) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.RecordSinkDelivery("http", err, time.Since(start).Seconds())
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("backend returned status %d", resp.StatusCode)
		s.metrics.RecordSinkDelivery("http", err, time.Since(start).Seconds())
		return err
	}

	s.metrics.RecordSinkDelivery("http", nil, time.Since(start).Seconds())
	return nil
}
