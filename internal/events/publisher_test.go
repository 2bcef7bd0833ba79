package events

import (
	"context"
	"testing"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerUtterance != nil {
				t.Error("expected nil utterance writer when disabled")
			}
			if p.writerDelta != nil {
				t.Error("expected nil delta writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:        false,
		Brokers:        []string{"localhost:9092"},
		TopicUtterance: "test.utterances",
		TopicDelta:     "test.deltas",
		Principal:      "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicUtterance != "test.utterances" {
		t.Errorf("expected utterance topic 'test.utterances', got %s", p.topicUtterance)
	}
	if p.topicDelta != "test.deltas" {
		t.Errorf("expected delta topic 'test.deltas', got %s", p.topicDelta)
	}
}

func TestPublisher_PublishUtterance_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	event := map[string]string{"text": "test utterance"}
	err := p.PublishUtterance(context.Background(), "test-key", event)

	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishDelta_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	event := map[string]string{"text": "test delta"}
	err := p.PublishDelta(context.Background(), "test-key", event)

	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishUtterance_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// Create an unmarshalable value (channel)
	event := make(chan int)
	err := p.PublishUtterance(context.Background(), "test-key", event)

	if err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.Close()
	if err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilPublisher(t *testing.T) {
	p := &Publisher{
		writerUtterance: nil,
		writerDelta:     nil,
	}

	err := p.Close()
	if err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}

type testEvent struct {
	EventType string `json:"eventType"`
	MeetingID string `json:"meetingId"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
}

func TestPublisher_PublishUtterance_ValidEvent(t *testing.T) {
	p := New(&Config{
		Enabled:        false,
		TopicUtterance: "test.utterances",
		Principal:      "test-svc",
	})

	event := testEvent{
		EventType: "caption.utterance.final",
		MeetingID: "meet-123",
		Speaker:   "Alice",
		Text:      "hello world",
	}

	err := p.PublishUtterance(context.Background(), "meet-123", event)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestPublisher_PublishDelta_ValidEvent(t *testing.T) {
	p := New(&Config{
		Enabled:    false,
		TopicDelta: "test.deltas",
		Principal:  "test-svc",
	})

	event := testEvent{
		EventType: "caption.delta",
		MeetingID: "meet-123",
		Speaker:   "Alice",
		Text:      "hello world",
	}

	err := p.PublishDelta(context.Background(), "meet-123", event)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
