package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"caption-ingress-service/internal/config"
	"caption-ingress-service/internal/events"
	"caption-ingress-service/internal/service/session"
)

func testManager(t *testing.T) *session.Manager {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Configuration{
		Service: config.ServiceConfig{
			Principal: "test-svc",
			DataDir:   dir,
		},
		Segmenter: config.SegmenterConfig{
			Idle:           2 * time.Second,
			MergeGap:       time.Second,
			RevisionWindow: 8 * time.Second,
			ForceSplitGap:  30 * time.Second,
			MaxSegment:     20 * time.Second,
		},
		Emitter: config.EmitterConfig{
			Mode:        config.EmitModeSegments,
			Interval:    4 * time.Second,
			DedupWindow: 2 * time.Second,
		},
		Sink: config.SinkConfig{
			CaptionsLogPath: filepath.Join(dir, "captions.log"),
		},
	}
	m := session.NewManager(cfg, events.New(&events.Config{Enabled: false}))
	t.Cleanup(m.CloseAll)
	return m
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	router := NewRouter(testManager(t))

	if rec := doRequest(t, router, "GET", "/v1/liveness", ""); rec.Code != http.StatusOK {
		t.Errorf("liveness = %d", rec.Code)
	}
	if rec := doRequest(t, router, "GET", "/v1/readiness", ""); rec.Code != http.StatusOK {
		t.Errorf("readiness = %d", rec.Code)
	}
}

func TestRouter_PostCaption(t *testing.T) {
	m := testManager(t)
	router := NewRouter(m)

	rec := doRequest(t, router, "POST", "/v1/captions",
		`{"meetingId":"meet-1","speaker":"Alice","text":"Hello world","timestamp":1750000000.5}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["sessionId"] == "" {
		t.Error("response missing sessionId")
	}

	s, ok := m.Get(resp["sessionId"])
	if !ok {
		t.Fatal("session not created")
	}
	if got := s.LastCaptionAt().UnixMilli(); got != 1750000000500 {
		t.Errorf("timestamp = %d, want seconds interpreted with fraction", got)
	}
}

func TestRouter_PostCaption_MillisecondTimestamp(t *testing.T) {
	m := testManager(t)
	router := NewRouter(m)

	rec := doRequest(t, router, "POST", "/v1/captions",
		`{"meetingId":"meet-1","speaker":"Alice","text":"hi","timestamp":1750000000500}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}

	s := m.GetOrCreate("meet-1")
	if got := s.LastCaptionAt().UnixMilli(); got != 1750000000500 {
		t.Errorf("timestamp = %d, want milliseconds passed through", got)
	}
}

func TestRouter_PostCaption_DefaultsMeeting(t *testing.T) {
	m := testManager(t)
	router := NewRouter(m)

	rec := doRequest(t, router, "POST", "/v1/captions", `{"speaker":"Alice","text":"no meeting id"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}

	infos := m.List()
	if len(infos) != 1 || infos[0].MeetingID != "default" {
		t.Errorf("sessions = %+v", infos)
	}
}

func TestRouter_PostCaption_BadRequests(t *testing.T) {
	router := NewRouter(testManager(t))

	if rec := doRequest(t, router, "POST", "/v1/captions", `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON = %d", rec.Code)
	}

	huge := strings.Repeat("x", 9000)
	if rec := doRequest(t, router, "POST", "/v1/captions",
		`{"speaker":"Alice","text":"`+huge+`"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("oversized text = %d", rec.Code)
	}
}

func TestRouter_SessionLifecycle(t *testing.T) {
	router := NewRouter(testManager(t))

	rec := doRequest(t, router, "POST", "/v1/sessions/", `{"meetingId":"meet-9"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created map[string]any
	json.Unmarshal(rec.Body.Bytes(), &created)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("create response missing id")
	}

	if rec := doRequest(t, router, "GET", "/v1/sessions/"+id, ""); rec.Code != http.StatusOK {
		t.Errorf("get = %d", rec.Code)
	}

	rec = doRequest(t, router, "GET", "/v1/sessions/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), id) {
		t.Errorf("list = %d body = %s", rec.Code, rec.Body.String())
	}

	if rec := doRequest(t, router, "DELETE", "/v1/sessions/"+id, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	if rec := doRequest(t, router, "DELETE", "/v1/sessions/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("double delete = %d", rec.Code)
	}
	if rec := doRequest(t, router, "GET", "/v1/sessions/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
}

func TestRouter_CreateSession_RequiresMeetingID(t *testing.T) {
	router := NewRouter(testManager(t))

	if rec := doRequest(t, router, "POST", "/v1/sessions/", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRouter_Transcript(t *testing.T) {
	m := testManager(t)
	router := NewRouter(m)

	s := m.GetOrCreate("meet-1")
	// Caption already idle: flushed on the next tick.
	s.Submit("Alice", "for the record", time.Now().Add(-5*time.Second))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tr, _ := m.Transcript(s.ID); len(tr) == 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	rec := doRequest(t, router, "GET", "/v1/sessions/"+s.ID+"/transcript", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "for the record") {
		t.Errorf("transcript body = %s", rec.Body.String())
	}

	if rec := doRequest(t, router, "GET", "/v1/sessions/sess_nope/transcript", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session = %d", rec.Code)
	}
}

func TestRouter_StreamEvents(t *testing.T) {
	m := testManager(t)
	router := NewRouter(m)

	s := m.GetOrCreate("meet-1")

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/sessions/" + s.ID + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %s", ct)
	}

	s.Submit("Alice", "streamed out", time.Now())
	go func() {
		// Closing the session drains the draft and ends the stream.
		time.Sleep(100 * time.Millisecond)
		s.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "data: ") || !strings.Contains(string(body), "streamed out") {
		t.Errorf("SSE body = %q", body)
	}
}
