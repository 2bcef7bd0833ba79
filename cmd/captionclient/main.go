// Command captionclient replays a scripted caption stream against a running
// service, simulating how a Meet caption scraper reports growing and revised
// text. Useful for manual end-to-end checks.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"time"
)

type caption struct {
	MeetingID string  `json:"meetingId"`
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
}

type step struct {
	speaker string
	text    string
	wait    time.Duration
}

func main() {
	addr := flag.String("addr", "http://localhost:8000", "service base URL")
	meeting := flag.String("meeting", "demo-meeting", "meeting id")
	flag.Parse()

	// A growing caption, a mid-sentence revision, then a second speaker.
	script := []step{
		{"Alice", "so the", 0},
		{"Alice", "so the main takeaway", 800 * time.Millisecond},
		{"Alice", "so the main takeaway is we ship", 900 * time.Millisecond},
		{"Alice", "so the main takeaway is we ship Friday", 700 * time.Millisecond},
		{"Bob", "sounds", 400 * time.Millisecond},
		{"Bob", "sounds good to me", 900 * time.Millisecond},
	}

	client := &http.Client{Timeout: 5 * time.Second}
	for _, s := range script {
		time.Sleep(s.wait)

		payload, _ := json.Marshal(caption{
			MeetingID: *meeting,
			Speaker:   s.speaker,
			Text:      s.text,
			Timestamp: float64(time.Now().UnixMilli()),
		})
		resp, err := client.Post(*addr+"/v1/captions", "application/json", bytes.NewReader(payload))
		if err != nil {
			log.Fatalf("post failed: %v", err)
		}
		resp.Body.Close()
		log.Printf("sent %s: %q (status %d)", s.speaker, s.text, resp.StatusCode)
	}

	log.Println("script complete; utterances flush after the idle window")
}
