package testserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const token = "test-token"

func post(t *testing.T, url, auth, contentType, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return resp.StatusCode, out
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestEventEndpoint(t *testing.T) {
	s, ts := newTestServer(t, Options{Token: token, Keep: true})

	code, ack := post(t, ts.URL+PathEvent, "Splunk "+token, "application/json",
		`{"time":1709294400,"event":{"user":"alice"},"sourcetype":"okta"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if ack["text"] != "Success" || ack["code"] != float64(0) {
		t.Errorf("unexpected ack %v", ack)
	}

	got := s.Received()
	if len(got) != 1 || got[0].Sourcetype != "okta" || got[0].Path != PathEvent {
		t.Errorf("received = %+v", got)
	}
	if st := s.Stats(); st.Events != 1 || st.Bytes == 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRawEndpoint(t *testing.T) {
	s, ts := newTestServer(t, Options{Keep: true})

	code, _ := post(t, ts.URL+PathRaw+"?sourcetype=falcon", "Bearer anything", "text/plain", "raw line")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	got := s.Received()
	if len(got) != 1 || got[0].Sourcetype != "falcon" || got[0].Body != "raw line" {
		t.Errorf("received = %+v", got)
	}
	if s.Stats().Raw != 1 {
		t.Errorf("raw = %d, want 1", s.Stats().Raw)
	}
}

func TestAuth(t *testing.T) {
	s, ts := newTestServer(t, Options{Token: token})

	tests := []struct {
		auth string
		code int
		ack  float64
	}{
		{"", http.StatusUnauthorized, 2},
		{"Basic abc", http.StatusUnauthorized, 3},
		{"Splunk wrong", http.StatusForbidden, 4},
		{"Splunk " + token, http.StatusOK, 0},
		{"Bearer " + token, http.StatusOK, 0},
	}
	for _, tc := range tests {
		code, ack := post(t, ts.URL+PathRaw, tc.auth, "text/plain", "line")
		if code != tc.code {
			t.Errorf("auth %q: expected %d, got %d", tc.auth, tc.code, code)
		}
		if ack["code"] != tc.ack {
			t.Errorf("auth %q: expected ack code %v, got %v", tc.auth, tc.ack, ack["code"])
		}
	}
	if st := s.Stats(); st.Rejected != 3 || st.Raw != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestEventValidation(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	tests := []struct {
		body string
		code float64
	}{
		{"", 5},
		{"not json", 6},
		{`{"sourcetype":"x"}`, 12},
		{`{"event":null}`, 12},
	}
	for _, tc := range tests {
		status, ack := post(t, ts.URL+PathEvent, "Splunk t", "application/json", tc.body)
		if status != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", tc.body, status)
		}
		if ack["code"] != tc.code {
			t.Errorf("body %q: expected ack code %v, got %v", tc.body, tc.code, ack["code"])
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + PathEvent)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestFailRate(t *testing.T) {
	s, ts := newTestServer(t, Options{FailRate: 100})

	for i := 0; i < 10; i++ {
		code, ack := post(t, ts.URL+PathRaw, "Splunk t", "text/plain", "line")
		if code != http.StatusServiceUnavailable || ack["code"] != float64(9) {
			t.Fatalf("expected 503 busy, got %d %v", code, ack)
		}
	}
	if s.Stats().Failed != 10 {
		t.Errorf("failed = %d, want 10", s.Stats().Failed)
	}

	_, ok := newTestServer(t, Options{FailRate: 0})
	for i := 0; i < 10; i++ {
		if code, _ := post(t, ok.URL+PathRaw, "Splunk t", "text/plain", "line"); code != http.StatusOK {
			t.Fatalf("with 0%% fail rate, expected 200, got %d", code)
		}
	}
}

func TestDelayAndInFlight(t *testing.T) {
	s, ts := newTestServer(t, Options{Delay: 50 * time.Millisecond})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, ts.URL+PathRaw, strings.NewReader("line"))
			req.Header.Set("Authorization", "Splunk t")
			if resp, err := http.DefaultClient.Do(req); err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected delay of at least 50ms, got %v", elapsed)
	}
	if peak := s.Stats().MaxInFlight; peak < 2 || peak > 4 {
		t.Errorf("max in flight = %d, want between 2 and 4", peak)
	}
}

func TestHealthAndStats(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	post(t, ts.URL+PathRaw, "Splunk t", "text/plain", "line")

	resp, err := http.Get(ts.URL + PathHealth)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + PathStats)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st != s.Stats() || st.Raw != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestReceivedNotKeptByDefault(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	post(t, ts.URL+PathRaw, "Splunk t", "text/plain", "line")
	if len(s.Received()) != 0 {
		t.Error("events should not be kept without Keep")
	}
}
