// Package testserver provides an in-process fake of the HTTP event
// collector for tests and local runs.
package testserver

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector paths served by the fake.
const (
	PathEvent  = "/services/collector/event"
	PathRaw    = "/services/collector/raw"
	PathHealth = "/services/collector/health"
	PathStats  = "/stats"
)

// Options configure the fake collector's behavior.
type Options struct {
	// Token is the accepted HEC token. Empty accepts any token.
	Token string
	// FailRate is the percentage of requests answered with 503.
	FailRate int
	// Delay is added before answering each request.
	Delay time.Duration
	// Keep retains received events for inspection.
	Keep bool
}

// Received is one accepted event.
type Received struct {
	Path        string
	Sourcetype  string
	ContentType string
	Body        string
}

// Stats are counters of what the server saw.
type Stats struct {
	Events      int64 `json:"events"`
	Raw         int64 `json:"raw"`
	Rejected    int64 `json:"rejected"`
	Failed      int64 `json:"failed"`
	Bytes       int64 `json:"bytes"`
	MaxInFlight int64 `json:"maxInFlight"`
}

// Server is a fake HTTP event collector.
type Server struct {
	mux  *http.ServeMux
	opts Options

	events      atomic.Int64
	raw         atomic.Int64
	rejected    atomic.Int64
	failed      atomic.Int64
	bytes       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64

	mu       sync.Mutex
	received []Received
	rng      *rand.Rand
}

// NewServer creates a collector with all endpoints configured.
func NewServer(opts Options) *Server {
	s := &Server{
		mux:  http.NewServeMux(),
		opts: opts,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc(PathHealth, s.handleHealth)
	s.mux.HandleFunc(PathEvent, s.collect(s.acceptEvent))
	s.mux.HandleFunc("/services/collector", s.collect(s.acceptEvent))
	s.mux.HandleFunc(PathRaw, s.collect(s.acceptRaw))
	s.mux.HandleFunc(PathStats, s.handleStats)
}

// ack writes a collector acknowledgement body.
func ack(w http.ResponseWriter, status int, text string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"text":%q,"code":%d}`, text, code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ack(w, http.StatusOK, "HEC is healthy", 17)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Stats())
}

// collect wraps an ingestion handler with method, auth, delay and failure
// injection.
func (s *Server) collect(accept func(w http.ResponseWriter, r *http.Request, body []byte)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		for {
			peak := s.maxInFlight.Load()
			if n <= peak || s.maxInFlight.CompareAndSwap(peak, n) {
				break
			}
		}

		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !s.authorized(w, r) {
			s.rejected.Add(1)
			return
		}
		if s.opts.Delay > 0 {
			select {
			case <-time.After(s.opts.Delay):
			case <-r.Context().Done():
				return
			}
		}
		if s.fail() {
			s.failed.Add(1)
			ack(w, http.StatusServiceUnavailable, "Server is busy", 9)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			ack(w, http.StatusBadRequest, "Invalid data format", 6)
			return
		}
		if len(strings.TrimSpace(string(body))) == 0 {
			s.rejected.Add(1)
			ack(w, http.StatusBadRequest, "No data", 5)
			return
		}
		accept(w, r, body)
	}
}

func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		ack(w, http.StatusUnauthorized, "Token is required", 2)
		return false
	}
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || (scheme != "Splunk" && scheme != "Bearer") {
		ack(w, http.StatusUnauthorized, "Invalid authorization", 3)
		return false
	}
	if s.opts.Token != "" && token != s.opts.Token {
		ack(w, http.StatusForbidden, "Invalid token", 4)
		return false
	}
	return true
}

func (s *Server) fail() bool {
	if s.opts.FailRate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(100) < s.opts.FailRate
}

func (s *Server) acceptEvent(w http.ResponseWriter, r *http.Request, body []byte) {
	var event struct {
		Event      json.RawMessage `json:"event"`
		Sourcetype string          `json:"sourcetype"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		s.rejected.Add(1)
		ack(w, http.StatusBadRequest, "Invalid data format", 6)
		return
	}
	if len(event.Event) == 0 || string(event.Event) == "null" {
		s.rejected.Add(1)
		ack(w, http.StatusBadRequest, "Event field is required", 12)
		return
	}
	s.events.Add(1)
	s.record(r, event.Sourcetype, body)
	ack(w, http.StatusOK, "Success", 0)
}

func (s *Server) acceptRaw(w http.ResponseWriter, r *http.Request, body []byte) {
	s.raw.Add(1)
	s.record(r, r.URL.Query().Get("sourcetype"), body)
	ack(w, http.StatusOK, "Success", 0)
}

func (s *Server) record(r *http.Request, sourcetype string, body []byte) {
	s.bytes.Add(int64(len(body)))
	if !s.opts.Keep {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, Received{
		Path:        r.URL.Path,
		Sourcetype:  sourcetype,
		ContentType: r.Header.Get("Content-Type"),
		Body:        string(body),
	})
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() Stats {
	return Stats{
		Events:      s.events.Load(),
		Raw:         s.raw.Load(),
		Rejected:    s.rejected.Load(),
		Failed:      s.failed.Load(),
		Bytes:       s.bytes.Load(),
		MaxInFlight: s.maxInFlight.Load(),
	}
}

// Received returns the accepted events when Keep is set.
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.received...)
}
