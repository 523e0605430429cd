// Package httpfeed is the HTTP transport: the latest snapshot on demand, and
// a Server-Sent-Events stream of every emission, routed with chi.
package httpfeed

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// subscriberBuffer bounds how many unread snapshots a single SSE client may
// lag behind before new ones are dropped for it.
const subscriberBuffer = 8

// Sink serves the latest snapshot and fans every publication out to
// connected SSE clients, dropping a snapshot for any client whose buffer is
// full rather than blocking the publisher.
type Sink struct {
	log logrus.FieldLogger

	mu     sync.RWMutex
	latest string

	subMu       sync.Mutex
	subscribers map[chan string]struct{}
}

// New returns an empty Sink; call Router to mount its handlers.
func New(log logrus.FieldLogger) *Sink {
	return &Sink{log: log, subscribers: make(map[chan string]struct{})}
}

// Publish records payload as the latest snapshot and pushes it to every
// connected SSE client.
func (s *Sink) Publish(payload string) {
	s.mu.Lock()
	s.latest = payload
	s.mu.Unlock()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- payload:
		default:
			s.log.Debug("dropping snapshot for slow SSE subscriber")
		}
	}
}

// Router returns the chi router mounting /snapshot and /stream.
func (s *Sink) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/snapshot", s.handleSnapshot)
	r.Get("/stream", s.handleStream)
	return r
}

func (s *Sink) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(latest))
}

func (s *Sink) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan string, subscriberBuffer)
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()
	defer func() {
		s.subMu.Lock()
		delete(s.subscribers, ch)
		s.subMu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case payload := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
