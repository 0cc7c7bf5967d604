package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/tmt-csw/gocsw/pkg/event"
)

// eventHistory is how many events the dashboard keeps for page loads.
const eventHistory = 50

// EventFeed keeps the most recent dashboard rows and hands new ones to
// every connected stream.
type EventFeed struct {
	mu      sync.RWMutex
	rows    []EventData // ring, next write at rows[next]
	next    int
	full    bool
	streams map[chan EventData]struct{}
}

// NewEventFeed creates a feed that remembers up to capacity rows.
func NewEventFeed(capacity int) *EventFeed {
	if capacity < 1 {
		capacity = 1
	}
	return &EventFeed{
		rows:    make([]EventData, capacity),
		streams: make(map[chan EventData]struct{}),
	}
}

// Add records a row and offers it to every stream. Streams that are not
// keeping up miss the row.
func (f *EventFeed) Add(row EventData) {
	f.mu.Lock()
	f.rows[f.next] = row
	f.next++
	if f.next == len(f.rows) {
		f.next, f.full = 0, true
	}
	for ch := range f.streams {
		select {
		case ch <- row:
		default:
		}
	}
	f.mu.Unlock()
}

// Follow registers a stream. The returned func unregisters it.
func (f *EventFeed) Follow() (<-chan EventData, func()) {
	ch := make(chan EventData, 64)
	f.mu.Lock()
	f.streams[ch] = struct{}{}
	f.mu.Unlock()
	return ch, func() {
		f.mu.Lock()
		delete(f.streams, ch)
		f.mu.Unlock()
	}
}

// Latest returns the remembered rows, newest first.
func (f *EventFeed) Latest() []EventData {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := f.next
	if f.full {
		n = len(f.rows)
	}
	out := make([]EventData, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, f.rows[(f.next-i+len(f.rows))%len(f.rows)])
	}
	return out
}

// eventData flattens an event into a dashboard row.
func eventData(e event.Event) EventData {
	params, err := json.Marshal(e.ParamSet)
	if err != nil {
		params = []byte(err.Error())
	}
	return EventData{
		Time:   e.EventTime.Time().Format("2006-01-02 15:04:05.000"),
		Key:    e.Key(),
		Kind:   string(e.Kind),
		Params: string(params),
	}
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	rows, stop := s.feed.Follow()
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case row := <-rows:
			html, err := s.eventRow(row)
			if err != nil {
				s.logger.Warn().Err(err).Str("key", row.Key).Msg("render event row")
				continue
			}
			fmt.Fprintf(w, "event: event\ndata: %s\n\n", html)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// eventRow renders a row as one line of HTML, as an SSE data field requires.
func (s *Server) eventRow(row EventData) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "event_row", row); err != nil {
		return "", err
	}
	return strings.ReplaceAll(buf.String(), "\n", ""), nil
}
