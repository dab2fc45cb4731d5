package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/castingclouds/circuit-breaker-sub002/llm"
	"github.com/castingclouds/circuit-breaker-sub002/types"
)

// EventType names the four wire event kinds a session ever emits.
// content, token and usage totals are modeled as separate event
// shapes rather than one tagged Token struct (unlike BackpressureStream's
// generic producer/consumer pair) because a session's consumer is an
// HTTP/WebSocket client expecting exactly this JSON shape on the wire,
// not another Go goroutine.
type EventType string

const (
	EventChunk EventType = "chunk"
	EventError EventType = "error"
	EventDone  EventType = "done"
	EventUsage EventType = "usage"
)

// Event is one wire message emitted by a session, regardless of
// transport. SSE framing writes it as `event: <type>\ndata: <json>\n\n`;
// the WebSocket transport writes the same struct as a single JSON text
// frame.
type Event struct {
	Type  EventType        `json:"type"`
	Delta string           `json:"delta,omitempty"`
	Usage *llm.ChatUsage `json:"usage,omitempty"`
	Error *EventError      `json:"error,omitempty"`
}

// EventError is the wire shape of a terminal session error.
type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sessionState tracks where in its lifecycle a session currently sits.
type sessionState int32

const (
	stateRunning sessionState = iota
	stateClosed
)

// Session is one live streaming execution: a bounded event channel fed
// by a provider's Stream goroutine and drained by exactly one
// transport (SSE handler or WebSocket connection). Capacity and
// slow-consumer detection mirror BackpressureStream's atomic-counter
// idiom, but the event shape here is the {chunk,error,done,usage}
// envelope this gateway's clients expect on the wire rather than a
// generic Token.
type Session struct {
	ID       string
	TenantID string

	events chan Event
	done   chan struct{}
	once   sync.Once

	// mu serializes every send against close so a producer never writes
	// to s.events after the consumer side (disconnect, idle sweep) has
	// closed it out from under it; sync.Once alone only dedupes the
	// close itself, not a concurrent in-flight send.
	mu sync.Mutex

	state atomic.Int32

	sentUsage  atomic.Bool
	produced   atomic.Int64
	delivered  atomic.Int64
	lastActive atomic.Int64 // unix nano, updated on every send/receive

	limiter *RateLimiter // nil when flow control is disabled

	capacity int
}

// SessionConfig configures a single session's buffering and optional
// flow control.
type SessionConfig struct {
	// BufferSize bounds the session's event channel. Default 100.
	BufferSize int
	// MaxRatePerSec and BurstSize enable token-bucket flow control when
	// MaxRatePerSec > 0; zero disables it.
	MaxRatePerSec float64
	BurstSize     int
}

// DefaultSessionConfig returns the gateway's default session buffering.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{BufferSize: 100}
}

func newSession(id, tenantID string, cfg SessionConfig) *Session {
	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 100
	}
	s := &Session{
		ID:       id,
		TenantID: tenantID,
		events:   make(chan Event, bufSize),
		done:     make(chan struct{}),
		capacity: bufSize,
	}
	if cfg.MaxRatePerSec > 0 {
		burst := cfg.BurstSize
		if burst <= 0 {
			burst = bufSize
		}
		s.limiter = NewRateLimiter(cfg.MaxRatePerSec, burst)
	}
	s.touch()
	return s
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive reports when this session last sent or the sweeper last
// inspected it.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// isClosed reports whether Close has already run.
func (s *Session) isClosed() bool {
	return sessionState(s.state.Load()) == stateClosed
}

// Send pushes an event onto the session's buffer. When the buffer is
// already full — the consumer isn't draining fast enough to keep up —
// the session is terminated with a slow_consumer error instead of
// blocking the producer indefinitely or silently dropping frames.
// Returns false once the session is already closed or was just closed
// as a result of this call.
func (s *Session) Send(ev Event) bool {
	if s.isClosed() {
		return false
	}
	if ev.Type == EventUsage {
		if s.sentUsage.Swap(true) {
			return true // usage already sent once; drop duplicates silently
		}
	}
	if s.limiter != nil && ev.Type == EventChunk {
		s.limiter.Wait(context.Background())
	}

	// The isClosed check above is only a fast path; closeWith can run
	// concurrently (client disconnect, idle sweep) between that check
	// and the send below. Re-check under mu, which closeWith also
	// takes, so the two never interleave and a send can never land on
	// an already-closed s.events.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		return false
	}

	select {
	case s.events <- ev:
		s.produced.Add(1)
		s.touch()
		return true
	default:
		s.closeWithLocked(EventError, &EventError{
			Code:    string(types.ErrSlowConsumer),
			Message: "consumer did not keep up with the session's buffer capacity",
		})
		return false
	}
}

// Events returns the channel a transport should range over to drain
// this session. It is closed exactly once, after a terminal event
// (done or error) has been delivered.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done reports when the session has fully wound down and its channel
// has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// closeWith enqueues one final terminal event (best-effort — a full
// buffer at this point means the consumer is already gone) and closes
// the session's channels. Takes mu itself so callers other than Send
// (disconnect, idle sweep) can't race a concurrent Send's send-select.
func (s *Session) closeWith(kind EventType, errPayload *EventError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeWithLocked(kind, errPayload)
}

// closeWithLocked is closeWith's body for callers that already hold mu
// (Send, on a full buffer).
func (s *Session) closeWithLocked(kind EventType, errPayload *EventError) {
	s.once.Do(func() {
		s.state.Store(int32(stateClosed))
		select {
		case s.events <- Event{Type: kind, Error: errPayload}:
		default:
		}
		close(s.events)
		close(s.done)
	})
}

// Close ends the session normally, emitting a terminal `done` event.
func (s *Session) Close() {
	s.closeWith(EventDone, nil)
}

// CloseWithError ends the session abnormally with the given error code
// and message, e.g. a transport failure or explicit cancellation.
func (s *Session) CloseWithError(code, message string) {
	s.closeWith(EventError, &EventError{Code: code, Message: message})
}

// MarkDelivered is called by a transport after it has successfully
// written an event to the wire, for BufferLevel/Stats reporting.
func (s *Session) MarkDelivered() {
	s.delivered.Add(1)
}

// SessionStats is a point-in-time snapshot of one session's counters.
type SessionStats struct {
	Produced  int64
	Delivered int64
	Buffered  int
	Capacity  int
}

// Stats reports this session's current counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		Produced:  s.produced.Load(),
		Delivered: s.delivered.Load(),
		Buffered:  len(s.events),
		Capacity:  s.capacity,
	}
}
