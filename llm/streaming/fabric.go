package streaming

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/castingclouds/circuit-breaker-sub002/llm"
	"github.com/castingclouds/circuit-breaker-sub002/types"
	"go.uber.org/zap"
)

// FabricConfig bounds the session table and its idle sweeper.
type FabricConfig struct {
	// MaxSessions caps the number of concurrently live sessions. Zero
	// means unbounded, which is almost never what you want in
	// production — the gateway wires in a real cap from config.
	MaxSessions int
	// IdleTimeout closes a session that has neither produced nor been
	// swept within this window. Default 5 minutes.
	IdleTimeout time.Duration
	// SweepInterval is how often the idle sweeper runs. Default 30s.
	SweepInterval time.Duration
	Session       SessionConfig
}

// DefaultFabricConfig returns the gateway's default streaming limits.
func DefaultFabricConfig() FabricConfig {
	return FabricConfig{
		IdleTimeout:   5 * time.Minute,
		SweepInterval: 30 * time.Second,
		Session:       DefaultSessionConfig(),
	}
}

// Fabric is the gateway's streaming session table: it creates sessions
// bounded by MaxSessions, pumps a provider's Stream output into each
// one, and sweeps sessions that have gone idle past IdleTimeout. One
// Fabric is shared by both the SSE and WebSocket transports so a
// session created over one protocol can, in principle, be observed
// from either. The table itself is a sync.Map plus an atomic.Int64
// count, the same pairing backpressure.go's BackpressureStream uses
// for its own counters — a capacity check only ever needs the count,
// never a full lock over the map.
type Fabric struct {
	cfg    FabricConfig
	logger *zap.Logger

	sessions sync.Map // string -> *Session
	count    atomic.Int64

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewFabric starts the idle sweeper and returns a ready Fabric.
func NewFabric(cfg FabricConfig, logger *zap.Logger) *Fabric {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	f := &Fabric{
		cfg:       cfg,
		logger:    logger,
		stopSweep: make(chan struct{}),
	}
	go f.sweepLoop()
	return f
}

// Stop halts the idle sweeper. Live sessions are left running; callers
// that want a clean shutdown should close them individually first.
func (f *Fabric) Stop() {
	f.sweepOnce.Do(func() { close(f.stopSweep) })
}

func (f *Fabric) sweepLoop() {
	ticker := time.NewTicker(f.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stopSweep:
			return
		case <-ticker.C:
			f.sweepIdle()
		}
	}
}

func (f *Fabric) sweepIdle() {
	cutoff := time.Now().Add(-f.cfg.IdleTimeout)
	var stale []*Session
	f.sessions.Range(func(_, v interface{}) bool {
		s := v.(*Session)
		if s.LastActive().Before(cutoff) {
			stale = append(stale, s)
		}
		return true
	})

	for _, s := range stale {
		f.logger.Info("closing idle streaming session",
			zap.String("session_id", s.ID),
			zap.Duration("idle_timeout", f.cfg.IdleTimeout),
		)
		s.CloseWithError(string(types.ErrSlowConsumer), "session idle beyond timeout")
		f.remove(s.ID)
	}
}

func (f *Fabric) remove(id string) {
	if _, existed := f.sessions.LoadAndDelete(id); existed {
		f.count.Add(-1)
	}
}

// Get looks up a live session by id, for the subscribe/unsubscribe
// control messages (§4.9). Tenant isolation is the caller's
// responsibility — see CheckTenant.
func (f *Fabric) Get(id string) (*Session, bool) {
	v, ok := f.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// CheckTenant reports whether tenantID may access session id. Callers
// must use this before handing back any information derived from the
// session — including simply whether it exists — so that a
// cross-tenant probe gets the same forbidden response as a
// nonexistent id instead of confirming the session is real.
func (f *Fabric) CheckTenant(id, tenantID string) (*Session, bool) {
	s, ok := f.Get(id)
	if !ok || s.TenantID != tenantID {
		return nil, false
	}
	return s, true
}

// Start creates a new session bounded by MaxSessions, launches a
// goroutine that pumps provider.Stream(ctx, req) into it, and returns
// the session for the caller to drain over whichever transport the
// request arrived on. Returns types.ErrCapacity if the table is full.
func (f *Fabric) Start(ctx context.Context, sessionID, tenantID string, provider llm.Provider, req *llm.ChatRequest) (*Session, error) {
	if f.cfg.MaxSessions > 0 {
		if n := f.count.Add(1); n > int64(f.cfg.MaxSessions) {
			f.count.Add(-1)
			return nil, types.NewError(types.ErrCapacity, "streaming session table is full").
				WithHTTPStatus(429)
		}
	} else {
		f.count.Add(1)
	}

	session := newSession(sessionID, tenantID, f.cfg.Session)
	if _, loaded := f.sessions.LoadOrStore(sessionID, session); loaded {
		f.count.Add(-1)
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("session %q already exists", sessionID))
	}

	chunks, err := provider.Stream(ctx, req)
	if err != nil {
		f.remove(sessionID)
		session.CloseWithError(string(types.ErrUpstreamError), err.Error())
		return nil, err
	}

	go f.pump(ctx, session, chunks)
	return session, nil
}

// pump drains the provider's chunk channel into the session's wire
// event queue, translating llm.StreamChunk into the {chunk,error,done,
// usage} envelope, then tears the session down from the table once the
// provider channel closes or ctx is cancelled.
func (f *Fabric) pump(ctx context.Context, session *Session, chunks <-chan llm.StreamChunk) {
	defer f.remove(session.ID)

	for {
		select {
		case <-ctx.Done():
			session.CloseWithError(string(types.ErrUpstreamTimeout), "execution cancelled")
			return
		case chunk, ok := <-chunks:
			if !ok {
				session.Close()
				return
			}
			if chunk.Err != nil {
				session.CloseWithError(string(chunk.Err.Code), chunk.Err.Message)
				return
			}
			if chunk.Delta.Content != "" {
				if !session.Send(Event{Type: EventChunk, Delta: chunk.Delta.Content}) {
					return
				}
			}
			if chunk.Usage != nil {
				if !session.Send(Event{Type: EventUsage, Usage: chunk.Usage}) {
					return
				}
			}
			if chunk.FinishReason != "" {
				session.Close()
				return
			}
		}
	}
}
