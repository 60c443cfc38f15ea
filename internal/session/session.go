package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hivewords/hive-sync/internal/game"
	"github.com/hivewords/hive-sync/internal/gateway"
)

type State string

const (
	StateJoining State = "joining"
	StateReady   State = "ready"
	StateClosed  State = "closed"
)

type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient user-facing message (toast). The stream is bounded
// and lossy: display feedback, never state.
type Notice struct {
	Kind NoticeKind
	Text string
}

// Options configures a session. Gateway and UserID are required.
type Options struct {
	Gateway     gateway.Gateway
	UserID      string
	DisplayName string
	Logger      *zap.Logger

	// FetchTimeout bounds the initial join fetch, SubmitTimeout the scoring
	// call. Both default to 10s.
	FetchTimeout  time.Duration
	SubmitTimeout time.Duration
}

const defaultTimeout = 10 * time.Second

// Session is the only surface surrounding code may talk to. One session is
// one joined room: it owns the snapshot, the participant map, the presence
// roster and the guess buffer, and releases every subscription on Close.
type Session struct {
	gw   gateway.Gateway
	opts Options
	log  *zap.Logger

	roomCode string

	mu           sync.RWMutex
	state        State
	gen          int // join attempt generation; stale fetch results are discarded
	joinErr      error
	snap         game.Snapshot
	participants map[string]game.Participant
	presence     map[string]string
	guess        string
	missingWord  string // last not-a-word guess, for the report affordance
	unsubs       []gateway.Unsubscribe
	psub         gateway.PresenceSub

	inbox   chan event
	notices chan Notice
	readyCh chan struct{}
	closed  chan struct{}

	closeOnce sync.Once
}

// Join returns a handle immediately in the Joining state and fetches the
// full room snapshot in the background. No incremental event is applied
// before that fetch lands; subscriptions are only opened once it does. If
// the fetch fails the session stays Joining and Retry may be called.
func Join(ctx context.Context, opts Options, roomCode string) (*Session, error) {
	if opts.Gateway == nil {
		return nil, errors.New("session: gateway is required")
	}
	if opts.UserID == "" {
		return nil, errors.New("session: user id is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultTimeout
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultTimeout
	}

	s := &Session{
		gw:           opts.Gateway,
		opts:         opts,
		log:          opts.Logger.With(zap.String("room_code", roomCode)),
		roomCode:     roomCode,
		state:        StateJoining,
		gen:          1,
		participants: make(map[string]game.Participant),
		presence:     make(map[string]string),
		inbox:        make(chan event, 64),
		notices:      make(chan Notice, 32),
		readyCh:      make(chan struct{}),
		closed:       make(chan struct{}),
	}
	go s.run()
	go s.fetch(ctx, 1)
	return s, nil
}

// Retry re-runs the initial fetch after a failed join. No-op once the
// session is Ready or Closed.
func (s *Session) Retry() {
	s.mu.Lock()
	if s.state != StateJoining {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	s.joinErr = nil
	s.mu.Unlock()
	go s.fetch(context.Background(), gen)
}

// fetch performs the one full request-response pair that makes the room
// trustworthy. Results from a superseded attempt or a closed session are
// discarded rather than applied.
func (s *Session) fetch(ctx context.Context, gen int) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	snap, err := s.gw.FetchRoom(fetchCtx, s.roomCode)
	if err != nil {
		s.fetchFailed(gen, err)
		return
	}
	parts, err := s.gw.FetchParticipants(fetchCtx, snap.ID)
	if err != nil {
		s.fetchFailed(gen, err)
		return
	}

	s.mu.Lock()
	if s.state != StateJoining || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.snap = snap.Clone()
	for _, p := range parts {
		s.participants[p.UserID] = p.Clone()
	}
	s.state = StateReady
	close(s.readyCh)
	s.mu.Unlock()

	if err := s.subscribe(snap.ID); err != nil {
		s.log.Warn("subscribe failed", zap.Error(err))
		s.notify(NoticeError, game.MsgReconnecting)
		go s.retrySubscribe(snap.ID)
	}
	s.log.Info("room ready", zap.String("room_id", snap.ID))
}

func (s *Session) fetchFailed(gen int, err error) {
	s.mu.Lock()
	if s.state != StateJoining || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.joinErr = err
	s.mu.Unlock()
	s.log.Warn("join fetch failed", zap.Error(err))
	s.notify(NoticeError, game.MsgTransportError)
}

// State reports the handle's lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// JoinErr returns the error from the most recent failed join attempt, if
// the session is still not ready.
func (s *Session) JoinErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joinErr
}

// WaitReady blocks until the session is Ready, Closed, or ctx expires.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-s.closed:
		return gateway.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the current room snapshot. ok is false until
// the initial fetch has completed.
func (s *Session) Snapshot() (game.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return game.Snapshot{}, false
	}
	return s.snap.Clone(), true
}

// Participants returns a copy of the participant map.
func (s *Session) Participants() map[string]game.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]game.Participant, len(s.participants))
	for id, p := range s.participants {
		out[id] = p.Clone()
	}
	return out
}

// Presence returns a copy of the user id to display name roster.
func (s *Session) Presence() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.presence))
	for id, name := range s.presence {
		out[id] = name
	}
	return out
}

// Notices is the transient notification stream. Slow consumers lose
// notices; they are display feedback, not state.
func (s *Session) Notices() <-chan Notice { return s.notices }

func (s *Session) notify(kind NoticeKind, text string) {
	select {
	case s.notices <- Notice{Kind: kind, Text: text}:
	default:
	}
}

// Close tears the session down: all subscriptions released, all further
// inbound events discarded, all outbound calls fail fast. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		unsubs := s.unsubs
		s.unsubs = nil
		psub := s.psub
		s.psub = nil
		s.mu.Unlock()

		close(s.closed)
		for _, u := range unsubs {
			u()
		}
		if psub != nil {
			psub.Unsubscribe()
		}
		s.log.Info("session closed")
	})
}
