package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hivewords/hive-sync/internal/game"
	"github.com/hivewords/hive-sync/internal/gateway"
)

type event interface{ isEvent() }

type roomEvent struct{ update gateway.RoomUpdate }

type participantInserted struct{ p game.Participant }

type participantUpdated struct{ p game.Participant }

type broadcastReceived struct{ ev gateway.BroadcastEvent }

type presenceSynced struct{ roster []gateway.PresenceEntry }

type resyncNeeded struct{}

type resyncDone struct {
	snap  game.Snapshot
	parts []game.Participant
}

func (roomEvent) isEvent()           {}
func (participantInserted) isEvent() {}
func (participantUpdated) isEvent()  {}
func (broadcastReceived) isEvent()   {}
func (presenceSynced) isEvent()      {}
func (resyncNeeded) isEvent()        {}
func (resyncDone) isEvent()          {}

// deliver pushes a feed event toward the reconciler. A delivery racing with
// teardown is dropped, never applied.
func (s *Session) deliver(ev event) {
	select {
	case s.inbox <- ev:
	case <-s.closed:
	}
}

// run is the reconciler loop: the single consumer for all four feeds. Each
// event is one atomic state transition; feeds can never interleave a
// partial update.
func (s *Session) run() {
	for {
		select {
		case <-s.closed:
			return
		case ev := <-s.inbox:
			s.apply(ev)
		}
	}
}

func (s *Session) apply(ev event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return
	}

	switch e := ev.(type) {
	case roomEvent:
		// The row feed delivers a narrower record than the join fetch, so
		// puzzle, total score and answer count are carried forward. A row
		// with fewer answers than we hold is stale delivery; the guessed
		// list only grows.
		if len(e.update.GuessedAnswers) < len(s.snap.GuessedAnswers) {
			s.log.Debug("dropping stale room row",
				zap.Int("have", len(s.snap.GuessedAnswers)),
				zap.Int("got", len(e.update.GuessedAnswers)))
			return
		}
		prev := s.snap
		s.snap = game.Snapshot{
			ID:             e.update.ID,
			RoomCode:       e.update.RoomCode,
			Puzzle:         prev.Puzzle,
			GuessedAnswers: append([]string(nil), e.update.GuessedAnswers...),
			AnswerCount:    prev.AnswerCount,
			TotalScore:     prev.TotalScore,
			UpdatedAt:      e.update.UpdatedAt,
		}

	case participantInserted:
		// INSERT rows carry no trustworthy values yet; the next UPDATE (or
		// a re-fetch) supplies them. Surface the arrival only.
		s.notify(NoticeInfo, game.MsgNewParticipant)

	case participantUpdated:
		s.participants[e.p.UserID] = e.p.Clone()

	case broadcastReceived:
		// Broadcasts drive ephemeral feedback only. The row feeds own the
		// facts; applying broadcasts to state would double-count them.
		if e.ev.Kind == gateway.EventGuessedAnswer && e.ev.Score > 0 {
			s.notify(NoticeSuccess, game.GuessedMessage(e.ev.DisplayName, e.ev.Word))
		}

	case presenceSynced:
		// Full-state protocol: replace the roster wholesale. Merging would
		// leak entries for users who disconnected uncleanly.
		clear(s.presence)
		for _, entry := range e.roster {
			s.presence[entry.UserID] = entry.DisplayName
		}

	case resyncNeeded:
		s.notify(NoticeInfo, game.MsgReconnecting)
		go s.resync()

	case resyncDone:
		snap := e.snap.Clone()
		// A row event applied while the re-fetch was in flight can hold more
		// answers than the fetched state; the guessed list only grows.
		if len(snap.GuessedAnswers) < len(s.snap.GuessedAnswers) {
			snap.GuessedAnswers = s.snap.GuessedAnswers
		}
		s.snap = snap
		clear(s.participants)
		for _, p := range e.parts {
			s.participants[p.UserID] = p.Clone()
		}
	}
}

// subscribe opens the four feeds. Called only after the initial fetch has
// landed, so no incremental event is ever applied to an untrusted base.
func (s *Session) subscribe(roomID string) error {
	unsubRoom, err := s.gw.SubscribeRoomChanges(roomID, func(u gateway.RoomUpdate) {
		s.deliver(roomEvent{update: u})
	})
	if err != nil {
		return err
	}
	unsubParts, err := s.gw.SubscribeParticipantChanges(roomID,
		func(p game.Participant) { s.deliver(participantInserted{p: p}) },
		func(p game.Participant) { s.deliver(participantUpdated{p: p}) },
	)
	if err != nil {
		unsubRoom()
		return err
	}
	unsubBcast, err := s.gw.SubscribeBroadcast(roomID, func(ev gateway.BroadcastEvent) {
		s.deliver(broadcastReceived{ev: ev})
	})
	if err != nil {
		unsubRoom()
		unsubParts()
		return err
	}
	psub, err := s.announcePresence(roomID)
	if err != nil {
		unsubRoom()
		unsubParts()
		unsubBcast()
		return err
	}

	s.mu.Lock()
	if s.state == StateClosed {
		// Closed while subscribing: release everything right away.
		s.mu.Unlock()
		unsubRoom()
		unsubParts()
		unsubBcast()
		psub.Unsubscribe()
		return nil
	}
	s.unsubs = append(s.unsubs, unsubRoom, unsubParts, unsubBcast)
	s.psub = psub
	s.mu.Unlock()

	// A transport that drops its feeds must not be trusted incrementally
	// again until a full snapshot has been re-fetched.
	if rc, ok := s.gw.(gateway.Reconnectable); ok {
		rc.OnDisconnect(func() { s.deliver(resyncNeeded{}) })
	}
	return nil
}

// retrySubscribe keeps trying to open the feeds after a failed subscribe.
// Once they are live a full re-fetch replaces whatever was missed meanwhile.
func (s *Session) retrySubscribe(roomID string) {
	backoff := 500 * time.Millisecond
	for {
		select {
		case <-s.closed:
			return
		case <-time.After(backoff):
		}
		err := s.subscribe(roomID)
		if err == nil {
			go s.resync()
			return
		}
		s.log.Warn("resubscribe failed", zap.Error(err))
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

// resync re-fetches the full room state with backoff until it lands or the
// session closes. Incremental events keep flowing meanwhile; resyncDone
// replaces whatever they built on.
func (s *Session) resync() {
	backoff := 500 * time.Millisecond
	for {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.FetchTimeout)
		snap, err := s.gw.FetchRoom(ctx, s.roomCode)
		var parts []game.Participant
		if err == nil {
			parts, err = s.gw.FetchParticipants(ctx, snap.ID)
		}
		cancel()
		if err == nil {
			s.deliver(resyncDone{snap: snap, parts: parts})
			return
		}
		s.log.Warn("resync fetch failed", zap.Error(err))
		select {
		case <-s.closed:
			return
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}
