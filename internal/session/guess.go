package session

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hivewords/hive-sync/internal/game"
	"github.com/hivewords/hive-sync/internal/gateway"
)

// ComposeLetter appends one letter to the guess buffer. Letters the puzzle
// does not offer are ignored, mirroring the on-screen keyboard filter.
func (s *Session) ComposeLetter(letter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	if s.snap.HasLetter(letter) {
		s.guess += strings.ToLower(letter)
	}
	return nil
}

// DeleteLetter removes the most recently composed letter.
func (s *Session) DeleteLetter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	if len(s.guess) > 0 {
		s.guess = s.guess[:len(s.guess)-1]
	}
	return nil
}

// ClearGuess empties the guess buffer.
func (s *Session) ClearGuess() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	s.guess = ""
	return nil
}

// Guess returns the current guess buffer.
func (s *Session) Guess() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guess
}

func (s *Session) usableLocked() error {
	switch s.state {
	case StateClosed:
		return gateway.ErrSessionClosed
	case StateJoining:
		return gateway.ErrNotReady
	}
	return nil
}

// SubmitGuess resolves the current guess buffer: cheap local pre-checks
// first, then one atomic scoring call to the gateway, which is the sole
// arbiter of correctness. The buffer is cleared unconditionally; a resolved
// attempt ends the composition whether it scored or not.
func (s *Session) SubmitGuess(ctx context.Context) (game.ScoreResult, error) {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return game.ScoreResult{}, err
	}
	word := game.Normalize(s.guess)
	s.guess = ""
	snap := s.snap.Clone()
	s.mu.Unlock()

	if reason := game.Precheck(snap, word); reason != "" {
		s.notify(NoticeError, game.RejectedMessage(reason))
		return game.Rejected(reason), nil
	}

	subCtx, cancel := context.WithTimeout(ctx, s.opts.SubmitTimeout)
	score, err := s.gw.SubmitGuess(subCtx, s.roomCode, s.opts.UserID, word)
	cancel()
	if err != nil {
		s.notify(NoticeError, game.MsgTransportError)
		return game.Rejected(game.RejectTransport), err
	}

	if score > 0 {
		s.notify(NoticeSuccess, game.AcceptedMessage(score))
		// Peers get ephemeral feedback only; guessed_answers stays owned
		// by the room row feed, which will echo this guess back to us.
		ev := gateway.BroadcastEvent{
			Kind:        gateway.EventGuessedAnswer,
			DisplayName: s.opts.DisplayName,
			Word:        word,
			Score:       score,
		}
		if err := s.gw.PublishBroadcast(snap.ID, ev); err != nil {
			s.log.Warn("broadcast publish failed", zap.Error(err))
		}
		return game.Accepted(score), nil
	}

	s.mu.Lock()
	s.missingWord = word
	s.mu.Unlock()
	s.notify(NoticeError, game.MsgNotFound)
	return game.Rejected(game.RejectNotAWord), nil
}

// ReportMissingWord files the last unrecognized guess for out-of-band
// review. Best effort: a failed report degrades to a local error notice and
// never escalates.
func (s *Session) ReportMissingWord(ctx context.Context) error {
	s.mu.RLock()
	word := s.missingWord
	roomID := s.snap.ID
	state := s.state
	s.mu.RUnlock()

	if state == StateClosed {
		return gateway.ErrSessionClosed
	}
	if word == "" {
		return nil
	}
	if err := s.gw.ReportMissingWord(ctx, roomID, s.opts.UserID, word); err != nil {
		s.log.Warn("missing word report failed", zap.Error(err))
		s.notify(NoticeError, game.MsgMissingWordError)
		return nil
	}
	s.notify(NoticeInfo, game.MsgMissingWordThanks)
	return nil
}
