package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hivewords/hive-sync/internal/hub"
	"github.com/hivewords/hive-sync/internal/room"
)

// Two sessions sharing one in-process hub: a guess by one lands on the
// other through the row feeds, the broadcast feed, and the presence roster.
func TestTwoSessionsOverHub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub(ctx, zap.NewNop())
	reply := make(chan *room.Room, 1)
	h.Inbox() <- hub.CreateRoom{Cfg: room.Config{
		ID:     "room-1",
		Code:   "ABCD",
		Puzzle: "abcdefg",
		AnswerKey: map[string]int{
			"abcde": 12,
			"badge": 8,
		},
	}, Reply: reply}
	require.NotNil(t, <-reply)

	join := func(userID, name string) *Session {
		s, err := Join(ctx, Options{
			Gateway:     h,
			UserID:      userID,
			DisplayName: name,
		}, "ABCD")
		require.NoError(t, err)
		t.Cleanup(s.Close)
		wctx, wcancel := context.WithTimeout(ctx, waitFor)
		defer wcancel()
		require.NoError(t, s.WaitReady(wctx))
		return s
	}

	s1 := join("u1", "Bee1")
	s2 := join("u2", "Bee2")

	// both announce themselves; each roster converges to two entries
	for _, s := range []*Session{s1, s2} {
		require.Eventually(t, func() bool { return len(s.Presence()) == 2 }, waitFor, tick)
	}

	for _, ch := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s1.ComposeLetter(ch))
	}
	res, err := s1.SubmitGuess(ctx)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.Equal(t, 12, res.Score)

	// the guess reaches both sessions through the row feeds
	for _, s := range []*Session{s1, s2} {
		require.Eventually(t, func() bool {
			snap, ok := s.Snapshot()
			if !ok || len(snap.GuessedAnswers) != 1 {
				return false
			}
			return s.Participants()["u1"].Score == 12
		}, waitFor, tick)
	}

	// the peer sees the ephemeral announcement
	drainNotice(t, s2, `Bee1 guessed "abcde"!`)

	// room-wide uniqueness: the same word precheck-rejects on the peer now
	for _, ch := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s2.ComposeLetter(ch))
	}
	res, err = s2.SubmitGuess(ctx)
	require.NoError(t, err)
	assert.False(t, res.Accepted)

	// closing one session shrinks the other's roster
	s2.Close()
	require.Eventually(t, func() bool {
		p := s1.Presence()
		_, still := p["u2"]
		return len(p) == 1 && !still
	}, waitFor, tick)
}
