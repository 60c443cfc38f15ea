package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hivewords/hive-sync/internal/game"
	"github.com/hivewords/hive-sync/internal/gateway"
	"github.com/hivewords/hive-sync/internal/hub"
	"github.com/hivewords/hive-sync/internal/room"
)

func newWSClient(t *testing.T) *Client {
	t.Helper()

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

	srv := httptest.NewServer(Handler(h, zap.NewNop()))
	t.Cleanup(srv.Close)

	url := strings.Replace(srv.URL, "http", "ws", 1)
	dctx, dcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dcancel()
	c, err := Dial(dctx, url, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestClient_FetchRoom_NotFound(t *testing.T) {
	c := newWSClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.FetchRoom(ctx, "ZZZZ")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestClient_FetchSubmitAndParticipants(t *testing.T) {
	c := newWSClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := c.FetchRoom(ctx, "ABCD")
	require.NoError(t, err)
	assert.Equal(t, "abcdefg", snap.Puzzle)
	assert.Equal(t, 2, snap.AnswerCount)
	assert.Equal(t, 20, snap.TotalScore)

	score, err := c.SubmitGuess(ctx, "ABCD", "u1", "abcde")
	require.NoError(t, err)
	assert.Equal(t, 12, score)

	parts, err := c.FetchParticipants(ctx, snap.ID)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "u1", parts[0].UserID)
	assert.Equal(t, 12, parts[0].Score)
	assert.Equal(t, []string{"abcde"}, parts[0].Answers)
}

func TestClient_RoomFeedRoundTrip(t *testing.T) {
	c := newWSClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	updates := make(chan gateway.RoomUpdate, 4)
	unsub, err := c.SubscribeRoomChanges("room-1", func(u gateway.RoomUpdate) {
		updates <- u
	})
	require.NoError(t, err)
	defer unsub()

	_, err = c.SubmitGuess(ctx, "ABCD", "u1", "badge")
	require.NoError(t, err)

	select {
	case u := <-updates:
		assert.Equal(t, "room-1", u.ID)
		assert.Equal(t, []string{"badge"}, u.GuessedAnswers)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for room update over the socket")
	}
}

func TestClient_ParticipantFeedKinds(t *testing.T) {
	c := newWSClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type tagged struct {
		kind string
		user string
	}
	events := make(chan tagged, 4)
	unsub, err := c.SubscribeParticipantChanges("room-1",
		func(p game.Participant) { events <- tagged{kind: "insert", user: p.UserID} },
		func(p game.Participant) { events <- tagged{kind: "update", user: p.UserID} },
	)
	require.NoError(t, err)
	defer unsub()

	_, err = c.SubmitGuess(ctx, "ABCD", "u1", "abcde")
	require.NoError(t, err)

	for _, want := range []tagged{{"insert", "u1"}, {"update", "u1"}} {
		select {
		case got := <-events:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s event", want.kind)
		}
	}
}

func TestClient_BroadcastRoundTrip(t *testing.T) {
	c := newWSClient(t)

	events := make(chan gateway.BroadcastEvent, 4)
	unsub, err := c.SubscribeBroadcast("room-1", func(ev gateway.BroadcastEvent) {
		events <- ev
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, c.PublishBroadcast("room-1", gateway.BroadcastEvent{
		Kind:        gateway.EventGuessedAnswer,
		DisplayName: "Bee1",
		Word:        "abcde",
		Score:       12,
	}))

	select {
	case ev := <-events:
		assert.Equal(t, gateway.EventGuessedAnswer, ev.Kind)
		assert.Equal(t, "Bee1", ev.DisplayName)
		assert.Equal(t, "abcde", ev.Word)
		assert.Equal(t, 12, ev.Score)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast over the socket")
	}
}

func TestClient_PresenceTrackAndSync(t *testing.T) {
	c := newWSClient(t)

	syncs := make(chan []gateway.PresenceEntry, 4)
	psub, err := c.SubscribePresence("room-1", func(roster []gateway.PresenceEntry) {
		syncs <- roster
	})
	require.NoError(t, err)
	defer psub.Unsubscribe()

	select {
	case roster := <-syncs:
		assert.Empty(t, roster, "initial roster should be empty")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial presence sync")
	}

	psub.Track(gateway.PresenceEntry{UserID: "u1", DisplayName: "Bee1"})

	select {
	case roster := <-syncs:
		require.Len(t, roster, 1)
		assert.Equal(t, "Bee1", roster[0].DisplayName)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tracked presence sync")
	}
}

func TestClient_UnsubscribeStopsEvents(t *testing.T) {
	c := newWSClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	updates := make(chan gateway.RoomUpdate, 4)
	unsub, err := c.SubscribeRoomChanges("room-1", func(u gateway.RoomUpdate) {
		updates <- u
	})
	require.NoError(t, err)
	unsub()
	unsub() // second call is a no-op

	_, err = c.SubmitGuess(ctx, "ABCD", "u1", "abcde")
	require.NoError(t, err)

	select {
	case u := <-updates:
		t.Fatalf("got update after unsubscribe: %+v", u)
	case <-time.After(300 * time.Millisecond):
	}
}
