package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hivewords/hive-sync/internal/gateway"
	"github.com/hivewords/hive-sync/internal/room"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, zap.NewNop())
}

func createTestRoom(t *testing.T, h *Hub) *room.Room {
	t.Helper()
	reply := make(chan *room.Room, 1)
	h.Inbox() <- CreateRoom{Cfg: room.Config{
		ID:     "room-1",
		Code:   "ABCD",
		Puzzle: "abcdefg",
		AnswerKey: map[string]int{
			"abcde": 12,
			"badge": 8,
		},
	}, Reply: reply}
	rm := <-reply
	if rm == nil {
		t.Fatalf("expected room to be created")
	}
	return rm
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := newTestHub(t)
	rm1 := createTestRoom(t, h)

	reply := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{Code: "ABCD", Reply: reply}
	rm2 := <-reply

	if rm1 == nil || rm2 == nil || rm1 != rm2 {
		t.Fatalf("expected same room pointer")
	}
}

func TestGateway_FetchRoom_NotFound(t *testing.T) {
	h := newTestHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := h.FetchRoom(ctx, "ZZZZ")
	if !errors.Is(err, gateway.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGateway_FetchAndSubmitRoundTrip(t *testing.T) {
	h := newTestHub(t)
	createTestRoom(t, h)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	snap, err := h.FetchRoom(ctx, "ABCD")
	if err != nil {
		t.Fatalf("FetchRoom: %v", err)
	}
	if snap.Puzzle != "abcdefg" || snap.AnswerCount != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	score, err := h.SubmitGuess(ctx, "ABCD", "u1", "abcde")
	if err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}
	if score != 12 {
		t.Fatalf("want score 12, got %d", score)
	}

	parts, err := h.FetchParticipants(ctx, snap.ID)
	if err != nil {
		t.Fatalf("FetchParticipants: %v", err)
	}
	if len(parts) != 1 || parts[0].UserID != "u1" || parts[0].Score != 12 {
		t.Fatalf("unexpected participants: %+v", parts)
	}
}

func TestGateway_SubscribeRoomChanges_DeliversUpdates(t *testing.T) {
	h := newTestHub(t)
	createTestRoom(t, h)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	updates := make(chan gateway.RoomUpdate, 4)
	unsub, err := h.SubscribeRoomChanges("room-1", func(u gateway.RoomUpdate) {
		updates <- u
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	if _, err := h.SubmitGuess(ctx, "ABCD", "u1", "badge"); err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}

	select {
	case u := <-updates:
		if len(u.GuessedAnswers) != 1 || u.GuessedAnswers[0] != "badge" {
			t.Fatalf("unexpected room update: %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for room update")
	}

	// double unsubscribe must be a no-op
	unsub()
	unsub()
}

func TestGateway_ConcurrentDuplicateSubmits_OneScores(t *testing.T) {
	h := newTestHub(t)
	createTestRoom(t, h)

	const n = 8
	scores := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			score, err := h.SubmitGuess(ctx, "ABCD", "u1", "abcde")
			if err != nil {
				t.Errorf("SubmitGuess: %v", err)
				return
			}
			scores <- score
		}()
	}
	wg.Wait()
	close(scores)

	positives := 0
	for s := range scores {
		if s > 0 {
			positives++
		}
	}
	if positives != 1 {
		t.Fatalf("want exactly one positive score, got %d", positives)
	}
}

func TestGateway_FailsFastAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(ctx, zap.NewNop())
	reply := make(chan *room.Room, 1)
	h.Inbox() <- CreateRoom{Cfg: room.Config{
		ID: "room-1", Code: "ABCD", Puzzle: "abcdefg",
		AnswerKey: map[string]int{"abcde": 12},
	}, Reply: reply}
	<-reply

	cancel()
	time.Sleep(50 * time.Millisecond) // let the loops wind down

	fctx, fcancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer fcancel()
	if _, err := h.FetchParticipants(fctx, "room-1"); !errors.Is(err, gateway.ErrTransport) {
		t.Fatalf("FetchParticipants: want ErrTransport, got %v", err)
	}
	if _, err := h.SubscribeRoomChanges("room-1", func(gateway.RoomUpdate) {}); !errors.Is(err, gateway.ErrTransport) {
		t.Fatalf("SubscribeRoomChanges: want ErrTransport, got %v", err)
	}
	if err := h.PublishBroadcast("room-1", gateway.BroadcastEvent{}); !errors.Is(err, gateway.ErrTransport) {
		t.Fatalf("PublishBroadcast: want ErrTransport, got %v", err)
	}
}

func TestGateway_PresenceTrackAndSync(t *testing.T) {
	h := newTestHub(t)
	createTestRoom(t, h)

	syncs := make(chan []gateway.PresenceEntry, 4)
	psub, err := h.SubscribePresence("room-1", func(roster []gateway.PresenceEntry) {
		syncs <- roster
	})
	if err != nil {
		t.Fatalf("SubscribePresence: %v", err)
	}
	defer psub.Unsubscribe()

	// initial roster is empty
	select {
	case roster := <-syncs:
		if len(roster) != 0 {
			t.Fatalf("want empty roster, got %+v", roster)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for initial sync")
	}

	psub.Track(gateway.PresenceEntry{UserID: "u1", DisplayName: "Bee1"})
	select {
	case roster := <-syncs:
		if len(roster) != 1 || roster[0].DisplayName != "Bee1" {
			t.Fatalf("want roster [Bee1], got %+v", roster)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for tracked sync")
	}
}
