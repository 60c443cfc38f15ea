package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hivewords/hive-sync/internal/game"
	"github.com/hivewords/hive-sync/internal/gateway"
	"github.com/hivewords/hive-sync/internal/room"
)

// Hub doubles as the in-process gateway: the dev server serves it over the
// wire and the tests run the client core straight against it.
var _ gateway.Gateway = (*Hub)(nil)

// feedBuffer bounds each subscriber's outbox; the room actor drops
// subscribers that fall further behind than this.
const feedBuffer = 16

func (h *Hub) roomByCode(ctx context.Context, code string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	select {
	case h.inbox <- GetRoom{Code: code, Reply: reply}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", gateway.ErrTransport, ctx.Err())
	}
	select {
	case rm := <-reply:
		if rm == nil {
			return nil, gateway.ErrNotFound
		}
		return rm, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", gateway.ErrTransport, ctx.Err())
	}
}

func (h *Hub) roomByID(ctx context.Context, id string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	select {
	case h.inbox <- GetRoomByID{ID: id, Reply: reply}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", gateway.ErrTransport, ctx.Err())
	}
	select {
	case rm := <-reply:
		if rm == nil {
			return nil, gateway.ErrNotFound
		}
		return rm, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", gateway.ErrTransport, ctx.Err())
	}
}

func (h *Hub) FetchRoom(ctx context.Context, roomCode string) (game.Snapshot, error) {
	rm, err := h.roomByCode(ctx, roomCode)
	if err != nil {
		return game.Snapshot{}, err
	}
	reply := make(chan game.Snapshot, 1)
	rm.Inbox() <- room.GetSnapshot{Reply: reply}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return game.Snapshot{}, fmt.Errorf("%w: %v", gateway.ErrTransport, ctx.Err())
	}
}

func (h *Hub) FetchParticipants(ctx context.Context, roomID string) ([]game.Participant, error) {
	rm, err := h.roomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	reply := make(chan []game.Participant, 1)
	rm.Inbox() <- room.GetParticipants{Reply: reply}
	select {
	case ps := <-reply:
		return ps, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", gateway.ErrTransport, ctx.Err())
	}
}

func (h *Hub) SubmitGuess(ctx context.Context, roomCode, userID, word string) (int, error) {
	rm, err := h.roomByCode(ctx, roomCode)
	if err != nil {
		return 0, err
	}
	reply := make(chan int, 1)
	rm.Inbox() <- room.SubmitGuess{UserID: userID, Word: word, Reply: reply}
	select {
	case score := <-reply:
		return score, nil
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %v", gateway.ErrTransport, ctx.Err())
	}
}

func (h *Hub) ReportMissingWord(ctx context.Context, roomID, userID, word string) error {
	rm, err := h.roomByID(ctx, roomID)
	if err != nil {
		return err
	}
	select {
	case rm.Inbox() <- room.ReportMissing{UserID: userID, Word: word}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", gateway.ErrTransport, ctx.Err())
	}
}

// The subscribe and publish calls carry no caller context; the hub's own
// context bounds them so they fail fast once the hub has shut down.

func (h *Hub) SubscribeRoomChanges(roomID string, onUpdate func(gateway.RoomUpdate)) (gateway.Unsubscribe, error) {
	rm, err := h.roomByID(h.ctx, roomID)
	if err != nil {
		return nil, err
	}
	subID := uuid.NewString()
	out := make(chan gateway.RoomUpdate, feedBuffer)
	rm.Inbox() <- room.SubscribeRoom{SubID: subID, Out: out}
	go func() {
		for u := range out {
			onUpdate(u)
		}
	}()
	return unsubOnce(rm, room.FeedRoom, subID), nil
}

func (h *Hub) SubscribeParticipantChanges(roomID string, onInsert, onUpdate func(game.Participant)) (gateway.Unsubscribe, error) {
	rm, err := h.roomByID(h.ctx, roomID)
	if err != nil {
		return nil, err
	}
	subID := uuid.NewString()
	out := make(chan room.ParticipantEvent, feedBuffer)
	rm.Inbox() <- room.SubscribeParticipants{SubID: subID, Out: out}
	go func() {
		for ev := range out {
			switch ev.Kind {
			case room.ParticipantInsert:
				onInsert(ev.Participant)
			case room.ParticipantUpdate:
				onUpdate(ev.Participant)
			}
		}
	}()
	return unsubOnce(rm, room.FeedParticipants, subID), nil
}

func (h *Hub) SubscribeBroadcast(roomID string, onEvent func(gateway.BroadcastEvent)) (gateway.Unsubscribe, error) {
	rm, err := h.roomByID(h.ctx, roomID)
	if err != nil {
		return nil, err
	}
	subID := uuid.NewString()
	out := make(chan gateway.BroadcastEvent, feedBuffer)
	rm.Inbox() <- room.SubscribeBroadcast{SubID: subID, Out: out}
	go func() {
		for ev := range out {
			onEvent(ev)
		}
	}()
	return unsubOnce(rm, room.FeedBroadcast, subID), nil
}

func (h *Hub) PublishBroadcast(roomID string, ev gateway.BroadcastEvent) error {
	rm, err := h.roomByID(h.ctx, roomID)
	if err != nil {
		return err
	}
	rm.Inbox() <- room.Publish{Event: ev}
	return nil
}

func (h *Hub) SubscribePresence(roomID string, onSync func([]gateway.PresenceEntry)) (gateway.PresenceSub, error) {
	rm, err := h.roomByID(h.ctx, roomID)
	if err != nil {
		return nil, err
	}
	subID := uuid.NewString()
	out := make(chan []gateway.PresenceEntry, feedBuffer)
	rm.Inbox() <- room.SubscribePresence{SubID: subID, Out: out}
	go func() {
		for roster := range out {
			onSync(roster)
		}
	}()
	return &presenceSub{rm: rm, subID: subID}, nil
}

type presenceSub struct {
	rm    *room.Room
	subID string
	once  sync.Once
}

func (p *presenceSub) Track(entry gateway.PresenceEntry) {
	p.rm.Inbox() <- room.Track{SubID: p.subID, Entry: entry}
}

func (p *presenceSub) Unsubscribe() {
	p.once.Do(func() {
		p.rm.Inbox() <- room.UnsubscribeFeed{Feed: room.FeedPresence, SubID: p.subID}
	})
}

func unsubOnce(rm *room.Room, feed room.Feed, subID string) gateway.Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			rm.Inbox() <- room.UnsubscribeFeed{Feed: feed, SubID: subID}
		})
	}
}
