package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hivewords/hive-sync/internal/game"
	"github.com/hivewords/hive-sync/internal/gateway"
	"github.com/hivewords/hive-sync/pkg/types"
)

// Client implements gateway.Gateway over one websocket. RPCs are
// request/reply frames correlated by req id; feed events are dispatched
// from a single read loop, which preserves per-feed emission order. On a
// dropped socket the client redials with backoff, replays its
// subscriptions, then fires the disconnect handler so the session re-fetches
// full state before trusting increments again.
type Client struct {
	url string
	log *zap.Logger

	reqID atomic.Int64

	mu           sync.Mutex
	conn         *websocket.Conn
	pending      map[int64]chan types.ServerFrame
	subs         map[string]*clientSub
	onDisconnect func()
	closed       bool

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

type clientSub struct {
	frame   types.ClientFrame // replayed on reconnect
	onEvent func(types.ServerFrame)
}

var _ gateway.Gateway = (*Client)(nil)
var _ gateway.Reconnectable = (*Client)(nil)

func Dial(ctx context.Context, url string, log *zap.Logger) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrTransport, err)
	}
	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:     url,
		log:     log,
		conn:    conn,
		pending: make(map[int64]chan types.ServerFrame),
		subs:    make(map[string]*clientSub),
		ctx:     cctx,
		cancel:  cancel,
	}
	go c.readLoop()
	return c, nil
}

// OnDisconnect registers the handler fired after feeds have been
// re-established following a dropped socket.
func (c *Client) OnDisconnect(fn func()) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	c.cancel()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) write(ctx context.Context, f types.ClientFrame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return gateway.ErrTransport
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrTransport, err)
	}
	return nil
}

func (c *Client) rpc(ctx context.Context, f types.ClientFrame) (types.ServerFrame, error) {
	id := c.reqID.Add(1)
	f.ReqID = id
	ch := make(chan types.ServerFrame, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, f); err != nil {
		return types.ServerFrame{}, err
	}
	select {
	case reply := <-ch:
		if reply.Error == types.ErrCodeNotFound {
			return reply, gateway.ErrNotFound
		}
		if reply.Error != "" {
			return reply, fmt.Errorf("%w: %s", gateway.ErrTransport, reply.Error)
		}
		return reply, nil
	case <-ctx.Done():
		return types.ServerFrame{}, fmt.Errorf("%w: %v", gateway.ErrTransport, ctx.Err())
	case <-c.ctx.Done():
		return types.ServerFrame{}, gateway.ErrTransport
	}
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(c.ctx)
		if err != nil {
			if c.isClosed() || c.ctx.Err() != nil {
				return
			}
			c.reconnect()
			continue
		}

		var f types.ServerFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("bad frame from server", zap.Error(err))
			continue
		}
		switch f.Type {
		case types.FrameRPCResult:
			c.mu.Lock()
			ch := c.pending[f.ReqID]
			c.mu.Unlock()
			if ch != nil {
				ch <- f
			}
		case types.FrameEvent:
			c.mu.Lock()
			sub := c.subs[f.SubID]
			c.mu.Unlock()
			if sub != nil {
				sub.onEvent(f)
			}
		}
	}
}

// reconnect redials with backoff, replays every live subscription, then
// fires the disconnect handler.
func (c *Client) reconnect() {
	c.failPending()
	backoff := 500 * time.Millisecond
	for {
		if c.isClosed() || c.ctx.Err() != nil {
			return
		}
		dctx, cancel := context.WithTimeout(c.ctx, rpcTimeout)
		conn, _, err := websocket.Dial(dctx, c.url, nil)
		cancel()
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			frames := make([]types.ClientFrame, 0, len(c.subs))
			for _, sub := range c.subs {
				frames = append(frames, sub.frame)
			}
			fn := c.onDisconnect
			c.mu.Unlock()

			for _, f := range frames {
				if err := c.write(c.ctx, f); err != nil {
					c.log.Warn("resubscribe failed", zap.Error(err))
				}
			}
			c.log.Info("reconnected", zap.Int("subs", len(frames)))
			if fn != nil {
				fn()
			}
			return
		}
		c.log.Warn("redial failed", zap.Error(err))
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

// failPending resolves in-flight RPCs with a transport error so callers
// unblock instead of waiting out their deadlines.
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		select {
		case ch <- types.ServerFrame{Type: types.FrameRPCResult, ReqID: id, Error: types.ErrCodeInternal}:
		default:
		}
		delete(c.pending, id)
	}
}

func (c *Client) FetchRoom(ctx context.Context, roomCode string) (game.Snapshot, error) {
	reply, err := c.rpc(ctx, types.ClientFrame{
		Type: types.FrameRPC, Method: types.MethodFetchRoom, RoomCode: roomCode,
	})
	if err != nil {
		return game.Snapshot{}, err
	}
	var snap game.Snapshot
	if err := json.Unmarshal(reply.Payload, &snap); err != nil {
		return game.Snapshot{}, fmt.Errorf("%w: %v", gateway.ErrTransport, err)
	}
	return snap, nil
}

func (c *Client) FetchParticipants(ctx context.Context, roomID string) ([]game.Participant, error) {
	reply, err := c.rpc(ctx, types.ClientFrame{
		Type: types.FrameRPC, Method: types.MethodFetchParticipants, RoomID: roomID,
	})
	if err != nil {
		return nil, err
	}
	var parts []game.Participant
	if err := json.Unmarshal(reply.Payload, &parts); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrTransport, err)
	}
	return parts, nil
}

func (c *Client) SubmitGuess(ctx context.Context, roomCode, userID, word string) (int, error) {
	reply, err := c.rpc(ctx, types.ClientFrame{
		Type: types.FrameRPC, Method: types.MethodSubmitGuess,
		RoomCode: roomCode, UserID: userID, Word: word,
	})
	if err != nil {
		return 0, err
	}
	return reply.Score, nil
}

func (c *Client) ReportMissingWord(ctx context.Context, roomID, userID, word string) error {
	_, err := c.rpc(ctx, types.ClientFrame{
		Type: types.FrameRPC, Method: types.MethodReportMissing,
		RoomID: roomID, UserID: userID, Word: word,
	})
	return err
}

// subscribeFeed registers the event handler before the ack round trip so no
// event that races the ack is lost.
func (c *Client) subscribeFeed(roomID, feed string, onEvent func(types.ServerFrame)) (string, error) {
	subID := uuid.NewString()
	frame := types.ClientFrame{Type: types.FrameSubscribe, Feed: feed, RoomID: roomID, SubID: subID}
	c.mu.Lock()
	c.subs[subID] = &clientSub{frame: frame, onEvent: onEvent}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, rpcTimeout)
	defer cancel()
	if _, err := c.rpc(ctx, frame); err != nil {
		c.mu.Lock()
		delete(c.subs, subID)
		c.mu.Unlock()
		return "", err
	}
	return subID, nil
}

func (c *Client) unsubscribeFeed(feed, subID string) gateway.Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, subID)
			c.mu.Unlock()
			_ = c.write(c.ctx, types.ClientFrame{Type: types.FrameUnsubscribe, Feed: feed, SubID: subID})
		})
	}
}

func (c *Client) SubscribeRoomChanges(roomID string, onUpdate func(gateway.RoomUpdate)) (gateway.Unsubscribe, error) {
	subID, err := c.subscribeFeed(roomID, types.FeedRoom, func(f types.ServerFrame) {
		var u gateway.RoomUpdate
		if err := json.Unmarshal(f.Payload, &u); err != nil {
			c.log.Warn("bad room event", zap.Error(err))
			return
		}
		onUpdate(u)
	})
	if err != nil {
		return nil, err
	}
	return c.unsubscribeFeed(types.FeedRoom, subID), nil
}

func (c *Client) SubscribeParticipantChanges(roomID string, onInsert, onUpdate func(game.Participant)) (gateway.Unsubscribe, error) {
	subID, err := c.subscribeFeed(roomID, types.FeedParticipants, func(f types.ServerFrame) {
		var p game.Participant
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			c.log.Warn("bad participant event", zap.Error(err))
			return
		}
		switch f.Kind {
		case types.KindInsert:
			onInsert(p)
		case types.KindUpdate:
			onUpdate(p)
		}
	})
	if err != nil {
		return nil, err
	}
	return c.unsubscribeFeed(types.FeedParticipants, subID), nil
}

func (c *Client) SubscribeBroadcast(roomID string, onEvent func(gateway.BroadcastEvent)) (gateway.Unsubscribe, error) {
	subID, err := c.subscribeFeed(roomID, types.FeedBroadcast, func(f types.ServerFrame) {
		var ev gateway.BroadcastEvent
		if err := json.Unmarshal(f.Payload, &ev); err != nil {
			c.log.Warn("bad broadcast event", zap.Error(err))
			return
		}
		onEvent(ev)
	})
	if err != nil {
		return nil, err
	}
	return c.unsubscribeFeed(types.FeedBroadcast, subID), nil
}

func (c *Client) PublishBroadcast(roomID string, ev gateway.BroadcastEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.write(c.ctx, types.ClientFrame{Type: types.FramePublish, RoomID: roomID, Payload: payload})
}

func (c *Client) SubscribePresence(roomID string, onSync func([]gateway.PresenceEntry)) (gateway.PresenceSub, error) {
	subID, err := c.subscribeFeed(roomID, types.FeedPresence, func(f types.ServerFrame) {
		var roster []gateway.PresenceEntry
		if err := json.Unmarshal(f.Payload, &roster); err != nil {
			c.log.Warn("bad presence sync", zap.Error(err))
			return
		}
		onSync(roster)
	})
	if err != nil {
		return nil, err
	}
	return &wsPresenceSub{c: c, subID: subID}, nil
}

type wsPresenceSub struct {
	c     *Client
	subID string
	once  sync.Once
}

func (p *wsPresenceSub) Track(entry gateway.PresenceEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = p.c.write(p.c.ctx, types.ClientFrame{Type: types.FrameTrack, SubID: p.subID, Payload: payload})
}

func (p *wsPresenceSub) Unsubscribe() {
	p.once.Do(func() {
		p.c.mu.Lock()
		delete(p.c.subs, p.subID)
		p.c.mu.Unlock()
		_ = p.c.write(p.c.ctx, types.ClientFrame{Type: types.FrameUnsubscribe, Feed: types.FeedPresence, SubID: p.subID})
	})
}
