package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/hivewords/hive-sync/internal/game"
	"github.com/hivewords/hive-sync/internal/gateway"
	"github.com/hivewords/hive-sync/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	rpcTimeout   = 10 * time.Second
	outBuffer    = 32
)

// Handler exposes a gateway over one websocket per client: four multiplexed
// feeds plus request/reply RPCs, per the frames in pkg/types.
func Handler(gw gateway.Gateway, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c := &serverConn{
			conn:   conn,
			gw:     gw,
			log:    log,
			out:    make(chan types.ServerFrame, outBuffer),
			subs:   make(map[string]gateway.Unsubscribe),
			psubs:  make(map[string]gateway.PresenceSub),
			cancel: cancel,
		}
		defer c.releaseAll()

		// Writer goroutine: the only writer on this socket.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case f := <-c.out:
					payload, _ := json.Marshal(f)
					wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
					_ = conn.Write(wctx, websocket.MessageText, payload)
					wcancel()
				}
			}
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}
			var f types.ClientFrame
			if err := json.Unmarshal(data, &f); err != nil {
				c.push(types.ServerFrame{Type: types.FrameRPCResult, Error: types.ErrCodeBadFrame})
				continue
			}
			c.handle(ctx, f)
		}
	}
}

type serverConn struct {
	conn   *websocket.Conn
	gw     gateway.Gateway
	log    *zap.Logger
	out    chan types.ServerFrame
	subs   map[string]gateway.Unsubscribe
	psubs  map[string]gateway.PresenceSub
	cancel context.CancelFunc
}

// push hands a frame to the writer. A client too slow to drain its feed
// loses the connection; it must resync on reconnect anyway.
func (c *serverConn) push(f types.ServerFrame) {
	select {
	case c.out <- f:
	default:
		c.cancel()
	}
}

func (c *serverConn) handle(ctx context.Context, f types.ClientFrame) {
	switch f.Type {
	case types.FrameRPC:
		c.handleRPC(ctx, f)
	case types.FrameSubscribe:
		c.handleSubscribe(f)
	case types.FrameUnsubscribe:
		if unsub, ok := c.subs[f.SubID]; ok {
			unsub()
			delete(c.subs, f.SubID)
		}
		if psub, ok := c.psubs[f.SubID]; ok {
			psub.Unsubscribe()
			delete(c.psubs, f.SubID)
		}
	case types.FrameTrack:
		psub, ok := c.psubs[f.SubID]
		if !ok {
			return
		}
		var entry gateway.PresenceEntry
		if err := json.Unmarshal(f.Payload, &entry); err != nil {
			return
		}
		psub.Track(entry)
	case types.FramePublish:
		var ev gateway.BroadcastEvent
		if err := json.Unmarshal(f.Payload, &ev); err != nil {
			return
		}
		if err := c.gw.PublishBroadcast(f.RoomID, ev); err != nil {
			c.log.Warn("publish failed", zap.Error(err))
		}
	}
}

func (c *serverConn) handleRPC(ctx context.Context, f types.ClientFrame) {
	rctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	reply := types.ServerFrame{Type: types.FrameRPCResult, ReqID: f.ReqID}

	switch f.Method {
	case types.MethodFetchRoom:
		snap, err := c.gw.FetchRoom(rctx, f.RoomCode)
		if err != nil {
			reply.Error = errCode(err)
			break
		}
		reply.Payload, _ = json.Marshal(snap)

	case types.MethodFetchParticipants:
		parts, err := c.gw.FetchParticipants(rctx, f.RoomID)
		if err != nil {
			reply.Error = errCode(err)
			break
		}
		reply.Payload, _ = json.Marshal(parts)

	case types.MethodSubmitGuess:
		score, err := c.gw.SubmitGuess(rctx, f.RoomCode, f.UserID, f.Word)
		if err != nil {
			reply.Error = errCode(err)
			break
		}
		reply.Score = score

	case types.MethodReportMissing:
		if err := c.gw.ReportMissingWord(rctx, f.RoomID, f.UserID, f.Word); err != nil {
			reply.Error = errCode(err)
		}

	default:
		reply.Error = types.ErrCodeBadFrame
	}
	c.push(reply)
}

// handleSubscribe opens a feed and acks via the frame's req id, so a client
// knows its subscription is live before it announces presence.
func (c *serverConn) handleSubscribe(f types.ClientFrame) {
	reply := types.ServerFrame{Type: types.FrameRPCResult, ReqID: f.ReqID, SubID: f.SubID}
	subID := f.SubID

	var err error
	switch f.Feed {
	case types.FeedRoom:
		var unsub gateway.Unsubscribe
		unsub, err = c.gw.SubscribeRoomChanges(f.RoomID, func(u gateway.RoomUpdate) {
			payload, _ := json.Marshal(u)
			c.push(types.ServerFrame{Type: types.FrameEvent, SubID: subID, Feed: types.FeedRoom, Payload: payload})
		})
		if err == nil {
			c.subs[subID] = unsub
		}

	case types.FeedParticipants:
		var unsub gateway.Unsubscribe
		unsub, err = c.gw.SubscribeParticipantChanges(f.RoomID,
			c.participantPusher(subID, types.KindInsert),
			c.participantPusher(subID, types.KindUpdate),
		)
		if err == nil {
			c.subs[subID] = unsub
		}

	case types.FeedBroadcast:
		var unsub gateway.Unsubscribe
		unsub, err = c.gw.SubscribeBroadcast(f.RoomID, func(ev gateway.BroadcastEvent) {
			payload, _ := json.Marshal(ev)
			c.push(types.ServerFrame{Type: types.FrameEvent, SubID: subID, Feed: types.FeedBroadcast, Payload: payload})
		})
		if err == nil {
			c.subs[subID] = unsub
		}

	case types.FeedPresence:
		var psub gateway.PresenceSub
		psub, err = c.gw.SubscribePresence(f.RoomID, func(roster []gateway.PresenceEntry) {
			payload, _ := json.Marshal(roster)
			c.push(types.ServerFrame{Type: types.FrameEvent, SubID: subID, Feed: types.FeedPresence, Payload: payload})
		})
		if err == nil {
			c.psubs[subID] = psub
		}

	default:
		err = errors.New(types.ErrCodeBadFrame)
	}

	if err != nil {
		reply.Error = errCode(err)
	}
	c.push(reply)
}

func (c *serverConn) participantPusher(subID, kind string) func(p game.Participant) {
	return func(p game.Participant) {
		payload, _ := json.Marshal(p)
		c.push(types.ServerFrame{Type: types.FrameEvent, SubID: subID, Feed: types.FeedParticipants, Kind: kind, Payload: payload})
	}
}

func (c *serverConn) releaseAll() {
	for id, unsub := range c.subs {
		unsub()
		delete(c.subs, id)
	}
	for id, psub := range c.psubs {
		psub.Unsubscribe()
		delete(c.psubs, id)
	}
}

func errCode(err error) string {
	if errors.Is(err, gateway.ErrNotFound) {
		return types.ErrCodeNotFound
	}
	return types.ErrCodeInternal
}
