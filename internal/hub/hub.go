package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/hivewords/hive-sync/internal/room"
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Cfg   room.Config
	Reply chan *room.Room
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

type GetRoomByID struct {
	ID    string
	Reply chan *room.Room
}

type RemoveRoom struct {
	Code string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (GetRoomByID) isHubMsg() {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Hub owns the set of live rooms, keyed by join code and by row id.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	byID   map[string]*room.Room
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		byID:   make(map[string]*room.Room),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if rm := h.rooms[msg.Cfg.Code]; rm != nil {
					msg.Reply <- rm
					break
				}
				rm := room.New(h.ctx, msg.Cfg, h.log)
				h.rooms[msg.Cfg.Code] = rm
				h.byID[msg.Cfg.ID] = rm
				h.log.Info("room created",
					zap.String("code", msg.Cfg.Code), zap.String("id", msg.Cfg.ID))
				msg.Reply <- rm

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // May be nil

			case GetRoomByID:
				msg.Reply <- h.byID[msg.ID] // May be nil

			case RemoveRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					delete(h.byID, rm.ID())
					delete(h.rooms, msg.Code)
					rm.Inbox() <- room.Shutdown{}
				}

			case ShutdownHub:
				for code, rm := range h.rooms {
					rm.Inbox() <- room.Shutdown{}
					delete(h.rooms, code)
				}
				clear(h.byID)
				h.cancel()
			}
		}
	}
}
