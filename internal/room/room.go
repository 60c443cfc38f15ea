package room

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/hivewords/hive-sync/internal/game"
	"github.com/hivewords/hive-sync/internal/gateway"
)

// Config seeds a new authoritative room. AnswerKey maps each valid answer
// (lowercase) to its score; clients never see it in full.
type Config struct {
	ID        string
	Code      string
	Puzzle    string
	AnswerKey map[string]int
}

type Msg interface{ isRoomMsg() }

type SubmitGuess struct {
	UserID string
	Word   string
	Reply  chan int
}

type GetSnapshot struct{ Reply chan game.Snapshot }

type GetParticipants struct{ Reply chan []game.Participant }

type ReportMissing struct {
	UserID string
	Word   string
}

type SubscribeRoom struct {
	SubID string
	Out   chan gateway.RoomUpdate
}

type SubscribeParticipants struct {
	SubID string
	Out   chan ParticipantEvent
}

type SubscribeBroadcast struct {
	SubID string
	Out   chan gateway.BroadcastEvent
}

type SubscribePresence struct {
	SubID string
	Out   chan []gateway.PresenceEntry
}

type Publish struct{ Event gateway.BroadcastEvent }

type Track struct {
	SubID string
	Entry gateway.PresenceEntry
}

type UnsubscribeFeed struct {
	Feed  Feed
	SubID string
}

type Shutdown struct{}

func (SubmitGuess) isRoomMsg()           {}
func (GetSnapshot) isRoomMsg()           {}
func (GetParticipants) isRoomMsg()       {}
func (ReportMissing) isRoomMsg()         {}
func (SubscribeRoom) isRoomMsg()         {}
func (SubscribeParticipants) isRoomMsg() {}
func (SubscribeBroadcast) isRoomMsg()    {}
func (SubscribePresence) isRoomMsg()     {}
func (Publish) isRoomMsg()               {}
func (Track) isRoomMsg()                 {}
func (UnsubscribeFeed) isRoomMsg()       {}
func (Shutdown) isRoomMsg()              {}

type Feed string

const (
	FeedRoom         Feed = "room"
	FeedParticipants Feed = "participants"
	FeedBroadcast    Feed = "broadcast"
	FeedPresence     Feed = "presence"
)

type ParticipantEventKind string

const (
	ParticipantInsert ParticipantEventKind = "INSERT"
	ParticipantUpdate ParticipantEventKind = "UPDATE"
)

type ParticipantEvent struct {
	Kind        ParticipantEventKind
	Participant game.Participant
}

// MissingWordReport is a best-effort record of a rejected word.
type MissingWordReport struct {
	RoomID     string
	UserID     string
	Word       string
	ReportedAt time.Time
}

// Room owns one game's authoritative state. All mutation flows through the
// inbox loop, so every guess is scored atomically and room-scoped word
// uniqueness holds even under concurrent submissions.
type Room struct {
	inbox chan Msg
	cfg   Config
	log   *zap.Logger

	guessed      []string
	participants map[string]*game.Participant
	updatedAt    time.Time

	roomSubs        map[string]chan gateway.RoomUpdate
	participantSubs map[string]chan ParticipantEvent
	broadcastSubs   map[string]chan gateway.BroadcastEvent
	presenceSubs    map[string]chan []gateway.PresenceEntry
	roster          map[string]gateway.PresenceEntry // keyed by presence sub id

	missingWords []MissingWordReport

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, cfg Config, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		inbox:           make(chan Msg, 64),
		cfg:             cfg,
		log:             log.With(zap.String("room", cfg.Code)),
		participants:    make(map[string]*game.Participant),
		updatedAt:       time.Now().UTC(),
		roomSubs:        make(map[string]chan gateway.RoomUpdate),
		participantSubs: make(map[string]chan ParticipantEvent),
		broadcastSubs:   make(map[string]chan gateway.BroadcastEvent),
		presenceSubs:    make(map[string]chan []gateway.PresenceEntry),
		roster:          make(map[string]gateway.PresenceEntry),
		ctx:             ctx,
		cancel:          cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) ID() string   { return r.cfg.ID }
func (r *Room) Code() string { return r.cfg.Code }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case SubmitGuess:
				msg.Reply <- r.applyGuess(msg.UserID, msg.Word)

			case GetSnapshot:
				msg.Reply <- r.snapshot()

			case GetParticipants:
				msg.Reply <- r.participantList()

			case ReportMissing:
				r.missingWords = append(r.missingWords, MissingWordReport{
					RoomID:     r.cfg.ID,
					UserID:     msg.UserID,
					Word:       game.Normalize(msg.Word),
					ReportedAt: time.Now().UTC(),
				})
				r.log.Info("missing word reported",
					zap.String("user", msg.UserID), zap.String("word", msg.Word))

			case SubscribeRoom:
				r.roomSubs[msg.SubID] = msg.Out

			case SubscribeParticipants:
				r.participantSubs[msg.SubID] = msg.Out

			case SubscribeBroadcast:
				r.broadcastSubs[msg.SubID] = msg.Out

			case SubscribePresence:
				r.presenceSubs[msg.SubID] = msg.Out
				// New subscribers see the current roster right away.
				r.sendPresence(msg.SubID, msg.Out)

			case Publish:
				r.fanoutBroadcast(msg.Event)

			case Track:
				if _, ok := r.presenceSubs[msg.SubID]; !ok {
					// Track before subscribe confirms is silently dropped.
					break
				}
				r.roster[msg.SubID] = msg.Entry
				r.fanoutPresence()

			case UnsubscribeFeed:
				r.unsubscribe(msg.Feed, msg.SubID)

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) snapshot() game.Snapshot {
	total := 0
	for _, s := range r.cfg.AnswerKey {
		total += s
	}
	return game.Snapshot{
		ID:             r.cfg.ID,
		RoomCode:       r.cfg.Code,
		Puzzle:         r.cfg.Puzzle,
		GuessedAnswers: slices.Clone(r.guessed),
		AnswerCount:    len(r.cfg.AnswerKey),
		TotalScore:     total,
		UpdatedAt:      r.updatedAt,
	}
}

func (r *Room) participantList() []game.Participant {
	out := make([]game.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b game.Participant) int {
		if a.UserID < b.UserID {
			return -1
		}
		if a.UserID > b.UserID {
			return 1
		}
		return 0
	})
	return out
}

// applyGuess scores one guess atomically. Returns 0 when the word is not in
// the answer key or someone already took it room-wide.
func (r *Room) applyGuess(userID, word string) int {
	g := game.Normalize(word)
	score, ok := r.cfg.AnswerKey[g]
	if !ok || slices.Contains(r.guessed, g) {
		return 0
	}

	r.guessed = append(r.guessed, g)
	r.updatedAt = time.Now().UTC()

	p, known := r.participants[userID]
	if !known {
		p = &game.Participant{UserID: userID}
		r.participants[userID] = p
		r.fanoutParticipant(ParticipantEvent{Kind: ParticipantInsert, Participant: p.Clone()})
	}
	p.Score += score
	p.Answers = append(p.Answers, g)

	// Independent feeds: the room row and the participant row each carry
	// only the fields they own. No ordering is promised between them.
	r.fanoutRoom(gateway.RoomUpdate{
		ID:             r.cfg.ID,
		RoomCode:       r.cfg.Code,
		GuessedAnswers: slices.Clone(r.guessed),
		UpdatedAt:      r.updatedAt,
	})
	r.fanoutParticipant(ParticipantEvent{Kind: ParticipantUpdate, Participant: p.Clone()})

	r.log.Debug("guess scored",
		zap.String("user", userID), zap.String("word", g), zap.Int("score", score))
	return score
}

func (r *Room) fanoutRoom(u gateway.RoomUpdate) {
	for id, ch := range r.roomSubs {
		select {
		case ch <- u:
		default:
			// Subscriber is slow/full - drop them.
			close(ch)
			delete(r.roomSubs, id)
		}
	}
}

func (r *Room) fanoutParticipant(ev ParticipantEvent) {
	for id, ch := range r.participantSubs {
		select {
		case ch <- ev:
		default:
			close(ch)
			delete(r.participantSubs, id)
		}
	}
}

func (r *Room) fanoutBroadcast(ev gateway.BroadcastEvent) {
	for id, ch := range r.broadcastSubs {
		select {
		case ch <- ev:
		default:
			close(ch)
			delete(r.broadcastSubs, id)
		}
	}
}

func (r *Room) rosterList() []gateway.PresenceEntry {
	out := make([]gateway.PresenceEntry, 0, len(r.roster))
	for _, e := range r.roster {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b gateway.PresenceEntry) int {
		if a.UserID < b.UserID {
			return -1
		}
		if a.UserID > b.UserID {
			return 1
		}
		return 0
	})
	return out
}

func (r *Room) sendPresence(id string, ch chan []gateway.PresenceEntry) {
	select {
	case ch <- r.rosterList():
	default:
		close(ch)
		delete(r.presenceSubs, id)
	}
}

// fanoutPresence pushes the full roster to every presence subscriber.
// Presence is a full-state protocol: no deltas, ever.
func (r *Room) fanoutPresence() {
	roster := r.rosterList()
	for id, ch := range r.presenceSubs {
		select {
		case ch <- roster:
		default:
			close(ch)
			delete(r.presenceSubs, id)
		}
	}
}

func (r *Room) unsubscribe(feed Feed, subID string) {
	switch feed {
	case FeedRoom:
		if ch, ok := r.roomSubs[subID]; ok {
			close(ch)
			delete(r.roomSubs, subID)
		}
	case FeedParticipants:
		if ch, ok := r.participantSubs[subID]; ok {
			close(ch)
			delete(r.participantSubs, subID)
		}
	case FeedBroadcast:
		if ch, ok := r.broadcastSubs[subID]; ok {
			close(ch)
			delete(r.broadcastSubs, subID)
		}
	case FeedPresence:
		if ch, ok := r.presenceSubs[subID]; ok {
			close(ch)
			delete(r.presenceSubs, subID)
			if _, tracked := r.roster[subID]; tracked {
				delete(r.roster, subID)
				r.fanoutPresence()
			}
		}
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.roomSubs {
		close(ch)
		delete(r.roomSubs, id)
	}
	for id, ch := range r.participantSubs {
		close(ch)
		delete(r.participantSubs, id)
	}
	for id, ch := range r.broadcastSubs {
		close(ch)
		delete(r.broadcastSubs, id)
	}
	for id, ch := range r.presenceSubs {
		close(ch)
		delete(r.presenceSubs, id)
	}
	clear(r.roster)
	r.cancel()
}
